package twitchapi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed Helix call.
type ErrorKind int

const (
	// KindUnexpected covers any non-2xx status other than 400/401, transport
	// failures and malformed response bodies.
	KindUnexpected ErrorKind = iota
	// KindUnauthorized means the credentials were rejected.
	KindUnauthorized
	// KindBadRequest means Helix rejected the query itself.
	KindBadRequest
)

// String returns a human-readable name for the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindBadRequest:
		return "bad request"
	default:
		return "unexpected"
	}
}

// APIError is returned by every HelixClient method.
type APIError struct {
	Kind   ErrorKind
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *APIError) Error() string {
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("helix %s: %s (%d): %s", e.Op, e.Kind, e.Status, e.Body)
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("helix %s: %s (%d): %v", e.Op, e.Kind, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("helix %s: %s (%d)", e.Op, e.Kind, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("helix %s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("helix %s: %s", e.Op, e.Kind)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// KindOf returns the ErrorKind carried by err, or KindUnexpected when err is
// not an *APIError.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnexpected
}

func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusBadRequest:
		return KindBadRequest
	default:
		return KindUnexpected
	}
}
