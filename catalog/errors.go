package catalog

import (
	"errors"
	"fmt"

	"github.com/onnwee/chatgrep/twitchapi"
)

// Kind classifies a resolution failure. Every kind is fatal for the run.
type Kind int

const (
	KindUnexpected Kind = iota
	KindUnauthorized
	KindBadRequest
	KindNotFound
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindBadRequest:
		return "bad request"
	case KindNotFound:
		return "not found"
	default:
		return "unexpected"
	}
}

// ResolutionError is returned by Resolve. It is never retried.
type ResolutionError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resolve %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("resolve %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// KindOf returns the Kind of a resolution error, KindUnexpected otherwise.
func KindOf(err error) Kind {
	var rerr *ResolutionError
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return KindUnexpected
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var rerr *ResolutionError
	if errors.As(err, &rerr) {
		return err
	}
	kind := KindUnexpected
	switch twitchapi.KindOf(err) {
	case twitchapi.KindUnauthorized:
		kind = KindUnauthorized
	case twitchapi.KindBadRequest:
		kind = KindBadRequest
	}
	return &ResolutionError{Kind: kind, Op: op, Err: err}
}
