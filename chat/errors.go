package chat

import "fmt"

// Reason records why a watcher terminated.
type Reason int

const (
	ReasonConnectFailed Reason = iota
	ReasonJoinFailed
	ReasonProtocolParse
	ReasonReconnectExhausted
	ReasonQueueClosed
	ReasonCanceled
)

// String returns a stable label, also used as a metric label value.
func (r Reason) String() string {
	switch r {
	case ReasonConnectFailed:
		return "connect_failed"
	case ReasonJoinFailed:
		return "join_failed"
	case ReasonProtocolParse:
		return "protocol_parse_failure"
	case ReasonReconnectExhausted:
		return "reconnect_exhausted"
	case ReasonQueueClosed:
		return "queue_closed"
	case ReasonCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// SessionError is returned by Watcher.Run when the watcher stops for any
// reason other than a closed queue. It only ever affects its own batch.
type SessionError struct {
	Reason Reason
	Batch  int
	Err    error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("watcher %d: %s: %v", e.Batch, e.Reason, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }
