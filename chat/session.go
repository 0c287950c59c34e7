package chat

import (
	"context"
	"errors"
)

var (
	// ErrTransport wraps read-level connection failures. Watchers recover from
	// it by reconnecting.
	ErrTransport = errors.New("chat transport failure")
	// ErrProtocolParse is returned for inbound lines that cannot be interpreted.
	ErrProtocolParse = errors.New("chat protocol parse failure")
	// ErrNotConnected is returned when an operation needs an open session.
	ErrNotConnected = errors.New("chat session not connected")
	// ErrQueueClosed is returned by a Sink once its consumer has gone away.
	ErrQueueClosed = errors.New("queue closed")
)

// EventKind classifies an inbound chat event.
type EventKind int

const (
	// EventOther is protocol housekeeping the watcher ignores.
	EventOther EventKind = iota
	// EventChat is a chat line in one of the joined channels.
	EventChat
	// EventReconnect is a server directive to reconnect.
	EventReconnect
)

// Event is one inbound chat event.
type Event struct {
	Kind    EventKind
	Channel ChannelName
	Sender  string
	Text    string
}

// Session is one read-only chat connection that may be subscribed to many
// channels. Implementations are used by a single goroutine.
type Session interface {
	// Connect opens the connection anonymously.
	Connect(ctx context.Context) error
	// Join subscribes to channels. They are remembered for Reconnect.
	Join(ctx context.Context, channels ...ChannelName) error
	// Next blocks for the next event. Connection loss is reported as an
	// error wrapping ErrTransport.
	Next(ctx context.Context) (Event, error)
	// Reconnect drops the current connection, dials again and rejoins every
	// previously joined channel.
	Reconnect(ctx context.Context) error
	// Close releases the connection.
	Close() error
}

// SessionFactory creates a fresh, unconnected Session.
type SessionFactory func() Session

// Sink receives matched messages. Send blocks while the sink is full and
// returns ErrQueueClosed once nothing will consume further messages.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}
