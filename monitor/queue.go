// Package monitor wires resolution, watchers and the ordered output together.
package monitor

import (
	"context"
	"sync"

	"github.com/onnwee/chatgrep/chat"
	"github.com/onnwee/chatgrep/telemetry"
)

// DefaultQueueSize is the queue capacity used when none is configured.
const DefaultQueueSize = 1000

// Queue is the bounded multi-producer, single-consumer channel between
// watchers and the aggregator. Send blocks while the queue is full.
type Queue struct {
	ch chan chat.Message

	mu     sync.RWMutex
	closed bool

	stop     chan struct{}
	stopOnce sync.Once
}

// NewQueue returns a queue holding at most size messages.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ch: make(chan chat.Message, size), stop: make(chan struct{})}
}

// Send enqueues msg. It returns chat.ErrQueueClosed once the consumer has
// stopped or the queue was closed.
func (q *Queue) Send(ctx context.Context, msg chat.Message) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return chat.ErrQueueClosed
	}
	select {
	case <-q.stop:
		return chat.ErrQueueClosed
	default:
	}
	select {
	case q.ch <- msg:
		telemetry.SetQueueDepth(len(q.ch))
		return nil
	case <-q.stop:
		return chat.ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the end of input. The consumer drains what is buffered and
// then sees the channel closed. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Stop is called by the consumer when it will read no more. Pending and
// future sends fail with chat.ErrQueueClosed.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() { close(q.stop) })
}

// Messages is the receive side for the consumer.
func (q *Queue) Messages() <-chan chat.Message { return q.ch }

// Len reports the number of buffered messages.
func (q *Queue) Len() int { return len(q.ch) }

// Cap reports the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }
