package monitor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/onnwee/chatgrep/telemetry"
)

// Aggregator is the single consumer of the queue.
type Aggregator struct {
	out     Emitter
	emitted int
}

// NewAggregator returns an aggregator writing through out.
func NewAggregator(out Emitter) *Aggregator {
	return &Aggregator{out: out}
}

// Emitted reports how many messages were written. Only meaningful after Run
// returned.
func (a *Aggregator) Emitted() int { return a.emitted }

// Run writes every message in dequeue order until q is closed and drained.
// An output error stops the queue so producers exit, and is returned.
func (a *Aggregator) Run(ctx context.Context, q *Queue) error {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "aggregator"))
	defer q.Stop()
	for msg := range q.Messages() {
		telemetry.SetQueueDepth(q.Len())
		if err := a.out.Emit(msg); err != nil {
			log.Error("output failed", slog.Any("err", err))
			return fmt.Errorf("write output: %w", err)
		}
		a.emitted++
	}
	log.Debug("queue drained", slog.Int("emitted", a.emitted))
	return nil
}
