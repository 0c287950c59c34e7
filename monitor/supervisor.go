package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/chatgrep/catalog"
	"github.com/onnwee/chatgrep/chat"
	"github.com/onnwee/chatgrep/telemetry"
)

// ErrNoChannels is returned when resolution yields nothing to watch.
var ErrNoChannels = errors.New("no channels to watch")

// Resolver turns a target into channels.
type Resolver interface {
	Resolve(ctx context.Context, target catalog.Target) ([]chat.ChannelName, error)
}

// Config holds everything one run needs.
type Config struct {
	Target     catalog.Target
	Resolver   Resolver
	NewSession chat.SessionFactory
	Filter     *chat.Filter
	Output     Emitter
	BatchSize  int
	QueueSize  int
	Watcher    chat.WatcherOptions
}

// WatcherStatus is a point-in-time view of one watcher.
type WatcherStatus struct {
	Batch    int    `json:"batch"`
	Channels int    `json:"channels"`
	State    string `json:"state"`
}

// Status is a point-in-time view of a run.
type Status struct {
	RunID      string          `json:"run_id"`
	Phase      string          `json:"phase"`
	StartedAt  time.Time       `json:"started_at"`
	Channels   int             `json:"channels"`
	QueueDepth int             `json:"queue_depth"`
	QueueCap   int             `json:"queue_capacity"`
	Watchers   []WatcherStatus `json:"watchers"`
}

// Run phases reported by Status.
const (
	PhaseIdle      = "idle"
	PhaseResolving = "resolving"
	PhaseWatching  = "watching"
	PhaseDraining  = "draining"
	PhaseDone      = "done"
)

// Supervisor resolves channels, starts one watcher per batch and runs the
// aggregator until every watcher has terminated.
type Supervisor struct {
	cfg Config

	mu        sync.RWMutex
	runID     string
	phase     string
	startedAt time.Time
	channels  int
	queue     *Queue
	watchers  []*chat.Watcher
}

// NewSupervisor returns a supervisor for cfg.
func NewSupervisor(cfg Config) *Supervisor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = chat.DefaultBatchSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	return &Supervisor{cfg: cfg, phase: PhaseIdle}
}

// Run executes one monitoring run. Watcher failures are logged and do not
// fail the run; resolution failures, ErrNoChannels and output failures do.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.cfg.Resolver == nil || s.cfg.NewSession == nil || s.cfg.Filter == nil || s.cfg.Output == nil {
		return errors.New("supervisor: resolver, session factory, filter and output are required")
	}
	runID := uuid.NewString()
	ctx = telemetry.WithCorrelation(ctx, runID)
	ctx, span := telemetry.StartSpan(ctx, "monitor", "Run", attribute.Int("batch_size", s.cfg.BatchSize))
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "supervisor"))

	s.mu.Lock()
	s.runID, s.startedAt, s.phase = runID, time.Now(), PhaseResolving
	s.mu.Unlock()
	defer s.setPhase(PhaseDone)

	channels, err := s.cfg.Resolver.Resolve(ctx, s.cfg.Target)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if len(channels) == 0 {
		telemetry.RecordError(span, ErrNoChannels)
		return ErrNoChannels
	}

	batches := chat.Plan(channels, s.cfg.BatchSize)
	queue := NewQueue(s.cfg.QueueSize)
	watchers := make([]*chat.Watcher, 0, len(batches))
	for _, b := range batches {
		watchers = append(watchers, chat.NewWatcher(b, s.cfg.Filter, queue, s.cfg.NewSession, s.cfg.Watcher))
	}
	s.mu.Lock()
	s.channels, s.queue, s.watchers, s.phase = len(channels), queue, watchers, PhaseWatching
	s.mu.Unlock()
	span.SetAttributes(attribute.Int("channels", len(channels)), attribute.Int("batches", len(batches)))
	log.Info("starting watchers", slog.Int("channels", len(channels)), slog.Int("batches", len(batches)), slog.String("filter", s.cfg.Filter.Pattern()))

	agg := NewAggregator(s.cfg.Output)
	aggDone := make(chan error, 1)
	go func() { aggDone <- agg.Run(ctx, queue) }()

	// A failed output cancels every watcher, including idle ones.
	watchCtx, stopWatchers := context.WithCancel(ctx)
	defer stopWatchers()

	var (
		g      errgroup.Group
		failMu sync.Mutex
		failed int
	)
	for _, w := range watchers {
		g.Go(func() error {
			if err := w.Run(watchCtx); err != nil && watchCtx.Err() == nil {
				failMu.Lock()
				failed++
				failMu.Unlock()
			}
			return nil
		})
	}
	watchersDone := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(watchersDone)
	}()

	var aggErr error
	select {
	case <-watchersDone:
		s.setPhase(PhaseDraining)
		queue.Close()
		aggErr = <-aggDone
	case aggErr = <-aggDone:
		log.Warn("output stopped; stopping watchers", slog.Any("err", aggErr))
		stopWatchers()
		s.setPhase(PhaseDraining)
		<-watchersDone
		queue.Close()
	}

	log.Info("all watchers terminated", slog.Int("watchers", len(watchers)), slog.Int("failed", failed), slog.Int("emitted", agg.Emitted()))
	if aggErr != nil {
		telemetry.RecordError(span, aggErr)
		return aggErr
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run canceled: %w", err)
	}
	telemetry.SetSpanSuccess(span)
	return nil
}

func (s *Supervisor) setPhase(p string) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// Status reports the current run. Safe for concurrent use.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		RunID:     s.runID,
		Phase:     s.phase,
		StartedAt: s.startedAt,
		Channels:  s.channels,
		Watchers:  make([]WatcherStatus, 0, len(s.watchers)),
	}
	if s.queue != nil {
		st.QueueDepth, st.QueueCap = s.queue.Len(), s.queue.Cap()
	}
	for _, w := range s.watchers {
		b := w.Batch()
		st.Watchers = append(st.Watchers, WatcherStatus{Batch: b.Index, Channels: len(b.Channels), State: string(w.State())})
	}
	return st
}
