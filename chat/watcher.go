package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/looplab/fsm"

	"github.com/onnwee/chatgrep/telemetry"
)

// State is a watcher lifecycle state.
type State string

const (
	StateConnecting   State = "connecting"
	StateJoined       State = "joined"
	StateReading      State = "reading"
	StateReconnecting State = "reconnecting"
	StateTerminated   State = "terminated"
)

const (
	evJoined    = "joined"
	evRead      = "read"
	evReconnect = "reconnect"
	evTerminate = "terminate"
)

// Defaults for WatcherOptions.
const (
	DefaultMaxReconnects  = 10
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 30 * time.Second
	DefaultStableAfter    = time.Minute
)

// WatcherOptions bound the reconnect discipline.
type WatcherOptions struct {
	// MaxReconnects is the number of consecutive reconnect attempts before the
	// watcher gives up. The count resets once the session is stable again.
	MaxReconnects  uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// StableAfter is how long a connection must stay up before a later
	// failure starts a fresh reconnect budget. A delivered chat message also
	// marks the connection stable.
	StableAfter time.Duration
}

func (o WatcherOptions) withDefaults() WatcherOptions {
	if o.MaxReconnects == 0 {
		o.MaxReconnects = DefaultMaxReconnects
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = DefaultInitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = o.InitialBackoff
	}
	if o.StableAfter <= 0 {
		o.StableAfter = DefaultStableAfter
	}
	return o
}

// Watcher owns one chat session for one batch.
type Watcher struct {
	batch      Batch
	filter     *Filter
	sink       Sink
	newSession SessionFactory
	opts       WatcherOptions
	machine    *fsm.FSM

	// Reconnect bookkeeping, touched only by the Run goroutine.
	backoff   *backoff.ExponentialBackOff
	attempts  uint
	upSince   time.Time
	delivered bool
}

// NewWatcher builds a watcher in the connecting state.
func NewWatcher(batch Batch, filter *Filter, sink Sink, newSession SessionFactory, opts WatcherOptions) *Watcher {
	opts = opts.withDefaults()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.InitialBackoff
	b.MaxInterval = opts.MaxBackoff
	b.Reset()

	w := &Watcher{
		batch:      batch,
		filter:     filter,
		sink:       sink,
		newSession: newSession,
		opts:       opts,
		backoff:    b,
	}
	w.machine = fsm.NewFSM(
		string(StateConnecting),
		fsm.Events{
			{Name: evJoined, Src: []string{string(StateConnecting)}, Dst: string(StateJoined)},
			{Name: evRead, Src: []string{string(StateJoined), string(StateReconnecting)}, Dst: string(StateReading)},
			{Name: evReconnect, Src: []string{string(StateReading)}, Dst: string(StateReconnecting)},
			{Name: evTerminate, Src: []string{string(StateConnecting), string(StateJoined), string(StateReading), string(StateReconnecting)}, Dst: string(StateTerminated)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				telemetry.MoveWatcherState(e.Src, e.Dst)
			},
		},
	)
	telemetry.MoveWatcherState("", string(StateConnecting))
	return w
}

// Batch returns the batch this watcher owns.
func (w *Watcher) Batch() Batch { return w.batch }

// State returns the current lifecycle state. Safe for concurrent use.
func (w *Watcher) State() State { return State(w.machine.Current()) }

// Run connects, joins the batch and reads until the watcher terminates. It
// returns nil when the sink closed, otherwise a *SessionError.
func (w *Watcher) Run(ctx context.Context) error {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "watcher"), slog.Int("batch", w.batch.Index))
	sess := w.newSession()
	defer func() {
		if err := sess.Close(); err != nil {
			log.Debug("session close", slog.Any("err", err))
		}
	}()

	err := w.run(ctx, sess, log)
	w.fire(ctx, log, evTerminate)

	var serr *SessionError
	if errors.As(err, &serr) {
		telemetry.IncTerminated(serr.Reason.String())
		if serr.Reason == ReasonCanceled {
			log.Info("watcher stopped", slog.String("reason", serr.Reason.String()))
		} else {
			log.Error("watcher terminated", slog.String("reason", serr.Reason.String()), slog.Any("err", serr.Err))
		}
		return err
	}
	telemetry.IncTerminated(ReasonQueueClosed.String())
	log.Info("watcher stopped", slog.String("reason", ReasonQueueClosed.String()))
	return nil
}

func (w *Watcher) run(ctx context.Context, sess Session, log *slog.Logger) error {
	if err := sess.Connect(ctx); err != nil {
		return w.fail(ReasonConnectFailed, err)
	}
	if err := sess.Join(ctx, w.batch.Channels...); err != nil {
		return w.fail(ReasonJoinFailed, err)
	}
	w.markUp()
	w.fire(ctx, log, evJoined)
	log.Info("watcher joined", slog.Int("channels", len(w.batch.Channels)))
	w.fire(ctx, log, evRead)

	for {
		ev, err := sess.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return w.fail(ReasonCanceled, ctx.Err())
			}
			if errors.Is(err, ErrProtocolParse) {
				return w.fail(ReasonProtocolParse, err)
			}
			log.Warn("chat receive failed; reconnecting", slog.Any("err", err))
			if err := w.reconnect(ctx, sess, err, log); err != nil {
				return err
			}
			continue
		}
		switch ev.Kind {
		case EventChat:
			w.delivered = true
			telemetry.IncReceived()
			msg, ok := w.filter.Apply(ev.Channel, ev.Sender, ev.Text)
			if !ok {
				continue
			}
			telemetry.IncMatched()
			if err := w.sink.Send(ctx, msg); err != nil {
				if errors.Is(err, ErrQueueClosed) {
					return nil
				}
				return w.fail(ReasonCanceled, err)
			}
		case EventReconnect:
			log.Info("server requested reconnect")
			if err := w.reconnect(ctx, sess, errors.New("server requested reconnect"), log); err != nil {
				return err
			}
		}
	}
}

// reconnect re-dials with exponential backoff. Every attempt waits first, and
// attempts keep counting across failures until the session is stable again,
// so a server that accepts and then drops each connection still exhausts
// MaxReconnects.
func (w *Watcher) reconnect(ctx context.Context, sess Session, cause error, log *slog.Logger) error {
	w.fire(ctx, log, evReconnect)
	telemetry.IncReconnect()

	if w.delivered || time.Since(w.upSince) >= w.opts.StableAfter {
		w.attempts = 0
		w.backoff.Reset()
	}

	lastErr := cause
	for w.attempts < w.opts.MaxReconnects {
		wait := w.backoff.NextBackOff()
		w.attempts++
		log.Debug("reconnecting", slog.Uint64("attempt", uint64(w.attempts)), slog.Duration("wait", wait))
		if err := sleepCtx(ctx, wait); err != nil {
			return w.fail(ReasonCanceled, err)
		}
		err := sess.Reconnect(ctx)
		if err == nil {
			log.Info("reconnected", slog.Uint64("attempt", uint64(w.attempts)))
			w.markUp()
			w.fire(ctx, log, evRead)
			return nil
		}
		if ctx.Err() != nil {
			return w.fail(ReasonCanceled, ctx.Err())
		}
		lastErr = err
		log.Warn("reconnect attempt failed", slog.Uint64("attempt", uint64(w.attempts)), slog.Any("err", err))
	}
	return w.fail(ReasonReconnectExhausted, lastErr)
}

func (w *Watcher) markUp() {
	w.upSince = time.Now()
	w.delivered = false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Watcher) fail(reason Reason, err error) error {
	return &SessionError{Reason: reason, Batch: w.batch.Index, Err: err}
}

// fire drives the state machine. Transition errors are logged and ignored.
func (w *Watcher) fire(ctx context.Context, log *slog.Logger, event string) {
	if err := w.machine.Event(context.WithoutCancel(ctx), event); err != nil {
		log.Debug("watcher state transition", slog.String("event", event), slog.String("state", w.machine.Current()), slog.Any("err", err))
	}
}
