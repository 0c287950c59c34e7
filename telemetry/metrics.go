// Package telemetry provides Prometheus metrics, OpenTelemetry tracing and
// correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesReceived   prometheus.Counter
	MessagesMatched    prometheus.Counter
	Reconnects         prometheus.Counter
	WatchersTerminated *prometheus.CounterVec

	// Histograms (seconds)
	ResolveDuration *prometheus.HistogramVec

	// Gauges
	WatcherStates   *prometheus.GaugeVec
	QueueDepthGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "chatgrep_messages_received_total", Help: "Chat lines received across all sessions"})
		MessagesMatched = promauto.NewCounter(prometheus.CounterOpts{Name: "chatgrep_messages_matched_total", Help: "Chat lines that matched the filter"})
		Reconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "chatgrep_reconnects_total", Help: "Reconnect cycles started by watchers"})
		WatchersTerminated = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatgrep_watchers_terminated_total", Help: "Watchers terminated, by reason"}, []string{"reason"})
		ResolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "chatgrep_resolve_duration_seconds", Help: "Catalog resolution duration seconds", Buckets: prometheus.DefBuckets}, []string{"op"})
		WatcherStates = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "chatgrep_watchers", Help: "Watchers currently in each lifecycle state"}, []string{"state"})
		QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chatgrep_queue_depth", Help: "Matched messages waiting for the aggregator"})
	})
}

// MoveWatcherState moves one watcher between state gauges. An empty from
// only increments to.
func MoveWatcherState(from, to string) {
	if WatcherStates == nil {
		return
	}
	if from != "" {
		WatcherStates.WithLabelValues(from).Dec()
	}
	if to != "" {
		WatcherStates.WithLabelValues(to).Inc()
	}
}

// IncReceived counts one inbound chat line.
func IncReceived() {
	if MessagesReceived != nil {
		MessagesReceived.Inc()
	}
}

// IncMatched counts one matched chat line.
func IncMatched() {
	if MessagesMatched != nil {
		MessagesMatched.Inc()
	}
}

// IncReconnect counts one reconnect cycle.
func IncReconnect() {
	if Reconnects != nil {
		Reconnects.Inc()
	}
}

// IncTerminated counts one terminated watcher.
func IncTerminated(reason string) {
	if WatchersTerminated != nil {
		WatchersTerminated.WithLabelValues(reason).Inc()
	}
}

// SetQueueDepth records the current queue length.
func SetQueueDepth(n int) {
	if QueueDepthGauge != nil {
		QueueDepthGauge.Set(float64(n))
	}
}

// ObserveResolve records the duration of one catalog operation.
func ObserveResolve(op string, d time.Duration) {
	if ResolveDuration != nil {
		ResolveDuration.WithLabelValues(op).Observe(d.Seconds())
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
