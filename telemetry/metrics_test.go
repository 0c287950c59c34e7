package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	first := MessagesReceived
	Init()
	if MessagesReceived != first {
		t.Fatal("Init() re-registered metrics")
	}
	if MessagesMatched == nil || Reconnects == nil || WatchersTerminated == nil || ResolveDuration == nil || WatcherStates == nil || QueueDepthGauge == nil {
		t.Fatal("metric not initialized")
	}
}

func TestCounterHelpers(t *testing.T) {
	Init()
	tests := []struct {
		name string
		inc  func()
		read func() float64
	}{
		{"received", IncReceived, func() float64 { return testutil.ToFloat64(MessagesReceived) }},
		{"matched", IncMatched, func() float64 { return testutil.ToFloat64(MessagesMatched) }},
		{"reconnect", IncReconnect, func() float64 { return testutil.ToFloat64(Reconnects) }},
		{"terminated", func() { IncTerminated("canceled") }, func() float64 {
			return testutil.ToFloat64(WatchersTerminated.WithLabelValues("canceled"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.read()
			tt.inc()
			if got := tt.read() - before; got != 1 {
				t.Errorf("delta = %v, want 1", got)
			}
		})
	}
}

func TestMoveWatcherState(t *testing.T) {
	Init()
	conn := func() float64 { return testutil.ToFloat64(WatcherStates.WithLabelValues("connecting")) }
	joined := func() float64 { return testutil.ToFloat64(WatcherStates.WithLabelValues("joined")) }
	c0, j0 := conn(), joined()

	MoveWatcherState("", "connecting")
	if conn()-c0 != 1 {
		t.Fatalf("connecting delta = %v", conn()-c0)
	}
	MoveWatcherState("connecting", "joined")
	if conn() != c0 || joined()-j0 != 1 {
		t.Errorf("after move: connecting=%v joined=%v", conn(), joined())
	}
	MoveWatcherState("joined", "")
	if joined() != j0 {
		t.Errorf("joined = %v, want %v", joined(), j0)
	}
}

func TestGaugeAndHistogram(t *testing.T) {
	Init()
	SetQueueDepth(42)
	if got := testutil.ToFloat64(QueueDepthGauge); got != 42 {
		t.Errorf("queue depth = %v", got)
	}
	ObserveResolve("category_id", 250*time.Millisecond)
	if n := testutil.CollectAndCount(ResolveDuration, "chatgrep_resolve_duration_seconds"); n == 0 {
		t.Errorf("no resolve duration series collected")
	}
	err := testutil.CollectAndCompare(QueueDepthGauge, strings.NewReader(`
# HELP chatgrep_queue_depth Matched messages waiting for the aggregator
# TYPE chatgrep_queue_depth gauge
chatgrep_queue_depth 42
`))
	if err != nil {
		t.Errorf("CollectAndCompare: %v", err)
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if GetCorrelation(ctx) != "" {
		t.Fatal("empty context has a correlation id")
	}
	ctx = WithCorrelation(ctx, "run-123")
	if got := GetCorrelation(ctx); got != "run-123" {
		t.Errorf("GetCorrelation() = %q", got)
	}
	if LoggerWithCorr(ctx) == nil || LoggerWithCorr(context.Background()) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}

func TestTracingDisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown, err := InitTracing("chatgrep-test", "dev")
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	shutdown()

	ctx, span := StartSpan(WithCorrelation(context.Background(), "c1"), "test", "op")
	RecordError(span, nil)
	SetSpanSuccess(span)
	span.End()
	if ctx == nil {
		t.Fatal("StartSpan returned nil context")
	}
}

func TestSamplerRatio(t *testing.T) {
	tests := map[string]float64{"": 1, "0.25": 0.25, "2": 1, "abc": 1}
	for in, want := range tests {
		t.Setenv("OTEL_TRACES_SAMPLER_ARG", in)
		if got := samplerRatio(); got != want {
			t.Errorf("samplerRatio(%q) = %v, want %v", in, got, want)
		}
	}
}
