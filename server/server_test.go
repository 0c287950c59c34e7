package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/chatgrep/monitor"
)

type fixedStatus monitor.Status

func (f fixedStatus) Status() monitor.Status { return monitor.Status(f) }

func watchingStatus(states ...string) fixedStatus {
	st := monitor.Status{RunID: "run-1", Phase: monitor.PhaseWatching, Channels: 250, QueueCap: 1000}
	for i, s := range states {
		st.Watchers = append(st.Watchers, monitor.WatcherStatus{Batch: i, Channels: 100, State: s})
	}
	return fixedStatus(st)
}

func serve(t *testing.T, sp StatusProvider, path string) *httptest.ResponseRecorder {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	NewMux(ctx, sp).ServeHTTP(rr, req)
	return rr
}

func TestHealthzOK(t *testing.T) {
	rr := serve(t, watchingStatus(), "/healthz")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != "ok" {
		t.Fatalf("expected ok body, got %q", got)
	}
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Errorf("missing X-Correlation-ID header")
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name string
		sp   fixedStatus
		want int
	}{
		{"reading", watchingStatus("reading", "reconnecting"), http.StatusOK},
		{"all reconnecting", watchingStatus("reconnecting"), http.StatusServiceUnavailable},
		{"resolving", fixedStatus{Phase: monitor.PhaseResolving}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := serve(t, tt.sp, "/readyz"); rr.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestStatus(t *testing.T) {
	rr := serve(t, watchingStatus("reading", "reading", "terminated"), "/status")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body struct {
		RunID    string                  `json:"run_id"`
		Phase    string                  `json:"phase"`
		Channels int                     `json:"channels"`
		Watchers []monitor.WatcherStatus `json:"watchers"`
		States   map[string]int          `json:"states"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.RunID != "run-1" || body.Phase != "watching" || body.Channels != 250 || len(body.Watchers) != 3 {
		t.Errorf("unexpected body %+v", body)
	}
	if body.States["reading"] != 2 || body.States["terminated"] != 1 {
		t.Errorf("states = %v", body.States)
	}
}

func TestMetricsAndMethods(t *testing.T) {
	if rr := serve(t, watchingStatus(), "/metrics"); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Errorf("metrics status = %d", rr.Code)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rr := httptest.NewRecorder()
	NewMux(ctx, watchingStatus()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/status", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /status = %d, want 405", rr.Code)
	}
}

func TestServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, watchingStatus()) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		forwarded  string
		trustProxy bool
		want       string
	}{
		{"remote addr", "10.0.0.1:5555", "", false, "10.0.0.1"},
		{"forwarded ignored", "10.0.0.1:5555", "203.0.113.1", false, "10.0.0.1"},
		{"forwarded trusted", "10.0.0.1:5555", "203.0.113.1, 10.0.0.2", true, "203.0.113.1"},
		{"trusted without header", "10.0.0.1:5555", "", true, "10.0.0.1"},
		{"no port", "10.0.0.1", "", false, "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			req.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := clientIP(req, tt.trustProxy); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadRateLimiterConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "")
	t.Setenv("RATE_LIMIT_TRUST_PROXY", "")
	if cfg := loadRateLimiterConfig(); !cfg.enabled || cfg.trustProxy {
		t.Errorf("defaults = %+v, want enabled without proxy trust", cfg)
	}
	t.Setenv("RATE_LIMIT_TRUST_PROXY", "true")
	if cfg := loadRateLimiterConfig(); !cfg.trustProxy {
		t.Errorf("RATE_LIMIT_TRUST_PROXY=true not applied")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := newIPRateLimiter(ctx, &rateLimiterConfig{enabled: true, requestsPerMinute: 1, burst: 2})
	h := rateLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), rl)

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [204 204 429]", codes)
	}

	spoofed := httptest.NewRequest(http.MethodGet, "/status", nil)
	spoofed.RemoteAddr = "10.0.0.1:5556"
	spoofed.Header.Set("X-Forwarded-For", "10.0.0.9")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, spoofed)
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("X-Forwarded-For bypassed the limit without a trusted proxy: %d", rr.Code)
	}

	other := httptest.NewRequest(http.MethodGet, "/status", nil)
	other.RemoteAddr = "10.0.0.2:5555"
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, other)
	if rr.Code != http.StatusNoContent {
		t.Errorf("other client limited: %d", rr.Code)
	}

	rl.cleanup(time.Now().Add(time.Hour))
	rl.mu.Lock()
	n := len(rl.visitors)
	rl.mu.Unlock()
	if n != 0 {
		t.Errorf("visitors after cleanup = %d", n)
	}
}
