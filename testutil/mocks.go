package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// MockTwitchServer creates a test server that mocks Twitch Helix API responses.
// Handlers are keyed by request path (e.g. "/helix/streams").
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu       sync.Mutex
	requests []*http.Request
}

// NewMockTwitchServer creates a new mock Twitch API server
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requests = append(m.requests, r.Clone(r.Context()))
		handler, ok := m.Handlers[r.URL.Path]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// HelixURL returns the base URL to configure a HelixClient with.
func (m *MockTwitchServer) HelixURL() string { return m.URL + "/helix" }

// Requests returns the requests received for path, in arrival order.
func (m *MockTwitchServer) Requests(path string) []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*http.Request
	for _, r := range m.requests {
		if r.URL.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (m *MockTwitchServer) handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	m.Handlers[path] = h
	m.mu.Unlock()
}

// MockCategoriesResponse adds a handler for /helix/search/categories returning
// the given {id, name} pairs in order, regardless of the query.
func (m *MockTwitchServer) MockCategoriesResponse(categories []map[string]string) {
	m.handle("/helix/search/categories", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"data": categories})
	})
}

// StreamPage is one page served by MockStreamPages.
type StreamPage struct {
	Logins []string
	Cursor string
}

// MockStreamPages adds a handler for /helix/streams. The first request (no
// "after") receives pages[0]; a request with after=X receives the page that
// follows the page whose cursor is X.
func (m *MockTwitchServer) MockStreamPages(pages []StreamPage) {
	m.handle("/helix/streams", func(w http.ResponseWriter, r *http.Request) {
		after := r.URL.Query().Get("after")
		idx := 0
		if after != "" {
			idx = -1
			for i, p := range pages {
				if p.Cursor == after {
					idx = i + 1
					break
				}
			}
		}
		if idx < 0 || idx >= len(pages) {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]string{"error": "Bad Request", "message": "invalid cursor"})
			return
		}
		page := pages[idx]
		data := make([]map[string]string, 0, len(page.Logins))
		for _, l := range page.Logins {
			data = append(data, map[string]string{"user_login": l, "user_name": l, "game_id": r.URL.Query().Get("game_id")})
		}
		pag := map[string]string{}
		if page.Cursor != "" {
			pag["cursor"] = page.Cursor
		}
		writeJSON(w, map[string]interface{}{"data": data, "pagination": pag})
	})
}

// MockUsersResponse adds a handler for /helix/users that reports a login as
// existing when it matches one of known case-insensitively.
func (m *MockTwitchServer) MockUsersResponse(known ...string) {
	m.handle("/helix/users", func(w http.ResponseWriter, r *http.Request) {
		data := []map[string]string{}
		for _, l := range r.URL.Query()["login"] {
			for i, k := range known {
				if strings.EqualFold(l, k) {
					data = append(data, map[string]string{"id": "u" + string(rune('0'+i%10)), "login": strings.ToLower(k)})
					break
				}
			}
		}
		writeJSON(w, map[string]interface{}{"data": data})
	})
}

// MockStatus makes path answer with the given status code and message.
func (m *MockTwitchServer) MockStatus(path string, status int, message string) {
	m.handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": status, "message": message}) //nolint:errcheck // test mock response
	})
}

// MockOAuthTokenResponse adds a handler for OAuth token endpoint
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.handle("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		})
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}
