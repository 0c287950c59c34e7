package twitchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

// tokenTransport redirects requests for the Twitch token endpoint to a test server.
type tokenTransport struct {
	host string
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	u, err := url.Parse(t.host)
	if err != nil {
		return nil, err
	}
	req = req.Clone(req.Context())
	req.URL.Scheme = u.Scheme
	req.URL.Host = u.Host
	return http.DefaultTransport.RoundTrip(req)
}

func TestCredentials_Validate(t *testing.T) {
	tests := []struct {
		name    string
		creds   Credentials
		wantErr bool
	}{
		{name: "access token", creds: Credentials{ClientID: "id", AccessToken: "tok"}},
		{name: "client secret", creds: Credentials{ClientID: "id", ClientSecret: "secret"}},
		{name: "missing client id", creds: Credentials{AccessToken: "tok"}, wantErr: true},
		{name: "missing token and secret", creds: Credentials{ClientID: "id"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.creds.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewTokenSource_Static(t *testing.T) {
	ts, err := NewTokenSource(context.Background(), Credentials{ClientID: "id", AccessToken: "static-token"}, nil)
	if err != nil {
		t.Fatalf("NewTokenSource() error = %v", err)
	}
	tok, err := ts.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok.AccessToken != "static-token" {
		t.Errorf("AccessToken = %q, want static-token", tok.AccessToken)
	}
}

func TestNewTokenSource_ClientCredentialsCached(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if r.PostForm.Get("grant_type") != "client_credentials" {
			t.Errorf("grant_type = %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("client_id") != "test-client" || r.PostForm.Get("client_secret") != "test-secret" {
			t.Errorf("client credentials not sent in params: %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "app-token-123",
			"expires_in":   3600,
			"token_type":   "bearer",
		})
	}))
	defer server.Close()

	hc := &http.Client{Transport: &tokenTransport{host: server.URL}}
	ts, err := NewTokenSource(context.Background(), Credentials{ClientID: "test-client", ClientSecret: "test-secret"}, hc)
	if err != nil {
		t.Fatalf("NewTokenSource() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		tok, err := ts.Token()
		if err != nil {
			t.Fatalf("Token() error = %v", err)
		}
		if tok.AccessToken != "app-token-123" {
			t.Errorf("AccessToken = %q, want app-token-123", tok.AccessToken)
		}
	}
	if callCount != 1 {
		t.Errorf("expected 1 token request (cached), got %d", callCount)
	}
}

func TestNewTokenSource_RejectedCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"status":403,"message":"invalid client secret"}`))
	}))
	defer server.Close()

	hc := &http.Client{Transport: &tokenTransport{host: server.URL}}
	ts, err := NewTokenSource(context.Background(), Credentials{ClientID: "test-client", ClientSecret: "wrong"}, hc)
	if err != nil {
		t.Fatalf("NewTokenSource() error = %v", err)
	}
	client := &HelixClient{ClientID: "test-client", Tokens: ts, BaseURL: "http://127.0.0.1:0"}
	_, err = client.SearchCategories(context.Background(), "Rust")
	if KindOf(err) != KindUnauthorized {
		t.Fatalf("kind = %v, want unauthorized (err=%v)", KindOf(err), err)
	}
}
