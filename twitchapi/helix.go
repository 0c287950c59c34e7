// Package twitchapi contains a minimal Twitch Helix client for category search,
// live stream listing and user lookup. Authentication (Client-Id plus Bearer
// token) is handled entirely inside the client.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
)

// DefaultBaseURL is the production Helix root.
const DefaultBaseURL = "https://api.twitch.tv/helix"

// MaxPageSize is the largest page Helix serves for streams and users.
const MaxPageSize = 100

// HelixClient provides the catalog lookups needed to discover channels.
type HelixClient struct {
	ClientID   string
	Tokens     oauth2.TokenSource
	BaseURL    string
	HTTPClient *http.Client
}

// Category is one search/categories candidate.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Stream is one live stream entry. Only the fields the monitor needs are decoded.
type Stream struct {
	UserLogin   string `json:"user_login"`
	UserName    string `json:"user_name"`
	GameID      string `json:"game_id"`
	ViewerCount int    `json:"viewer_count"`
}

// User is one users entry.
type User struct {
	ID    string `json:"id"`
	Login string `json:"login"`
}

type pagination struct {
	Cursor string `json:"cursor"`
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) baseURL() string {
	if hc.BaseURL != "" {
		return strings.TrimRight(hc.BaseURL, "/")
	}
	return DefaultBaseURL
}

// SearchCategories returns the categories matching query, in Helix result order.
func (hc *HelixClient) SearchCategories(ctx context.Context, query string) ([]Category, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &APIError{Kind: KindBadRequest, Op: "search categories", Err: fmt.Errorf("query empty")}
	}
	q := url.Values{}
	q.Set("query", query)
	var body struct {
		Data []Category `json:"data"`
	}
	if err := hc.get(ctx, "search categories", "/search/categories", q, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// GetLiveStreams fetches one page of live streams for a category. An empty
// returned cursor means the page was the last one.
func (hc *HelixClient) GetLiveStreams(ctx context.Context, gameID, after string, first int) ([]Stream, string, error) {
	if gameID == "" {
		return nil, "", &APIError{Kind: KindBadRequest, Op: "get streams", Err: fmt.Errorf("game id empty")}
	}
	if first <= 0 || first > MaxPageSize {
		first = MaxPageSize
	}
	q := url.Values{}
	q.Set("type", "live")
	q.Set("first", strconv.Itoa(first))
	q.Set("game_id", gameID)
	if after != "" {
		q.Set("after", after)
	}
	var body struct {
		Data       []Stream   `json:"data"`
		Pagination pagination `json:"pagination"`
	}
	if err := hc.get(ctx, "get streams", "/streams", q, &body); err != nil {
		return nil, "", err
	}
	return body.Data, body.Pagination.Cursor, nil
}

// GetUsers looks up existing users by login. Logins that do not exist are
// simply absent from the result. At most MaxPageSize logins per call.
func (hc *HelixClient) GetUsers(ctx context.Context, logins []string) ([]User, error) {
	if len(logins) == 0 {
		return nil, nil
	}
	if len(logins) > MaxPageSize {
		return nil, &APIError{Kind: KindBadRequest, Op: "get users", Err: fmt.Errorf("%d logins exceeds limit of %d", len(logins), MaxPageSize)}
	}
	q := url.Values{}
	for _, l := range logins {
		q.Add("login", l)
	}
	var body struct {
		Data []User `json:"data"`
	}
	if err := hc.get(ctx, "get users", "/users", q, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

func (hc *HelixClient) get(ctx context.Context, op, path string, q url.Values, out any) error {
	if hc.Tokens == nil {
		return &APIError{Kind: KindUnauthorized, Op: op, Err: fmt.Errorf("no token source configured")}
	}
	tok, err := hc.Tokens.Token()
	if err != nil {
		return tokenError(op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.baseURL()+path, nil)
	if err != nil {
		return &APIError{Kind: KindBadRequest, Op: op, Err: err}
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	resp, err := hc.http().Do(req)
	if err != nil {
		return &APIError{Kind: KindUnexpected, Op: op, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Kind: kindForStatus(resp.StatusCode), Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Kind: KindUnexpected, Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode body: %w", err)}
	}
	return nil
}
