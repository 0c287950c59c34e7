package twitchapi

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenURL is the Twitch OAuth2 token endpoint used for the client-credentials grant.
const TokenURL = "https://id.twitch.tv/oauth2/token"

// Credentials identify the application against Helix. They are created once
// at startup and never mutated.
type Credentials struct {
	ClientID     string
	AccessToken  string
	ClientSecret string
}

// Validate reports whether the credentials are usable for Helix calls.
func (c Credentials) Validate() error {
	if c.ClientID == "" {
		return errors.New("missing twitch client id")
	}
	if c.AccessToken == "" && c.ClientSecret == "" {
		return errors.New("missing twitch access token (or client secret for an app token)")
	}
	return nil
}

// NewTokenSource returns the token source Helix requests are signed with.
// A supplied access token is used as-is. Otherwise an app access token is
// fetched with the client-credentials grant and cached until it expires.
// NOTE: app tokens are only used for Helix; chat stays anonymous.
func NewTokenSource(ctx context.Context, creds Credentials, hc *http.Client) (oauth2.TokenSource, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if creds.AccessToken != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.AccessToken, TokenType: "Bearer"}), nil
	}
	if hc != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
	}
	cc := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return cc.TokenSource(ctx), nil
}

// tokenError maps a token source failure onto the Helix error taxonomy.
// Rejected client credentials surface as Unauthorized.
func tokenError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		kind := kindForStatus(re.Response.StatusCode)
		if re.Response.StatusCode == http.StatusForbidden {
			kind = KindUnauthorized
		}
		return &APIError{Kind: kind, Op: op, Status: re.Response.StatusCode, Body: string(re.Body), Err: err}
	}
	return &APIError{Kind: KindUnexpected, Op: op, Err: err}
}
