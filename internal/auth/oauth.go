package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

const (
	// Strava OAuth endpoints
	AuthURL  = "https://www.strava.com/oauth/authorize"
	TokenURL = "https://www.strava.com/oauth/token"
)

// DefaultScope is what the sync pipeline needs (Strava uses comma-separated scopes)
const DefaultScope = "activity:read_all"

// Config holds the OAuth client credentials
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string // fixed callback registered with Strava
	Scope        string
	StateSecret  string // empty disables the state parameter

	// Endpoint overrides, used by tests
	AuthURL  string
	TokenURL string
}

// NewOAuthConfig creates an oauth2.Config from our Config
func NewOAuthConfig(cfg Config) *oauth2.Config {
	authURL, tokenURL := cfg.AuthURL, cfg.TokenURL
	if authURL == "" {
		authURL = AuthURL
	}
	if tokenURL == "" {
		tokenURL = TokenURL
	}
	scope := cfg.Scope
	if scope == "" {
		scope = DefaultScope
	}

	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  authURL,
			TokenURL: tokenURL,
			// Strava expects client_id/client_secret in the request body
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: cfg.RedirectURL,
		Scopes:      []string{scope},
	}
}

// Grant is the result of a successful authorization-code exchange
type Grant struct {
	Token     *oauth2.Token
	AthleteID int64
}

// Client performs the OAuth steps of the sync pipeline against Strava
type Client struct {
	config     *oauth2.Config
	httpClient *http.Client
	state      *StateSigner
}

// NewClient creates a Client. httpClient carries the per-call timeout and is
// used for every token endpoint request.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		config:     NewOAuthConfig(cfg),
		httpClient: httpClient,
	}
	if cfg.StateSecret != "" {
		c.state = NewStateSigner(cfg.StateSecret, DefaultStateTTL)
	}
	return c
}

// AuthCodeURL returns the consent screen URL the browser is redirected to
func (c *Client) AuthCodeURL() (string, error) {
	state := ""
	if c.state != nil {
		var err error
		if state, err = c.state.Sign(); err != nil {
			return "", fmt.Errorf("signing state: %w", err)
		}
	}
	return c.config.AuthCodeURL(state, oauth2.SetAuthURLParam("approval_prompt", "auto")), nil
}

// VerifyState checks the state returned on the callback. It is a no-op when
// no state secret is configured.
func (c *Client) VerifyState(state string) error {
	if c.state == nil {
		return nil
	}
	return c.state.Verify(state)
}

// Exchange swaps an authorization code for tokens. Any failure, including a
// response without an access token, is a *TokenExchangeError.
func (c *Client) Exchange(ctx context.Context, code string) (*Grant, error) {
	if strings.TrimSpace(code) == "" {
		return nil, &TokenExchangeError{Grant: GrantAuthorizationCode, Err: errors.New("empty authorization code")}
	}

	token, err := c.config.Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		return nil, newTokenExchangeError(GrantAuthorizationCode, err)
	}
	if token.AccessToken == "" {
		return nil, &TokenExchangeError{Grant: GrantAuthorizationCode, Err: ErrMissingAccessToken}
	}

	return &Grant{
		Token:     token,
		AthleteID: ExtractAthleteID(token),
	}, nil
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// ExtractAthleteID extracts the athlete ID from the token extras
// Strava includes athlete info in the token response
func ExtractAthleteID(token *oauth2.Token) int64 {
	if athlete, ok := token.Extra("athlete").(map[string]interface{}); ok {
		if id, ok := athlete["id"].(float64); ok {
			return int64(id)
		}
	}
	return 0
}
