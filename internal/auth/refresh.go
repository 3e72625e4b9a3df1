package auth

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// RefreshBuffer is how long before expiry a token is already treated as expired
const RefreshBuffer = 60 * time.Second

// NeedsRefresh checks if the token is expired or will expire within the buffer
func NeedsRefresh(token *oauth2.Token, now time.Time) bool {
	if token == nil || token.AccessToken == "" {
		return true
	}
	return token.Expiry.Sub(now) <= RefreshBuffer
}

// Refresh returns a valid token for the stored one, using the refresh-token
// grant when the access token is expired at now. refreshed reports whether the
// provider was called. Strava may rotate the refresh token; when the response
// omits one the previous refresh token is kept.
func (c *Client) Refresh(ctx context.Context, token *oauth2.Token, now time.Time) (fresh *oauth2.Token, refreshed bool, err error) {
	if !NeedsRefresh(token, now) {
		return token, false, nil
	}
	if token == nil || token.RefreshToken == "" {
		return nil, false, &TokenExchangeError{Grant: GrantRefreshToken, Err: ErrMissingRefreshToken}
	}

	// Only the refresh token is passed so the source always hits the endpoint
	src := c.config.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: token.RefreshToken})
	newToken, err := src.Token()
	if err != nil {
		return nil, false, newTokenExchangeError(GrantRefreshToken, err)
	}
	if newToken.AccessToken == "" {
		return nil, false, &TokenExchangeError{Grant: GrantRefreshToken, Err: ErrMissingAccessToken}
	}

	return newToken, true, nil
}
