package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// Grant types used against the token endpoint
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)

var (
	// ErrMissingAccessToken is returned when the token endpoint answers
	// successfully but without an access_token
	ErrMissingAccessToken = errors.New("token response missing access_token")

	// ErrMissingRefreshToken is returned when a refresh is needed but no
	// refresh token is stored
	ErrMissingRefreshToken = errors.New("no refresh token stored")

	// ErrInvalidState is returned when the callback state is missing, forged or expired
	ErrInvalidState = errors.New("invalid oauth state")
)

// TokenExchangeError reports a failed call to the token endpoint, for either
// the authorization-code or the refresh-token grant.
type TokenExchangeError struct {
	Grant      string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *TokenExchangeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token exchange (%s) failed with status %d: %v", e.Grant, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("token exchange (%s) failed: %v", e.Grant, e.Err)
}

func (e *TokenExchangeError) Unwrap() error {
	return e.Err
}

func newTokenExchangeError(grant string, err error) *TokenExchangeError {
	exErr := &TokenExchangeError{Grant: grant, Err: err}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		exErr.StatusCode = retrieveErr.Response.StatusCode
	}
	// oauth2 reports a body without access_token as a plain error
	if strings.Contains(err.Error(), "missing access_token") {
		exErr.Err = fmt.Errorf("%w: %v", ErrMissingAccessToken, err)
	}
	return exErr
}
