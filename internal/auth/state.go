package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultStateTTL bounds how long the athlete may sit on the consent screen
const DefaultStateTTL = 10 * time.Minute

const stateIssuer = "strava-sync"

// StateSigner issues and verifies the OAuth state parameter as a short-lived
// HS256 token, so no server-side session storage is needed.
type StateSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewStateSigner creates a StateSigner
func NewStateSigner(secret string, ttl time.Duration) *StateSigner {
	return &StateSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Sign returns a new state value
func (s *StateSigner) Sign() (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    stateIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify validates a state value produced by Sign
func (s *StateSigner) Verify(state string) error {
	if state == "" {
		return ErrInvalidState
	}

	_, err := jwt.ParseWithClaims(state, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithIssuer(stateIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return nil
}
