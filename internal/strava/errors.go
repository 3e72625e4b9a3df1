package strava

import (
	"errors"
	"fmt"
)

// ErrUnexpectedBody is returned when a response decodes to the wrong shape
var ErrUnexpectedBody = errors.New("unexpected response body")

// ErrAthleteMismatch is returned when the profile belongs to a different
// athlete than the one the token was granted for
var ErrAthleteMismatch = errors.New("profile does not match token athlete")

// APIError is a non-2xx answer from the Strava API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}

// ProfileFetchError reports a failed GET /athlete
type ProfileFetchError struct {
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *ProfileFetchError) Error() string {
	return "fetching athlete profile: " + e.Err.Error()
}

func (e *ProfileFetchError) Unwrap() error { return e.Err }

// ActivityFetchError reports a failed GET /athlete/activities, including a
// successful response whose body is not a list
type ActivityFetchError struct {
	StatusCode int
	Err        error
}

func (e *ActivityFetchError) Error() string {
	return "fetching activities: " + e.Err.Error()
}

func (e *ActivityFetchError) Unwrap() error { return e.Err }

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
