package strava

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/oauth2"
)

const BaseURL = "https://www.strava.com/api/v3"

// DefaultActivityPageSize is how many recent activities are pulled per sync
const DefaultActivityPageSize = 5

// Client is a Strava API client. It holds no athlete credentials; each call
// is made on behalf of the token it is given.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *RateLimiter
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL points the client at another API root (tests)
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithRateLimiter replaces the default Strava rate limiter
func WithRateLimiter(r *RateLimiter) Option {
	return func(c *Client) { c.rateLimiter = r }
}

// NewClient creates a new Strava API client. httpClient supplies the
// timeout and base transport for every request.
func NewClient(httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		baseURL:     BaseURL,
		httpClient:  httpClient,
		rateLimiter: NewRateLimiter(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetAthlete fetches the profile of the athlete owning token
func (c *Client) GetAthlete(ctx context.Context, token *oauth2.Token) (*Athlete, error) {
	body, err := c.get(ctx, token, "/athlete", nil)
	if err != nil {
		return nil, &ProfileFetchError{StatusCode: statusOf(err), Err: err}
	}

	var athlete Athlete
	if err := json.Unmarshal(body, &athlete); err != nil {
		return nil, &ProfileFetchError{Err: fmt.Errorf("decoding athlete: %w", err)}
	}
	if athlete.ID == 0 {
		return nil, &ProfileFetchError{Err: fmt.Errorf("%w: athlete without id", ErrUnexpectedBody)}
	}

	return &athlete, nil
}

// ListActivities fetches the perPage most recent activities, newest first
func (c *Client) ListActivities(ctx context.Context, token *oauth2.Token, perPage int) ([]Activity, error) {
	if perPage <= 0 {
		perPage = DefaultActivityPageSize
	}

	params := url.Values{}
	params.Set("per_page", strconv.Itoa(perPage))

	body, err := c.get(ctx, token, "/athlete/activities", params)
	if err != nil {
		return nil, &ActivityFetchError{StatusCode: statusOf(err), Err: err}
	}

	if trimmed := bytes.TrimSpace(body); len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &ActivityFetchError{Err: fmt.Errorf("%w: expected a list of activities", ErrUnexpectedBody)}
	}

	var activities []Activity
	if err := json.Unmarshal(body, &activities); err != nil {
		return nil, &ActivityFetchError{Err: fmt.Errorf("decoding activities: %w", err)}
	}

	return activities, nil
}

// RateLimitStatus returns the current rate limit status
func (c *Client) RateLimitStatus() (shortRemaining, dailyRemaining int) {
	return c.rateLimiter.Status()
}

func (c *Client) get(ctx context.Context, token *oauth2.Token, path string, params url.Values) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.authorized(token).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Update rate limiter from response headers
	c.rateLimiter.UpdateFromHeaders(resp.Header)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

// authorized wraps the shared client's transport with bearer auth for token,
// keeping its timeout
func (c *Client) authorized(token *oauth2.Token) *http.Client {
	return &http.Client{
		Timeout: c.httpClient.Timeout,
		Transport: &oauth2.Transport{
			Base:   c.httpClient.Transport,
			Source: oauth2.StaticTokenSource(token),
		},
	}
}
