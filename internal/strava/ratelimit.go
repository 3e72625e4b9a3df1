package strava

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Limits describes the API quota an application gets
type Limits struct {
	Short       int           // requests per ShortWindow
	ShortWindow time.Duration // length of the short window
	Daily       int           // requests per UTC day
	MinInterval time.Duration // spacing between consecutive requests
}

// DefaultLimits are Strava's default application limits:
// 100 requests per 15 minutes and 1000 per day
var DefaultLimits = Limits{
	Short:       100,
	ShortWindow: 15 * time.Minute,
	Daily:       1000,
	MinInterval: 150 * time.Millisecond,
}

// RateLimiter tracks Strava's two quota windows. Usage is corrected from the
// X-RateLimit headers after each response, since other processes share the
// same application quota.
type RateLimiter struct {
	mu     sync.Mutex
	limits Limits

	shortUsage    int
	shortResetsAt time.Time

	dailyUsage    int
	dailyResetsAt time.Time

	lastRequest time.Time
}

// NewRateLimiter creates a new rate limiter with Strava's limits
func NewRateLimiter() *RateLimiter {
	return NewRateLimiterWithLimits(DefaultLimits)
}

// NewRateLimiterWithLimits creates a rate limiter with custom limits
func NewRateLimiterWithLimits(l Limits) *RateLimiter {
	now := time.Now()
	return &RateLimiter{
		limits:        l,
		shortResetsAt: now.Add(l.ShortWindow),
		dailyResetsAt: nextUTCDay(now),
	}
}

func nextUTCDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
}

// Wait blocks until a request can be made without exceeding rate limits
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resetExpired(time.Now())

	if r.shortUsage >= r.limits.Short {
		if err := r.sleep(ctx, time.Until(r.shortResetsAt)); err != nil {
			return err
		}
		r.shortUsage = 0
		r.shortResetsAt = time.Now().Add(r.limits.ShortWindow)
	}

	if r.dailyUsage >= r.limits.Daily {
		if err := r.sleep(ctx, time.Until(r.dailyResetsAt)); err != nil {
			return err
		}
		r.dailyUsage = 0
		r.dailyResetsAt = nextUTCDay(time.Now())
	}

	if elapsed := time.Since(r.lastRequest); elapsed < r.limits.MinInterval {
		if err := r.sleep(ctx, r.limits.MinInterval-elapsed); err != nil {
			return err
		}
	}

	r.shortUsage++
	r.dailyUsage++
	r.lastRequest = time.Now()

	return nil
}

func (r *RateLimiter) resetExpired(now time.Time) {
	if now.After(r.shortResetsAt) {
		r.shortUsage = 0
		r.shortResetsAt = now.Add(r.limits.ShortWindow)
	}
	if now.After(r.dailyResetsAt) {
		r.dailyUsage = 0
		r.dailyResetsAt = nextUTCDay(now)
	}
}

// sleep releases the lock for d or until ctx is done. Must be called with r.mu held.
func (r *RateLimiter) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	r.mu.Unlock()
	defer r.mu.Lock()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateFromHeaders updates rate limit state from Strava response headers
func (r *RateLimiter) UpdateFromHeaders(h http.Header) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Strava returns: X-RateLimit-Limit: "100,1000" and X-RateLimit-Usage: "34,512"
	if short, daily, ok := parsePair(h.Get("X-RateLimit-Usage")); ok {
		r.shortUsage, r.dailyUsage = short, daily
	}
	if short, daily, ok := parsePair(h.Get("X-RateLimit-Limit")); ok {
		r.limits.Short, r.limits.Daily = short, daily
	}
}

func parsePair(v string) (int, int, bool) {
	first, second, found := strings.Cut(v, ",")
	if !found {
		return 0, 0, false
	}
	a, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return 0, 0, false
	}
	b, err := strconv.Atoi(strings.TrimSpace(second))
	if err != nil {
		return 0, 0, false
	}
	return a, b, true
}

// Status returns current rate limit status
func (r *RateLimiter) Status() (shortRemaining, dailyRemaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.limits.Short - r.shortUsage, r.limits.Daily - r.dailyUsage
}

// Usage returns current usage counts
func (r *RateLimiter) Usage() (shortUsage, dailyUsage int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shortUsage, r.dailyUsage
}
