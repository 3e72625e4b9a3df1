package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/sestoltzf/strava-integration-at/internal/auth"
	"github.com/sestoltzf/strava-integration-at/internal/events"
	"github.com/sestoltzf/strava-integration-at/internal/logging"
	"github.com/sestoltzf/strava-integration-at/internal/store"
	"github.com/sestoltzf/strava-integration-at/internal/strava"
)

var fixedNow = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

// fakeAuth answers exchanges from grants keyed by code and refreshes from
// tokens keyed by refresh token
type fakeAuth struct {
	grants    map[string]*auth.Grant
	refreshed map[string]*oauth2.Token
	stateErr  error
	refreshes []string
}

func (f *fakeAuth) AuthCodeURL() (string, error) {
	return "https://www.strava.com/oauth/authorize?client_id=1", nil
}

func (f *fakeAuth) VerifyState(string) error { return f.stateErr }

func (f *fakeAuth) Exchange(_ context.Context, code string) (*auth.Grant, error) {
	if g, ok := f.grants[code]; ok {
		return g, nil
	}
	return nil, &auth.TokenExchangeError{Grant: auth.GrantAuthorizationCode, StatusCode: 400, Err: errors.New("invalid code")}
}

func (f *fakeAuth) Refresh(_ context.Context, tok *oauth2.Token, _ time.Time) (*oauth2.Token, bool, error) {
	f.refreshes = append(f.refreshes, tok.RefreshToken)
	if fresh, ok := f.refreshed[tok.RefreshToken]; ok {
		return fresh, true, nil
	}
	return nil, false, &auth.TokenExchangeError{Grant: auth.GrantRefreshToken, Err: auth.ErrMissingAccessToken}
}

// fakeProvider serves a profile and activities keyed by access token
type fakeProvider struct {
	athlete       *strava.Athlete
	athleteErr    error
	activities    map[string][]strava.Activity
	activitiesErr error
	perPage       []int
}

func (f *fakeProvider) GetAthlete(context.Context, *oauth2.Token) (*strava.Athlete, error) {
	if f.athleteErr != nil {
		return nil, f.athleteErr
	}
	return f.athlete, nil
}

func (f *fakeProvider) ListActivities(_ context.Context, tok *oauth2.Token, perPage int) ([]strava.Activity, error) {
	f.perPage = append(f.perPage, perPage)
	if f.activitiesErr != nil {
		return nil, f.activitiesErr
	}
	return f.activities[tok.AccessToken], nil
}

// countingStore counts writes reaching the wrapped store
type countingStore struct {
	store.Store
	upserts      int
	tokenUpdates int
	inserts      int
	listErr      error
}

func (c *countingStore) UpsertCredential(ctx context.Context, cred *store.Credential) (bool, error) {
	c.upserts++
	return c.Store.UpsertCredential(ctx, cred)
}

func (c *countingStore) UpdateTokens(ctx context.Context, id int64, access, refresh string, expiry, synced time.Time) error {
	c.tokenUpdates++
	return c.Store.UpdateTokens(ctx, id, access, refresh, expiry, synced)
}

func (c *countingStore) InsertActivity(ctx context.Context, a *store.Activity) (bool, error) {
	c.inserts++
	return c.Store.InsertActivity(ctx, a)
}

func (c *countingStore) ListCredentials(ctx context.Context) ([]store.Credential, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.Store.ListCredentials(ctx)
}

func (c *countingStore) writes() int {
	return c.upserts + c.tokenUpdates + c.inserts
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.ActivityIngested
	err    error
}

func (p *recordingPublisher) PublishActivityIngested(_ context.Context, e events.ActivityIngested) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func newTestStore(t *testing.T) *countingStore {
	t.Helper()
	db, err := store.Open(store.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &countingStore{Store: db}
}

func newTestService(a Authorizer, p Provider, st store.Store, pub events.Publisher) *SyncService {
	return NewSyncService(a, p, st, pub, logging.Discard(), Options{
		ActivityPageSize: 5,
		Now:              func() time.Time { return fixedNow },
	})
}

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

func run(id int64, name string) strava.Activity {
	return strava.Activity{
		ID:          id,
		Name:        name,
		Type:        "Run",
		StartDate:   fixedNow.Add(-time.Duration(id) * time.Hour),
		Distance:    f64(5000),
		MovingTime:  i64(1500),
		ElapsedTime: i64(1600),
	}
}

func grant(access, refresh string) *auth.Grant {
	return &auth.Grant{
		Token: &oauth2.Token{
			AccessToken:  access,
			RefreshToken: refresh,
			Expiry:       fixedNow.Add(6 * time.Hour),
		},
		AthleteID: 42,
	}
}
