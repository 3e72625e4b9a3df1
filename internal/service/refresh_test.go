package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/sestoltzf/strava-integration-at/internal/auth"
	"github.com/sestoltzf/strava-integration-at/internal/events"
	"github.com/sestoltzf/strava-integration-at/internal/observability"
	"github.com/sestoltzf/strava-integration-at/internal/store"
	"github.com/sestoltzf/strava-integration-at/internal/strava"
)

func seedCredential(t *testing.T, st store.Store, id int64, refresh string, active bool) {
	t.Helper()
	_, err := st.UpsertCredential(context.Background(), &store.Credential{
		ExternalUserID: id,
		DisplayName:    "Athlete",
		AccessToken:    "stale",
		RefreshToken:   refresh,
		TokenExpiry:    fixedNow.Add(-time.Hour),
		LastSyncedAt:   fixedNow.Add(-24 * time.Hour),
		CreatedAt:      fixedNow.Add(-48 * time.Hour),
		LastLoginAt:    fixedNow.Add(-48 * time.Hour),
		Active:         active,
	})
	require.NoError(t, err)
}

func freshToken(access, refresh string) *oauth2.Token {
	return &oauth2.Token{AccessToken: access, RefreshToken: refresh, Expiry: fixedNow.Add(6 * time.Hour)}
}

func TestScheduledRefresh_IsolatesFailingCredential(t *testing.T) {
	st := newTestStore(t)
	seedCredential(t, st, 1, "refresh-1", true)
	seedCredential(t, st, 2, "refresh-2", true)
	seedCredential(t, st, 3, "refresh-3", true)

	fa := &fakeAuth{refreshed: map[string]*oauth2.Token{
		"refresh-1": freshToken("access-1", "refresh-1b"),
		// refresh-2 has no entry: the token endpoint returns no access token
		"refresh-3": freshToken("access-3", "refresh-3"),
	}}
	provider := &fakeProvider{activities: map[string][]strava.Activity{
		"access-1": {run(101, "one")},
		"access-3": {run(301, "three a"), run(302, "three b")},
	}}
	pub := &recordingPublisher{}
	svc := newTestService(fa, provider, st, pub)

	result, err := svc.ScheduledRefresh(context.Background())
	require.NoError(t, err)

	_, parseErr := uuid.Parse(result.RunID)
	assert.NoError(t, parseErr)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 3, result.ActivitiesInserted)
	assert.Equal(t, []string{"refresh-1", "refresh-2", "refresh-3"}, fa.refreshes)

	require.Len(t, result.Credentials, 3)
	assert.Equal(t, observability.OutcomeSynced, result.Credentials[0].Outcome)
	assert.True(t, result.Credentials[0].TokenRefreshed)
	assert.Equal(t, observability.OutcomeFailed, result.Credentials[1].Outcome)
	assert.Equal(t, FailRefreshToken, result.Credentials[1].Reason)
	assert.Equal(t, observability.OutcomeSynced, result.Credentials[2].Outcome)

	ctx := context.Background()
	first, err := st.GetCredential(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "access-1", first.AccessToken)
	assert.Equal(t, "refresh-1b", first.RefreshToken)
	assert.True(t, first.LastSyncedAt.Equal(fixedNow))
	assert.True(t, first.TokenExpiry.Equal(fixedNow.Add(6*time.Hour)))

	second, err := st.GetCredential(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "stale", second.AccessToken)

	third, err := st.ListActivities(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, third, 2)

	require.Len(t, pub.events, 3)
	assert.Equal(t, events.SourceRefresh, pub.events[0].Source)
}

func TestScheduledRefresh_SkipsUnusableCredentials(t *testing.T) {
	st := newTestStore(t)
	seedCredential(t, st, 1, "", true)
	seedCredential(t, st, 2, "refresh-2", false)

	fa := &fakeAuth{}
	svc := newTestService(fa, &fakeProvider{}, st, nil)

	result, err := svc.ScheduledRefresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 2, result.Skipped)
	assert.Empty(t, fa.refreshes)
	require.Len(t, result.Credentials, 2)
	assert.Equal(t, SkipMissingRefreshToken, result.Credentials[0].Reason)
	assert.Equal(t, SkipInactive, result.Credentials[1].Reason)
	assert.Zero(t, st.tokenUpdates)
}

func TestScheduledRefresh_OverlappingRunsDoNotDuplicate(t *testing.T) {
	st := newTestStore(t)
	seedCredential(t, st, 1, "refresh-1", true)

	fa := &fakeAuth{refreshed: map[string]*oauth2.Token{"refresh-1": freshToken("access-1", "refresh-1")}}
	provider := &fakeProvider{activities: map[string][]strava.Activity{
		"access-1": {run(101, "a"), run(102, "b")},
	}}
	svc := newTestService(fa, provider, st, nil)
	ctx := context.Background()

	first, err := svc.ScheduledRefresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.ActivitiesInserted)

	second, err := svc.ScheduledRefresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.ActivitiesInserted)
	assert.Equal(t, 2, second.Credentials[0].ActivitiesSkipped)
	assert.NotEqual(t, first.RunID, second.RunID)

	activities, err := st.ListActivities(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, activities, 2)
}

func TestScheduledRefresh_ActivityFetchFailureContinues(t *testing.T) {
	st := newTestStore(t)
	seedCredential(t, st, 1, "refresh-1", true)
	seedCredential(t, st, 2, "refresh-2", true)

	fa := &fakeAuth{refreshed: map[string]*oauth2.Token{
		"refresh-1": freshToken("access-1", "refresh-1"),
		"refresh-2": freshToken("access-2", "refresh-2"),
	}}
	provider := &fakeProvider{activitiesErr: &strava.ActivityFetchError{StatusCode: 429, Err: errors.New("rate limited")}}
	svc := newTestService(fa, provider, st, nil)

	result, err := svc.ScheduledRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Failed)
	// tokens were persisted before the fetch failed
	assert.Equal(t, 2, st.tokenUpdates)
	for _, c := range result.Credentials {
		assert.Equal(t, FailFetchActivities, c.Reason)
	}
}

func TestScheduledRefresh_SummaryOmitsProviderErrors(t *testing.T) {
	st := newTestStore(t)
	seedCredential(t, st, 1, "refresh-1", true)
	seedCredential(t, st, 2, "refresh-2", true)

	fa := &fakeAuth{refreshed: map[string]*oauth2.Token{
		"refresh-2": freshToken("access-2", "refresh-2"),
	}}
	provider := &fakeProvider{activitiesErr: &strava.ActivityFetchError{
		StatusCode: 500,
		Err:        &strava.APIError{StatusCode: 500, Body: `{"message":"upstream exploded"}`},
	}}
	svc := newTestService(fa, provider, st, nil)

	result, err := svc.ScheduledRefresh(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Credentials, 2)
	assert.Equal(t, FailRefreshToken, result.Credentials[0].Reason)
	assert.Equal(t, FailFetchActivities, result.Credentials[1].Reason)

	summary, err := json.Marshal(result)
	require.NoError(t, err)
	assert.NotContains(t, string(summary), "access_token")
	assert.NotContains(t, string(summary), "upstream exploded")
}

func TestScheduledRefresh_ReusesTokenValidAtServiceClock(t *testing.T) {
	var tokenCalls atomic.Int32
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "fresh", "expires_in": 21600})
	}))
	t.Cleanup(tokenSrv.Close)

	client := auth.NewClient(auth.Config{
		ClientID:     "1",
		ClientSecret: "s",
		RedirectURL:  "https://example.test/",
		TokenURL:     tokenSrv.URL,
	}, &http.Client{Timeout: 5 * time.Second})

	st := newTestStore(t)
	// valid for another hour at the service clock, long expired in wall time
	_, err := st.UpsertCredential(context.Background(), &store.Credential{
		ExternalUserID: 1,
		AccessToken:    "stored",
		RefreshToken:   "refresh-1",
		TokenExpiry:    fixedNow.Add(time.Hour),
		Active:         true,
	})
	require.NoError(t, err)

	provider := &fakeProvider{activities: map[string][]strava.Activity{"stored": {run(101, "a")}}}
	svc := newTestService(client, provider, st, nil)

	result, err := svc.ScheduledRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.False(t, result.Credentials[0].TokenRefreshed)
	assert.Equal(t, 1, result.ActivitiesInserted)
	assert.Zero(t, tokenCalls.Load())
}

func TestScheduledRefresh_ListFailureAborts(t *testing.T) {
	st := newTestStore(t)
	st.listErr = errors.New("table unavailable")
	svc := newTestService(&fakeAuth{}, &fakeProvider{}, st, nil)

	result, err := svc.ScheduledRefresh(context.Background())
	assert.Error(t, err)
	assert.Nil(t, result)
}
