package airtable

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sestoltzf/strava-integration-at/internal/store"
)

var formulaRe = regexp.MustCompile(`^\{(\w+)\} = '?([^']*)'?$`)

type fakeRecord struct {
	ID     string         `json:"id,omitempty"`
	Fields map[string]any `json:"fields"`
}

type fakeRecords struct {
	Records []fakeRecord `json:"records"`
	Offset  string       `json:"offset,omitempty"`
}

// fakeAirtable serves list/create/update for any table under one base.
// Lists are paged two records at a time to exercise offsets.
type fakeAirtable struct {
	mu      sync.Mutex
	tables  map[string][]fakeRecord
	creates map[string][]json.RawMessage
	nextID  int
	failOn  string // method that answers 422
}

func newFakeAirtable(t *testing.T) (*fakeAirtable, *Store) {
	t.Helper()
	f := &fakeAirtable{tables: map[string][]fakeRecord{}, creates: map[string][]json.RawMessage{}}

	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	s, err := New(Config{
		URL:              srv.URL,
		Token:            "pat-test",
		BaseID:           "appBase",
		CredentialsTable: "Users",
		ActivitiesTable:  "Activities",
		Columns:          DefaultColumns(),
		RateLimit:        1000,
	}, &http.Client{Timeout: 5 * time.Second})
	require.NoError(t, err)
	return f, s
}

func (f *fakeAirtable) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer pat-test" {
		http.Error(w, `{"error":"AUTHENTICATION_REQUIRED"}`, http.StatusUnauthorized)
		return
	}
	if r.Method == f.failOn {
		http.Error(w, `{"error":{"type":"INVALID_VALUE_FOR_COLUMN"}}`, http.StatusUnprocessableEntity)
		return
	}

	table, ok := tableOf(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		f.list(w, r, table)
	case http.MethodPost:
		var req struct {
			Records []json.RawMessage `json:"records"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var resp fakeRecords
		for _, raw := range req.Records {
			var rec fakeRecord
			_ = json.Unmarshal(raw, &rec)
			f.nextID++
			rec.ID = fmt.Sprintf("rec%d", f.nextID)
			f.tables[table] = append(f.tables[table], rec)
			f.creates[table] = append(f.creates[table], raw)
			resp.Records = append(resp.Records, rec)
		}
		_ = json.NewEncoder(w).Encode(resp)
	case http.MethodPatch:
		var req fakeRecords
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var resp fakeRecords
		for _, patch := range req.Records {
			i := f.indexOf(table, patch.ID)
			if i < 0 {
				http.NotFound(w, r)
				return
			}
			for k, v := range patch.Fields {
				f.tables[table][i].Fields[k] = v
			}
			resp.Records = append(resp.Records, f.tables[table][i])
		}
		_ = json.NewEncoder(w).Encode(resp)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// tableOf finds the table name following the base id in the request path
func tableOf(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		if p == "appBase" && i+1 < len(parts) {
			return parts[i+1], true
		}
	}
	return "", false
}

func (f *fakeAirtable) indexOf(table, id string) int {
	for i, rec := range f.tables[table] {
		if rec.ID == id {
			return i
		}
	}
	return -1
}

func (f *fakeAirtable) list(w http.ResponseWriter, r *http.Request, table string) {
	var matched []fakeRecord
	formula := r.URL.Query().Get("filterByFormula")
	for _, rec := range f.tables[table] {
		if formula == "" {
			matched = append(matched, rec)
			continue
		}
		m := formulaRe.FindStringSubmatch(formula)
		if m != nil && fmt.Sprint(rec.Fields[m[1]]) == m[2] {
			matched = append(matched, rec)
		}
	}

	start, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	end := start + 2
	resp := fakeRecords{Records: []fakeRecord{}}
	if end < len(matched) {
		resp.Offset = strconv.Itoa(end)
	} else {
		end = len(matched)
	}
	if start < end {
		resp.Records = matched[start:end]
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeAirtable) created(table string) []json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]json.RawMessage(nil), f.creates[table]...)
}

func (f *fakeAirtable) rows(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tables[table])
}

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

func TestInsertActivity_WritesManifestColumns(t *testing.T) {
	fake, s := newFakeAirtable(t)
	ctx := context.Background()

	inserted, err := s.InsertActivity(ctx, &store.Activity{
		ActivityID:         1001,
		OwnerUserID:        42,
		Name:               "Morning Run",
		Type:               "Run",
		StartDate:          time.Date(2024, 1, 15, 7, 0, 0, 0, time.UTC),
		Distance:           f64(5000),
		MovingTime:         i64(1500),
		ElapsedTime:        i64(1600),
		AverageSpeed:       f64(3.33),
		MaxSpeed:           f64(4.1),
		TotalElevationGain: f64(12.5),
	})
	require.NoError(t, err)
	assert.True(t, inserted)

	creates := fake.created("Activities")
	require.Len(t, creates, 1)
	var sent struct {
		Fields map[string]json.RawMessage `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(creates[0], &sent))

	assert.JSONEq(t, `1001`, string(sent.Fields["aktivitetsId"]))
	assert.JSONEq(t, `"42"`, string(sent.Fields["userId"]))
	assert.JSONEq(t, `"Morning Run"`, string(sent.Fields["namn"]))
	assert.JSONEq(t, `"Run"`, string(sent.Fields["typ"]))
	assert.JSONEq(t, `"2024-01-15T07:00:00Z"`, string(sent.Fields["datum"]))
	assert.JSONEq(t, `"5000"`, string(sent.Fields["distans"]))
	assert.JSONEq(t, `"1500"`, string(sent.Fields["tid"]))
	assert.JSONEq(t, `"3.33"`, string(sent.Fields["snittfart"]))
	assert.JSONEq(t, `"1600"`, string(sent.Fields["totaltTid"]))
	assert.JSONEq(t, `12.5`, string(sent.Fields["hJdmeter"]))
	assert.JSONEq(t, `"4.1"`, string(sent.Fields["maxfart"]))
	assert.Equal(t, `null`, string(sent.Fields["snittpuls"]))
	assert.Equal(t, `null`, string(sent.Fields["maxpuls"]))
	assert.Equal(t, `null`, string(sent.Fields["elevation"]))
}

func TestInsertActivity_SkipsExisting(t *testing.T) {
	fake, s := newFakeAirtable(t)
	ctx := context.Background()

	a := &store.Activity{ActivityID: 1001, OwnerUserID: 42, Name: "Morning Run", Type: "Run"}

	inserted, err := s.InsertActivity(ctx, a)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.InsertActivity(ctx, a)
	require.NoError(t, err)
	assert.False(t, inserted)

	assert.Equal(t, 1, fake.rows("Activities"))
}

func TestUpsertCredential(t *testing.T) {
	fake, s := newFakeAirtable(t)
	ctx := context.Background()

	first := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	cred := &store.Credential{
		ExternalUserID: 42,
		DisplayName:    "Ada Lovelace",
		AccessToken:    "access-1",
		RefreshToken:   "refresh-1",
		TokenExpiry:    first.Add(6 * time.Hour),
		LastSyncedAt:   first,
		CreatedAt:      first,
		LastLoginAt:    first,
		Active:         true,
	}

	created, err := s.UpsertCredential(ctx, cred)
	require.NoError(t, err)
	assert.True(t, created)

	second := first.Add(24 * time.Hour)
	again := *cred
	again.AccessToken = "access-2"
	again.CreatedAt = second
	again.LastLoginAt = second

	created, err = s.UpsertCredential(ctx, &again)
	require.NoError(t, err)
	assert.False(t, created)
	require.Equal(t, 1, fake.rows("Users"))

	got, err := s.GetCredential(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "access-2", got.AccessToken)
	assert.Equal(t, "Ada Lovelace", got.DisplayName)
	assert.Empty(t, got.Email)
	assert.True(t, got.Active)
	assert.True(t, got.CreatedAt.Equal(first))
	assert.True(t, got.LastLoginAt.Equal(second))
}

func TestUpdateTokens(t *testing.T) {
	_, s := newFakeAirtable(t)
	ctx := context.Background()

	err := s.UpdateTokens(ctx, 42, "a", "r", time.Now(), time.Now())
	assert.ErrorIs(t, err, store.ErrCredentialNotFound)

	_, err = s.UpsertCredential(ctx, &store.Credential{ExternalUserID: 42, AccessToken: "a1", RefreshToken: "r1", Active: true})
	require.NoError(t, err)

	expiry := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateTokens(ctx, 42, "a2", "r2", expiry, expiry.Add(-time.Hour)))

	got, err := s.GetCredential(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "a2", got.AccessToken)
	assert.Equal(t, "r2", got.RefreshToken)
	assert.True(t, got.TokenExpiry.Equal(expiry))
}

func TestListCredentials_FollowsOffsets(t *testing.T) {
	_, s := newFakeAirtable(t)
	ctx := context.Background()

	for id := int64(1); id <= 5; id++ {
		_, err := s.UpsertCredential(ctx, &store.Credential{ExternalUserID: id, RefreshToken: "r", Active: true})
		require.NoError(t, err)
	}

	creds, err := s.ListCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, creds, 5)
	assert.Equal(t, int64(5), creds[4].ExternalUserID)
}

func TestListActivities_RoundTripsNulls(t *testing.T) {
	_, s := newFakeAirtable(t)
	ctx := context.Background()

	_, err := s.InsertActivity(ctx, &store.Activity{ActivityID: 1, OwnerUserID: 42, Name: "a", Distance: f64(5000), MovingTime: i64(60)})
	require.NoError(t, err)
	_, err = s.InsertActivity(ctx, &store.Activity{ActivityID: 2, OwnerUserID: 7, Name: "b"})
	require.NoError(t, err)

	mine, err := s.ListActivities(ctx, 42)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, int64(1), mine[0].ActivityID)
	require.NotNil(t, mine[0].Distance)
	assert.Equal(t, 5000.0, *mine[0].Distance)
	require.NotNil(t, mine[0].MovingTime)
	assert.Equal(t, int64(60), *mine[0].MovingTime)
	assert.Nil(t, mine[0].MaxHeartrate)
	assert.Nil(t, mine[0].ElapsedTime)
}

func TestWriteFailureIsStoreWriteError(t *testing.T) {
	fake, s := newFakeAirtable(t)
	fake.mu.Lock()
	fake.failOn = http.MethodPost
	fake.mu.Unlock()

	_, err := s.InsertActivity(context.Background(), &store.Activity{ActivityID: 1})

	var writeErr *store.StoreWriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Zero(t, fake.rows("Activities"))
}
