package airtable

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	at "github.com/mehanizm/airtable"

	"github.com/sestoltzf/strava-integration-at/internal/store"
)

// Config identifies the base and tables to write to
type Config struct {
	URL              string // API root, DefaultURL when empty
	Token            string
	BaseID           string
	CredentialsTable string
	ActivitiesTable  string
	Columns          Columns
	RateLimit        int // requests per second, 0 for the client default
}

// Store keeps credentials and activities in two Airtable tables.
//
// Airtable has no unique constraints, so insert-if-absent is a lookup by
// key followed by a create. Two concurrent writers for the same key can
// both create a row.
type Store struct {
	credentials *at.Table
	activities  *at.Table
	cols        Columns
}

var _ store.Store = (*Store)(nil)

// New creates a Store. httpClient carries the request timeout.
func New(cfg Config, httpClient *http.Client) (*Store, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	client, err := newClient(cfg.URL, cfg.Token, cfg.RateLimit, httpClient)
	if err != nil {
		return nil, err
	}
	return &Store{
		credentials: client.GetTable(cfg.BaseID, cfg.CredentialsTable),
		activities:  client.GetTable(cfg.BaseID, cfg.ActivitiesTable),
		cols:        cfg.Columns,
	}, nil
}

// Close is a no-op; the store holds no connections of its own
func (s *Store) Close() error { return nil }

func (s *Store) findCredential(ctx context.Context, externalUserID int64) (*at.Record, error) {
	formula := fmt.Sprintf("{%s} = %d", s.cols.Credentials.ExternalUserID, externalUserID)
	records, err := listRecords(ctx, s.credentials, formula)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// UpsertCredential updates the athlete's row if one exists, otherwise creates it
func (s *Store) UpsertCredential(ctx context.Context, c *store.Credential) (bool, error) {
	existing, err := s.findCredential(ctx, c.ExternalUserID)
	if err != nil {
		return false, store.WriteError("upsert credential", err)
	}

	if existing != nil {
		err := updateRecord(ctx, s.credentials, existing.ID, s.cols.Credentials.updateFields(c))
		return false, store.WriteError("upsert credential", err)
	}

	if err := createRecord(ctx, s.credentials, s.cols.Credentials.fields(c)); err != nil {
		return false, store.WriteError("upsert credential", err)
	}
	return true, nil
}

// UpdateTokens stores a refreshed grant and the sync time
func (s *Store) UpdateTokens(ctx context.Context, externalUserID int64, access, refresh string, expiry, syncedAt time.Time) error {
	existing, err := s.findCredential(ctx, externalUserID)
	if err != nil {
		return store.WriteError("update tokens", err)
	}
	if existing == nil {
		return store.WriteError("update tokens", store.ErrCredentialNotFound)
	}

	cols := s.cols.Credentials
	err = updateRecord(ctx, s.credentials, existing.ID, Fields{
		cols.AccessToken:  access,
		cols.RefreshToken: refresh,
		cols.TokenExpiry:  isoTime(expiry),
		cols.LastSyncedAt: isoTime(syncedAt),
	})
	return store.WriteError("update tokens", err)
}

// GetCredential retrieves the credential for an athlete
func (s *Store) GetCredential(ctx context.Context, externalUserID int64) (*store.Credential, error) {
	rec, err := s.findCredential(ctx, externalUserID)
	if err != nil {
		return nil, fmt.Errorf("getting credential: %w", err)
	}
	if rec == nil {
		return nil, store.ErrCredentialNotFound
	}
	c := s.cols.Credentials.credential(rec.Fields)
	return &c, nil
}

// ListCredentials returns every row of the credentials table
func (s *Store) ListCredentials(ctx context.Context) ([]store.Credential, error) {
	records, err := listRecords(ctx, s.credentials, "")
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}

	creds := make([]store.Credential, 0, len(records))
	for _, rec := range records {
		creds = append(creds, s.cols.Credentials.credential(rec.Fields))
	}
	return creds, nil
}

// InsertActivity creates a row for a unless one with the same id exists
func (s *Store) InsertActivity(ctx context.Context, a *store.Activity) (bool, error) {
	formula := fmt.Sprintf("{%s} = %d", s.cols.Activities.ActivityID, a.ActivityID)
	existing, err := listRecords(ctx, s.activities, formula)
	if err != nil {
		return false, store.WriteError("insert activity", err)
	}
	if len(existing) > 0 {
		return false, nil
	}

	if err := createRecord(ctx, s.activities, s.cols.Activities.fields(a)); err != nil {
		return false, store.WriteError("insert activity", err)
	}
	return true, nil
}

// ListActivities returns activities newest first; ownerUserID 0 lists all
func (s *Store) ListActivities(ctx context.Context, ownerUserID int64) ([]store.Activity, error) {
	formula := ""
	if ownerUserID != 0 {
		formula = fmt.Sprintf("{%s} = '%d'", s.cols.Activities.OwnerUserID, ownerUserID)
	}

	records, err := listRecords(ctx, s.activities, formula)
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}

	activities := make([]store.Activity, 0, len(records))
	for _, rec := range records {
		activities = append(activities, s.cols.Activities.activity(rec.Fields))
	}
	sort.SliceStable(activities, func(i, j int) bool {
		if !activities[i].StartDate.Equal(activities[j].StartDate) {
			return activities[i].StartDate.After(activities[j].StartDate)
		}
		return activities[i].ActivityID > activities[j].ActivityID
	})
	return activities, nil
}
