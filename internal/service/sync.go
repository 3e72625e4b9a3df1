package service

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"github.com/sestoltzf/strava-integration-at/internal/auth"
	"github.com/sestoltzf/strava-integration-at/internal/events"
	"github.com/sestoltzf/strava-integration-at/internal/logging"
	"github.com/sestoltzf/strava-integration-at/internal/observability"
	"github.com/sestoltzf/strava-integration-at/internal/store"
	"github.com/sestoltzf/strava-integration-at/internal/strava"
)

// Authorizer performs the OAuth steps against the provider
type Authorizer interface {
	AuthCodeURL() (string, error)
	VerifyState(state string) error
	Exchange(ctx context.Context, code string) (*auth.Grant, error)
	Refresh(ctx context.Context, token *oauth2.Token, now time.Time) (*oauth2.Token, bool, error)
}

// Provider reads athlete data from the provider's API
type Provider interface {
	GetAthlete(ctx context.Context, token *oauth2.Token) (*strava.Athlete, error)
	ListActivities(ctx context.Context, token *oauth2.Token, perPage int) ([]strava.Activity, error)
}

// Options tune the pipeline
type Options struct {
	// ActivityPageSize is how many recent activities are fetched per athlete
	ActivityPageSize int

	// Now overrides the clock (tests)
	Now func() time.Time
}

// SyncService orchestrates copying Strava data into the table store
type SyncService struct {
	auth      Authorizer
	provider  Provider
	store     store.Store
	publisher events.Publisher
	logger    logging.Logger
	pageSize  int
	now       func() time.Time
}

// NewSyncService creates a new sync service. publisher may be nil.
func NewSyncService(authorizer Authorizer, provider Provider, st store.Store, publisher events.Publisher, logger logging.Logger, opts Options) *SyncService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if opts.ActivityPageSize <= 0 {
		opts.ActivityPageSize = strava.DefaultActivityPageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SyncService{
		auth:      authorizer,
		provider:  provider,
		store:     st,
		publisher: publisher,
		logger:    logger,
		pageSize:  opts.ActivityPageSize,
		now:       opts.Now,
	}
}

// ingestResult counts what happened to one fetched page of activities
type ingestResult struct {
	inserted int
	skipped  int
}

// ingest inserts each activity if absent, in list order, stopping at the
// first store failure. Activities are attributed to ownerID.
func (s *SyncService) ingest(ctx context.Context, ownerID int64, activities []strava.Activity, source string) (ingestResult, error) {
	var res ingestResult
	defer func() {
		observability.RecordActivities(source, res.inserted, res.skipped)
	}()

	for _, a := range activities {
		row := convertActivity(ownerID, a)

		inserted, err := s.store.InsertActivity(ctx, row)
		if err != nil {
			return res, err
		}
		if !inserted {
			res.skipped++
			continue
		}
		res.inserted++

		event := events.ActivityIngested{
			ActivityID:  row.ActivityID,
			OwnerUserID: row.OwnerUserID,
			Name:        row.Name,
			Type:        row.Type,
			StartDate:   row.StartDate,
			Source:      source,
			IngestedAt:  s.now().UTC(),
		}
		if err := s.publisher.PublishActivityIngested(ctx, event); err != nil {
			s.logger.Warn(ctx, "publishing activity event failed",
				"activity_id", row.ActivityID, "athlete_id", ownerID, "error", err)
		}
	}

	return res, nil
}

// convertActivity converts a Strava API activity to a store activity
func convertActivity(ownerID int64, a strava.Activity) *store.Activity {
	return &store.Activity{
		ActivityID:         a.ID,
		OwnerUserID:        ownerID,
		Name:               a.Name,
		Type:               a.Type,
		StartDate:          a.StartDate,
		Distance:           a.Distance,
		MovingTime:         a.MovingTime,
		ElapsedTime:        a.ElapsedTime,
		AverageSpeed:       a.AverageSpeed,
		MaxSpeed:           a.MaxSpeed,
		TotalElevationGain: a.TotalElevationGain,
		ElevHigh:           a.ElevHigh,
		AverageHeartrate:   a.AverageHeartrate,
		MaxHeartrate:       a.MaxHeartrate,
	}
}

// tokenOf rebuilds the OAuth token stored in a credential
func tokenOf(c *store.Credential) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       c.TokenExpiry,
	}
}
