package service

import (
	"context"
	"fmt"

	"github.com/sestoltzf/strava-integration-at/internal/auth"
	"github.com/sestoltzf/strava-integration-at/internal/events"
	"github.com/sestoltzf/strava-integration-at/internal/observability"
	"github.com/sestoltzf/strava-integration-at/internal/store"
	"github.com/sestoltzf/strava-integration-at/internal/strava"
)

// Stages of the authorization callback. A failed callback is labelled with
// the stage it failed in.
const (
	StageExchanging         = "exchanging"
	StageProfileFetching    = "profile_fetching"
	StageCredentialUpsert   = "credential_upsert"
	StageActivitiesFetching = "activities_fetching"
	StageActivitiesUpsert   = "activities_upsert"
	StageDone               = "done"
)

// AuthorizationResult summarises a completed authorization callback
type AuthorizationResult struct {
	AthleteID          int64  `json:"athlete_id"`
	AthleteName        string `json:"athlete_name"`
	CredentialCreated  bool   `json:"credential_created"`
	ActivitiesFetched  int    `json:"activities_fetched"`
	ActivitiesInserted int    `json:"activities_inserted"`
	ActivitiesSkipped  int    `json:"activities_skipped"`
}

// BeginAuthorization returns the consent screen URL to redirect the athlete to
func (s *SyncService) BeginAuthorization(ctx context.Context) (string, error) {
	u, err := s.auth.AuthCodeURL()
	if err != nil {
		return "", fmt.Errorf("building authorization url: %w", err)
	}
	s.logger.Debug(ctx, "redirecting to consent screen")
	return u, nil
}

// CompleteAuthorization exchanges code, stores the athlete's credential and
// ingests their most recent activities. Any failure aborts the remaining
// steps; writes made before the failure are kept.
func (s *SyncService) CompleteAuthorization(ctx context.Context, code, state string) (*AuthorizationResult, error) {
	stage := StageExchanging
	result, err := s.completeAuthorization(ctx, code, state, &stage)
	if err != nil {
		observability.RecordAuthorization(observability.ResultFailure, stage)
		s.logger.Error(ctx, "authorization failed", "stage", stage, "error", err)
		return nil, err
	}

	observability.RecordAuthorization(observability.ResultSuccess, StageDone)
	s.logger.Info(ctx, "authorization completed",
		"athlete_id", result.AthleteID,
		"credential_created", result.CredentialCreated,
		"activities_inserted", result.ActivitiesInserted,
		"activities_skipped", result.ActivitiesSkipped,
	)
	return result, nil
}

func (s *SyncService) completeAuthorization(ctx context.Context, code, state string, stage *string) (*AuthorizationResult, error) {
	if err := s.auth.VerifyState(state); err != nil {
		return nil, &auth.TokenExchangeError{Grant: auth.GrantAuthorizationCode, Err: err}
	}

	grant, err := s.auth.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	*stage = StageProfileFetching
	athlete, err := s.provider.GetAthlete(ctx, grant.Token)
	if err != nil {
		return nil, err
	}
	// Strava reports the athlete in the token response too; 0 means it was omitted
	if grant.AthleteID != 0 && grant.AthleteID != athlete.ID {
		return nil, &strava.ProfileFetchError{
			Err: fmt.Errorf("%w: token for %d, profile %d", strava.ErrAthleteMismatch, grant.AthleteID, athlete.ID),
		}
	}
	log := s.logger.With("athlete_id", athlete.ID)
	log.Debug(ctx, "athlete profile fetched")

	*stage = StageCredentialUpsert
	now := s.now().UTC()
	created, err := s.store.UpsertCredential(ctx, &store.Credential{
		ExternalUserID: athlete.ID,
		DisplayName:    athlete.DisplayName(),
		Email:          athlete.Email,
		AccessToken:    grant.Token.AccessToken,
		RefreshToken:   grant.Token.RefreshToken,
		TokenExpiry:    grant.Token.Expiry,
		LastSyncedAt:   now,
		CreatedAt:      now,
		LastLoginAt:    now,
		Active:         true,
	})
	if err != nil {
		return nil, err
	}
	log.Debug(ctx, "credential upserted", "created", created)

	*stage = StageActivitiesFetching
	activities, err := s.provider.ListActivities(ctx, grant.Token, s.pageSize)
	if err != nil {
		return nil, err
	}

	*stage = StageActivitiesUpsert
	res, err := s.ingest(ctx, athlete.ID, activities, events.SourceAuthorization)
	if err != nil {
		return nil, err
	}

	*stage = StageDone
	return &AuthorizationResult{
		AthleteID:          athlete.ID,
		AthleteName:        athlete.DisplayName(),
		CredentialCreated:  created,
		ActivitiesFetched:  len(activities),
		ActivitiesInserted: res.inserted,
		ActivitiesSkipped:  res.skipped,
	}, nil
}
