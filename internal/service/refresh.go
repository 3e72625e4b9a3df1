package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sestoltzf/strava-integration-at/internal/events"
	"github.com/sestoltzf/strava-integration-at/internal/logging"
	"github.com/sestoltzf/strava-integration-at/internal/observability"
	"github.com/sestoltzf/strava-integration-at/internal/store"
)

// Reasons a credential is skipped without contacting the provider
const (
	SkipMissingRefreshToken = "missing_refresh_token"
	SkipInactive            = "inactive"
)

// Steps a credential can fail at. The step is the outcome's reason; the
// underlying error is only logged.
const (
	FailRefreshToken    = "refresh_token"
	FailStoreTokens     = "store_tokens"
	FailFetchActivities = "fetch_activities"
	FailStoreActivities = "store_activities"
)

// CredentialOutcome is what a refresh run did with one credential
type CredentialOutcome struct {
	ExternalUserID     int64  `json:"external_user_id"`
	Outcome            string `json:"outcome"` // synced, skipped or failed
	Reason             string `json:"reason,omitempty"`
	TokenRefreshed     bool   `json:"token_refreshed"`
	ActivitiesInserted int    `json:"activities_inserted"`
	ActivitiesSkipped  int    `json:"activities_skipped"`
}

// RefreshResult summarises one scheduled refresh run
type RefreshResult struct {
	RunID              string              `json:"run_id"`
	StartedAt          time.Time           `json:"started_at"`
	FinishedAt         time.Time           `json:"finished_at"`
	Processed          int                 `json:"processed"`
	Skipped            int                 `json:"skipped"`
	Failed             int                 `json:"failed"`
	ActivitiesInserted int                 `json:"activities_inserted"`
	Credentials        []CredentialOutcome `json:"credentials"`
}

// ScheduledRefresh walks every stored credential, refreshing its token when
// needed and ingesting its recent activities. A failure for one credential is
// recorded in its outcome and the run moves on; only failing to list the
// credentials aborts the run.
func (s *SyncService) ScheduledRefresh(ctx context.Context) (*RefreshResult, error) {
	result := &RefreshResult{
		RunID:     uuid.NewString(),
		StartedAt: s.now().UTC(),
	}
	log := s.logger.With("run_id", result.RunID)

	creds, err := s.store.ListCredentials(ctx)
	if err != nil {
		log.Error(ctx, "listing credentials failed", "error", err)
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	log.Info(ctx, "scheduled refresh started", "credentials", len(creds))

	for i := range creds {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		outcome := s.refreshCredential(ctx, log, &creds[i])
		observability.RecordRefreshOutcome(outcome.Outcome)

		switch outcome.Outcome {
		case observability.OutcomeSynced:
			result.Processed++
		case observability.OutcomeSkipped:
			result.Skipped++
		default:
			result.Failed++
		}
		result.ActivitiesInserted += outcome.ActivitiesInserted
		result.Credentials = append(result.Credentials, outcome)
	}

	result.FinishedAt = s.now().UTC()
	observability.RecordRefreshRun(result.FinishedAt)
	log.Info(ctx, "scheduled refresh finished",
		"processed", result.Processed,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"activities_inserted", result.ActivitiesInserted,
	)
	return result, nil
}

func (s *SyncService) refreshCredential(ctx context.Context, log logging.Logger, cred *store.Credential) CredentialOutcome {
	out := CredentialOutcome{ExternalUserID: cred.ExternalUserID}
	log = log.With("athlete_id", cred.ExternalUserID)

	fail := func(step string, err error) CredentialOutcome {
		out.Outcome = observability.OutcomeFailed
		out.Reason = step
		log.Warn(ctx, "credential refresh failed", "step", step, "error", err)
		return out
	}

	switch {
	case cred.RefreshToken == "":
		out.Outcome, out.Reason = observability.OutcomeSkipped, SkipMissingRefreshToken
	case !cred.Active:
		out.Outcome, out.Reason = observability.OutcomeSkipped, SkipInactive
	}
	if out.Outcome == observability.OutcomeSkipped {
		log.Info(ctx, "credential skipped", "reason", out.Reason)
		return out
	}

	token, refreshed, err := s.auth.Refresh(ctx, tokenOf(cred), s.now())
	if err != nil {
		return fail(FailRefreshToken, err)
	}
	out.TokenRefreshed = refreshed

	if err := s.store.UpdateTokens(ctx, cred.ExternalUserID, token.AccessToken, token.RefreshToken, token.Expiry, s.now().UTC()); err != nil {
		return fail(FailStoreTokens, err)
	}

	activities, err := s.provider.ListActivities(ctx, token, s.pageSize)
	if err != nil {
		return fail(FailFetchActivities, err)
	}

	res, err := s.ingest(ctx, cred.ExternalUserID, activities, events.SourceRefresh)
	out.ActivitiesInserted, out.ActivitiesSkipped = res.inserted, res.skipped
	if err != nil {
		return fail(FailStoreActivities, err)
	}

	out.Outcome = observability.OutcomeSynced
	log.Debug(ctx, "credential synced",
		"token_refreshed", refreshed,
		"activities_inserted", res.inserted,
		"activities_skipped", res.skipped,
	)
	return out
}
