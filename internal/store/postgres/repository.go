// Package postgres is the PostgreSQL implementation of store.Store.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/sestoltzf/strava-integration-at/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Repository provides Postgres-backed persistence for credentials and activities.
type Repository struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Repository)(nil)

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Open connects to dsn and applies pending migrations.
func Open(ctx context.Context, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return NewRepository(pool), nil
}

// Migrate runs the embedded goose migrations against pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

// Close releases the pool.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

const credentialColumns = `external_user_id, display_name, email, access_token, refresh_token,
	token_expiry, last_synced_at, created_at, last_login_at, active`

// UpsertCredential inserts or updates the credential. xmax = 0 identifies a
// freshly inserted row.
func (r *Repository) UpsertCredential(ctx context.Context, c *store.Credential) (bool, error) {
	const query = `INSERT INTO credentials (` + credentialColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (external_user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			email = EXCLUDED.email,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expiry = EXCLUDED.token_expiry,
			last_login_at = EXCLUDED.last_login_at,
			active = EXCLUDED.active
		RETURNING (xmax = 0)`

	var created bool
	err := r.pool.QueryRow(ctx, query,
		c.ExternalUserID, c.DisplayName, c.Email, c.AccessToken, c.RefreshToken,
		c.TokenExpiry, c.LastSyncedAt, c.CreatedAt, c.LastLoginAt, c.Active,
	).Scan(&created)
	if err != nil {
		return false, store.WriteError("upsert credential", err)
	}
	return created, nil
}

// UpdateTokens stores a refreshed grant and the sync time.
func (r *Repository) UpdateTokens(ctx context.Context, externalUserID int64, access, refresh string, expiry, syncedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE credentials
		SET access_token = $2, refresh_token = $3, token_expiry = $4, last_synced_at = $5
		WHERE external_user_id = $1`,
		externalUserID, access, refresh, expiry, syncedAt)
	if err != nil {
		return store.WriteError("update tokens", err)
	}
	if tag.RowsAffected() == 0 {
		return store.WriteError("update tokens", store.ErrCredentialNotFound)
	}
	return nil
}

// GetCredential retrieves the credential for an athlete.
func (r *Repository) GetCredential(ctx context.Context, externalUserID int64) (*store.Credential, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+credentialColumns+`
		FROM credentials WHERE external_user_id = $1`, externalUserID)

	c, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCredentials returns every stored credential ordered by athlete id.
func (r *Repository) ListCredentials(ctx context.Context) ([]store.Credential, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+credentialColumns+`
		FROM credentials ORDER BY external_user_id`)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	defer rows.Close()

	var creds []store.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, *c)
	}
	return creds, rows.Err()
}

func scanCredential(row pgx.Row) (*store.Credential, error) {
	var c store.Credential
	err := row.Scan(
		&c.ExternalUserID, &c.DisplayName, &c.Email, &c.AccessToken, &c.RefreshToken,
		&c.TokenExpiry, &c.LastSyncedAt, &c.CreatedAt, &c.LastLoginAt, &c.Active,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const activityColumns = `activity_id, owner_user_id, name, type, start_date,
	distance, moving_time, elapsed_time, average_speed, max_speed,
	total_elevation_gain, elev_high, average_heartrate, max_heartrate`

// InsertActivity inserts a unless an activity with the same id exists.
func (r *Repository) InsertActivity(ctx context.Context, a *store.Activity) (bool, error) {
	tag, err := r.pool.Exec(ctx, `INSERT INTO activities (`+activityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (activity_id) DO NOTHING`,
		a.ActivityID, a.OwnerUserID, a.Name, a.Type, a.StartDate,
		a.Distance, a.MovingTime, a.ElapsedTime, a.AverageSpeed, a.MaxSpeed,
		a.TotalElevationGain, a.ElevHigh, a.AverageHeartrate, a.MaxHeartrate,
	)
	if err != nil {
		return false, store.WriteError("insert activity", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListActivities returns activities newest first; ownerUserID 0 lists all.
func (r *Repository) ListActivities(ctx context.Context, ownerUserID int64) ([]store.Activity, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+activityColumns+`
		FROM activities
		WHERE $1::bigint = 0 OR owner_user_id = $1
		ORDER BY start_date DESC, activity_id DESC`, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	defer rows.Close()

	var activities []store.Activity
	for rows.Next() {
		var a store.Activity
		if err := rows.Scan(
			&a.ActivityID, &a.OwnerUserID, &a.Name, &a.Type, &a.StartDate,
			&a.Distance, &a.MovingTime, &a.ElapsedTime, &a.AverageSpeed, &a.MaxSpeed,
			&a.TotalElevationGain, &a.ElevHigh, &a.AverageHeartrate, &a.MaxHeartrate,
		); err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}
