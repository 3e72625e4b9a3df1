package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const credentialColumns = `external_user_id, display_name, email, access_token, refresh_token,
	token_expiry, last_synced_at, created_at, last_login_at, active`

// UpsertCredential inserts or updates the credential for c.ExternalUserID
func (db *DB) UpsertCredential(ctx context.Context, c *Credential) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, WriteError("upsert credential", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO credentials (`+credentialColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_user_id) DO NOTHING
	`,
		c.ExternalUserID, c.DisplayName, c.Email, c.AccessToken, c.RefreshToken,
		formatTime(c.TokenExpiry), formatTime(c.LastSyncedAt), formatTime(c.CreatedAt),
		formatTime(c.LastLoginAt), boolToInt(c.Active),
	)
	if err != nil {
		return false, WriteError("upsert credential", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, WriteError("upsert credential", err)
	}

	if inserted == 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE credentials
			SET display_name = ?, email = ?, access_token = ?, refresh_token = ?,
				token_expiry = ?, last_login_at = ?, active = ?
			WHERE external_user_id = ?
		`,
			c.DisplayName, c.Email, c.AccessToken, c.RefreshToken,
			formatTime(c.TokenExpiry), formatTime(c.LastLoginAt), boolToInt(c.Active),
			c.ExternalUserID,
		)
		if err != nil {
			return false, WriteError("upsert credential", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, WriteError("upsert credential", err)
	}
	return inserted > 0, nil
}

// UpdateTokens stores a refreshed grant and the sync time
func (db *DB) UpdateTokens(ctx context.Context, externalUserID int64, access, refresh string, expiry, syncedAt time.Time) error {
	result, err := db.ExecContext(ctx, `
		UPDATE credentials
		SET access_token = ?, refresh_token = ?, token_expiry = ?, last_synced_at = ?
		WHERE external_user_id = ?
	`, access, refresh, formatTime(expiry), formatTime(syncedAt), externalUserID)
	if err != nil {
		return WriteError("update tokens", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return WriteError("update tokens", err)
	}
	if rows == 0 {
		return WriteError("update tokens", ErrCredentialNotFound)
	}
	return nil
}

// GetCredential retrieves the credential for an athlete
func (db *DB) GetCredential(ctx context.Context, externalUserID int64) (*Credential, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+credentialColumns+`
		FROM credentials
		WHERE external_user_id = ?
	`, externalUserID)

	c, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCredentials returns every stored credential ordered by athlete id
func (db *DB) ListCredentials(ctx context.Context) ([]Credential, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+credentialColumns+`
		FROM credentials
		ORDER BY external_user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, *c)
	}
	return creds, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*Credential, error) {
	var c Credential
	var expiry, synced, created, login string
	var active int

	err := row.Scan(
		&c.ExternalUserID, &c.DisplayName, &c.Email, &c.AccessToken, &c.RefreshToken,
		&expiry, &synced, &created, &login, &active,
	)
	if err != nil {
		return nil, err
	}

	if c.TokenExpiry, err = parseTime("token_expiry", expiry); err != nil {
		return nil, err
	}
	if c.LastSyncedAt, err = parseTime("last_synced_at", synced); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime("created_at", created); err != nil {
		return nil, err
	}
	if c.LastLoginAt, err = parseTime("last_login_at", login); err != nil {
		return nil, err
	}
	c.Active = active == 1

	return &c, nil
}
