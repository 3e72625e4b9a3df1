package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCredentialNotFound is returned when no credential exists for an athlete
var ErrCredentialNotFound = errors.New("credential not found")

// Store is the table store the sync pipeline writes to. Implementations
// translate the canonical records to their own column names.
type Store interface {
	// UpsertCredential inserts c, or updates the tokens, name, email,
	// last-login time and active flag of the existing row for
	// c.ExternalUserID. CreatedAt and LastSyncedAt are only written on insert.
	UpsertCredential(ctx context.Context, c *Credential) (created bool, err error)

	// UpdateTokens stores a refreshed grant and marks the credential synced.
	UpdateTokens(ctx context.Context, externalUserID int64, access, refresh string, expiry, syncedAt time.Time) error

	GetCredential(ctx context.Context, externalUserID int64) (*Credential, error)
	ListCredentials(ctx context.Context) ([]Credential, error)

	// InsertActivity writes a unless a row with the same ActivityID exists.
	// Existing rows are never modified.
	InsertActivity(ctx context.Context, a *Activity) (inserted bool, err error)

	// ListActivities returns activities newest first. ownerUserID 0 lists all.
	ListActivities(ctx context.Context, ownerUserID int64) ([]Activity, error)

	Close() error
}

// StoreWriteError reports a failed insert or update against the table store
type StoreWriteError struct {
	Op  string
	Err error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("store write %s: %v", e.Op, e.Err)
}

func (e *StoreWriteError) Unwrap() error {
	return e.Err
}

// WriteError wraps err as a *StoreWriteError, or returns nil
func WriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreWriteError{Op: op, Err: err}
}
