package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/topup/upsell/internal/database"
)

// SessionRepository handles database operations for session-scoped values
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a repository on the global connection
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		db: database.DB,
	}
}

// NewSessionRepositoryWithDB creates a new session repository with a specific database connection
func NewSessionRepositoryWithDB(db *sql.DB) *SessionRepository {
	return &SessionRepository{
		db: db,
	}
}

// Get returns the value stored under key for the session
func (r *SessionRepository) Get(ctx context.Context, sessionID, key string) ([]byte, bool, error) {
	query := `
		SELECT value
		FROM session_storage
		WHERE session_id = $1 AND key = $2
	`

	var value []byte
	err := r.db.QueryRowContext(ctx, query, sessionID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get session value: %w", err)
	}

	return value, true, nil
}

// Set stores value under key for the session, replacing any previous value
func (r *SessionRepository) Set(ctx context.Context, sessionID, key string, value []byte) error {
	query := `
		INSERT INTO session_storage (session_id, key, value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (session_id, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, sessionID, key, string(value), time.Now()); err != nil {
		return fmt.Errorf("failed to set session value: %w", err)
	}

	return nil
}

// Purge deletes values not written since before and reports how many went
func (r *SessionRepository) Purge(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM session_storage WHERE updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge session values: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
