package database

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

const createSessionStorageTable = `
	CREATE TABLE IF NOT EXISTS session_storage (
		session_id UUID NOT NULL,
		key VARCHAR(64) NOT NULL,
		value JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (session_id, key)
	);

	CREATE INDEX IF NOT EXISTS idx_session_storage_updated_at ON session_storage(updated_at);
	`

// RunMigrations creates the necessary tables on the global connection
func RunMigrations(logger *zap.Logger) error {
	if DB == nil {
		return fmt.Errorf("database connection not initialized")
	}
	if err := Migrate(DB); err != nil {
		return err
	}

	logger.Info("database migrations completed successfully")
	return nil
}

// Migrate creates the session storage table on db
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(createSessionStorageTable); err != nil {
		return fmt.Errorf("failed to create session_storage table: %w", err)
	}
	return nil
}
