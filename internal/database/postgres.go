package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/topup/upsell/internal/config"
)

var DB *sql.DB

// Connect establishes a connection to the PostgreSQL session store
func Connect(pgConfig *config.PostgresConfig) error {
	db, err := Open(pgConfig)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Open opens and verifies a connection pool without touching the global DB
func Open(pgConfig *config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", pgConfig.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", pgConfig.Redacted(), err)
	}

	return db, nil
}

// Close closes the database connection
func Close() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}
