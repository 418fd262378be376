package config

import "fmt"

// Storage drivers for session-scoped data
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// StorageConfig selects where session-scoped values are kept
type StorageConfig struct {
	Driver   string
	Postgres *PostgresConfig
}

// LoadStorageConfig loads storage configuration from environment variables
func LoadStorageConfig(getenv func(string) string) (*StorageConfig, error) {
	config := &StorageConfig{Driver: getenv("STORAGE_DRIVER")}
	if config.Driver == "" {
		config.Driver = StorageDriverMemory
	}

	switch config.Driver {
	case StorageDriverMemory:
		return config, nil
	case StorageDriverPostgres:
		pg, err := LoadPostgresConfig(getenv)
		if err != nil {
			return nil, err
		}
		config.Postgres = pg
		return config, nil
	default:
		return nil, fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StorageDriverMemory, StorageDriverPostgres, config.Driver)
	}
}
