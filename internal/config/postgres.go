package config

import (
	"fmt"
	"net/url"
)

// PostgresConfig holds configuration for the PostgreSQL session store
type PostgresConfig struct {
	User     string
	Password string
	Database string
	Host     string
	Port     string
	SSLMode  string
	// SearchPath scopes the connection to one schema, used by integration tests
	SearchPath string
}

// LoadPostgresConfig loads PostgreSQL configuration from environment variables
func LoadPostgresConfig(getenv func(string) string) (*PostgresConfig, error) {
	config := &PostgresConfig{
		User:     getenv("POSTGRES_USER"),
		Password: getenv("POSTGRES_PASSWORD"),
		Database: getenv("POSTGRES_DB"),
		Host:     getenv("POSTGRES_HOSTNAME"),
		Port:     getenv("POSTGRES_PORT"),
		SSLMode:  getenv("POSTGRES_SSLMODE"),
	}

	// Validate required fields
	if config.User == "" {
		return nil, fmt.Errorf("POSTGRES_USER is required")
	}
	if config.Password == "" {
		return nil, fmt.Errorf("POSTGRES_PASSWORD is required")
	}
	if config.Database == "" {
		return nil, fmt.Errorf("POSTGRES_DB is required")
	}
	if config.Host == "" {
		return nil, fmt.Errorf("POSTGRES_HOSTNAME is required")
	}
	if config.Port == "" {
		config.Port = "5432"
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	return config, nil
}

// ConnectionString returns a lib/pq key/value connection string
func (c *PostgresConfig) ConnectionString() string {
	conn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, quote(c.User), quote(c.Password), quote(c.Database), c.SSLMode)
	if c.SearchPath != "" {
		conn += " search_path=" + c.SearchPath
	}
	return conn
}

// Redacted returns a URL form of the connection safe for logs
func (c *PostgresConfig) Redacted() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, "xxxxx"),
		Host:   c.Host + ":" + c.Port,
		Path:   c.Database,
	}
	return u.String()
}

// quote escapes a value for the key/value connection string format
func quote(v string) string {
	if v == "" {
		return "''"
	}
	out := make([]byte, 0, len(v)+2)
	needsQuotes := false
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case ' ', '\t', '\n':
			needsQuotes = true
		case '\'', '\\':
			needsQuotes = true
			out = append(out, '\\')
		}
		out = append(out, v[i])
	}
	if needsQuotes {
		return "'" + string(out) + "'"
	}
	return string(out)
}
