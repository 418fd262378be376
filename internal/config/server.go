package config

import (
	"fmt"
	"strconv"
	"time"
)

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port          string
	SessionSecret []byte
	CookieSecure  bool
	TemplatesDir  string
	StaticDir     string
	CatalogFile   string
	LogDev        bool
	// SessionTTL is how long stored session values outlive their last write
	SessionTTL    time.Duration
	PurgeInterval time.Duration
}

// LoadServerConfig loads server configuration from environment variables
func LoadServerConfig(getenv func(string) string) (ServerConfig, error) {
	port := getenv("PORT")
	if port == "" {
		port = "8080" // Default to port 8080
	}

	secret := getenv("SESSION_SECRET")
	if secret == "" {
		return ServerConfig{}, fmt.Errorf("SESSION_SECRET is required")
	}
	if len(secret) < 16 {
		return ServerConfig{}, fmt.Errorf("SESSION_SECRET must be at least 16 bytes")
	}

	cookieSecure, err := parseBool(getenv, "COOKIE_SECURE")
	if err != nil {
		return ServerConfig{}, err
	}
	logDev, err := parseBool(getenv, "LOG_DEV")
	if err != nil {
		return ServerConfig{}, err
	}

	templatesDir := getenv("TEMPLATES_DIR")
	if templatesDir == "" {
		templatesDir = "templates"
	}

	staticDir := getenv("STATIC_DIR")
	if staticDir == "" {
		staticDir = "static"
	}

	ttl, err := parseDuration(getenv, "SESSION_TTL", 24*time.Hour)
	if err != nil {
		return ServerConfig{}, err
	}
	interval, err := parseDuration(getenv, "SESSION_PURGE_INTERVAL", 10*time.Minute)
	if err != nil {
		return ServerConfig{}, err
	}
	if ttl > 0 && interval <= 0 {
		return ServerConfig{}, fmt.Errorf("SESSION_PURGE_INTERVAL must be positive")
	}

	return ServerConfig{
		Port:          port,
		SessionSecret: []byte(secret),
		CookieSecure:  cookieSecure,
		TemplatesDir:  templatesDir,
		StaticDir:     staticDir,
		CatalogFile:   getenv("CATALOG_FILE"),
		LogDev:        logDev,
		SessionTTL:    ttl,
		PurgeInterval: interval,
	}, nil
}

func parseBool(getenv func(string) string, key string) (bool, error) {
	raw := getenv(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return v, nil
}
