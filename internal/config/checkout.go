package config

import (
	"fmt"
	"net/url"
	"time"
)

// CheckoutConfig holds configuration for the checkout endpoint and the
// navigation that follows a created charge
type CheckoutConfig struct {
	EndpointURL   string
	Timeout       time.Duration
	RedirectDelay time.Duration
	PaymentRoute  string
	DeclineRoute  string
}

// LoadCheckoutConfig loads checkout configuration from environment variables
func LoadCheckoutConfig(getenv func(string) string) (*CheckoutConfig, error) {
	config := &CheckoutConfig{
		EndpointURL:   getenv("CHECKOUT_ENDPOINT_URL"),
		Timeout:       15 * time.Second,
		RedirectDelay: 1500 * time.Millisecond,
		PaymentRoute:  getenv("PAYMENT_ROUTE"),
		DeclineRoute:  getenv("DECLINE_ROUTE"),
	}

	// Validate required fields
	if config.EndpointURL == "" {
		return nil, fmt.Errorf("CHECKOUT_ENDPOINT_URL is required")
	}
	u, err := url.Parse(config.EndpointURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("CHECKOUT_ENDPOINT_URL must be an absolute URL")
	}

	if config.Timeout, err = parseDuration(getenv, "CHECKOUT_TIMEOUT", config.Timeout); err != nil {
		return nil, err
	}
	if config.RedirectDelay, err = parseDuration(getenv, "REDIRECT_DELAY", config.RedirectDelay); err != nil {
		return nil, err
	}
	if config.Timeout <= 0 {
		return nil, fmt.Errorf("CHECKOUT_TIMEOUT must be positive")
	}
	if config.RedirectDelay < 0 {
		return nil, fmt.Errorf("REDIRECT_DELAY cannot be negative")
	}

	if config.PaymentRoute == "" {
		config.PaymentRoute = "/buy"
	}
	if config.DeclineRoute == "" {
		config.DeclineRoute = "/"
	}

	return config, nil
}

func parseDuration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
