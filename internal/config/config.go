package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Backend REST API
	BackendURL        string        `env:"BACKEND_URL" envDefault:"http://localhost:3000"`
	HTTPTimeout       time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND" envDefault:"5"`
	RequestBurst      int           `env:"REQUEST_BURST" envDefault:"10"`

	// Session persistence
	SessionBackend string        `env:"SESSION_BACKEND" envDefault:"sqlite"`
	SQLiteDBPath   string        `env:"SQLITE_DB_PATH" envDefault:"./data/presupuesto.db"`
	RedisAddr      string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPrefix    string        `env:"REDIS_PREFIX" envDefault:"presupuesto:"`
	TokenMaxAge    time.Duration `env:"TOKEN_MAX_AGE" envDefault:"1440h"`

	// Routes
	LandingRoute       string `env:"LANDING_ROUTE" envDefault:"/"`
	AuthenticatedRoute string `env:"AUTHENTICATED_ROUTE" envDefault:"/dashboard"`

	// Google sign-in
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	OAuthRedirectPort  string `env:"OAUTH_REDIRECT_PORT" envDefault:"8085"`

	// AMQP session events (optional)
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"presupuesto.sessions"`

	// Notifications
	NotificationPollInterval time.Duration `env:"NOTIFICATION_POLL_INTERVAL" envDefault:"30s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads the configuration from the environment. Malformed values are
// reported as errors; missing values fall back to their defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.BackendURL = strings.TrimRight(strings.TrimSpace(cfg.BackendURL), "/")
	return cfg, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate backend URL
	if parsed, err := url.Parse(c.BackendURL); err != nil || c.BackendURL == "" {
		errors = append(errors, fmt.Sprintf("invalid backend URL '%s': must be an absolute http(s) URL", c.BackendURL))
	} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid backend URL scheme '%s': must be 'http' or 'https'", parsed.Scheme))
	}

	if c.HTTPTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid HTTP timeout %v: must be positive", c.HTTPTimeout))
	}
	if c.RequestsPerSecond <= 0 {
		errors = append(errors, fmt.Sprintf("invalid requests per second %v: must be positive", c.RequestsPerSecond))
	}
	if c.RequestBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid request burst %d: must be at least 1", c.RequestBurst))
	}

	// Validate session backend
	validBackends := []string{"memory", "sqlite", "redis"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.SessionBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid session backend '%s': must be one of %v", c.SessionBackend, validBackends))
	}

	if c.SessionBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0o700); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.SessionBackend == "redis" && c.RedisAddr == "" {
		errors = append(errors, "Redis address cannot be empty when using redis backend")
	}

	// A single max-age applies to both manual and exchanged tokens
	if c.TokenMaxAge < time.Hour {
		errors = append(errors, fmt.Sprintf("invalid token max age %v: must be at least 1 hour", c.TokenMaxAge))
	}

	if !strings.HasPrefix(c.LandingRoute, "/") {
		errors = append(errors, fmt.Sprintf("invalid landing route '%s': must start with '/'", c.LandingRoute))
	}
	if !strings.HasPrefix(c.AuthenticatedRoute, "/") {
		errors = append(errors, fmt.Sprintf("invalid authenticated route '%s': must start with '/'", c.AuthenticatedRoute))
	}

	if port, err := strconv.Atoi(c.OAuthRedirectPort); err != nil {
		errors = append(errors, fmt.Sprintf("invalid OAuth redirect port '%s': must be a number", c.OAuthRedirectPort))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid OAuth redirect port %d: must be between 1 and 65535", port))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.NotificationPollInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid notification poll interval %v: must be at least 1 second", c.NotificationPollInterval))
	} else if c.NotificationPollInterval > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid notification poll interval %v: must be at most 1 hour", c.NotificationPollInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// GoogleSignInEnabled reports whether Google credentials are configured
func (c *Config) GoogleSignInEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}
