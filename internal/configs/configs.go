/*
Package configs loads the relay's configuration from environment variables.

It covers the running environment, the listening port and its fallback range, CORS and
WebSocket origin rules, the advertised version and the log level.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	// DefaultPort is the port used when PORT is unset.
	DefaultPort = 5000

	// DefaultPortRetries is how many successive ports are tried when the configured one is taken.
	DefaultPortRetries = 3

	// MaxPortRetries caps PORT_RETRIES.
	MaxPortRetries = 20

	// DefaultVersion is reported by the health endpoint when APP_VERSION is unset.
	DefaultVersion = "1.0.1"
)

// AppConfig contains all configuration parameters required for the relay to run.
type AppConfig struct {
	// General Server Settings
	Environment string
	Port        int
	PortRetries int
	Version     string
	LogLevel    string

	// Security Settings
	AllowedOrigins []string
}

// IsDevelopment reports whether the relay runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// LoadConfig reads and validates the configuration from environment variables,
// applying defaults for anything unset.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}

	// --- General Server Settings ---
	cfg.Environment = strings.TrimSpace(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	port, err := intFromEnv("PORT", DefaultPort)
	if err != nil {
		return nil, err
	}
	if port < 1024 || port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", port, 1024, 65535)
	}
	cfg.Port = port

	retries, err := intFromEnv("PORT_RETRIES", DefaultPortRetries)
	if err != nil {
		return nil, err
	}
	if retries < 0 || retries > MaxPortRetries {
		return nil, fmt.Errorf("PORT_RETRIES must be between 0 and %d, got %d", MaxPortRetries, retries)
	}
	cfg.PortRetries = retries

	cfg.Version = strings.TrimSpace(os.Getenv("APP_VERSION"))
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}

	cfg.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))

	// --- Security Settings ---
	cfg.AllowedOrigins = []string{}
	for _, origin := range strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
		}
	}

	return cfg, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}
