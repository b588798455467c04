// Package config loads the rpcguard configuration. Values are layered:
// built-in defaults, then an optional YAML file, then RPCGUARD_* environment
// variables. The result is validated before it is returned.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"rpcguard/internal/models"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	if err := loadFromEnvironment(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadEnvFile exports the variables of a .env file into the process
// environment. Variables that are already set keep their value. An empty path
// is a no-op.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// warnUnknownKeys logs keys in the YAML data that no config field consumes.
// The main decoder ignores them, so a typo would otherwise go unnoticed.
func warnUnknownKeys(data []byte) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(models.NewDefaultConfig()); err != nil {
		var typeErr *yaml.TypeError
		if errors.As(err, &typeErr) {
			for _, msg := range typeErr.Errors {
				slog.Warn("Ignoring unknown config key", "detail", msg)
			}
		}
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	warnUnknownKeys(data)
	return nil
}

// loadFromEnvironment overrides fields tagged with env:"RPCGUARD_*" for every
// variable that is set. Unset variables leave the current value alone.
func loadFromEnvironment(config *models.Config) error {
	return env.Parse(config)
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Get default config with some example values
	config := models.NewDefaultConfig()

	// Enable authentication for example
	config.Security.EnableAuth = true
	config.Security.AdminToken = "change-me"

	// Example burst and header policy
	config.Limiter.Burst.Enabled = true
	config.Limiter.Headers.IncludePolicy = true
	config.Limiter.Whitelist = []string{"internal-healthcheck"}

	// Example persistent storage and upstream
	config.Storage.Type = models.StorageTypeSQLite
	config.Storage.Database.DSN = "./data/rpcguard.db"
	config.Upstream.Mode = models.UpstreamModeHTTP
	config.Upstream.URL = "http://localhost:8545"
	config.Upstream.Timeout = 10 * time.Second

	// Example TLS configuration
	config.Server.TLSEnabled = false
	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"

	// Marshal to YAML
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// Write to file
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
