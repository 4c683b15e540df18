// Package config provides configuration loading and validation for the server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config represents the server configuration. Values can come from a JSON
// file, from environment variables, or from CLI flags; flags win over env,
// env wins over file.
type Config struct {
	// Server
	Port        int      `json:"port,omitempty"`         // HTTP listen port
	CORSOrigins []string `json:"cors_origins,omitempty"` // Allowed CORS origins, empty means any

	// Backends
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL, empty runs in-memory
	APIKey      string `json:"api_key,omitempty"`      // Gemini API key

	// Model overrides per tier; empty values use the built-in defaults.
	ModelLite     string `json:"model_lite,omitempty"`
	ModelStandard string `json:"model_standard,omitempty"`
	ModelAdvanced string `json:"model_advanced,omitempty"`

	// Extraction
	JobTimeoutSeconds int `json:"job_timeout_seconds,omitempty"` // Per-entry extraction deadline

	// Auth
	AccessPasswordHash string `json:"access_password_hash,omitempty"` // bcrypt hash of the shared access password

	Verbose bool `json:"verbose,omitempty"`
}

// LoadConfig loads configuration from a JSON file.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// FromEnv builds a Config from environment variables.
func FromEnv() (*Config, error) {
	cfg := &Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		APIKey:             os.Getenv("GEMINI_API_KEY"),
		ModelLite:          os.Getenv("MODEL_LITE"),
		ModelStandard:      os.Getenv("MODEL_STANDARD"),
		ModelAdvanced:      os.Getenv("MODEL_ADVANCED"),
		AccessPasswordHash: os.Getenv("ACCESS_PASSWORD_HASH"),
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %v", err)
		}
		cfg.Port = port
	}
	if timeoutStr := os.Getenv("JOB_TIMEOUT_SECONDS"); timeoutStr != "" {
		timeout, err := strconv.Atoi(timeoutStr)
		if err != nil {
			return nil, fmt.Errorf("invalid JOB_TIMEOUT_SECONDS: %v", err)
		}
		cfg.JobTimeoutSeconds = timeout
	}

	return cfg, nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' out of range: %d", c.Port)
	}
	if c.JobTimeoutSeconds < 0 {
		return fmt.Errorf("config error: 'job_timeout_seconds' must be non-negative")
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from
// defaults. Bool fields are not merged; flags always win for those.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.ModelLite == "" {
		result.ModelLite = defaults.ModelLite
	}
	if result.ModelStandard == "" {
		result.ModelStandard = defaults.ModelStandard
	}
	if result.ModelAdvanced == "" {
		result.ModelAdvanced = defaults.ModelAdvanced
	}
	if result.AccessPasswordHash == "" {
		result.AccessPasswordHash = defaults.AccessPasswordHash
	}
	if len(result.CORSOrigins) == 0 {
		result.CORSOrigins = defaults.CORSOrigins
	}

	if result.Port == 0 {
		if defaults.Port > 0 {
			result.Port = defaults.Port
		} else {
			result.Port = 8000
		}
	}
	if result.JobTimeoutSeconds == 0 {
		if defaults.JobTimeoutSeconds > 0 {
			result.JobTimeoutSeconds = defaults.JobTimeoutSeconds
		} else {
			result.JobTimeoutSeconds = 120
		}
	}

	return result
}
