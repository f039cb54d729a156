// Manages configuration stored in jarq.yaml.

package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the name of the configuration file in the data directory.
const ConfigFileName = "jarq.yaml"

// Config stores all process-wide configuration.
// Loaded from jarq.yaml, created with defaults if missing.
type Config struct {
	// StorageRoot is the directory holding user content. Relative paths are
	// relative to the data directory.
	StorageRoot string `yaml:"storage_root" json:"storage_root" jsonschema:"description=Directory holding user repositories"`

	// Database is the SQLite database file. Relative paths are relative to the
	// data directory.
	Database string `yaml:"database" json:"database" jsonschema:"description=SQLite database file"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`

	// History enables git versioning of content files.
	History bool `yaml:"history" json:"history" jsonschema:"description=Record content changes in a git repository per library repository"`

	// HistoryAuthor is the committer used for content history.
	HistoryAuthor Author `yaml:"history_author" json:"history_author"`

	// RateLimits defines rate limiting configuration.
	RateLimits RateLimits `yaml:"rate_limits" json:"rate_limits"`
}

// Author identifies who records history commits.
type Author struct {
	Name  string `yaml:"name" json:"name"`
	Email string `yaml:"email" json:"email"`
}

// RateLimits defines rate limiting of mutating API calls and failed logins.
type RateLimits struct {
	// WritePerMin limits write operations (POST/PUT/DELETE) per client.
	// 0 means unlimited.
	WritePerMin int `yaml:"write_per_min" json:"write_per_min"`

	// Burst is the bucket capacity.
	Burst int `yaml:"burst" json:"burst"`

	// AuthFailuresPerMin limits failed authentication attempts per client.
	// 0 means unlimited.
	AuthFailuresPerMin int `yaml:"auth_failures_per_min" json:"auth_failures_per_min"`

	// AuthBurst is the number of failures allowed before throttling starts.
	AuthBurst int `yaml:"auth_burst" json:"auth_burst"`
}

// Validate checks that rate limit values are non-negative.
func (r *RateLimits) Validate() error {
	if r.WritePerMin < 0 {
		return errors.New("write_per_min must be non-negative")
	}
	if r.Burst < 0 {
		return errors.New("burst must be non-negative")
	}
	if r.WritePerMin > 0 && r.Burst == 0 {
		return errors.New("burst must be positive when write_per_min is set")
	}
	if r.AuthFailuresPerMin < 0 {
		return errors.New("auth_failures_per_min must be non-negative")
	}
	if r.AuthBurst < 0 {
		return errors.New("auth_burst must be non-negative")
	}
	if r.AuthFailuresPerMin > 0 && r.AuthBurst == 0 {
		return errors.New("auth_burst must be positive when auth_failures_per_min is set")
	}
	return nil
}

// DefaultConfig returns the configuration written on first start.
func DefaultConfig() Config {
	return Config{
		StorageRoot:   "repositories",
		Database:      "jarq.db",
		LogLevel:      "info",
		History:       true,
		HistoryAuthor: Author{Name: "jarq", Email: "jarq@localhost"},
		RateLimits:    RateLimits{WritePerMin: 120, Burst: 20, AuthFailuresPerMin: 10, AuthBurst: 5},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.StorageRoot == "" {
		return errors.New("storage_root is required")
	}
	if c.Database == "" {
		return errors.New("database is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	if c.History && (c.HistoryAuthor.Name == "" || c.HistoryAuthor.Email == "") {
		return errors.New("history_author name and email are required when history is enabled")
	}
	if err := c.RateLimits.Validate(); err != nil {
		return fmt.Errorf("rate_limits: %w", err)
	}
	return nil
}

// ResolvePaths makes StorageRoot and Database absolute against dataDir.
func (c *Config) ResolvePaths(dataDir string) {
	if !filepath.IsAbs(c.StorageRoot) {
		c.StorageRoot = filepath.Join(dataDir, c.StorageRoot)
	}
	if !filepath.IsAbs(c.Database) {
		c.Database = filepath.Join(dataDir, c.Database)
	}
}

// LoadConfig loads configuration from dataDir/jarq.yaml.
// Creates the file with defaults if it doesn't exist.
func LoadConfig(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, ConfigFileName)

	cfg := DefaultConfig()
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir, not user input
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", ConfigFileName, err)
		}
		if err := cfg.Save(dataDir); err != nil {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ConfigFileName, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ConfigFileName, err)
	}
	return &cfg, nil
}

// Save saves configuration to dataDir/jarq.yaml.
func (c *Config) Save(dataDir string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, ConfigFileName), data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", ConfigFileName, err)
	}
	return nil
}
