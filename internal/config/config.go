// ABOUTME: Configuration loading and parsing for aiboard
// ABOUTME: Supports YAML or TOML files with environment variable expansion, defaults and validation

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted when locating files.
const (
	EnvDataDir = "AIBOARD_DATA_DIR"
	EnvConfig  = "AIBOARD_CONFIG"
)

// DefaultMaxContentBytes is the default message size limit.
const DefaultMaxContentBytes = 1 << 20

// Config represents the complete aiboard configuration
type Config struct {
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Search   SearchConfig   `yaml:"search" toml:"search"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Limits   LimitsConfig   `yaml:"limits" toml:"limits"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path        string        `yaml:"path" toml:"path"`
	Driver      string        `yaml:"driver" toml:"driver"`
	BusyTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	BusyTimeoutRaw string `yaml:"busy_timeout" toml:"busy_timeout"`
}

// SearchConfig selects the search strategy
type SearchConfig struct {
	Mode string `yaml:"mode" toml:"mode"`
}

// LoggingConfig holds logging configuration. File receives a copy of
// error-level records; an empty File disables the copy.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	File   string `yaml:"file" toml:"file"`
}

// LimitsConfig bounds user input
type LimitsConfig struct {
	MaxContentBytes int `yaml:"max_content_bytes" toml:"max_content_bytes"`
}

// DataDir returns the directory holding the database and default config:
// $AIBOARD_DATA_DIR, else $LOCALAPPDATA/aiboard, else
// $HOME/.local/share/aiboard, else ./.aiboard.
func DataDir() string {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		return dir
	}
	if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
		return filepath.Join(dir, "aiboard")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".local", "share", "aiboard")
	}
	return ".aiboard"
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:           filepath.Join(DataDir(), "aiboard.db"),
			Driver:         "sqlite",
			BusyTimeout:    5 * time.Second,
			BusyTimeoutRaw: "5s",
		},
		Search:  SearchConfig{Mode: "auto"},
		Logging: LoggingConfig{Level: "warn", Format: "text", File: filepath.Join(DataDir(), "error.log")},
		Limits:  LimitsConfig{MaxContentBytes: DefaultMaxContentBytes},
	}
}

// Resolve finds and loads the configuration file. An explicit path (the
// flag, then $AIBOARD_CONFIG) must exist; otherwise config.yaml and then
// config.toml in the data dir are tried, and defaults apply if neither exists.
func Resolve(flagPath string) (*Config, error) {
	if flagPath != "" {
		return Load(flagPath)
	}
	if env := os.Getenv(EnvConfig); env != "" {
		return Load(env)
	}
	dir := DataDir()
	for _, name := range []string{"config.yaml", "config.toml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("checking config file: %w", err)
		}
	}
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Keys absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.NewDecoder(strings.NewReader(expandedData)).Decode(cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if len(bytes.TrimSpace([]byte(expandedData))) > 0 {
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Database.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be sqlite or sqlite3, got %q", c.Database.Driver)
	}
	if c.Database.BusyTimeout <= 0 {
		return fmt.Errorf("database.busy_timeout must be positive")
	}

	switch c.Search.Mode {
	case "auto", "substring":
	default:
		return fmt.Errorf("search.mode must be auto or substring, got %q", c.Search.Mode)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Limits.MaxContentBytes <= 0 {
		return fmt.Errorf("limits.max_content_bytes must be positive")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Database.BusyTimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.Database.BusyTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing busy_timeout %q: %w", cfg.Database.BusyTimeoutRaw, err)
		}
		cfg.Database.BusyTimeout = d
	}
	return nil
}
