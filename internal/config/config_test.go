// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, lookup order, env var expansion, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	writeFile(t, configPath, `
database:
  path: "./test.db"
  driver: "sqlite3"
  busy_timeout: "250ms"

search:
  mode: "substring"

logging:
  level: "debug"
  format: "json"
  file: "/tmp/aiboard-errors.log"

limits:
  max_content_bytes: 4096
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, "sqlite3")
	}
	if cfg.Database.BusyTimeout != 250*time.Millisecond {
		t.Errorf("Database.BusyTimeout = %v, want %v", cfg.Database.BusyTimeout, 250*time.Millisecond)
	}
	if cfg.Search.Mode != "substring" {
		t.Errorf("Search.Mode = %q, want %q", cfg.Search.Mode, "substring")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
	if cfg.Logging.File != "/tmp/aiboard-errors.log" {
		t.Errorf("Logging.File = %q, want %q", cfg.Logging.File, "/tmp/aiboard-errors.log")
	}
	if cfg.Limits.MaxContentBytes != 4096 {
		t.Errorf("Limits.MaxContentBytes = %d, want 4096", cfg.Limits.MaxContentBytes)
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	writeFile(t, configPath, `
[database]
path = "/var/lib/aiboard/board.db"
busy_timeout = "2s"

[logging]
level = "info"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/var/lib/aiboard/board.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/var/lib/aiboard/board.db")
	}
	if cfg.Database.BusyTimeout != 2*time.Second {
		t.Errorf("Database.BusyTimeout = %v, want %v", cfg.Database.BusyTimeout, 2*time.Second)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	// Unset keys keep their defaults
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, "sqlite")
	}
	if cfg.Search.Mode != "auto" {
		t.Errorf("Search.Mode = %q, want %q", cfg.Search.Mode, "auto")
	}
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv(EnvDataDir, dataDir)
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, "\n")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := filepath.Join(dataDir, "aiboard.db")
	if cfg.Database.Path != want {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, want)
	}
	if cfg.Database.BusyTimeout != 5*time.Second {
		t.Errorf("Database.BusyTimeout = %v, want %v", cfg.Database.BusyTimeout, 5*time.Second)
	}
	if cfg.Limits.MaxContentBytes != DefaultMaxContentBytes {
		t.Errorf("Limits.MaxContentBytes = %d, want %d", cfg.Limits.MaxContentBytes, DefaultMaxContentBytes)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_AIBOARD_HOME", "/srv/board")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, `
database:
  path: "${TEST_AIBOARD_HOME}/aiboard.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/srv/board/aiboard.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/srv/board/aiboard.db")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, "database: [unclosed\n")

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid YAML, got nil")
	}
	if !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("Load() error = %v, want parsing error", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, `
database:
  busy_timeout: "soon"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "busy_timeout") {
		t.Errorf("Load() error = %v, want mention of busy_timeout", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "missing path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "postgres" }, wantErr: "database.driver"},
		{name: "zero busy timeout", mutate: func(c *Config) { c.Database.BusyTimeout = 0 }, wantErr: "busy_timeout"},
		{name: "unknown search mode", mutate: func(c *Config) { c.Search.Mode = "fuzzy" }, wantErr: "search.mode"},
		{name: "unknown level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "logging.level"},
		{name: "uppercase level", mutate: func(c *Config) { c.Logging.Level = "DEBUG" }},
		{name: "unknown format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "logging.format"},
		{name: "non-positive limit", mutate: func(c *Config) { c.Limits.MaxContentBytes = 0 }, wantErr: "max_content_bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDataDir(t *testing.T) {
	t.Setenv(EnvDataDir, "")
	t.Setenv("LOCALAPPDATA", "")
	t.Setenv("HOME", "/home/tester")
	if got, want := DataDir(), filepath.Join("/home/tester", ".local", "share", "aiboard"); got != want {
		t.Errorf("DataDir() = %q, want %q", got, want)
	}

	t.Setenv("LOCALAPPDATA", "/appdata")
	if got, want := DataDir(), filepath.Join("/appdata", "aiboard"); got != want {
		t.Errorf("DataDir() = %q, want %q", got, want)
	}

	t.Setenv(EnvDataDir, "/explicit")
	if got := DataDir(); got != "/explicit" {
		t.Errorf("DataDir() = %q, want %q", got, "/explicit")
	}

	t.Setenv(EnvDataDir, "")
	t.Setenv("LOCALAPPDATA", "")
	t.Setenv("HOME", "")
	if got := DataDir(); got != ".aiboard" {
		t.Errorf("DataDir() = %q, want %q", got, ".aiboard")
	}
}

func TestResolve_LookupOrder(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv(EnvDataDir, dataDir)
	t.Setenv(EnvConfig, "")

	// No files at all: defaults
	cfg, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.Search.Mode != "auto" {
		t.Errorf("Search.Mode = %q, want default %q", cfg.Search.Mode, "auto")
	}

	// TOML in the data dir
	writeFile(t, filepath.Join(dataDir, "config.toml"), "[search]\nmode = \"substring\"\n")
	cfg, err = Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.Search.Mode != "substring" {
		t.Errorf("Search.Mode = %q, want %q from config.toml", cfg.Search.Mode, "substring")
	}

	// YAML wins over TOML
	writeFile(t, filepath.Join(dataDir, "config.yaml"), "logging:\n  level: error\n")
	cfg, err = Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.Logging.Level != "error" || cfg.Search.Mode != "auto" {
		t.Errorf("Resolve() did not prefer config.yaml: level=%q mode=%q", cfg.Logging.Level, cfg.Search.Mode)
	}

	// $AIBOARD_CONFIG wins over the data dir
	envPath := filepath.Join(t.TempDir(), "env.yaml")
	writeFile(t, envPath, "logging:\n  level: info\n")
	t.Setenv(EnvConfig, envPath)
	cfg, err = Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q from $%s", cfg.Logging.Level, "info", EnvConfig)
	}

	// The flag wins over everything
	flagPath := filepath.Join(t.TempDir(), "flag.yaml")
	writeFile(t, flagPath, "logging:\n  level: debug\n")
	cfg, err = Resolve(flagPath)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q from flag", cfg.Logging.Level, "debug")
	}
}

func TestResolve_ExplicitPathMustExist(t *testing.T) {
	t.Setenv(EnvDataDir, t.TempDir())
	t.Setenv(EnvConfig, "")

	if _, err := Resolve(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Resolve() expected error for missing --config file, got nil")
	}

	t.Setenv(EnvConfig, filepath.Join(t.TempDir(), "missing.toml"))
	if _, err := Resolve(""); err == nil {
		t.Errorf("Resolve() expected error for missing $%s file, got nil", EnvConfig)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FOO", "bar")
	t.Setenv("BAZ", "qux")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "single env var", input: "${FOO}", expected: "bar"},
		{name: "env var with surrounding text", input: "prefix-${FOO}-suffix", expected: "prefix-bar-suffix"},
		{name: "multiple env vars", input: "${FOO}/${BAZ}", expected: "bar/qux"},
		{name: "no env vars", input: "no-vars-here", expected: "no-vars-here"},
		{name: "unset env var", input: "${UNSET_VAR_FOR_AIBOARD}", expected: ""},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandEnvVars(tt.input)
			if result != tt.expected {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
