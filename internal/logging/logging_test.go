// ABOUTME: Tests for logger construction
// ABOUTME: Covers level parsing, color output, JSON output and the error file copy

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afmon/aiboard-cli/internal/config"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestColorHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewColorHandler(&buf, slog.LevelInfo))

	logger.Debug("hidden")
	logger.With("component", "store").Warn("slow query", "ms", 120)
	logger.WithGroup("req").Error("failed", "id", "abc")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "WRN slow query component=store ms=120")
	assert.Contains(t, lines[1], "ERR failed req.id=abc")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logs, err := New(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)
	defer logs.Close()

	logs.Failures.Error("dropped without a file")
	logs.Logger.Debug("opened", "path", "/tmp/x.db")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "opened", rec["msg"])
	assert.Equal(t, "DEBUG", rec["level"])
	assert.Equal(t, "/tmp/x.db", rec["path"])
}

func TestNew_ErrorFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "error.log")

	logs, err := New(config.LoggingConfig{Level: "info", Format: "text", File: path}, &console)
	require.NoError(t, err)

	logs.Logger.Info("routine")
	logs.Logger.With("component", "cli").Error("database locked", "op", "insert")
	logs.Failures.Error("command failed", "error", "boom")
	require.NoError(t, logs.Close())

	assert.Contains(t, console.String(), "routine")
	assert.Contains(t, console.String(), "database locked")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2, "only error records reach the file")
	assert.NotContains(t, console.String(), "command failed")

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "database locked", rec["msg"])
	assert.Equal(t, "cli", rec["component"])
	assert.Equal(t, "insert", rec["op"])
}
