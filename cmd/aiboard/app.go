// ABOUTME: Per-command wiring of config, loggers, store and services
// ABOUTME: Also holds shared helpers for reading content and parsing time filters

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/afmon/aiboard-cli/internal/config"
	"github.com/afmon/aiboard-cli/internal/conversation"
	"github.com/afmon/aiboard-cli/internal/logging"
	"github.com/afmon/aiboard-cli/internal/render"
	"github.com/afmon/aiboard-cli/internal/store"
)

// app is everything a command needs once the database is open.
type app struct {
	cfg    *config.Config
	logs   *logging.Loggers
	logger *slog.Logger
	store  *store.SQLiteStore
	conv   *conversation.Service
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Resolve(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logs, err := logging.New(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	logger := logs.Logger.With("component", "cli")

	s, err := store.Open(cmd.Context(), cfg.Database.Path, store.Options{
		Driver:      cfg.Database.Driver,
		BusyTimeout: cfg.Database.BusyTimeout,
		SearchMode:  store.SearchMode(cfg.Search.Mode),
		Logger:      logs.Logger,
	})
	if err != nil {
		logs.Failures.Error("opening database failed", "path", cfg.Database.Path, "error", err)
		logs.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return &app{
		cfg:    cfg,
		logs:   logs,
		logger: logger,
		store:  s,
		conv:   conversation.New(s, conversation.Config{MaxContentBytes: cfg.Limits.MaxContentBytes}, logs.Logger),
	}, nil
}

func (a *app) Close() error {
	err := a.store.Close()
	return errors.Join(err, a.logs.Close())
}

// withApp opens the app around a command body and records failures in the
// error log.
func withApp(run func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		a.logger.Debug("running command", "command", cmd.CommandPath(), "db", a.cfg.Database.Path, "fts", a.store.FullTextAvailable())
		if err := run(cmd, args, a); err != nil {
			a.logs.Failures.Error("command failed", "command", cmd.CommandPath(), "error", err)
			return err
		}
		return nil
	}
}

// readContent returns the flag value when set, else reads stdin up to the
// configured limit.
func (a *app) readContent(cmd *cobra.Command, flag, value string) (string, error) {
	if cmd.Flags().Changed(flag) {
		return value, nil
	}
	limit := a.cfg.Limits.MaxContentBytes
	data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), int64(limit)+1))
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	if len(data) > limit {
		return "", &store.InvalidInputError{Field: "content", Reason: fmt.Sprintf("input exceeds %d byte limit", limit)}
	}
	return string(data), nil
}

func (a *app) warnClosed(cmd *cobra.Command, t *store.Thread) {
	if t != nil && t.Status == store.ThreadStatusClosed {
		warnClosedThread(cmd, t.ID)
	}
}

func warnClosedThread(cmd *cobra.Command, id string) {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s thread %s is closed\n", color.YellowString("warning:"), render.ShortID(id))
}

var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// parseTimeFlag parses a --before/--after value as UTC. Empty means unset.
func parseTimeFlag(name, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, &store.InvalidInputError{Field: name, Reason: fmt.Sprintf("cannot parse time %q (use 2006-01-02T15:04:05)", value)}
}

func formatFlag(cmd *cobra.Command, p *string) {
	cmd.Flags().StringVar(p, "format", "text", "output format (text, json, markdown, html)")
}

func requireFlag(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return &usageError{err: fmt.Errorf("required flag --%s not set", name)}
	}
	return nil
}

func writeMessages(cmd *cobra.Command, format string, msgs []*store.Message) error {
	f, err := render.ParseFormat(format)
	if err != nil {
		return err
	}
	return render.Messages(cmd.OutOrStdout(), f, msgs)
}
