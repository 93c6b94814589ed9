// ABOUTME: Entry point for the aiboard CLI
// ABOUTME: Builds the cobra command tree and maps errors to exit codes

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/afmon/aiboard-cli/internal/store"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "aiboard",
		Short:         "Inter-agent message board and conversation log",
		Long:          "aiboard stores threads and messages exchanged between agents and people in a local SQLite database.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "path to config file (YAML or TOML)")
	cmd.PersistentFlags().String("log-level", "", "override logging.level (debug, info, warn, error)")
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newThreadCmd())
	cmd.AddCommand(newMessageCmd())
	cmd.AddCommand(newHookCmd())
	cmd.AddCommand(newCleanupCmd())
	cmd.AddCommand(newBackupCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  noArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "aiboard %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

// usageError marks bad flags or arguments.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return &usageError{err: err}
	}
	return nil
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ue *usageError
	if errors.As(err, &ue) || errors.Is(err, store.ErrInvalidInput) {
		return exitUsage
	}
	if strings.HasPrefix(err.Error(), "unknown command") {
		return exitUsage
	}
	return exitFailure
}

func execute(ctx context.Context, cmd *cobra.Command, stderr io.Writer) int {
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", color.New(color.FgRed, color.Bold).Sprint("error:"), err)
	}
	return exitCode(err)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, newRootCmd(), os.Stderr)
	stop()
	os.Exit(code)
}
