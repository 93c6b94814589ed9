// ABOUTME: Cleanup subcommands: delete by age, by thread or by session
// ABOUTME: --backup snapshots the database before anything is deleted

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/afmon/aiboard-cli/internal/cleanup"
	"github.com/afmon/aiboard-cli/internal/render"
)

func newCleanupCmd() *cobra.Command {
	var backup bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old or unwanted data",
	}
	cmd.PersistentFlags().BoolVar(&backup, "backup", false, "back up the database before deleting")

	run := func(body func(cmd *cobra.Command, args []string, a *app, svc *cleanup.Service) error) func(*cobra.Command, []string) error {
		return withApp(func(cmd *cobra.Command, args []string, a *app) error {
			if backup {
				path, err := a.store.Backup(cmd.Context(), "")
				if err != nil {
					return fmt.Errorf("backing up before cleanup: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "backup written to %s\n", path)
			}
			return body(cmd, args, a, cleanup.New(a.store, a.logs.Logger))
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "age <days>",
		Short: "Delete messages older than N days",
		Args:  exactArgs(1),
		RunE: run(func(cmd *cobra.Command, args []string, a *app, svc *cleanup.Service) error {
			days, err := strconv.Atoi(args[0])
			if err != nil {
				return &usageError{err: fmt.Errorf("days must be an integer: %q", args[0])}
			}
			n, err := svc.ByAge(cmd.Context(), days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "deleted %d messages older than %d days\n", n, days)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "thread <thread>",
		Short: "Delete a thread and all its messages",
		Args:  exactArgs(1),
		RunE: run(func(cmd *cobra.Command, args []string, a *app, svc *cleanup.Service) error {
			id, err := a.store.ResolveThreadID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			n, err := svc.ByThread(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "deleted thread %s and %d messages\n", render.ShortID(id), n)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "session <session>",
		Short: "Delete all messages from a session",
		Args:  exactArgs(1),
		RunE: run(func(cmd *cobra.Command, args []string, a *app, svc *cleanup.Service) error {
			n, err := svc.BySession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "deleted %d messages from session %s\n", n, args[0])
			return nil
		}),
	})

	return cmd
}
