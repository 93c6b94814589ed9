// ABOUTME: Hook subcommands for agent event ingestion
// ABOUTME: Reads one hook event JSON object from stdin and stores it as a message

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/afmon/aiboard-cli/internal/hook"
)

func newHookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Ingest agent hook events",
	}

	cmd.AddCommand(newHookIngestCmd())
	return cmd
}

func newHookIngestCmd() *cobra.Command {
	var threadID string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a hook event from stdin",
		Long: "Reads a hook event JSON object from stdin. The message goes to --thread, or to a thread " +
			"named after the event's session_id, which is created on first use.",
		Args: noArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			limit := int64(a.cfg.Limits.MaxContentBytes) * 4
			ing := hook.New(a.store, a.cfg.Limits.MaxContentBytes, a.logs.Logger)

			res, err := ing.Ingest(cmd.Context(), io.LimitReader(cmd.InOrStdin(), limit), threadID)
			if err != nil {
				return err
			}
			if res.ThreadClosed {
				warnClosedThread(cmd, res.ThreadID)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "ingested %d messages\n", res.Stored)
			return nil
		}),
	}

	cmd.Flags().StringVar(&threadID, "thread", "", "thread id to store the event in (defaults to the session id)")
	return cmd
}
