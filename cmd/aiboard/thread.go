// ABOUTME: Thread subcommands: create, list, show, close, reopen, phase and delete
// ABOUTME: Thread arguments accept unique id prefixes

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/afmon/aiboard-cli/internal/conversation"
	"github.com/afmon/aiboard-cli/internal/render"
	"github.com/afmon/aiboard-cli/internal/store"
)

func newThreadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thread",
		Short: "Manage threads",
	}

	cmd.AddCommand(newThreadCreateCmd())
	cmd.AddCommand(newThreadListCmd())
	cmd.AddCommand(newThreadShowCmd())
	cmd.AddCommand(newThreadStatusCmd("close", "Mark a thread closed", store.ThreadStatusClosed))
	cmd.AddCommand(newThreadStatusCmd("reopen", "Mark a thread open again", store.ThreadStatusOpen))
	cmd.AddCommand(newThreadPhaseCmd())
	cmd.AddCommand(newThreadDeleteCmd())
	return cmd
}

func newThreadCreateCmd() *cobra.Command {
	var (
		name      string
		sourceURL string
	)

	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a new thread",
		Long:  "Creates an open thread and prints its id.",
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			thread, err := a.conv.CreateThread(cmd.Context(), conversation.CreateThreadRequest{
				Title:     args[0],
				Name:      name,
				SourceURL: sourceURL,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), thread.ID)
			return nil
		}),
	}

	cmd.Flags().StringVar(&name, "name", "", "short label for the thread")
	cmd.Flags().StringVar(&sourceURL, "source-url", "", "URL the thread originated from")
	return cmd
}

func newThreadListCmd() *cobra.Command {
	var (
		status string
		format string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List threads",
		Long:  "Lists threads, most recently updated first.",
		Args:  noArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			var filter *store.ThreadStatus
			if status != "all" {
				s, err := store.ParseThreadStatus(status)
				if err != nil {
					return err
				}
				filter = &s
			}
			f, err := render.ParseFormat(format)
			if err != nil {
				return err
			}

			threads, err := a.conv.ListThreads(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return render.Threads(cmd.OutOrStdout(), f, threads)
		}),
	}

	cmd.Flags().StringVar(&status, "status", "all", "filter by status (open, closed, all)")
	formatFlag(cmd, &format)
	return cmd
}

func newThreadShowCmd() *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:     "show <thread>",
		Aliases: []string{"export"},
		Short:   "Show a thread with its messages",
		Long:    "Renders a thread and all of its messages. With --output the rendering is written to a file.",
		Args:    exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			f, err := render.ParseFormat(format)
			if err != nil {
				return err
			}
			thread, err := a.conv.GetThread(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			msgs, err := a.conv.Read(cmd.Context(), conversation.ReadRequest{ThreadRef: thread.ID})
			if err != nil {
				return err
			}

			if output == "" {
				return render.Thread(cmd.OutOrStdout(), f, thread, msgs)
			}
			file, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			if err := render.Thread(file, f, thread, msgs); err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return fmt.Errorf("writing output file: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d messages to %s\n", len(msgs), output)
			return nil
		}),
	}

	formatFlag(cmd, &format)
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

func newThreadStatusCmd(use, short string, status store.ThreadStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <thread>",
		Short: short,
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			var (
				thread *store.Thread
				err    error
			)
			if status == store.ThreadStatusClosed {
				thread, err = a.conv.CloseThread(cmd.Context(), args[0])
			} else {
				thread, err = a.conv.ReopenThread(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", render.ShortID(thread.ID), thread.Status)
			return nil
		}),
	}
}

func newThreadPhaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "phase <thread> <phase>",
		Short: "Set the work phase of a thread",
		Long:  "Sets the phase to planning, implementing, reviewing or done. \"none\" clears it.",
		Args:  exactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			thread, err := a.conv.SetPhase(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			phase := "none"
			if thread.Phase != nil {
				phase = string(*thread.Phase)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", render.ShortID(thread.ID), phase)
			return nil
		}),
	}
}

func newThreadDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <thread>",
		Short: "Delete a thread and its messages",
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			id, n, err := a.conv.DeleteThread(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "deleted thread %s and %d messages\n", render.ShortID(id), n)
			return nil
		}),
	}
}
