// ABOUTME: Message subcommands: post, read, recent, search, update, mentions and types
// ABOUTME: Content comes from --content or stdin; thread and message arguments accept id prefixes

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/afmon/aiboard-cli/internal/conversation"
	"github.com/afmon/aiboard-cli/internal/store"
)

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Post, read and search messages",
	}

	cmd.AddCommand(newMessagePostCmd())
	cmd.AddCommand(newMessageReadCmd())
	cmd.AddCommand(newMessageRecentCmd())
	cmd.AddCommand(newMessageSearchCmd())
	cmd.AddCommand(newMessageUpdateCmd())
	cmd.AddCommand(newMessageMentionsCmd())
	cmd.AddCommand(newMessageTypesCmd())
	return cmd
}

func newMessagePostCmd() *cobra.Command {
	var (
		threadRef string
		role      string
		content   string
		session   string
		sender    string
		parent    string
		metadata  string
		source    string
	)

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post a message to a thread",
		Long:  "Posts a message and prints its id. Without --content the body is read from stdin.",
		Args:  noArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			if err := requireFlag("thread", threadRef); err != nil {
				return err
			}
			body, err := a.readContent(cmd, "content", content)
			if err != nil {
				return err
			}
			var meta json.RawMessage
			if metadata != "" {
				if !json.Valid([]byte(metadata)) {
					return &store.InvalidInputError{Field: "metadata", Reason: "--metadata must be valid JSON"}
				}
				meta = json.RawMessage(metadata)
			}

			res, err := a.conv.Post(cmd.Context(), conversation.PostRequest{
				ThreadRef: threadRef,
				Role:      role,
				Content:   body,
				SessionID: session,
				Sender:    sender,
				Metadata:  meta,
				ParentRef: parent,
				Source:    source,
			})
			if err != nil {
				return err
			}
			a.warnClosed(cmd, res.Thread)
			fmt.Fprintln(cmd.OutOrStdout(), res.Message.ID)
			return nil
		}),
	}

	cmd.Flags().StringVar(&threadRef, "thread", "", "thread id or prefix (required)")
	cmd.Flags().StringVar(&role, "role", "user", "message role (user, assistant, system, tool)")
	cmd.Flags().StringVar(&content, "content", "", "message content (reads stdin if omitted)")
	cmd.Flags().StringVar(&session, "session", "", "session id")
	cmd.Flags().StringVar(&sender, "sender", "", "sender name")
	cmd.Flags().StringVar(&parent, "parent", "", "parent message id or prefix")
	cmd.Flags().StringVar(&metadata, "metadata", "", "metadata as a JSON object")
	cmd.Flags().StringVar(&source, "source", "", "provenance tag (user, agent, system)")
	return cmd
}

func newMessageReadCmd() *cobra.Command {
	var (
		threadRef string
		limit     int
		before    string
		after     string
		msgType   string
		sinceType string
		format    string
	)

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read a thread's messages in order",
		Long: "Prints a thread's messages oldest first. --since-type keeps only the messages after the latest " +
			"message of that type, e.g. --since-type checkpoint.",
		Args: noArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			if err := requireFlag("thread", threadRef); err != nil {
				return err
			}
			afterT, err := parseTimeFlag("after", after)
			if err != nil {
				return err
			}
			beforeT, err := parseTimeFlag("before", before)
			if err != nil {
				return err
			}
			if limit < 0 {
				return &store.InvalidInputError{Field: "limit", Reason: "--limit must not be negative"}
			}

			msgs, err := a.conv.Read(cmd.Context(), conversation.ReadRequest{
				ThreadRef: threadRef,
				After:     afterT,
				Before:    beforeT,
				Limit:     limit,
				MsgType:   msgType,
				SinceType: sinceType,
			})
			if err != nil {
				return err
			}
			return writeMessages(cmd, format, msgs)
		}),
	}

	cmd.Flags().StringVar(&threadRef, "thread", "", "thread id or prefix (required)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of messages (0 for all)")
	cmd.Flags().StringVar(&before, "before", "", "only messages created before this UTC time")
	cmd.Flags().StringVar(&after, "after", "", "only messages created after this UTC time")
	cmd.Flags().StringVar(&msgType, "type", "", "only messages whose metadata msg_type matches")
	cmd.Flags().StringVar(&sinceType, "since-type", "", "only messages after the latest message of this msg_type")
	formatFlag(cmd, &format)
	return cmd
}

func newMessageRecentCmd() *cobra.Command {
	var (
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the newest messages across all threads",
		Args:  noArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			msgs, err := a.conv.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeMessages(cmd, format, msgs)
		}),
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of messages (0 for all)")
	formatFlag(cmd, &format)
	return cmd
}

func newMessageSearchCmd() *cobra.Command {
	var (
		threadRef string
		format    string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search message content",
		Long: "Searches message content, newest first. The full-text index is used when available; " +
			"queries it cannot handle fall back to a literal substring match.",
		Args: exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			msgs, err := a.conv.Search(cmd.Context(), args[0], threadRef)
			if err != nil {
				return err
			}
			return writeMessages(cmd, format, msgs)
		}),
	}

	cmd.Flags().StringVar(&threadRef, "thread", "", "limit the search to one thread")
	formatFlag(cmd, &format)
	return cmd
}

func newMessageUpdateCmd() *cobra.Command {
	var content string

	cmd := &cobra.Command{
		Use:   "update <message>",
		Short: "Replace a message's content",
		Long:  "Replaces the content of a message and prints its full id. Without --content the body is read from stdin.",
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			body, err := a.readContent(cmd, "content", content)
			if err != nil {
				return err
			}
			id, err := a.conv.Update(cmd.Context(), args[0], body)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		}),
	}

	cmd.Flags().StringVar(&content, "content", "", "new content (reads stdin if omitted)")
	return cmd
}

func newMessageMentionsCmd() *cobra.Command {
	var (
		threadRef string
		count     bool
		format    string
	)

	cmd := &cobra.Command{
		Use:   "mentions <name>",
		Short: "Find messages that mention @name",
		Long:  "Finds messages mentioning @name as a whole word, newest first. @alice does not match @alice_bot.",
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			if count {
				n, err := a.conv.MentionCount(cmd.Context(), threadRef, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			}
			msgs, err := a.conv.Mentions(cmd.Context(), threadRef, args[0])
			if err != nil {
				return err
			}
			return writeMessages(cmd, format, msgs)
		}),
	}

	cmd.Flags().StringVar(&threadRef, "thread", "", "limit to one thread")
	cmd.Flags().BoolVar(&count, "count", false, "print only the number of matching messages")
	formatFlag(cmd, &format)
	return cmd
}

func newMessageTypesCmd() *cobra.Command {
	var (
		threadRef string
		format    string
	)

	cmd := &cobra.Command{
		Use:   "types <msg_type>",
		Short: "List messages whose metadata msg_type matches",
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			msgs, err := a.conv.ByType(cmd.Context(), threadRef, args[0])
			if err != nil {
				return err
			}
			return writeMessages(cmd, format, msgs)
		}),
	}

	cmd.Flags().StringVar(&threadRef, "thread", "", "limit to one thread")
	formatFlag(cmd, &format)
	return cmd
}
