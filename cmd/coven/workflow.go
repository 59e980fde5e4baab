// ABOUTME: Collaboration subcommands: channel post/read, inbox, doc read/write/append/outline
// ABOUTME: These only work against daemons that joined a workflow instance

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-daemon/internal/workflow"
)

func newChannelCmd(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Post to or read the shared channel",
	}
	cmd.AddCommand(newChannelPostCmd(state))
	cmd.AddCommand(newChannelReadCmd(state))
	return cmd
}

func newChannelPostCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "post <message>",
		Short: "Append a message to the channel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := state.client()
			if err != nil {
				return err
			}
			_, err = c.ChannelPost(cmd.Context(), state.sessionArg, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "posted")
			return nil
		},
	}
}

func newChannelReadCmd(state *cliState) *cobra.Command {
	var (
		sinceRaw string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read channel entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var since *time.Time
			if sinceRaw != "" {
				d, err := time.ParseDuration(sinceRaw)
				if err != nil {
					return fmt.Errorf("parsing --since: %w", err)
				}
				t := time.Now().Add(-d)
				since = &t
			}

			c, err := state.client()
			if err != nil {
				return err
			}
			res, err := c.ChannelRead(cmd.Context(), state.sessionArg, since, limit)
			if err != nil {
				return err
			}
			for _, e := range res.Entries {
				printEntry(cmd.OutOrStdout(), e)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sinceRaw, "since", "", "Only entries newer than this duration ago (e.g. 10m)")
	cmd.Flags().IntVar(&limit, "limit", 0, "At most this many of the newest entries, 0 for all")
	return cmd
}

func printEntry(w io.Writer, e *workflow.ChannelEntry) {
	ts := color.HiBlackString(e.Timestamp.Format("15:04:05"))
	from := color.CyanString(e.From)
	fmt.Fprintf(w, "%s %s: %s\n", ts, from, e.Content)
}

func newInboxCmd(state *cliState) *cobra.Command {
	var ack bool

	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Show unread mentions for this agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := state.client()
			if err != nil {
				return err
			}
			res, err := c.Inbox(cmd.Context(), state.sessionArg)
			if err != nil {
				return err
			}
			if len(res.Messages) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "inbox empty")
				return nil
			}

			var newest time.Time
			for _, m := range res.Messages {
				if m.Priority == workflow.PriorityHigh {
					color.New(color.FgRed, color.Bold).Fprint(cmd.OutOrStdout(), "! ")
				} else {
					fmt.Fprint(cmd.OutOrStdout(), "  ")
				}
				printEntry(cmd.OutOrStdout(), m.Entry)
				if m.Entry.Timestamp.After(newest) {
					newest = m.Entry.Timestamp
				}
			}

			if ack && !newest.IsZero() {
				if err := c.AckInbox(cmd.Context(), state.sessionArg, newest); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "acknowledged through %s\n", newest.Format("15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&ack, "ack", false, "Advance the read cursor past everything shown")
	return cmd
}

func newDocCmd(state *cliState) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Read and edit shared documents",
	}
	cmd.PersistentFlags().StringVar(&file, "file", "", "Document name (default: main)")

	cmd.AddCommand(&cobra.Command{
		Use:   "read",
		Short: "Print a shared document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := state.client()
			if err != nil {
				return err
			}
			res, err := c.ReadDoc(cmd.Context(), state.sessionArg, file)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), res.Content)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "write [content]",
		Short: "Replace a shared document (reads stdin when no argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := docContent(args)
			if err != nil {
				return err
			}
			c, err := state.client()
			if err != nil {
				return err
			}
			return c.WriteDoc(cmd.Context(), state.sessionArg, file, content)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "append [content]",
		Short: "Append to a shared document (reads stdin when no argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := docContent(args)
			if err != nil {
				return err
			}
			c, err := state.client()
			if err != nil {
				return err
			}
			return c.AppendDoc(cmd.Context(), state.sessionArg, file, content)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "outline",
		Short: "Print a document's heading outline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := state.client()
			if err != nil {
				return err
			}
			res, err := c.OutlineDoc(cmd.Context(), state.sessionArg, file)
			if err != nil {
				return err
			}
			for _, h := range res.Headings {
				fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", strings.Repeat("  ", h.Level-1), h.Text)
			}
			return nil
		},
	})

	return cmd
}

// docContent takes the document body from the argument or, when absent, stdin.
func docContent(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}
