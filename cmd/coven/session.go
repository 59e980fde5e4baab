// ABOUTME: Conversation subcommands: send, pending, approve, deny, history, stats, export, clear
// ABOUTME: Thin wrappers over the client; all output goes through cobra's writers

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-daemon/internal/session"
)

func newSendCmd(state *cliState) *cobra.Command {
	var approve bool

	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send a message to an agent and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := state.client()
			if err != nil {
				return err
			}
			res, err := c.Send(cmd.Context(), state.sessionArg, strings.Join(args, " "), approve)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), res.Content)

			for _, tc := range res.ToolCalls {
				gray := color.New(color.FgHiBlack)
				gray.Fprintf(cmd.OutOrStdout(), "  [%s] %s -> %v\n", tc.Status, tc.Name, tc.Result)
			}
			if len(res.PendingApprovals) > 0 {
				yellow := color.New(color.FgYellow)
				yellow.Fprintf(cmd.OutOrStdout(), "%d tool call(s) awaiting approval:\n", len(res.PendingApprovals))
				for _, a := range res.PendingApprovals {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s  %s\n", a.ID, a.ToolName)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "run `coven approve <id>` or `coven deny <id>`")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&approve, "approve", false, "Execute gated tools immediately instead of parking them")
	return cmd
}

func newPendingCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List tool calls awaiting approval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := state.client()
			if err != nil {
				return err
			}
			res, err := c.Pending(cmd.Context(), state.sessionArg)
			if err != nil {
				return err
			}
			if len(res.Approvals) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing pending")
				return nil
			}
			for _, a := range res.Approvals {
				argsJSON, _ := json.Marshal(a.Arguments)
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s %s  (requested %s)\n",
					a.ID, a.ToolName, argsJSON, a.RequestedAt.Format("15:04:05"))
			}
			return nil
		},
	}
}

func newApproveCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <approval-id>",
		Short: "Approve and execute a gated tool call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := state.client()
			if err != nil {
				return err
			}
			res, err := c.Approve(cmd.Context(), state.sessionArg, args[0])
			if err != nil {
				return err
			}
			green := color.New(color.FgGreen)
			green.Fprint(cmd.OutOrStdout(), "✓ ")
			fmt.Fprintf(cmd.OutOrStdout(), "approved: %v\n", res.Result)
			return nil
		},
	}
}

func newDenyCmd(state *cliState) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "deny <approval-id>",
		Short: "Deny a gated tool call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := state.client()
			if err != nil {
				return err
			}
			if err := c.Deny(cmd.Context(), state.sessionArg, args[0], reason); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "denied")
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the call was denied")
	return cmd
}

func newHistoryCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print the conversation transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := state.client()
			if err != nil {
				return err
			}
			res, err := c.History(cmd.Context(), state.sessionArg)
			if err != nil {
				return err
			}
			for _, m := range res.Messages {
				printMessage(cmd, m)
			}
			return nil
		},
	}
}

func printMessage(cmd *cobra.Command, m session.Message) {
	role := color.CyanString(m.Role)
	if m.Role == "user" {
		role = color.GreenString(m.Role)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s  %s\n",
		color.HiBlackString(m.Timestamp.Format("15:04:05")), role, m.Content)
	for _, tc := range m.ToolCalls {
		fmt.Fprintf(cmd.OutOrStdout(), "    [%s] %s -> %v\n", tc.Status, tc.Name, tc.Result)
	}
}

func newStatsCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show session counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := state.client()
			if err != nil {
				return err
			}
			res, err := c.Stats(cmd.Context(), state.sessionArg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id:       %s\n", res.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "model:    %s\n", res.Model)
			fmt.Fprintf(cmd.OutOrStdout(), "messages: %d\n", res.MessageCount)
			fmt.Fprintf(cmd.OutOrStdout(), "pending:  %d\n", res.PendingCount)
			fmt.Fprintf(cmd.OutOrStdout(), "tokens:   %d in / %d out / %d total\n",
				res.Usage.Input, res.Usage.Output, res.Usage.Total)
			fmt.Fprintf(cmd.OutOrStdout(), "created:  %s\n", res.CreatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func newExportCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Dump the session as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := state.client()
			if err != nil {
				return err
			}
			res, err := c.Export(cmd.Context(), state.sessionArg)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

func newClearCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop history, usage, and pending approvals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := state.client()
			if err != nil {
				return err
			}
			if err := c.Clear(cmd.Context(), state.sessionArg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cleared")
			return nil
		},
	}
}
