// ABOUTME: Tool subcommands: import a TOML manifest, list registered tools
// ABOUTME: Mock responses and approval gates are configured through the manifest

package main

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newToolsCmd(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Manage an agent's tools",
	}
	cmd.AddCommand(newToolsImportCmd(state))
	cmd.AddCommand(newToolsListCmd(state))
	return cmd
}

func newToolsImportCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "import <manifest.toml>",
		Short: "Register tools from a TOML manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// The daemon reads the manifest itself; hand it an absolute path
			// so its working directory does not matter.
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			c, err := state.client()
			if err != nil {
				return err
			}
			res, err := c.ImportTools(cmd.Context(), state.sessionArg, path)
			if err != nil {
				return err
			}

			green := color.New(color.FgGreen)
			for _, name := range res.Imported {
				green.Fprint(cmd.OutOrStdout(), "✓ ")
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			yellow := color.New(color.FgYellow)
			for _, s := range res.Skipped {
				yellow.Fprint(cmd.OutOrStdout(), "skipped ")
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", s.Name, s.Reason)
			}
			return nil
		},
	}
}

func newToolsListCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := state.client()
			if err != nil {
				return err
			}
			res, err := c.ListTools(cmd.Context(), state.sessionArg)
			if err != nil {
				return err
			}
			if len(res.Tools) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no tools registered")
				return nil
			}
			for _, tool := range res.Tools {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s", tool.Name, tool.Description)
				if tool.NeedsApproval {
					color.New(color.FgYellow).Fprint(cmd.OutOrStdout(), "  [gated]")
				}
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}
}
