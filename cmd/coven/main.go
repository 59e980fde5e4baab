// ABOUTME: Entry point for the coven CLI
// ABOUTME: Spawns daemons and talks to them over their unix sockets

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/2389/coven-daemon/internal/client"
	"github.com/2389/coven-daemon/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

// cliState carries the loaded config and lazily-built client shared by every
// subcommand.
type cliState struct {
	configPath string
	sessionArg string
	cfg        *config.Config
}

func (s *cliState) load() error {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return err
	}
	s.cfg = cfg
	return nil
}

func (s *cliState) client() (*client.Client, error) {
	return client.New(s.cfg.Sessions.Dir)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	state := &cliState{}

	cmd := &cobra.Command{
		Use:          "coven",
		Short:        "coven — manage and talk to agent daemons",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.load()
		},
	}

	cmd.PersistentFlags().StringVar(&state.configPath, "config", config.DefaultPath(), "Config file path")
	cmd.PersistentFlags().StringVarP(&state.sessionArg, "session", "s", "", "Session id or agent name (default: the default session)")

	cmd.AddCommand(newSpawnCmd(state))
	cmd.AddCommand(newPsCmd(state))
	cmd.AddCommand(newStopCmd(state))

	cmd.AddCommand(newSendCmd(state))
	cmd.AddCommand(newPendingCmd(state))
	cmd.AddCommand(newApproveCmd(state))
	cmd.AddCommand(newDenyCmd(state))
	cmd.AddCommand(newHistoryCmd(state))
	cmd.AddCommand(newStatsCmd(state))
	cmd.AddCommand(newExportCmd(state))
	cmd.AddCommand(newClearCmd(state))

	cmd.AddCommand(newChannelCmd(state))
	cmd.AddCommand(newInboxCmd(state))
	cmd.AddCommand(newDocCmd(state))
	cmd.AddCommand(newToolsCmd(state))

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.Version = version
	return cmd
}
