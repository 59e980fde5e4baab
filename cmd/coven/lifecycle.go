// ABOUTME: Lifecycle subcommands: spawn, ps, stop
// ABOUTME: spawn launches a detached covend and waits for its ready marker

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/2389/coven-daemon/internal/target"
)

// spawnReadyTimeout is how long spawn waits for the daemon's ready marker.
const spawnReadyTimeout = 10 * time.Second

func newSpawnCmd(state *cliState) *cobra.Command {
	var (
		model       string
		backend     string
		system      string
		idleTimeout time.Duration
		maxLifetime time.Duration
		solo        bool
	)

	cmd := &cobra.Command{
		Use:   "spawn [agent[@workflow[:tag]]]",
		Short: "Start a detached agent daemon",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var tgt target.Target
			if len(args) == 1 {
				var err error
				tgt, err = target.Parse(args[0])
				if err != nil {
					return err
				}
			}

			covend, err := findCovend()
			if err != nil {
				return err
			}

			id := uuid.New().String()
			daemonArgs := []string{
				"--config", state.configPath,
				"--id", id,
				"--sessions-dir", state.cfg.Sessions.Dir,
				"--data-dir", state.cfg.Sessions.DataDir,
			}
			if len(args) == 1 {
				daemonArgs = append(daemonArgs, "--target", args[0])
			}
			if model != "" {
				daemonArgs = append(daemonArgs, "--model", model)
			}
			if backend != "" {
				daemonArgs = append(daemonArgs, "--backend", backend)
			}
			if system != "" {
				daemonArgs = append(daemonArgs, "--system", system)
			}
			if cmd.Flags().Changed("idle-timeout") {
				daemonArgs = append(daemonArgs, "--idle-timeout", idleTimeout.String())
			}
			if cmd.Flags().Changed("max-lifetime") {
				daemonArgs = append(daemonArgs, "--max-lifetime", maxLifetime.String())
			}
			if solo {
				daemonArgs = append(daemonArgs, "--solo")
			}

			if err := os.MkdirAll(state.cfg.Sessions.Dir, 0o755); err != nil {
				return fmt.Errorf("creating sessions directory: %w", err)
			}
			logPath := filepath.Join(state.cfg.Sessions.Dir, id+".log")
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("opening daemon log: %w", err)
			}
			defer logFile.Close()

			child := exec.Command(covend, daemonArgs...)
			child.Stdout = logFile
			child.Stderr = logFile
			child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
			if err := child.Start(); err != nil {
				return fmt.Errorf("starting covend: %w", err)
			}
			// The daemon outlives us; do not wait on it.
			_ = child.Process.Release()

			c, err := state.client()
			if err != nil {
				return err
			}
			info, err := c.Registry().WaitForReady(id, spawnReadyTimeout)
			if err != nil {
				return fmt.Errorf("daemon did not become ready (log: %s): %w", logPath, err)
			}

			green := color.New(color.FgGreen)
			green.Fprint(cmd.OutOrStdout(), "✓ ")
			display := info.ID
			if tgt.Agent != "" {
				display = tgt.String()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "spawned %s\n", display)
			fmt.Fprintf(cmd.OutOrStdout(), "  id:     %s\n", info.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "  socket: %s\n", info.SocketPath)
			fmt.Fprintf(cmd.OutOrStdout(), "  log:    %s\n", logPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "Model identifier")
	cmd.Flags().StringVar(&backend, "backend", "", "Backend: mock, or a command line to exec")
	cmd.Flags().StringVar(&system, "system", "", "System prompt")
	cmd.Flags().DurationVar(&idleTimeout, "idle-timeout", 0, "Self-terminate after this long idle, 0 disables")
	cmd.Flags().DurationVar(&maxLifetime, "max-lifetime", 0, "Hard age cap even under load, 0 disables")
	cmd.Flags().BoolVar(&solo, "solo", false, "Do not join a workflow instance")
	return cmd
}

// findCovend locates the daemon binary: next to this executable first, then
// on PATH.
func findCovend() (string, error) {
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), "covend")
		if st, err := os.Stat(sibling); err == nil && !st.IsDir() {
			return sibling, nil
		}
	}
	path, err := exec.LookPath("covend")
	if err != nil {
		return "", fmt.Errorf("covend binary not found: %w", err)
	}
	return path, nil
}

func newPsCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "List registered agent daemons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := state.client()
			if err != nil {
				return err
			}
			infos, err := c.Registry().List()
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no sessions")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tMODEL\tBACKEND\tPID\tSTATUS\tUPTIME")
			for _, info := range infos {
				running, err := c.Registry().IsRunning(info.ID)
				if err != nil {
					return err
				}
				status := color.GreenString("running")
				if !running {
					status = color.RedString("dead")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					shortID(info.ID),
					info.Name,
					info.Model,
					info.Backend,
					info.PID,
					status,
					time.Since(info.CreatedAt).Round(time.Second))
			}
			return w.Flush()
		},
	}
}

func newStopCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Gracefully stop a daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := state.client()
			if err != nil {
				return err
			}
			if err := c.Shutdown(cmd.Context(), state.sessionArg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "stopping")
			return nil
		},
	}
}

// shortID truncates UUIDs for table display; explicit short ids pass through.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
