// ABOUTME: Entry point for the covend agent daemon
// ABOUTME: Binds one session to a unix socket and serves until idle or stopped

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/2389/coven-daemon/internal/config"
	"github.com/2389/coven-daemon/internal/daemon"
	"github.com/2389/coven-daemon/internal/llm"
	"github.com/2389/coven-daemon/internal/registry"
	"github.com/2389/coven-daemon/internal/session"
	"github.com/2389/coven-daemon/internal/target"
	"github.com/2389/coven-daemon/internal/workflow"
)

// Version is set by goreleaser at build time.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath  string
		targetSpec  string
		sessionID   string
		model       string
		backend     string
		system      string
		sessionsDir string
		dataDir     string
		idleTimeout time.Duration
		maxLifetime time.Duration
		solo        bool
	)

	cmd := &cobra.Command{
		Use:          "covend",
		Short:        "covend — per-agent daemon serving one session over a unix socket",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			// Flags override config.
			if sessionsDir != "" {
				cfg.Sessions.Dir = sessionsDir
			}
			if dataDir != "" {
				cfg.Sessions.DataDir = dataDir
			}
			if model != "" {
				cfg.Model.Name = model
			}
			if backend != "" {
				cfg.Model.Backend = backend
			}
			if system != "" {
				cfg.Model.System = system
			}
			if cmd.Flags().Changed("idle-timeout") {
				cfg.Sessions.IdleTimeout = idleTimeout
			}
			if cmd.Flags().Changed("max-lifetime") {
				cfg.Sessions.MaxLifetime = maxLifetime
			}

			logger := setupLogger(cfg.Logging)

			tgt := target.Target{Workflow: target.DefaultWorkflow, Tag: target.DefaultTag}
			if targetSpec != "" {
				tgt, err = target.Parse(targetSpec)
				if err != nil {
					return err
				}
			}

			reg, err := registry.New(cfg.Sessions.Dir, logger)
			if err != nil {
				return err
			}

			completer, err := buildCompleter(cfg.Model.Backend)
			if err != nil {
				return err
			}

			if sessionID == "" {
				sessionID = uuid.New().String()
			}
			sess := session.New(completer, session.Options{
				ID:        sessionID,
				Model:     cfg.Model.Name,
				System:    cfg.Model.System,
				MaxTokens: cfg.Model.MaxTokens,
				MaxSteps:  cfg.Model.MaxSteps,
				Logger:    logger,
			})

			var provider *workflow.Provider
			if !solo {
				provider, err = workflow.Open(cfg.Sessions.DataDir, tgt.Workflow, tgt.Tag, logger)
				if err != nil {
					return err
				}
				agent := tgt.Agent
				if agent == "" {
					agent = sessionID
				}
				if err := provider.RegisterAgent(agent); err != nil {
					provider.Close()
					return err
				}
			}

			d := daemon.New(sess, daemon.Options{
				Name:        tgt.Agent,
				Backend:     cfg.Model.Backend,
				Registry:    reg,
				Provider:    provider,
				IdleTimeout: cfg.Sessions.IdleTimeout,
				MaxLifetime: cfg.Sessions.MaxLifetime,
				Logger:      logger,
			})

			logger.Info("starting covend",
				"version", version,
				"session_id", sessionID,
				"target", tgt.Full(),
				"backend", cfg.Model.Backend)
			return d.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&configPath, "config", config.DefaultPath(), "Config file path")
	cmd.Flags().StringVar(&targetSpec, "target", "", "Agent address, agent[@workflow[:tag]]")
	cmd.Flags().StringVar(&sessionID, "id", "", "Session id (default: random UUID)")
	cmd.Flags().StringVar(&model, "model", "", "Model identifier (overrides config)")
	cmd.Flags().StringVar(&backend, "backend", "", "Backend: mock, or a command line to exec (overrides config)")
	cmd.Flags().StringVar(&system, "system", "", "System prompt (overrides config)")
	cmd.Flags().StringVar(&sessionsDir, "sessions-dir", "", "Directory for sockets and the registry (overrides config)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory for workflow stores (overrides config)")
	cmd.Flags().DurationVar(&idleTimeout, "idle-timeout", 0, "Self-terminate after this long idle, 0 disables (overrides config)")
	cmd.Flags().DurationVar(&maxLifetime, "max-lifetime", 0, "Hard age cap even under load, 0 disables (overrides config)")
	cmd.Flags().BoolVar(&solo, "solo", false, "Do not join a workflow instance")

	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.Version = version
	return cmd
}

// buildCompleter picks the model backend. "mock" is a scripted echo used in
// tests and demos; anything else is treated as a command line to exec per
// completion.
func buildCompleter(backend string) (llm.Completer, error) {
	switch backend {
	case "", "mock":
		return llm.NewMock(), nil
	default:
		parts := strings.Fields(backend)
		if len(parts) == 0 {
			return nil, fmt.Errorf("invalid backend: %q", backend)
		}
		return &llm.CLIBackend{Command: parts[0], Args: parts[1:]}, nil
	}
}
