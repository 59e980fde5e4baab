// ABOUTME: Configuration loading and parsing for coven daemons and the CLI
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete coven-daemon configuration.
type Config struct {
	Sessions SessionsConfig `yaml:"sessions"`
	Model    ModelConfig    `yaml:"model"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SessionsConfig holds the shared directories and lifecycle timings.
type SessionsConfig struct {
	// Dir holds sockets, pid/ready files, and registry.json.
	Dir string `yaml:"dir"`
	// DataDir holds workflow stores.
	DataDir string `yaml:"data_dir"`

	IdleTimeout time.Duration `yaml:"-"`
	MaxLifetime time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling.
	IdleTimeoutRaw string `yaml:"idle_timeout"`
	MaxLifetimeRaw string `yaml:"max_lifetime"`
}

// ModelConfig holds defaults for new sessions.
type ModelConfig struct {
	Name      string `yaml:"name"`
	Backend   string `yaml:"backend"`
	System    string `yaml:"system"`
	MaxTokens int    `yaml:"max_tokens"`
	MaxSteps  int    `yaml:"max_steps"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a config with the standard XDG-derived paths and timings.
func Default() *Config {
	return &Config{
		Sessions: SessionsConfig{
			Dir:         filepath.Join(dataRoot(), "sessions"),
			DataDir:     dataRoot(),
			IdleTimeout: 5 * time.Minute,
		},
		Model: ModelConfig{
			Backend:  "mock",
			MaxSteps: 8,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file, expands ${VAR} environment references,
// parses duration strings, and validates the result. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// DefaultPath returns the config file location.
// Priority: COVEN_CONFIG env var > XDG_CONFIG_HOME/coven/daemon.yaml > ~/.config/coven/daemon.yaml
func DefaultPath() string {
	if envPath := os.Getenv("COVEN_CONFIG"); envPath != "" {
		return envPath
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "daemon.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "coven", "daemon.yaml")
}

// dataRoot returns the data directory.
// Priority: XDG_DATA_HOME/coven > ~/.local/share/coven
func dataRoot() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "coven")
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment values.
// Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that required fields are present and sane.
func (c *Config) Validate() error {
	if c.Sessions.Dir == "" {
		return fmt.Errorf("sessions.dir is required")
	}
	if c.Sessions.DataDir == "" {
		return fmt.Errorf("sessions.data_dir is required")
	}
	if c.Sessions.IdleTimeout < 0 {
		return fmt.Errorf("sessions.idle_timeout must not be negative")
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// parseDurations converts raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Sessions.IdleTimeoutRaw != "" {
		cfg.Sessions.IdleTimeout, err = time.ParseDuration(cfg.Sessions.IdleTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing idle_timeout %q: %w", cfg.Sessions.IdleTimeoutRaw, err)
		}
	}

	if cfg.Sessions.MaxLifetimeRaw != "" {
		cfg.Sessions.MaxLifetime, err = time.ParseDuration(cfg.Sessions.MaxLifetimeRaw)
		if err != nil {
			return fmt.Errorf("parsing max_lifetime %q: %w", cfg.Sessions.MaxLifetimeRaw, err)
		}
	}

	return nil
}
