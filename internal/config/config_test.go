// ABOUTME: Tests for configuration loading
// ABOUTME: Verifies env expansion, duration parsing, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "daemon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
sessions:
  dir: /tmp/coven/sessions
  data_dir: /tmp/coven
  idle_timeout: 2m
  max_lifetime: 1h
model:
  name: test-model
  backend: mock
  system: be useful
  max_steps: 4
logging:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/coven/sessions", cfg.Sessions.Dir)
	assert.Equal(t, 2*time.Minute, cfg.Sessions.IdleTimeout)
	assert.Equal(t, time.Hour, cfg.Sessions.MaxLifetime)
	assert.Equal(t, "test-model", cfg.Model.Name)
	assert.Equal(t, 4, cfg.Model.MaxSteps)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Sessions.IdleTimeout)
	assert.Equal(t, "mock", cfg.Model.Backend)
	assert.NotEmpty(t, cfg.Sessions.Dir)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("COVEN_TEST_DIR", "/custom/sessions")
	path := writeConfig(t, `
sessions:
  dir: ${COVEN_TEST_DIR}
  data_dir: /tmp/coven
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/custom/sessions", cfg.Sessions.Dir)
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
sessions:
  dir: /tmp/s
  data_dir: /tmp/d
  idle_timeout: soon
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "idle_timeout")
}

func TestValidate_BadFormat(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())
}
