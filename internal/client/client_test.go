// ABOUTME: Client tests against a live daemon and against absent/dead sessions
// ABOUTME: Verifies retry behavior, remote error surfacing, and default resolution

package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-daemon/internal/daemon"
	"github.com/2389/coven-daemon/internal/llm"
	"github.com/2389/coven-daemon/internal/protocol"
	"github.com/2389/coven-daemon/internal/registry"
	"github.com/2389/coven-daemon/internal/session"
)

// liveDaemon starts a daemon in a fresh sessions dir and returns a client
// pointed at the same dir.
func liveDaemon(t *testing.T, name string) *Client {
	t.Helper()

	dir := t.TempDir()
	reg, err := registry.New(dir, nil)
	require.NoError(t, err)

	sess := session.New(llm.NewMock(llm.MockTurn{Text: "scripted"}), session.Options{ID: "cli-test", Model: "m"})
	d := daemon.New(sess, daemon.Options{Name: name, Registry: reg})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})

	_, err = reg.WaitForReady("cli-test", 5*time.Second)
	require.NoError(t, err)

	c, err := New(dir)
	require.NoError(t, err)
	return c
}

func TestClient_CallByIDNameAndDefault(t *testing.T) {
	c := liveDaemon(t, "alice")
	ctx := context.Background()

	byID, err := c.Ping(ctx, "cli-test")
	require.NoError(t, err)
	byName, err := c.Ping(ctx, "alice")
	require.NoError(t, err)
	byDefault, err := c.Ping(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, byID, byName)
	assert.Equal(t, byID, byDefault)
}

func TestClient_UnknownSessionIsUnavailable(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = c.Ping(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_DeadSocketIsUnavailable(t *testing.T) {
	dir := t.TempDir()
	reg, err := registry.New(dir, nil)
	require.NoError(t, err)

	// Registered but nothing listening.
	socket, pidFile, readyFile := registry.Paths(dir, "dead")
	require.NoError(t, reg.Register(&registry.SessionInfo{
		ID:         "dead",
		Model:      "m",
		SocketPath: socket,
		PIDFile:    pidFile,
		ReadyFile:  readyFile,
		PID:        1,
		CreatedAt:  time.Now(),
	}))

	c, err := New(dir)
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Ping(context.Background(), "dead")
	assert.ErrorIs(t, err, ErrUnavailable)
	// Three attempts with 50ms+100ms backoff in between.
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestClient_RemoteErrorIsNotRetried(t *testing.T) {
	c := liveDaemon(t, "")

	_, err := c.Send(context.Background(), "", "", false)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, protocol.ActionSend, remote.Action)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestClient_SendRoundTrip(t *testing.T) {
	c := liveDaemon(t, "")
	res, err := c.Send(context.Background(), "", "hello", false)
	require.NoError(t, err)
	assert.Equal(t, "scripted", res.Content)
}

func TestClient_ContextCancellationStopsRetry(t *testing.T) {
	dir := t.TempDir()
	reg, err := registry.New(dir, nil)
	require.NoError(t, err)
	socket, pidFile, readyFile := registry.Paths(dir, "slow")
	require.NoError(t, reg.Register(&registry.SessionInfo{
		ID:         "slow",
		Model:      "m",
		SocketPath: socket,
		PIDFile:    pidFile,
		ReadyFile:  readyFile,
		PID:        1,
		CreatedAt:  time.Now(),
	}))

	c, err := New(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = c.Ping(ctx, "slow")
	require.Error(t, err)
}
