// ABOUTME: End-to-end daemon tests over real unix sockets
// ABOUTME: Covers the request protocol, approval flow, idle shutdown, and self-cleanup

package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-daemon/internal/client"
	"github.com/2389/coven-daemon/internal/llm"
	"github.com/2389/coven-daemon/internal/protocol"
	"github.com/2389/coven-daemon/internal/registry"
	"github.com/2389/coven-daemon/internal/session"
	"github.com/2389/coven-daemon/internal/workflow"
)

type testDaemon struct {
	daemon *Daemon
	client *client.Client
	dir    string
	done   chan struct{} // closed when Run returns
	runErr error
	cancel context.CancelFunc
}

// startDaemon runs a daemon with the given session and options and blocks
// until it is ready to serve.
func startDaemon(t *testing.T, sess *session.Session, opts Options) *testDaemon {
	t.Helper()

	dir := t.TempDir()
	reg, err := registry.New(dir, nil)
	require.NoError(t, err)
	opts.Registry = reg

	d := New(sess, opts)
	ctx, cancel := context.WithCancel(context.Background())
	td := &testDaemon{daemon: d, dir: dir, done: make(chan struct{}), cancel: cancel}
	go func() {
		td.runErr = d.Run(ctx)
		close(td.done)
	}()

	_, err = reg.WaitForReady(sess.ID(), 5*time.Second)
	require.NoError(t, err)

	td.client, err = client.New(dir)
	require.NoError(t, err)

	t.Cleanup(func() {
		cancel()
		select {
		case <-td.done:
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})
	return td
}

func TestDaemon_PingAndEndToEndSend(t *testing.T) {
	mock := llm.NewMock(
		llm.MockTurn{Text: "hello", Usage: llm.Usage{Input: 4, Output: 2}},
		llm.MockTurn{Text: "hello again", Usage: llm.Usage{Input: 6, Output: 3}},
	)
	sess := session.New(mock, session.Options{ID: "e2e", Model: "m", System: "s"})
	td := startDaemon(t, sess, Options{Name: "alice"})

	ctx := context.Background()
	ping, err := td.client.Ping(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "e2e", ping.ID)
	assert.Equal(t, "m", ping.Model)
	assert.Equal(t, "alice", ping.Name)

	res, err := td.client.Send(ctx, "", "hi", false)
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Content)
	assert.Empty(t, res.ToolCalls)
	assert.Empty(t, res.PendingApprovals)
	assert.Equal(t, session.Usage{Input: 4, Output: 2, Total: 6}, res.Usage)

	hist, err := td.client.History(ctx, "")
	require.NoError(t, err)
	assert.Len(t, hist.Messages, 2)

	_, err = td.client.Send(ctx, "", "more", false)
	require.NoError(t, err)
	hist, err = td.client.History(ctx, "")
	require.NoError(t, err)
	assert.Len(t, hist.Messages, 4)

	stats, err := td.client.Stats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.MessageCount)
	assert.Equal(t, session.Usage{Input: 10, Output: 5, Total: 15}, stats.Usage)
}

func TestDaemon_ApprovalFlowOverWire(t *testing.T) {
	mock := llm.NewMock(llm.MockTurn{
		Text:      "asked to deploy",
		ToolCalls: []llm.ToolCall{{ID: "c1", Name: "deploy", Arguments: map[string]any{"env": "prod"}}},
	})
	sess := session.New(mock, session.Options{ID: "appr", Model: "m"})
	require.NoError(t, sess.AddTool(session.ToolDef{
		Name:          "deploy",
		Description:   "deploys",
		NeedsApproval: session.AlwaysApprove,
	}))
	require.NoError(t, sess.SetMockResponse("deploy", "deployed"))
	td := startDaemon(t, sess, Options{})

	ctx := context.Background()
	res, err := td.client.Send(ctx, "", "ship it", false)
	require.NoError(t, err)
	require.Len(t, res.PendingApprovals, 1)
	id := res.PendingApprovals[0].ID

	pending, err := td.client.Pending(ctx, "")
	require.NoError(t, err)
	require.Len(t, pending.Approvals, 1)

	approved, err := td.client.Approve(ctx, "", id)
	require.NoError(t, err)
	assert.Equal(t, "deployed", approved.Result)

	// Second approve fails with a remote error, not a transport error.
	_, err = td.client.Approve(ctx, "", id)
	var remote *client.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "already resolved")

	pending, err = td.client.Pending(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, pending.Approvals)
}

func TestDaemon_ClearResetsState(t *testing.T) {
	sess := session.New(llm.NewMock(), session.Options{ID: "clr", Model: "m"})
	td := startDaemon(t, sess, Options{})

	ctx := context.Background()
	_, err := td.client.Send(ctx, "", "hi", false)
	require.NoError(t, err)
	require.NoError(t, td.client.Clear(ctx, ""))

	stats, err := td.client.Stats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.MessageCount)
	assert.Equal(t, session.Usage{}, stats.Usage)
}

func TestDaemon_MalformedLineKeepsConnectionOpen(t *testing.T) {
	sess := session.New(llm.NewMock(), session.Options{ID: "mal", Model: "m"})
	td := startDaemon(t, sess, Options{})

	conn, err := net.Dial("unix", td.daemon.Info().SocketPath)
	require.NoError(t, err)
	defer conn.Close()

	reader := bufio.NewReader(conn)

	_, err = conn.Write([]byte("this is not json\n"))
	require.NoError(t, err)
	line, err := reader.ReadBytes('\n')
	require.NoError(t, err)
	var resp protocol.Response
	require.NoError(t, json.Unmarshal(line, &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "parsing request")

	// The same connection still serves valid requests.
	_, err = conn.Write([]byte(`{"action":"ping"}` + "\n"))
	require.NoError(t, err)
	line, err = reader.ReadBytes('\n')
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(line, &resp))
	assert.True(t, resp.Success)
}

func TestDaemon_UnknownActionFails(t *testing.T) {
	sess := session.New(llm.NewMock(), session.Options{ID: "unk", Model: "m"})
	td := startDaemon(t, sess, Options{})

	_, err := td.client.Call(context.Background(), "", "frobnicate", nil)
	var remote *client.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "unknown action")
}

func TestDaemon_MissingFieldFails(t *testing.T) {
	sess := session.New(llm.NewMock(), session.Options{ID: "mf", Model: "m"})
	td := startDaemon(t, sess, Options{})

	_, err := td.client.Send(context.Background(), "", "", false)
	var remote *client.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "content")
}

func TestDaemon_IdleShutdownRemovesFiles(t *testing.T) {
	sess := session.New(llm.NewMock(), session.Options{ID: "idle", Model: "m"})
	td := startDaemon(t, sess, Options{IdleTimeout: 200 * time.Millisecond})

	select {
	case <-td.done:
		require.NoError(t, td.runErr)
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not idle out")
	}

	info := td.daemon.Info()
	for _, p := range []string{info.SocketPath, info.PIDFile, info.ReadyFile} {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "%s should be removed", p)
	}
	reg, err := registry.New(td.dir, nil)
	require.NoError(t, err)
	_, err = reg.Get("idle")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestDaemon_SteadyTrafficPreventsIdleShutdown(t *testing.T) {
	sess := session.New(llm.NewMock(), session.Options{ID: "busy", Model: "m"})
	td := startDaemon(t, sess, Options{IdleTimeout: 200 * time.Millisecond})

	ctx := context.Background()
	for i := 0; i < 8; i++ {
		_, err := td.client.Ping(ctx, "")
		require.NoError(t, err, "daemon must stay up under steady traffic")
		time.Sleep(100 * time.Millisecond)
	}

	select {
	case <-td.done:
		t.Fatal("daemon shut down despite steady traffic")
	default:
	}
}

func TestDaemon_ShutdownAction(t *testing.T) {
	sess := session.New(llm.NewMock(), session.Options{ID: "sd", Model: "m"})
	td := startDaemon(t, sess, Options{})

	require.NoError(t, td.client.Shutdown(context.Background(), ""))

	select {
	case <-td.done:
		require.NoError(t, td.runErr)
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not stop after shutdown action")
	}
}

func TestDaemon_MaxLifetimeStopsUnderLoad(t *testing.T) {
	sess := session.New(llm.NewMock(), session.Options{ID: "life", Model: "m"})
	td := startDaemon(t, sess, Options{
		IdleTimeout: 200 * time.Millisecond,
		MaxLifetime: 600 * time.Millisecond,
	})

	// Keep traffic flowing; the lifetime cap must still fire.
	ctx := context.Background()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case <-td.done:
			require.NoError(t, td.runErr)
			return
		case <-deadline:
			t.Fatal("max lifetime did not stop the daemon")
		default:
			td.client.Ping(ctx, "")
			time.Sleep(100 * time.Millisecond)
		}
	}
}

func TestDaemon_ToolImportManifest(t *testing.T) {
	sess := session.New(llm.NewMock(), session.Options{ID: "imp", Model: "m"})
	td := startDaemon(t, sess, Options{})

	manifestPath := filepath.Join(t.TempDir(), "tools.toml")
	manifest := `
[[tool]]
name = "weather"
description = "current weather"
[tool.parameters]
type = "object"

[[tool]]
name = "deploy"
description = "deploys to an environment"
needs_approval = true
mock_response = "deployed"
[tool.parameters]
type = "object"

[[tool]]
description = "missing a name"
[tool.parameters]
type = "object"

[[tool]]
name = "no-params"
description = "missing parameters"
`
	require.NoError(t, os.WriteFile(manifestPath, []byte(manifest), 0o644))

	ctx := context.Background()
	result, err := td.client.ImportTools(ctx, "", manifestPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"weather", "deploy"}, result.Imported)
	require.Len(t, result.Skipped, 2)
	assert.Equal(t, "missing name", result.Skipped[0].Reason)
	assert.Equal(t, "no-params", result.Skipped[1].Name)
	assert.Equal(t, "missing parameters", result.Skipped[1].Reason)

	tools, err := td.client.ListTools(ctx, "")
	require.NoError(t, err)
	require.Len(t, tools.Tools, 2)
	assert.True(t, tools.Tools[1].NeedsApproval)
}

func TestDaemon_WorkflowActions(t *testing.T) {
	dataDir := t.TempDir()
	provider, err := workflow.Open(dataDir, "review", "main", nil)
	require.NoError(t, err)
	require.NoError(t, provider.RegisterAgent("alice"))
	require.NoError(t, provider.RegisterAgent("bob"))

	sess := session.New(llm.NewMock(), session.Options{ID: "wf", Model: "m"})
	td := startDaemon(t, sess, Options{Name: "alice", Provider: provider})

	ctx := context.Background()
	_, err = td.client.ChannelPost(ctx, "", "@bob please look at this, it is urgent")
	require.NoError(t, err)

	entries, err := td.client.ChannelRead(ctx, "", nil, 0)
	require.NoError(t, err)
	require.Len(t, entries.Entries, 1)
	assert.Equal(t, "alice", entries.Entries[0].From)
	assert.Equal(t, []string{"bob"}, entries.Entries[0].Mentions)

	// Documents round-trip through the daemon.
	require.NoError(t, td.client.WriteDoc(ctx, "", "", "# Plan\n\n## Phase 1\n"))
	doc, err := td.client.ReadDoc(ctx, "", "")
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "# Plan")

	outline, err := td.client.OutlineDoc(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, outline.Headings, 2)
	assert.Equal(t, "Plan", outline.Headings[0].Text)
}

func TestDaemon_WorkflowActionsWithoutProvider(t *testing.T) {
	sess := session.New(llm.NewMock(), session.Options{ID: "nowf", Model: "m"})
	td := startDaemon(t, sess, Options{})

	_, err := td.client.Inbox(context.Background(), "")
	var remote *client.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "no workflow joined")
}
