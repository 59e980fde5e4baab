// ABOUTME: Long-lived agent daemon: socket listener, request dispatch, idle lifecycle
// ABOUTME: Owns one Session, advertises itself in the Registry, cleans up on exit

package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/2389/coven-daemon/internal/protocol"
	"github.com/2389/coven-daemon/internal/registry"
	"github.com/2389/coven-daemon/internal/session"
	"github.com/2389/coven-daemon/internal/workflow"
)

// drainTimeout bounds how long a draining daemon waits for in-flight
// requests before exiting anyway.
const drainTimeout = 10 * time.Second

// drainPollInterval is how often the drain loop re-checks the in-flight count.
const drainPollInterval = 50 * time.Millisecond

// Options configures a daemon.
type Options struct {
	Name    string
	Backend string

	// Registry the daemon advertises itself in.
	Registry *registry.Registry

	// Provider is the workflow instance this agent participates in; nil when
	// the agent works alone.
	Provider *workflow.Provider

	// IdleTimeout shuts the daemon down after this long with no requests and
	// none in flight. Zero disables idle shutdown.
	IdleTimeout time.Duration

	// MaxLifetime hard-caps the daemon's age even under sustained load.
	// Zero means unlimited.
	MaxLifetime time.Duration

	Logger *slog.Logger
}

// Daemon wires a Session to a unix socket and manages its own lifecycle.
// All state lives on this struct and is owned by Run; nothing is global.
type Daemon struct {
	session  *session.Session
	registry *registry.Registry
	provider *workflow.Provider
	opts     Options
	info     *registry.SessionInfo
	logger   *slog.Logger

	listener net.Listener

	mu              sync.Mutex
	conns           map[net.Conn]bool
	pendingRequests int
	lastActivity    time.Time
	idleTimer       *time.Timer

	stopOnce sync.Once
	stopped  chan struct{} // closed when shutdown is initiated
	drain    bool          // whether the initiated shutdown should drain
}

// New creates a daemon around an existing session.
func New(sess *session.Session, opts Options) *Daemon {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		session:  sess,
		registry: opts.Registry,
		provider: opts.Provider,
		opts:     opts,
		logger:   logger.With("component", "daemon", "session_id", sess.ID()),
		conns:    make(map[net.Conn]bool),
		stopped:  make(chan struct{}),
	}
}

// Info returns the registry entry for this daemon. Valid after Run has bound
// the socket.
func (d *Daemon) Info() *registry.SessionInfo {
	return d.info
}

// Run binds the socket, registers the session, writes the ready marker, and
// serves requests until the idle timeout fires, shutdown is requested, or ctx
// is cancelled (signals cancel ctx and skip the drain wait).
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.start(); err != nil {
		return err
	}

	if d.opts.IdleTimeout > 0 {
		d.mu.Lock()
		d.idleTimer = time.AfterFunc(d.opts.IdleTimeout, d.onIdle)
		d.mu.Unlock()
	}

	var lifetime <-chan time.Time
	if d.opts.MaxLifetime > 0 {
		t := time.NewTimer(d.opts.MaxLifetime)
		defer t.Stop()
		lifetime = t.C
	}

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		d.acceptLoop()
	}()

	var drain bool
	select {
	case <-ctx.Done():
		// Signal: immediate cleanup, no drain.
		d.logger.Info("shutdown signal received")
		drain = false
	case <-d.stopped:
		d.mu.Lock()
		drain = d.drain
		d.mu.Unlock()
	case <-lifetime:
		d.logger.Info("max lifetime reached", "max_lifetime", d.opts.MaxLifetime)
		drain = true
	}

	d.terminate(drain)
	<-acceptDone
	return nil
}

// start performs the starting phase: bind socket, write pid file, register,
// write ready marker.
func (d *Daemon) start() error {
	dir := d.registry.Dir()
	socketPath, pidFile, readyFile := registry.Paths(dir, d.session.ID())

	// A previous crash can leave the socket file behind.
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("binding socket: %w", err)
	}
	d.listener = listener

	if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
		listener.Close()
		return fmt.Errorf("writing pid file: %w", err)
	}

	d.info = &registry.SessionInfo{
		ID:          d.session.ID(),
		Name:        d.opts.Name,
		Model:       d.session.Model(),
		Backend:     d.opts.Backend,
		SocketPath:  socketPath,
		PIDFile:     pidFile,
		ReadyFile:   readyFile,
		PID:         os.Getpid(),
		CreatedAt:   time.Now(),
		IdleTimeout: d.opts.IdleTimeout,
	}
	if err := d.registry.Register(d.info); err != nil {
		listener.Close()
		os.Remove(pidFile)
		return fmt.Errorf("registering session: %w", err)
	}

	if err := os.WriteFile(readyFile, []byte("ready\n"), 0o644); err != nil {
		d.cleanupFiles()
		return fmt.Errorf("writing ready marker: %w", err)
	}

	d.mu.Lock()
	d.lastActivity = time.Now()
	d.mu.Unlock()

	d.logger.Info("daemon serving",
		"socket", socketPath,
		"name", d.opts.Name,
		"idle_timeout", d.opts.IdleTimeout)
	return nil
}

// acceptLoop accepts connections until the listener closes.
func (d *Daemon) acceptLoop() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}
		d.mu.Lock()
		d.conns[conn] = true
		d.mu.Unlock()
		go d.serveConn(conn)
	}
}

// serveConn handles one connection, which may carry many requests. A
// malformed line produces a parse-error response without closing the
// connection.
func (d *Daemon) serveConn(conn net.Conn) {
	defer func() {
		conn.Close()
		d.mu.Lock()
		delete(d.conns, conn)
		d.mu.Unlock()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req protocol.Request
		if err := json.Unmarshal(line, &req); err != nil {
			if encErr := encoder.Encode(protocol.Fail(fmt.Errorf("parsing request: %w", err))); encErr != nil {
				return
			}
			continue
		}

		resp := d.dispatch(&req)
		if err := encoder.Encode(resp); err != nil {
			return
		}
	}
}

// dispatch runs one request through the handler table, tracking in-flight
// counts and rearming the idle timer. Handler failures become error
// responses; they never take the daemon down.
func (d *Daemon) dispatch(req *protocol.Request) protocol.Response {
	d.beginRequest()

	if req.Action == protocol.ActionShutdown {
		// Decrement before scheduling so the drain wait does not count the
		// shutdown request itself.
		d.endRequest()
		d.logger.Info("shutdown requested")
		// Give the response a moment to flush before the teardown closes
		// the connection.
		time.AfterFunc(100*time.Millisecond, func() { d.initiateStop(true) })
		return protocol.OK(nil)
	}

	defer d.endRequest()

	data, err := d.handle(req)
	if err != nil {
		d.logger.Warn("request failed", "action", req.Action, "error", err)
		return protocol.Fail(err)
	}
	return protocol.OK(data)
}

func (d *Daemon) beginRequest() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingRequests++
	d.lastActivity = time.Now()
	if d.idleTimer != nil {
		d.idleTimer.Reset(d.opts.IdleTimeout)
	}
}

func (d *Daemon) endRequest() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingRequests--
	d.lastActivity = time.Now()
	if d.idleTimer != nil {
		d.idleTimer.Reset(d.opts.IdleTimeout)
	}
}

// onIdle fires when the idle timer elapses. With requests still in flight it
// rearms instead of shutting down.
func (d *Daemon) onIdle() {
	d.mu.Lock()
	if d.pendingRequests > 0 {
		d.idleTimer.Reset(d.opts.IdleTimeout)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	d.logger.Info("idle timeout reached", "idle_timeout", d.opts.IdleTimeout)
	d.initiateStop(true)
}

// initiateStop signals Run to tear down. Safe to call more than once.
func (d *Daemon) initiateStop(drain bool) {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.drain = drain
		d.mu.Unlock()
		close(d.stopped)
	})
}

// terminate stops accepting, optionally drains in-flight requests, then
// removes every trace of the daemon from disk and the registry.
func (d *Daemon) terminate(drain bool) {
	d.listener.Close()

	if drain {
		deadline := time.Now().Add(drainTimeout)
		for {
			d.mu.Lock()
			pending := d.pendingRequests
			d.mu.Unlock()
			if pending == 0 || time.Now().After(deadline) {
				break
			}
			time.Sleep(drainPollInterval)
		}
	}

	d.mu.Lock()
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	for conn := range d.conns {
		conn.Close()
	}
	d.mu.Unlock()

	d.cleanupFiles()
	if d.provider != nil {
		d.provider.Close()
	}
	d.logger.Info("daemon terminated")
}

// cleanupFiles removes the socket/pid/ready files and the registry entry.
func (d *Daemon) cleanupFiles() {
	if d.info == nil {
		return
	}
	for _, p := range []string{d.info.SocketPath, d.info.PIDFile, d.info.ReadyFile} {
		os.Remove(p)
	}
	if err := d.registry.Unregister(d.info.ID); err != nil {
		d.logger.Warn("unregister failed", "error", err)
	}
}
