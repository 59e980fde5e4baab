// ABOUTME: Stateless client: locate a daemon via the Registry, exchange one request/response
// ABOUTME: Retries transport-level connect failures only, never application failures

package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/2389/coven-daemon/internal/protocol"
	"github.com/2389/coven-daemon/internal/registry"
)

// ErrUnavailable indicates no daemon could be reached for the target session.
var ErrUnavailable = errors.New("session unavailable")

// Connect retry schedule: transport failures only.
const (
	connectAttempts = 3
	connectBackoff  = 50 * time.Millisecond
)

// RemoteError is an application-level failure reported by the daemon. It is
// never retried.
type RemoteError struct {
	Action  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

// Client locates daemons through a sessions directory and talks the
// newline-delimited JSON protocol.
type Client struct {
	registry *registry.Registry
}

// New creates a client over the given sessions directory.
func New(sessionsDir string) (*Client, error) {
	reg, err := registry.New(sessionsDir, nil)
	if err != nil {
		return nil, err
	}
	return &Client{registry: reg}, nil
}

// Registry exposes the underlying registry for discovery operations (list,
// wait-for-ready) that do not involve a socket round trip.
func (c *Client) Registry() *registry.Registry {
	return c.registry
}

// Call resolves idOrName (empty means the default session), connects, and
// performs one request/response exchange.
func (c *Client) Call(ctx context.Context, idOrName, action string, payload any) (json.RawMessage, error) {
	info, err := c.registry.Get(idOrName)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrUnavailable, idOrName)
		}
		return nil, err
	}

	conn, err := dialWithRetry(ctx, info.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to %s: %w", ErrUnavailable, info.ID, err)
	}
	defer conn.Close()

	req := protocol.Request{Action: action}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding payload: %w", err)
		}
		req.Payload = raw
	}

	if err := json.NewEncoder(conn).Encode(&req); err != nil {
		return nil, fmt.Errorf("%w: writing request: %w", ErrUnavailable, err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrUnavailable, err)
	}

	var resp protocol.Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if !resp.Success {
		return nil, &RemoteError{Action: action, Message: resp.Error}
	}
	return resp.Data, nil
}

// dialWithRetry connects to the socket with bounded exponential backoff.
// Only connection failures are retried.
func dialWithRetry(ctx context.Context, socketPath string) (net.Conn, error) {
	var lastErr error
	backoff := connectBackoff
	for attempt := 0; attempt < connectAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		var d net.Dialer
		conn, err := d.DialContext(ctx, "unix", socketPath)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
