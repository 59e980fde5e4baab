// ABOUTME: Typed wrappers over Client.Call, one per protocol action
// ABOUTME: Callers get concrete result structs instead of raw JSON

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2389/coven-daemon/internal/protocol"
	"github.com/2389/coven-daemon/internal/session"
)

// Ping returns the daemon's identity.
func (c *Client) Ping(ctx context.Context, idOrName string) (*protocol.PingResult, error) {
	return call[protocol.PingResult](c, ctx, idOrName, protocol.ActionPing, nil)
}

// Send delivers one user message and returns the assistant's reply.
func (c *Client) Send(ctx context.Context, idOrName, content string, autoApprove bool) (*session.SendResult, error) {
	return call[session.SendResult](c, ctx, idOrName, protocol.ActionSend, protocol.SendPayload{
		Content:     content,
		AutoApprove: autoApprove,
	})
}

// AddTool registers a tool on the daemon.
func (c *Client) AddTool(ctx context.Context, idOrName string, p protocol.ToolAddPayload) error {
	_, err := c.Call(ctx, idOrName, protocol.ActionToolAdd, p)
	return err
}

// MockTool sets a fixed response for a registered tool.
func (c *Client) MockTool(ctx context.Context, idOrName, name string, response any) error {
	_, err := c.Call(ctx, idOrName, protocol.ActionToolMock, protocol.ToolMockPayload{
		Name:     name,
		Response: response,
	})
	return err
}

// ListTools returns the daemon's registered tool descriptors.
func (c *Client) ListTools(ctx context.Context, idOrName string) (*protocol.ToolListResult, error) {
	return call[protocol.ToolListResult](c, ctx, idOrName, protocol.ActionToolList, nil)
}

// ImportTools loads a TOML tool manifest on the daemon.
func (c *Client) ImportTools(ctx context.Context, idOrName, path string) (*protocol.ToolImportResult, error) {
	return call[protocol.ToolImportResult](c, ctx, idOrName, protocol.ActionToolImport, protocol.ToolImportPayload{Path: path})
}

// History returns the transcript.
func (c *Client) History(ctx context.Context, idOrName string) (*protocol.HistoryResult, error) {
	return call[protocol.HistoryResult](c, ctx, idOrName, protocol.ActionHistory, nil)
}

// Stats returns session counters.
func (c *Client) Stats(ctx context.Context, idOrName string) (*session.Stats, error) {
	return call[session.Stats](c, ctx, idOrName, protocol.ActionStats, nil)
}

// Export returns the portable transcript document.
func (c *Client) Export(ctx context.Context, idOrName string) (*session.Export, error) {
	return call[session.Export](c, ctx, idOrName, protocol.ActionExport, nil)
}

// Clear drops history, usage, and pending approvals.
func (c *Client) Clear(ctx context.Context, idOrName string) error {
	_, err := c.Call(ctx, idOrName, protocol.ActionClear, nil)
	return err
}

// Pending lists unresolved approvals.
func (c *Client) Pending(ctx context.Context, idOrName string) (*protocol.PendingResult, error) {
	return call[protocol.PendingResult](c, ctx, idOrName, protocol.ActionPending, nil)
}

// Approve executes a gated tool call.
func (c *Client) Approve(ctx context.Context, idOrName, id string) (*protocol.ApproveResult, error) {
	return call[protocol.ApproveResult](c, ctx, idOrName, protocol.ActionApprove, protocol.ApprovePayload{ID: id})
}

// Deny rejects a gated tool call.
func (c *Client) Deny(ctx context.Context, idOrName, id, reason string) error {
	_, err := c.Call(ctx, idOrName, protocol.ActionDeny, protocol.DenyPayload{ID: id, Reason: reason})
	return err
}

// Shutdown asks the daemon to stop gracefully.
func (c *Client) Shutdown(ctx context.Context, idOrName string) error {
	_, err := c.Call(ctx, idOrName, protocol.ActionShutdown, nil)
	return err
}

// ChannelPost appends to the daemon's workflow channel.
func (c *Client) ChannelPost(ctx context.Context, idOrName, content string) (json.RawMessage, error) {
	return c.Call(ctx, idOrName, protocol.ActionChannelPost, protocol.ChannelPostPayload{Content: content})
}

// ChannelRead returns channel entries, optionally after since / last limit.
func (c *Client) ChannelRead(ctx context.Context, idOrName string, since *time.Time, limit int) (*protocol.ChannelReadResult, error) {
	return call[protocol.ChannelReadResult](c, ctx, idOrName, protocol.ActionChannelRead, protocol.ChannelReadPayload{
		Since: since,
		Limit: limit,
	})
}

// Inbox returns the agent's unread mentions.
func (c *Client) Inbox(ctx context.Context, idOrName string) (*protocol.InboxResult, error) {
	return call[protocol.InboxResult](c, ctx, idOrName, protocol.ActionInbox, nil)
}

// AckInbox advances the agent's read cursor.
func (c *Client) AckInbox(ctx context.Context, idOrName string, until time.Time) error {
	_, err := c.Call(ctx, idOrName, protocol.ActionInboxAck, protocol.InboxAckPayload{Until: until})
	return err
}

// ReadDoc returns a shared document.
func (c *Client) ReadDoc(ctx context.Context, idOrName, file string) (*protocol.DocResult, error) {
	return call[protocol.DocResult](c, ctx, idOrName, protocol.ActionDocRead, protocol.DocPayload{File: file})
}

// WriteDoc replaces a shared document.
func (c *Client) WriteDoc(ctx context.Context, idOrName, file, content string) error {
	_, err := c.Call(ctx, idOrName, protocol.ActionDocWrite, protocol.DocPayload{File: file, Content: content})
	return err
}

// AppendDoc appends to a shared document.
func (c *Client) AppendDoc(ctx context.Context, idOrName, file, content string) error {
	_, err := c.Call(ctx, idOrName, protocol.ActionDocAppend, protocol.DocPayload{File: file, Content: content})
	return err
}

// OutlineDoc returns the heading outline of a shared document.
func (c *Client) OutlineDoc(ctx context.Context, idOrName, file string) (*protocol.OutlineResult, error) {
	return call[protocol.OutlineResult](c, ctx, idOrName, protocol.ActionDocOutline, protocol.DocPayload{File: file})
}

// call performs one exchange and decodes the response data into T.
func call[T any](c *Client, ctx context.Context, idOrName, action string, payload any) (*T, error) {
	data, err := c.Call(ctx, idOrName, action, payload)
	if err != nil {
		return nil, err
	}
	var out T
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decoding %s response: %w", action, err)
		}
	}
	return &out, nil
}
