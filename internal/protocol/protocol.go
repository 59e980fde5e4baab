// ABOUTME: Newline-delimited JSON request/response envelope and action payloads
// ABOUTME: Shared vocabulary between the daemon's dispatcher and the client

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2389/coven-daemon/internal/session"
	"github.com/2389/coven-daemon/internal/workflow"
)

// ErrMissingField is returned when a request payload omits a required field.
var ErrMissingField = errors.New("missing required field")

// Session actions.
const (
	ActionPing       = "ping"
	ActionSend       = "send"
	ActionToolAdd    = "tool_add"
	ActionToolMock   = "tool_mock"
	ActionToolList   = "tool_list"
	ActionToolImport = "tool_import"
	ActionHistory    = "history"
	ActionStats      = "stats"
	ActionExport     = "export"
	ActionClear      = "clear"
	ActionPending    = "pending"
	ActionApprove    = "approve"
	ActionDeny       = "deny"
	ActionShutdown   = "shutdown"
)

// Workflow actions, available when the daemon joined a workflow instance.
const (
	ActionChannelPost = "channel_post"
	ActionChannelRead = "channel_read"
	ActionInbox       = "inbox"
	ActionInboxPeek   = "inbox_peek"
	ActionInboxAck    = "inbox_ack"
	ActionDocRead     = "doc_read"
	ActionDocWrite    = "doc_write"
	ActionDocAppend   = "doc_append"
	ActionDocOutline  = "doc_outline"
)

// Request is one line on the wire, client to daemon.
type Request struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is one line on the wire, daemon to client.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// OK builds a success response, encoding data as JSON.
func OK(data any) Response {
	if data == nil {
		return Response{Success: true}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Fail(fmt.Errorf("encoding response: %w", err))
	}
	return Response{Success: true, Data: raw}
}

// Fail builds an error response from err.
func Fail(err error) Response {
	return Response{Success: false, Error: err.Error()}
}

// PingResult identifies a daemon.
type PingResult struct {
	ID    string `json:"id"`
	Model string `json:"model"`
	Name  string `json:"name,omitempty"`
}

// SendPayload is the payload for the send action.
type SendPayload struct {
	Content     string `json:"content"`
	AutoApprove bool   `json:"autoApprove,omitempty"`
}

// ToolAddPayload registers a tool over the wire. NeedsApproval gates the tool
// unconditionally; argument predicates only exist for in-process tools.
type ToolAddPayload struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	NeedsApproval bool           `json:"needsApproval,omitempty"`
	MockResponse  any            `json:"mockResponse,omitempty"`
}

// ToolMockPayload sets a fixed response for a registered tool.
type ToolMockPayload struct {
	Name     string `json:"name"`
	Response any    `json:"response"`
}

// ToolImportPayload names a TOML manifest to load tools from.
type ToolImportPayload struct {
	Path string `json:"path"`
}

// SkippedTool reports one manifest entry that failed validation.
type SkippedTool struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ToolImportResult reports what a manifest import did.
type ToolImportResult struct {
	Imported []string      `json:"imported"`
	Skipped  []SkippedTool `json:"skipped"`
}

// ApprovePayload resolves a pending approval.
type ApprovePayload struct {
	ID string `json:"id"`
}

// ApproveResult carries the executed tool's result back.
type ApproveResult struct {
	ID     string `json:"id"`
	Result any    `json:"result"`
}

// DenyPayload denies a pending approval with an optional reason.
type DenyPayload struct {
	ID     string `json:"id"`
	Reason string `json:"reason,omitempty"`
}

// ChannelPostPayload appends to the workflow channel.
type ChannelPostPayload struct {
	Content string `json:"content"`
}

// ChannelReadPayload narrows a channel read. Since is exclusive.
type ChannelReadPayload struct {
	Since *time.Time `json:"since,omitempty"`
	Limit int        `json:"limit,omitempty"`
}

// InboxAckPayload advances the agent's read cursor.
type InboxAckPayload struct {
	Until time.Time `json:"until"`
}

// DocPayload addresses a document; empty File means the entry point document.
type DocPayload struct {
	File    string `json:"file,omitempty"`
	Content string `json:"content,omitempty"`
}

// DocResult returns document content.
type DocResult struct {
	File    string `json:"file"`
	Content string `json:"content"`
}

// HistoryResult wraps the transcript.
type HistoryResult struct {
	Messages []session.Message `json:"messages"`
}

// PendingResult wraps the pending approvals.
type PendingResult struct {
	Approvals []session.PendingApproval `json:"approvals"`
}

// ToolListResult wraps registered tool descriptors.
type ToolListResult struct {
	Tools []session.ToolState `json:"tools"`
}

// ChannelReadResult wraps channel entries.
type ChannelReadResult struct {
	Entries []*workflow.ChannelEntry `json:"entries"`
}

// InboxResult wraps inbox messages.
type InboxResult struct {
	Messages []workflow.InboxMessage `json:"messages"`
}

// OutlineResult wraps a document outline.
type OutlineResult struct {
	File     string             `json:"file"`
	Headings []workflow.Heading `json:"headings"`
}
