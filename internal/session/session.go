// ABOUTME: In-process conversation state machine owned by exactly one daemon
// ABOUTME: Tracks history, token accounting, and approval-gated tool execution

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-daemon/internal/llm"
)

// ErrToolNotFound is returned when a named tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// ErrApprovalNotFound is returned when no pending approval has the given id.
var ErrApprovalNotFound = errors.New("approval not found")

// ErrAlreadyResolved is returned when approving or denying an approval that
// is no longer pending.
var ErrAlreadyResolved = errors.New("approval already resolved")

// noMockResult is returned by tools registered without an execute function.
const noMockResult = "no mock implementation provided"

// approvalSentinel is handed to the model in place of a gated tool's real
// result, so its reasoning can continue without the side effect happening.
const approvalSentinel = "approval required before execution"

// Tool call status values recorded in the transcript.
const (
	ToolStatusCompleted        = "completed"
	ToolStatusFailed           = "failed"
	ToolStatusAwaitingApproval = "awaiting_approval"
)

// Message is one role-tagged turn in the conversation.
type Message struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ToolCallRecord `json:"toolCalls,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// ToolCallRecord is a tool invocation as it appears in the transcript.
type ToolCallRecord struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    any            `json:"result,omitempty"`
	Status    string         `json:"status"`
}

// Usage is the running token account. Counters only move up, except Clear.
type Usage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// Session holds everything one agent process knows about its conversation.
// All methods are safe for concurrent use; the daemon funnels every request
// through here.
type Session struct {
	mu        sync.Mutex
	id        string
	model     string
	system    string
	createdAt time.Time

	completer llm.Completer
	maxTokens int
	maxSteps  int

	messages  []Message
	tools     map[string]*ToolDef
	toolOrder []string
	approvals []*PendingApproval
	usage     Usage

	logger *slog.Logger
}

// Options configures a new session.
type Options struct {
	ID        string
	Model     string
	System    string
	MaxTokens int
	MaxSteps  int
	Logger    *slog.Logger
}

// New creates a session backed by the given completer.
func New(completer llm.Completer, opts Options) *Session {
	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Session{
		id:        opts.ID,
		model:     opts.Model,
		system:    opts.System,
		createdAt: time.Now(),
		completer: completer,
		maxTokens: opts.MaxTokens,
		maxSteps:  opts.MaxSteps,
		tools:     make(map[string]*ToolDef),
		logger:    opts.Logger.With("component", "session", "session_id", opts.ID),
	}
}

// ID returns the immutable session id.
func (s *Session) ID() string { return s.id }

// Model returns the model identifier the session was created with.
func (s *Session) Model() string { return s.model }

// SendOptions adjusts one send call.
type SendOptions struct {
	// AutoApprove executes gated tools immediately instead of parking them
	// as pending approvals.
	AutoApprove bool
}

// SendResult is what a successful send returns to the caller.
type SendResult struct {
	Content          string            `json:"content"`
	ToolCalls        []ToolCallRecord  `json:"toolCalls"`
	PendingApprovals []PendingApproval `json:"pendingApprovals"`
	Usage            Usage             `json:"usage"`
	Latency          time.Duration     `json:"latency"`
}

// Send appends a user message, runs one completion with the registered tools,
// and appends the assistant's reply. Gated tool calls become pending
// approvals instead of executing. On completer failure nothing is appended
// and the failure propagates unchanged.
func (s *Session) Send(ctx context.Context, content string, opts SendOptions) (*SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()

	s.messages = append(s.messages, Message{
		Role:      llm.RoleUser,
		Content:   content,
		Timestamp: start,
	})

	var (
		executed []ToolCallRecord
		created  []PendingApproval
	)

	exec := func(_ context.Context, call llm.ToolCall) (any, error) {
		def, ok := s.tools[call.Name]
		if !ok {
			result := fmt.Sprintf("unknown tool: %s", call.Name)
			executed = append(executed, ToolCallRecord{
				ID: call.ID, Name: call.Name, Arguments: call.Arguments,
				Result: result, Status: ToolStatusFailed,
			})
			return result, nil
		}

		if def.requiresApproval(call.Arguments) && !opts.AutoApprove {
			approval := PendingApproval{
				ID:          uuid.New().String(),
				ToolName:    call.Name,
				ToolCallID:  call.ID,
				Arguments:   call.Arguments,
				RequestedAt: time.Now(),
				Status:      ApprovalPending,
			}
			s.approvals = append(s.approvals, &approval)
			created = append(created, approval)
			executed = append(executed, ToolCallRecord{
				ID: call.ID, Name: call.Name, Arguments: call.Arguments,
				Result: approvalSentinel, Status: ToolStatusAwaitingApproval,
			})
			s.logger.Info("tool call awaiting approval",
				"tool", call.Name, "approval_id", approval.ID)
			return approvalSentinel, nil
		}

		result, err := def.run(call.Arguments)
		status := ToolStatusCompleted
		if err != nil {
			result = err.Error()
			status = ToolStatusFailed
		}
		executed = append(executed, ToolCallRecord{
			ID: call.ID, Name: call.Name, Arguments: call.Arguments,
			Result: result, Status: status,
		})
		return result, nil
	}

	req := llm.Request{
		System:    s.system,
		Messages:  s.snapshotLLMMessages(),
		Tools:     s.toolSpecs(),
		MaxTokens: s.maxTokens,
		MaxSteps:  s.maxSteps,
	}

	result, err := s.completer.Complete(ctx, req, exec)
	if err != nil {
		// A failed send appends nothing: roll back the user message and any
		// approvals created before the failure.
		s.messages = s.messages[:len(s.messages)-1]
		s.removeApprovals(created)
		if !errors.Is(err, llm.ErrUpstream) {
			err = fmt.Errorf("%w: %w", llm.ErrUpstream, err)
		}
		return nil, err
	}

	s.messages = append(s.messages, Message{
		Role:      llm.RoleAssistant,
		Content:   result.Text,
		ToolCalls: executed,
		Timestamp: time.Now(),
	})

	callUsage := Usage{
		Input:  result.Usage.Input,
		Output: result.Usage.Output,
		Total:  result.Usage.Input + result.Usage.Output,
	}
	s.usage.Input += callUsage.Input
	s.usage.Output += callUsage.Output
	s.usage.Total += callUsage.Total

	if executed == nil {
		executed = []ToolCallRecord{}
	}
	if created == nil {
		created = []PendingApproval{}
	}

	return &SendResult{
		Content:          result.Text,
		ToolCalls:        executed,
		PendingApprovals: created,
		Usage:            callUsage,
		Latency:          time.Since(start),
	}, nil
}

// History returns a copy of the transcript.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Stats summarizes the session for status displays.
type Stats struct {
	ID           string    `json:"id"`
	Model        string    `json:"model"`
	MessageCount int       `json:"messageCount"`
	PendingCount int       `json:"pendingCount"`
	Usage        Usage     `json:"usage"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Stats returns current counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := 0
	for _, a := range s.approvals {
		if a.Status == ApprovalPending {
			pending++
		}
	}
	return Stats{
		ID:           s.id,
		Model:        s.model,
		MessageCount: len(s.messages),
		PendingCount: pending,
		Usage:        s.usage,
		CreatedAt:    s.createdAt,
	}
}

// Clear drops messages, usage, and pending approvals in one step.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = nil
	s.approvals = nil
	s.usage = Usage{}
	s.logger.Info("session cleared")
}

// snapshotLLMMessages flattens the transcript into the completer's message
// shape. Caller holds the lock.
func (s *Session) snapshotLLMMessages() []llm.Message {
	out := make([]llm.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// removeApprovals drops the given approvals from the session by id. Caller
// holds the lock.
func (s *Session) removeApprovals(created []PendingApproval) {
	if len(created) == 0 {
		return
	}
	ids := make(map[string]bool, len(created))
	for _, a := range created {
		ids[a.ID] = true
	}
	kept := s.approvals[:0]
	for _, a := range s.approvals {
		if !ids[a.ID] {
			kept = append(kept, a)
		}
	}
	s.approvals = kept
}
