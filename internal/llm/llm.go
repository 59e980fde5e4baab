// ABOUTME: Boundary interface to the language-model capability consumed by sessions
// ABOUTME: Defines the complete(system, messages, tools) contract and its data types

package llm

import (
	"context"
	"errors"
)

// ErrUpstream wraps any failure from the model capability itself. Callers can
// distinguish model failures from local ones with errors.Is.
var ErrUpstream = errors.New("model invocation failed")

// Role values for conversation messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of conversation handed to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolSpec describes a tool the model may call. Parameters is a JSON-schema
// shaped object; it is passed through opaquely.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolCall is a tool invocation the model requested during a step.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolResult carries the outcome of a tool call back into the transcript.
type ToolResult struct {
	CallID string `json:"callId"`
	Result any    `json:"result"`
}

// Step is one reasoning step: the tool calls the model emitted and the
// results it was given before continuing.
type Step struct {
	ToolCalls   []ToolCall   `json:"toolCalls,omitempty"`
	ToolResults []ToolResult `json:"toolResults,omitempty"`
}

// Usage counts tokens consumed by one completion.
type Usage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Request is everything a completion needs.
type Request struct {
	System    string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
	MaxSteps  int
}

// Result is what a completion produced: final text, the tool-call steps taken
// along the way, and token usage.
type Result struct {
	Text  string
	Steps []Step
	Usage Usage
}

// ToolExecutor resolves a tool call to its result. The Completer invokes it
// once per call, in the order the model emitted them.
type ToolExecutor func(ctx context.Context, call ToolCall) (any, error)

// Completer is the opaque model capability. Implementations must invoke the
// executor sequentially for each tool call they decide to make and surface
// their own failures directly; retry policy belongs to the implementation,
// never to callers.
type Completer interface {
	Complete(ctx context.Context, req Request, exec ToolExecutor) (*Result, error)
}
