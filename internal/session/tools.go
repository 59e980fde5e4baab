// ABOUTME: Tool registration, mocking, and the approval predicate for a session
// ABOUTME: Tools are plain descriptors; execution always runs through the session

package session

import (
	"fmt"

	"github.com/2389/coven-daemon/internal/llm"
)

// ApprovalPredicate decides per-invocation whether a tool call needs human
// approval. A nil predicate means the tool never needs approval.
type ApprovalPredicate func(args map[string]any) bool

// AlwaysApprove is the predicate for tools that are gated unconditionally.
func AlwaysApprove(map[string]any) bool { return true }

// ToolDef describes one callable tool.
type ToolDef struct {
	Name          string
	Description   string
	Parameters    map[string]any
	Execute       func(args map[string]any) (any, error)
	NeedsApproval ApprovalPredicate
}

func (d *ToolDef) requiresApproval(args map[string]any) bool {
	return d.NeedsApproval != nil && d.NeedsApproval(args)
}

// run executes the tool, substituting the standard sentinel when no execute
// function was provided.
func (d *ToolDef) run(args map[string]any) (any, error) {
	if d.Execute == nil {
		return noMockResult, nil
	}
	return d.Execute(args)
}

// AddTool registers a tool definition. Re-adding a name replaces the
// definition but keeps its position in the listing order.
func (s *Session) AddTool(def ToolDef) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tools[def.Name]; !exists {
		s.toolOrder = append(s.toolOrder, def.Name)
	}
	s.tools[def.Name] = &def
	s.logger.Debug("tool registered", "tool", def.Name)
	return nil
}

// MockTool attaches an execute function to an already-registered tool.
func (s *Session) MockTool(name string, fn func(args map[string]any) (any, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.tools[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}
	def.Execute = fn
	return nil
}

// SetMockResponse makes a registered tool return a fixed value.
func (s *Session) SetMockResponse(name string, value any) error {
	return s.MockTool(name, func(map[string]any) (any, error) {
		return value, nil
	})
}

// Tools returns the registered tool definitions in registration order.
func (s *Session) Tools() []ToolDef {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ToolDef, 0, len(s.toolOrder))
	for _, name := range s.toolOrder {
		out = append(out, *s.tools[name])
	}
	return out
}

// toolSpecs converts registered tools to the completer's spec shape. Caller
// holds the lock.
func (s *Session) toolSpecs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(s.toolOrder))
	for _, name := range s.toolOrder {
		def := s.tools[name]
		specs = append(specs, llm.ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
		})
	}
	return specs
}
