// ABOUTME: Export and state snapshot/restore for persistence across restarts
// ABOUTME: State is a pure data copy; tool functions are re-attached after restore

package session

import (
	"time"
)

// ToolState is the serializable part of a tool definition. Execute functions
// and predicates cannot cross a process boundary; a restored tool is gated
// unconditionally if it was gated before.
type ToolState struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	NeedsApproval bool           `json:"needsApproval,omitempty"`
}

// State is a point-in-time data copy of a session, suitable for JSON
// persistence and restore after a daemon restart.
type State struct {
	ID        string            `json:"id"`
	Model     string            `json:"model"`
	System    string            `json:"system"`
	CreatedAt time.Time         `json:"createdAt"`
	Messages  []Message         `json:"messages"`
	Tools     []ToolState       `json:"tools,omitempty"`
	Approvals []PendingApproval `json:"approvals,omitempty"`
	Usage     Usage             `json:"usage"`
}

// Export is the user-facing transcript document.
type Export struct {
	ID         string    `json:"id"`
	Model      string    `json:"model"`
	System     string    `json:"system"`
	CreatedAt  time.Time `json:"createdAt"`
	ExportedAt time.Time `json:"exportedAt"`
	Messages   []Message `json:"messages"`
	Usage      Usage     `json:"usage"`
}

// State returns a copy of everything needed to reconstruct the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		ID:        s.id,
		Model:     s.model,
		System:    s.system,
		CreatedAt: s.createdAt,
		Usage:     s.usage,
		Messages:  make([]Message, len(s.messages)),
	}
	copy(st.Messages, s.messages)

	for _, name := range s.toolOrder {
		def := s.tools[name]
		st.Tools = append(st.Tools, ToolState{
			Name:          def.Name,
			Description:   def.Description,
			Parameters:    def.Parameters,
			NeedsApproval: def.NeedsApproval != nil,
		})
	}
	for _, a := range s.approvals {
		st.Approvals = append(st.Approvals, *a)
	}
	return st
}

// Restore replaces the session's data with a previously captured state. The
// id, model, and system prompt are taken from the state as well.
func (s *Session) Restore(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.id = st.ID
	s.model = st.Model
	s.system = st.System
	s.createdAt = st.CreatedAt
	s.usage = st.Usage

	s.messages = make([]Message, len(st.Messages))
	copy(s.messages, st.Messages)

	s.tools = make(map[string]*ToolDef)
	s.toolOrder = nil
	for _, ts := range st.Tools {
		def := &ToolDef{
			Name:        ts.Name,
			Description: ts.Description,
			Parameters:  ts.Parameters,
		}
		if ts.NeedsApproval {
			def.NeedsApproval = AlwaysApprove
		}
		s.tools[ts.Name] = def
		s.toolOrder = append(s.toolOrder, ts.Name)
	}

	s.approvals = nil
	for _, a := range st.Approvals {
		copied := a
		s.approvals = append(s.approvals, &copied)
	}
}

// Export returns the transcript document for external consumption.
func (s *Session) Export() Export {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := make([]Message, len(s.messages))
	copy(messages, s.messages)
	return Export{
		ID:         s.id,
		Model:      s.model,
		System:     s.system,
		CreatedAt:  s.createdAt,
		ExportedAt: time.Now(),
		Messages:   messages,
		Usage:      s.usage,
	}
}
