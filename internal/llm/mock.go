// ABOUTME: Scripted Completer used by tests and the "mock" backend
// ABOUTME: Returns canned turns in order and records every request it receives

package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockTurn scripts one Complete call: the tool calls to make (executed through
// the session's executor, so approval gating still applies) and the final text.
type MockTurn struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
	Err       error
}

// Mock is a scripted Completer. Turns are consumed in order; once exhausted,
// every call echoes a fixed fallback so long tests do not need full scripts.
type Mock struct {
	mu       sync.Mutex
	turns    []MockTurn
	Requests []Request
	Fallback string
}

// NewMock creates a Mock with the given scripted turns.
func NewMock(turns ...MockTurn) *Mock {
	return &Mock{turns: turns, Fallback: "ok"}
}

// Complete pops the next scripted turn, runs its tool calls through exec, and
// returns the scripted text and usage.
func (m *Mock) Complete(ctx context.Context, req Request, exec ToolExecutor) (*Result, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	var turn MockTurn
	if len(m.turns) > 0 {
		turn = m.turns[0]
		m.turns = m.turns[1:]
	} else {
		turn = MockTurn{Text: m.Fallback, Usage: Usage{Input: 1, Output: 1}}
	}
	m.mu.Unlock()

	if turn.Err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, turn.Err)
	}

	result := &Result{Text: turn.Text, Usage: turn.Usage}
	if len(turn.ToolCalls) > 0 {
		step := Step{ToolCalls: turn.ToolCalls}
		for _, call := range turn.ToolCalls {
			out, err := exec(ctx, call)
			if err != nil {
				return nil, fmt.Errorf("%w: executing %s: %w", ErrUpstream, call.Name, err)
			}
			step.ToolResults = append(step.ToolResults, ToolResult{CallID: call.ID, Result: out})
		}
		result.Steps = append(result.Steps, step)
	}
	return result, nil
}
