// ABOUTME: Pending-approval lifecycle: created by gated sends, resolved by approve/deny
// ABOUTME: Transitions are one-way; resolving a non-pending approval always fails

package session

import (
	"fmt"
	"time"
)

// Approval status values.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalDenied   = "denied"
)

// PendingApproval records one gated tool call awaiting a decision.
type PendingApproval struct {
	ID          string         `json:"id"`
	ToolName    string         `json:"toolName"`
	ToolCallID  string         `json:"toolCallId"`
	Arguments   map[string]any `json:"arguments,omitempty"`
	RequestedAt time.Time      `json:"requestedAt"`
	Status      string         `json:"status"`
	DenyReason  string         `json:"denyReason,omitempty"`
}

// PendingApprovals returns approvals still awaiting a decision, oldest first.
func (s *Session) PendingApprovals() []PendingApproval {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []PendingApproval
	for _, a := range s.approvals {
		if a.Status == ApprovalPending {
			out = append(out, *a)
		}
	}
	return out
}

// Approve executes the gated tool call and marks the approval approved,
// returning the tool's result.
func (s *Session) Approve(id string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	approval, err := s.findApproval(id)
	if err != nil {
		return nil, err
	}

	def, ok := s.tools[approval.ToolName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrToolNotFound, approval.ToolName)
	}

	result, runErr := def.run(approval.Arguments)
	if runErr != nil {
		// The decision stands even though the tool failed; a retry would
		// re-execute a side effect the caller already authorized once.
		approval.Status = ApprovalApproved
		return nil, fmt.Errorf("executing %s: %w", approval.ToolName, runErr)
	}

	approval.Status = ApprovalApproved
	s.logger.Info("approval granted", "approval_id", id, "tool", approval.ToolName)
	return result, nil
}

// Deny marks the approval denied with an optional reason. Denial is terminal.
func (s *Session) Deny(id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	approval, err := s.findApproval(id)
	if err != nil {
		return err
	}

	approval.Status = ApprovalDenied
	approval.DenyReason = reason
	s.logger.Info("approval denied", "approval_id", id, "tool", approval.ToolName, "reason", reason)
	return nil
}

// findApproval locates a pending approval by id. Caller holds the lock.
func (s *Session) findApproval(id string) (*PendingApproval, error) {
	for _, a := range s.approvals {
		if a.ID == id {
			if a.Status != ApprovalPending {
				return nil, fmt.Errorf("%w: %q is %s", ErrAlreadyResolved, id, a.Status)
			}
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrApprovalNotFound, id)
}
