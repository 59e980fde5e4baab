// ABOUTME: Handler table mapping protocol actions onto Session and Provider calls
// ABOUTME: The single place where failures become {success:false, error} responses

package daemon

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/2389/coven-daemon/internal/protocol"
	"github.com/2389/coven-daemon/internal/session"
	"github.com/2389/coven-daemon/internal/workflow"
)

// handle executes one decoded request. It returns the data for a success
// response or an error for a failure response.
func (d *Daemon) handle(req *protocol.Request) (any, error) {
	switch req.Action {
	case protocol.ActionPing:
		return protocol.PingResult{
			ID:    d.session.ID(),
			Model: d.session.Model(),
			Name:  d.opts.Name,
		}, nil

	case protocol.ActionSend:
		var p protocol.SendPayload
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		if p.Content == "" {
			return nil, fmt.Errorf("%w: content", protocol.ErrMissingField)
		}
		return d.session.Send(context.Background(), p.Content, session.SendOptions{
			AutoApprove: p.AutoApprove,
		})

	case protocol.ActionToolAdd:
		var p protocol.ToolAddPayload
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		if p.Name == "" {
			return nil, fmt.Errorf("%w: name", protocol.ErrMissingField)
		}
		def := session.ToolDef{
			Name:        p.Name,
			Description: p.Description,
			Parameters:  p.Parameters,
		}
		if p.NeedsApproval {
			def.NeedsApproval = session.AlwaysApprove
		}
		if err := d.session.AddTool(def); err != nil {
			return nil, err
		}
		if p.MockResponse != nil {
			if err := d.session.SetMockResponse(p.Name, p.MockResponse); err != nil {
				return nil, err
			}
		}
		return nil, nil

	case protocol.ActionToolMock:
		var p protocol.ToolMockPayload
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		if p.Name == "" {
			return nil, fmt.Errorf("%w: name", protocol.ErrMissingField)
		}
		return nil, d.session.SetMockResponse(p.Name, p.Response)

	case protocol.ActionToolList:
		var tools []session.ToolState
		for _, def := range d.session.Tools() {
			tools = append(tools, session.ToolState{
				Name:          def.Name,
				Description:   def.Description,
				Parameters:    def.Parameters,
				NeedsApproval: def.NeedsApproval != nil,
			})
		}
		return protocol.ToolListResult{Tools: tools}, nil

	case protocol.ActionToolImport:
		var p protocol.ToolImportPayload
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		if p.Path == "" {
			return nil, fmt.Errorf("%w: path", protocol.ErrMissingField)
		}
		return d.importTools(p.Path)

	case protocol.ActionHistory:
		return protocol.HistoryResult{Messages: d.session.History()}, nil

	case protocol.ActionStats:
		return d.session.Stats(), nil

	case protocol.ActionExport:
		return d.session.Export(), nil

	case protocol.ActionClear:
		d.session.Clear()
		return nil, nil

	case protocol.ActionPending:
		return protocol.PendingResult{Approvals: d.session.PendingApprovals()}, nil

	case protocol.ActionApprove:
		var p protocol.ApprovePayload
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, fmt.Errorf("%w: id", protocol.ErrMissingField)
		}
		result, err := d.session.Approve(p.ID)
		if err != nil {
			return nil, err
		}
		return protocol.ApproveResult{ID: p.ID, Result: result}, nil

	case protocol.ActionDeny:
		var p protocol.DenyPayload
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, fmt.Errorf("%w: id", protocol.ErrMissingField)
		}
		return nil, d.session.Deny(p.ID, p.Reason)

	case protocol.ActionChannelPost, protocol.ActionChannelRead,
		protocol.ActionInbox, protocol.ActionInboxPeek, protocol.ActionInboxAck,
		protocol.ActionDocRead, protocol.ActionDocWrite, protocol.ActionDocAppend,
		protocol.ActionDocOutline:
		return d.handleWorkflow(req)

	default:
		return nil, fmt.Errorf("unknown action: %q", req.Action)
	}
}

// handleWorkflow executes actions that require a joined workflow instance.
func (d *Daemon) handleWorkflow(req *protocol.Request) (any, error) {
	if d.provider == nil {
		return nil, fmt.Errorf("no workflow joined")
	}
	agent := d.agentName()

	switch req.Action {
	case protocol.ActionChannelPost:
		var p protocol.ChannelPostPayload
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		if p.Content == "" {
			return nil, fmt.Errorf("%w: content", protocol.ErrMissingField)
		}
		return d.provider.AppendChannel(agent, p.Content)

	case protocol.ActionChannelRead:
		var p protocol.ChannelReadPayload
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		opts := workflow.ReadOptions{Limit: p.Limit}
		if p.Since != nil {
			opts.Since = *p.Since
		}
		entries, err := d.provider.ReadChannel(opts)
		if err != nil {
			return nil, err
		}
		return protocol.ChannelReadResult{Entries: entries}, nil

	case protocol.ActionInbox, protocol.ActionInboxPeek:
		messages, err := d.provider.Inbox(agent)
		if err != nil {
			return nil, err
		}
		return protocol.InboxResult{Messages: messages}, nil

	case protocol.ActionInboxAck:
		var p protocol.InboxAckPayload
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		if p.Until.IsZero() {
			return nil, fmt.Errorf("%w: until", protocol.ErrMissingField)
		}
		return nil, d.provider.AckInbox(agent, p.Until)

	case protocol.ActionDocRead:
		var p protocol.DocPayload
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		content, err := d.provider.ReadDocument(p.File)
		if err != nil {
			return nil, err
		}
		return protocol.DocResult{File: docName(p.File), Content: content}, nil

	case protocol.ActionDocWrite:
		var p protocol.DocPayload
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		return nil, d.provider.WriteDocument(p.Content, p.File)

	case protocol.ActionDocAppend:
		var p protocol.DocPayload
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		return nil, d.provider.AppendDocument(p.Content, p.File)

	case protocol.ActionDocOutline:
		var p protocol.DocPayload
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		headings, err := d.provider.DocumentOutline(p.File)
		if err != nil {
			return nil, err
		}
		return protocol.OutlineResult{File: docName(p.File), Headings: headings}, nil
	}

	return nil, fmt.Errorf("unknown action: %q", req.Action)
}

// agentName is the identity used for channel posts and inbox reads: the
// session name when set, otherwise the session id.
func (d *Daemon) agentName() string {
	if d.opts.Name != "" {
		return d.opts.Name
	}
	return d.session.ID()
}

func docName(file string) string {
	if file == "" {
		return workflow.DefaultDocument
	}
	return file
}

// decode unmarshals a payload, tolerating a missing payload for actions whose
// fields are all optional.
func decode(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	return nil
}
