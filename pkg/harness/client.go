package harness

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	acp "github.com/coder/acp-go-sdk"

	"github.com/cexll/agentexec-go/pkg/approvals"
	"github.com/cexll/agentexec-go/pkg/logs"
)

// errUnsupported covers filesystem and terminal callbacks; the harness never
// advertises those capabilities.
var errUnsupported = errors.New("harness: capability not supported")

// client receives agent-initiated callbacks for one session: streaming
// updates and permission requests.
type client struct {
	store       *logs.Store
	gate        approvals.Gate
	autoApprove bool
	logger      logs.Logger

	mu        sync.Mutex
	sessionID string
}

func (c *client) setSessionID(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

// SessionUpdate translates a streaming update into a canonical log entry.
func (c *client) SessionUpdate(ctx context.Context, params acp.SessionNotification) error {
	raw, err := json.Marshal(params.Update)
	if err != nil {
		c.logger.Printf("harness: marshal session update: %v", err)
		return nil
	}
	entry := parseUpdate(raw)
	if entry == nil {
		return nil
	}
	entry.SessionID = string(params.SessionId)
	c.store.Push(*entry)
	return nil
}

// RequestPermission routes an agent tool-permission request through the
// approval gate. With no gate attached, or in auto-approve mode, requests
// are allowed; gate failures resolve as cancelled rather than erroring the
// protocol.
func (c *client) RequestPermission(ctx context.Context, params acp.RequestPermissionRequest) (acp.RequestPermissionResponse, error) {
	if c.autoApprove || c.gate == nil {
		return acp.RequestPermissionResponse{
			Outcome: selectOutcome(params.Options, true),
		}, nil
	}

	kind := ""
	if params.ToolCall.Kind != nil {
		kind = string(*params.ToolCall.Kind)
	}
	title := ""
	if params.ToolCall.Title != nil {
		title = *params.ToolCall.Title
	}
	req := approvals.NewRequest(string(params.SessionId), title, string(params.ToolCall.ToolCallId), kind, nil)

	decision, err := c.gate.RequestApproval(ctx, req)
	if err != nil {
		c.logger.Printf("harness: approval gate: %v", err)
		return acp.RequestPermissionResponse{
			Outcome: acp.NewRequestPermissionOutcomeCancelled(),
		}, nil
	}
	allow := decision.Behavior == approvals.BehaviorAllow
	return acp.RequestPermissionResponse{
		Outcome: selectOutcome(params.Options, allow),
	}, nil
}

// selectOutcome picks the agent-offered option matching the decision,
// preferring once-scoped options so a single approval never becomes a
// standing grant. Falls back to cancelled when no matching option exists.
func selectOutcome(options []acp.PermissionOption, allow bool) acp.RequestPermissionOutcome {
	var preferred []acp.PermissionOptionKind
	if allow {
		preferred = []acp.PermissionOptionKind{acp.PermissionOptionKindAllowOnce, acp.PermissionOptionKindAllowAlways}
	} else {
		preferred = []acp.PermissionOptionKind{acp.PermissionOptionKindRejectOnce, acp.PermissionOptionKindRejectAlways}
	}
	for _, kind := range preferred {
		for _, option := range options {
			if option.Kind == kind {
				outcome := acp.NewRequestPermissionOutcomeSelected()
				outcome.Selected.OptionId = option.OptionId
				return outcome
			}
		}
	}
	return acp.NewRequestPermissionOutcomeCancelled()
}

func (c *client) ReadTextFile(ctx context.Context, params acp.ReadTextFileRequest) (acp.ReadTextFileResponse, error) {
	return acp.ReadTextFileResponse{}, errUnsupported
}

func (c *client) WriteTextFile(ctx context.Context, params acp.WriteTextFileRequest) (acp.WriteTextFileResponse, error) {
	return acp.WriteTextFileResponse{}, errUnsupported
}

func (c *client) CreateTerminal(ctx context.Context, params acp.CreateTerminalRequest) (acp.CreateTerminalResponse, error) {
	return acp.CreateTerminalResponse{}, errUnsupported
}

func (c *client) KillTerminalCommand(ctx context.Context, params acp.KillTerminalCommandRequest) (acp.KillTerminalCommandResponse, error) {
	return acp.KillTerminalCommandResponse{}, errUnsupported
}

func (c *client) TerminalOutput(ctx context.Context, params acp.TerminalOutputRequest) (acp.TerminalOutputResponse, error) {
	return acp.TerminalOutputResponse{}, errUnsupported
}

func (c *client) ReleaseTerminal(ctx context.Context, params acp.ReleaseTerminalRequest) (acp.ReleaseTerminalResponse, error) {
	return acp.ReleaseTerminalResponse{}, errUnsupported
}

func (c *client) WaitForTerminalExit(ctx context.Context, params acp.WaitForTerminalExitRequest) (acp.WaitForTerminalExitResponse, error) {
	return acp.WaitForTerminalExitResponse{}, errUnsupported
}
