// Package approvals defines the pluggable gate consulted before an agent may
// run a tool. The gate is a capability: anything able to answer an approval
// request can be attached to an executor. Executors with auto-approve enabled
// bypass the gate entirely.
package approvals

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Behavior is the gate's verdict on a tool-use request.
type Behavior string

const (
	BehaviorAllow  Behavior = "allow"
	BehaviorDeny   Behavior = "deny"
	BehaviorModify Behavior = "modify"
)

// Request describes one tool-use the agent wants to perform.
type Request struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id,omitempty"`
	ToolName   string          `json:"tool_name"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	// Kind is the agent-reported tool category (read, edit, execute, fetch).
	Kind  string          `json:"kind,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// NewRequest builds a Request with a fresh identifier.
func NewRequest(sessionID, toolName, toolCallID, kind string, input json.RawMessage) Request {
	return Request{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		ToolName:   toolName,
		ToolCallID: toolCallID,
		Kind:       kind,
		Input:      input,
	}
}

// Decision is the answer to a Request. ModifiedInput is only meaningful for
// BehaviorModify and replaces the tool input before execution.
type Decision struct {
	Behavior      Behavior        `json:"behavior"`
	Comment       string          `json:"comment,omitempty"`
	ModifiedInput json.RawMessage `json:"modified_input,omitempty"`
}

// Gate receives tool-use requests and decides them. Implementations must be
// safe for concurrent use; a single session can have several requests in
// flight.
type Gate interface {
	RequestApproval(ctx context.Context, req Request) (Decision, error)
}

// GateFunc adapts a function to the Gate interface.
type GateFunc func(ctx context.Context, req Request) (Decision, error)

func (f GateFunc) RequestApproval(ctx context.Context, req Request) (Decision, error) {
	return f(ctx, req)
}

// AllowAll approves every request. Used when no gate is attached: a missing
// gate means requests are auto-approved.
var AllowAll Gate = GateFunc(func(context.Context, Request) (Decision, error) {
	return Decision{Behavior: BehaviorAllow}, nil
})
