// Package executor defines the common contract every coding agent
// integration implements: spawning and resuming sessions, applying caller
// overrides, discovering capabilities, and reporting availability. Concrete
// agents live in subpackages.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/cexll/agentexec-go/pkg/approvals"
	"github.com/cexll/agentexec-go/pkg/discovery"
	"github.com/cexll/agentexec-go/pkg/logs"
	"github.com/cexll/agentexec-go/pkg/slashcmd"
	"github.com/cexll/agentexec-go/pkg/spawn"
)

// Kind identifies a supported coding agent.
type Kind string

const (
	KindClaudeCode Kind = "CLAUDE_CODE"
	KindCopilot    Kind = "COPILOT"
	KindQwenCode   Kind = "QWEN_CODE"
	KindOpencode   Kind = "OPENCODE"
)

// ErrUnknownKind reports an executor name no integration is registered for.
var ErrUnknownKind = errors.New("executor: unknown executor type")

// ParseKind validates an executor name.
func ParseKind(name string) (Kind, error) {
	switch Kind(name) {
	case KindClaudeCode, KindCopilot, KindQwenCode, KindOpencode:
		return Kind(name), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
}

// AvailabilityInfo is the result of a local installation heuristic. It never
// spawns the agent; it only checks marker files and config paths.
type AvailabilityInfo string

const (
	InstallationFound AvailabilityInfo = "INSTALLATION_FOUND"
	NotFound          AvailabilityInfo = "NOT_FOUND"
)

// Config carries caller overrides for one executor instance. Zero-valued
// fields leave the executor's current state untouched.
type Config struct {
	Kind             Kind                       `json:"executor"`
	Variant          string                     `json:"variant,omitempty"`
	ModelID          string                     `json:"model_id,omitempty"`
	AgentID          string                     `json:"agent_id,omitempty"`
	ReasoningID      string                     `json:"reasoning_id,omitempty"`
	PermissionPolicy discovery.PermissionPolicy `json:"permission_policy,omitempty"`
}

// SpawnRequest names the inputs to a spawn. Store receives the invocation's
// raw and normalized output. SessionID and ResetMessageID apply to follow-up
// spawns only; SessionID is optional for review spawns.
type SpawnRequest struct {
	Workdir        string
	Prompt         string
	Env            map[string]string
	Store          *logs.Store
	SessionID      string
	ResetMessageID string
}

// Executor is the capability contract each agent integration satisfies.
type Executor interface {
	// Spawn starts a fresh session with the given prompt.
	Spawn(ctx context.Context, req SpawnRequest) (*spawn.Process, error)
	// SpawnFollowUp resumes req.SessionID, optionally rewinding to
	// req.ResetMessageID where the agent supports it.
	SpawnFollowUp(ctx context.Context, req SpawnRequest) (*spawn.Process, error)
	// ApplyOverrides folds caller overrides into instance state before
	// spawning.
	ApplyOverrides(cfg Config)
	// UseApprovals attaches the gate tool-permission requests route to.
	// Without a gate requests are auto-approved.
	UseApprovals(gate approvals.Gate)
	// NormalizeLogs converts raw output already captured in store into
	// canonical entries.
	NormalizeLogs(store *logs.Store, worktreePath string)
	// DiscoverOptions probes the agent for models, agents, and slash
	// commands, yielding incremental patches. Failures after the stream
	// starts arrive as a terminal error patch, not an error return.
	DiscoverOptions(ctx context.Context, scope discovery.Scope) (discovery.Stream, error)
	// GetAvailabilityInfo reports whether the agent looks installed.
	GetAvailabilityInfo() AvailabilityInfo
	// GetPresetOptions reflects current instance state back as a Config.
	GetPresetOptions() Config
	// DefaultMCPConfigPath is where the agent's own tool-integration config
	// lives, or empty when the agent has none.
	DefaultMCPConfigPath() string
}

// Reviewer is implemented by executors that support dedicated review
// sessions.
type Reviewer interface {
	// SpawnReview starts a review pass, resuming req.SessionID when set.
	SpawnReview(ctx context.Context, req SpawnRequest) (*spawn.Process, error)
}

// OverlayEnv merges overlay onto base without mutating either; overlay wins
// per key. Executors use it to layer profile env injections over the caller's
// execution environment.
func OverlayEnv(base, overlay map[string]string) map[string]string {
	if len(overlay) == 0 {
		return base
	}
	merged := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// AppendPrompt is an optional suffix combined with every user prompt.
type AppendPrompt string

// Combine appends the suffix to prompt, except when prompt is a slash
// command invocation, which must reach the agent verbatim.
func (a AppendPrompt) Combine(prompt string) string {
	if a == "" {
		return prompt
	}
	if _, isSlash := slashcmd.Parse(prompt); isSlash {
		return prompt
	}
	return prompt + "\n\n" + string(a)
}
