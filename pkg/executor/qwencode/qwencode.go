// Package qwencode runs Qwen Code through the structured session protocol.
// Qwen negotiates its sub-agent as a session mode and its model over the
// session, and keeps its session markers in a dedicated namespace so resume
// ids never collide with other agents sharing the protocol.
package qwencode

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cexll/agentexec-go/pkg/approvals"
	"github.com/cexll/agentexec-go/pkg/command"
	"github.com/cexll/agentexec-go/pkg/discovery"
	"github.com/cexll/agentexec-go/pkg/executor"
	"github.com/cexll/agentexec-go/pkg/harness"
	"github.com/cexll/agentexec-go/pkg/logs"
	"github.com/cexll/agentexec-go/pkg/spawn"
	"github.com/cexll/agentexec-go/pkg/telemetry"
)

const (
	baseCommand      = "npx -y @qwen-code/qwen-code@0.9.1"
	sessionNamespace = "qwen_sessions"
)

// QwenCode is the executor for the Qwen Code CLI.
type QwenCode struct {
	AppendPrompt executor.AppendPrompt `json:"append_prompt,omitempty"`
	Model        string                `json:"model,omitempty"`
	Agent        string                `json:"agent,omitempty"`
	Yolo         bool                  `json:"yolo,omitempty"`
	Overrides    command.Overrides     `json:"-"`
	Logger       logs.Logger           `json:"-"`

	gate approvals.Gate
}

// New creates a QwenCode executor with defaults.
func New() *QwenCode { return &QwenCode{} }

func (q *QwenCode) builder() (command.Builder, error) {
	b := command.NewBuilder(baseCommand)
	if q.Model != "" {
		b = b.ExtendParams("--model", q.Model)
	}
	if q.Yolo {
		b = b.ExtendParams("--yolo")
	}
	b = b.ExtendParams("--acp")
	return b.ApplyOverrides(q.Overrides)
}

// ApplyOverrides folds caller config into instance state.
func (q *QwenCode) ApplyOverrides(cfg executor.Config) {
	if cfg.ModelID != "" {
		q.Model = cfg.ModelID
	}
	if cfg.AgentID != "" {
		q.Agent = cfg.AgentID
	}
	if cfg.PermissionPolicy != "" {
		q.Yolo = cfg.PermissionPolicy == discovery.PermissionAuto
	}
}

// UseApprovals attaches the gate. Yolo mode bypasses it at spawn time.
func (q *QwenCode) UseApprovals(gate approvals.Gate) { q.gate = gate }

// Spawn starts a fresh Qwen session.
func (q *QwenCode) Spawn(ctx context.Context, req executor.SpawnRequest) (*spawn.Process, error) {
	ctx, span := telemetry.StartSpan(ctx, "qwencode.spawn")
	defer span.End()
	return q.run(ctx, req, "")
}

// SpawnFollowUp resumes req.SessionID. Qwen has no message rewind;
// ResetMessageID is ignored.
func (q *QwenCode) SpawnFollowUp(ctx context.Context, req executor.SpawnRequest) (*spawn.Process, error) {
	ctx, span := telemetry.StartSpan(ctx, "qwencode.spawn_follow_up")
	defer span.End()
	return q.run(ctx, req, req.SessionID)
}

// SpawnReview starts a review pass, resuming req.SessionID when set.
func (q *QwenCode) SpawnReview(ctx context.Context, req executor.SpawnRequest) (*spawn.Process, error) {
	ctx, span := telemetry.StartSpan(ctx, "qwencode.spawn_review")
	defer span.End()
	return q.run(ctx, req, req.SessionID)
}

func (q *QwenCode) run(ctx context.Context, req executor.SpawnRequest, sessionID string) (*spawn.Process, error) {
	b, err := q.builder()
	if err != nil {
		return nil, err
	}
	var parts command.Parts
	if sessionID == "" {
		parts, err = b.BuildInitial()
	} else {
		parts, err = b.BuildFollowUp(nil)
	}
	if err != nil {
		return nil, err
	}
	resolved, err := parts.Resolve()
	if err != nil {
		return nil, err
	}

	gate := q.gate
	if q.Yolo {
		gate = nil
	}
	session, err := harness.Run(ctx, harness.Config{
		Program:     resolved.Program,
		Args:        resolved.Args,
		Dir:         req.Workdir,
		Env:         executor.OverlayEnv(req.Env, resolved.Env),
		Prompt:      q.AppendPrompt.Combine(req.Prompt),
		SessionID:   sessionID,
		Mode:        q.Agent,
		Model:       q.Model,
		SessionDir:  q.SessionDir(),
		AutoApprove: q.Yolo,
		Store:       req.Store,
		Gate:        gate,
		Logger:      q.Logger,
	})
	if err != nil {
		return nil, err
	}
	return session.Process(), nil
}

// SessionDir is where negotiated session markers are recorded, namespaced
// apart from other executors. harness.ListSessions reads it back.
func (q *QwenCode) SessionDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".agentexec", sessionNamespace)
}

// NormalizeLogs replays raw protocol output as canonical entries.
func (q *QwenCode) NormalizeLogs(store *logs.Store, worktreePath string) {
	harness.NormalizeLogs(store, worktreePath)
}

// DiscoverOptions yields the static capability set: Qwen reports its models
// and sub-agents over the session, not through a probe.
func (q *QwenCode) DiscoverOptions(ctx context.Context, scope discovery.Scope) (discovery.Stream, error) {
	options := discovery.Options{
		ModelSelector: discovery.ModelSelector{
			Permissions: []discovery.PermissionPolicy{discovery.PermissionAuto, discovery.PermissionSupervised},
		},
	}
	return discovery.Single(discovery.Replace(options)), nil
}

// GetAvailabilityInfo checks Qwen's config markers under the home dir.
func (q *QwenCode) GetAvailabilityInfo() executor.AvailabilityInfo {
	home, err := os.UserHomeDir()
	if err != nil {
		return executor.NotFound
	}
	for _, marker := range []string{
		filepath.Join(home, ".qwen", "settings.json"),
		filepath.Join(home, ".qwen", "installation_id"),
	} {
		if _, err := os.Stat(marker); err == nil {
			return executor.InstallationFound
		}
	}
	return executor.NotFound
}

// GetPresetOptions reflects instance state back as a config.
func (q *QwenCode) GetPresetOptions() executor.Config {
	policy := discovery.PermissionSupervised
	if q.Yolo {
		policy = discovery.PermissionAuto
	}
	return executor.Config{
		Kind:             executor.KindQwenCode,
		ModelID:          q.Model,
		AgentID:          q.Agent,
		PermissionPolicy: policy,
	}
}

// DefaultMCPConfigPath is Qwen's own settings file.
func (q *QwenCode) DefaultMCPConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".qwen", "settings.json")
}
