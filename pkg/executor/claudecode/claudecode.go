// Package claudecode runs the Claude Code CLI over its raw line-JSON event
// stream. The CLI has no bidirectional session protocol; the prompt goes on
// the command line, output is one JSON event per line, and resuming a session
// is a flag on the next invocation.
package claudecode

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cexll/agentexec-go/pkg/approvals"
	"github.com/cexll/agentexec-go/pkg/command"
	"github.com/cexll/agentexec-go/pkg/discovery"
	"github.com/cexll/agentexec-go/pkg/executor"
	"github.com/cexll/agentexec-go/pkg/logs"
	"github.com/cexll/agentexec-go/pkg/spawn"
	"github.com/cexll/agentexec-go/pkg/telemetry"
)

const baseCommand = "npx -y @anthropic-ai/claude-code@latest"

// ClaudeCode is the executor for the Claude Code CLI.
type ClaudeCode struct {
	AppendPrompt    executor.AppendPrompt `json:"append_prompt,omitempty"`
	Model           string                `json:"model,omitempty"`
	SkipPermissions bool                  `json:"dangerously_skip_permissions,omitempty"`
	PlanMode        bool                  `json:"plan,omitempty"`
	Overrides       command.Overrides     `json:"-"`
	Logger          logs.Logger           `json:"-"`

	gate approvals.Gate
}

// New creates a ClaudeCode executor with defaults.
func New() *ClaudeCode { return &ClaudeCode{} }

func (c *ClaudeCode) builder() (command.Builder, error) {
	b := command.NewBuilder(baseCommand)
	b = b.ExtendParams("-p", "--verbose", "--output-format=stream-json")
	if c.Model != "" {
		b = b.ExtendParams("--model", c.Model)
	}
	if c.SkipPermissions {
		b = b.ExtendParams("--dangerously-skip-permissions")
	}
	if c.PlanMode {
		b = b.ExtendParams("--permission-mode", "plan")
	}
	return b.ApplyOverrides(c.Overrides)
}

// ApplyOverrides folds caller config into instance state.
func (c *ClaudeCode) ApplyOverrides(cfg executor.Config) {
	if cfg.ModelID != "" {
		c.Model = cfg.ModelID
	}
	switch cfg.PermissionPolicy {
	case discovery.PermissionAuto:
		c.SkipPermissions = true
		c.PlanMode = false
	case discovery.PermissionPlan:
		c.SkipPermissions = false
		c.PlanMode = true
	case discovery.PermissionSupervised:
		c.SkipPermissions = false
		c.PlanMode = false
	}
}

// UseApprovals attaches the gate. The raw stream carries no permission
// callbacks, so the gate only matters for future protocol revisions; the CLI
// enforces its own permission prompts unless SkipPermissions is set.
func (c *ClaudeCode) UseApprovals(gate approvals.Gate) { c.gate = gate }

// Spawn starts a fresh Claude session.
func (c *ClaudeCode) Spawn(ctx context.Context, req executor.SpawnRequest) (*spawn.Process, error) {
	ctx, span := telemetry.StartSpan(ctx, "claudecode.spawn")
	defer span.End()
	return c.run(ctx, req, "")
}

// SpawnFollowUp resumes req.SessionID. The CLI rewinds to ResetMessageID
// itself when the resumed session carries one; there is no flag for it.
func (c *ClaudeCode) SpawnFollowUp(ctx context.Context, req executor.SpawnRequest) (*spawn.Process, error) {
	ctx, span := telemetry.StartSpan(ctx, "claudecode.spawn_follow_up")
	defer span.End()
	return c.run(ctx, req, req.SessionID)
}

// SpawnReview starts a review pass, resuming req.SessionID when set.
func (c *ClaudeCode) SpawnReview(ctx context.Context, req executor.SpawnRequest) (*spawn.Process, error) {
	ctx, span := telemetry.StartSpan(ctx, "claudecode.spawn_review")
	defer span.End()
	return c.run(ctx, req, req.SessionID)
}

func (c *ClaudeCode) run(ctx context.Context, req executor.SpawnRequest, sessionID string) (*spawn.Process, error) {
	b, err := c.builder()
	if err != nil {
		return nil, err
	}
	var parts command.Parts
	if sessionID == "" {
		parts, err = b.BuildInitial()
	} else {
		parts, err = b.BuildFollowUp([]string{"--resume", sessionID})
	}
	if err != nil {
		return nil, err
	}
	resolved, err := parts.Resolve()
	if err != nil {
		return nil, err
	}

	prompt := c.AppendPrompt.Combine(req.Prompt)
	proc, err := spawn.Start(spawn.Spec{
		Program: resolved.Program,
		Args:    append(resolved.Args, "--", prompt),
		Dir:     req.Workdir,
		Env:     executor.OverlayEnv(req.Env, resolved.Env),
		Logger:  c.Logger,
	})
	if err != nil {
		return nil, err
	}

	store := req.Store
	if store == nil {
		store = logs.NewStore()
	}
	go c.follow(proc, store)
	return proc, nil
}

// follow reads the event stream until EOF, mirroring every line into the
// store and signalling the logical outcome from the terminal result event.
// Without a result event the exit status decides the outcome.
func (c *ClaudeCode) follow(proc *spawn.Process, store *logs.Store) {
	_ = logs.ScanJSONLines(proc.Stdout(), func(line string, raw json.RawMessage) bool {
		store.PushRawLine(logs.SourceStdout, line)
		if raw == nil {
			return true
		}
		for _, entry := range convertEvent(raw) {
			store.Push(entry)
		}
		if result, ok := parseResult(raw); ok {
			if result.IsError {
				proc.SignalExit(spawn.ResultFailure)
			} else {
				proc.SignalExit(spawn.ResultSuccess)
			}
		}
		return true
	})
}

// NormalizeLogs replays raw stream lines already captured as canonical
// entries.
func (c *ClaudeCode) NormalizeLogs(store *logs.Store, worktreePath string) {
	for _, line := range store.RawHistory() {
		if line.Source != logs.SourceStdout {
			continue
		}
		if !json.Valid([]byte(line.Line)) {
			continue
		}
		for _, entry := range convertEvent(json.RawMessage(line.Line)) {
			store.Push(entry)
		}
	}
}

// GetAvailabilityInfo checks Claude's config markers under the home dir.
func (c *ClaudeCode) GetAvailabilityInfo() executor.AvailabilityInfo {
	home, err := os.UserHomeDir()
	if err != nil {
		return executor.NotFound
	}
	for _, marker := range []string{
		filepath.Join(home, ".claude"),
		filepath.Join(home, ".claude.json"),
	} {
		if _, err := os.Stat(marker); err == nil {
			return executor.InstallationFound
		}
	}
	return executor.NotFound
}

// GetPresetOptions reflects instance state back as a config.
func (c *ClaudeCode) GetPresetOptions() executor.Config {
	policy := discovery.PermissionSupervised
	switch {
	case c.SkipPermissions:
		policy = discovery.PermissionAuto
	case c.PlanMode:
		policy = discovery.PermissionPlan
	}
	return executor.Config{
		Kind:             executor.KindClaudeCode,
		ModelID:          c.Model,
		PermissionPolicy: policy,
	}
}

// DefaultMCPConfigPath is Claude's own user config, which holds its MCP
// server table.
func (c *ClaudeCode) DefaultMCPConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".claude.json")
}
