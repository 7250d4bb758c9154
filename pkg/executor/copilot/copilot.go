// Package copilot runs GitHub Copilot CLI through the structured session
// protocol. Copilot takes its model and tool policy as command-line flags;
// the session itself has no mode or model negotiation.
package copilot

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

const baseCommand = "npx -y @github/copilot@0.0.403"

// Copilot is the executor for the Copilot CLI.
type Copilot struct {
	AppendPrompt      executor.AppendPrompt `json:"append_prompt,omitempty"`
	Model             string                `json:"model,omitempty"`
	AllowAllTools     bool                  `json:"allow_all_tools,omitempty"`
	AllowTool         string                `json:"allow_tool,omitempty"`
	DenyTool          string                `json:"deny_tool,omitempty"`
	AddDirs           []string              `json:"add_dir,omitempty"`
	DisableMCPServers []string              `json:"disable_mcp_server,omitempty"`
	Overrides         command.Overrides     `json:"-"`
	Logger            logs.Logger           `json:"-"`

	gate approvals.Gate
}

// New creates a Copilot executor with defaults.
func New() *Copilot { return &Copilot{} }

func (c *Copilot) builder() (command.Builder, error) {
	b := command.NewBuilder(baseCommand)
	if c.AllowAllTools {
		b = b.ExtendParams("--allow-all-tools")
	}
	if c.Model != "" {
		b = b.ExtendParams("--model", c.Model)
	}
	if c.AllowTool != "" {
		b = b.ExtendParams("--allow-tool", c.AllowTool)
	}
	if c.DenyTool != "" {
		b = b.ExtendParams("--deny-tool", c.DenyTool)
	}
	for _, dir := range c.AddDirs {
		b = b.ExtendParams("--add-dir", dir)
	}
	for _, server := range c.DisableMCPServers {
		b = b.ExtendParams("--disable-mcp-server", server)
	}
	b = b.ExtendParams("--acp")
	return b.ApplyOverrides(c.Overrides)
}

// ApplyOverrides folds caller config into instance state.
func (c *Copilot) ApplyOverrides(cfg executor.Config) {
	if cfg.ModelID != "" {
		c.Model = cfg.ModelID
	}
	if cfg.PermissionPolicy != "" {
		c.AllowAllTools = cfg.PermissionPolicy == discovery.PermissionAuto
	}
}

// UseApprovals attaches the gate tool-permission requests route to.
func (c *Copilot) UseApprovals(gate approvals.Gate) { c.gate = gate }

// Spawn starts a fresh Copilot session.
func (c *Copilot) Spawn(ctx context.Context, req executor.SpawnRequest) (*spawn.Process, error) {
	ctx, span := telemetry.StartSpan(ctx, "copilot.spawn")
	defer span.End()
	return c.run(ctx, req, "")
}

// SpawnFollowUp resumes req.SessionID. Copilot has no message rewind;
// ResetMessageID is ignored.
func (c *Copilot) SpawnFollowUp(ctx context.Context, req executor.SpawnRequest) (*spawn.Process, error) {
	ctx, span := telemetry.StartSpan(ctx, "copilot.spawn_follow_up")
	defer span.End()
	return c.run(ctx, req, req.SessionID)
}

// SpawnReview starts a review pass, resuming req.SessionID when set.
func (c *Copilot) SpawnReview(ctx context.Context, req executor.SpawnRequest) (*spawn.Process, error) {
	ctx, span := telemetry.StartSpan(ctx, "copilot.spawn_review")
	defer span.End()
	return c.run(ctx, req, req.SessionID)
}

func (c *Copilot) run(ctx context.Context, req executor.SpawnRequest, sessionID string) (*spawn.Process, error) {
	b, err := c.builder()
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

	session, err := harness.Run(ctx, harness.Config{
		Program:     resolved.Program,
		Args:        resolved.Args,
		Dir:         req.Workdir,
		Env:         executor.OverlayEnv(req.Env, resolved.Env),
		Prompt:      c.AppendPrompt.Combine(req.Prompt),
		SessionID:   sessionID,
		AutoApprove: c.AllowAllTools,
		Store:       req.Store,
		Gate:        c.gate,
		Logger:      c.Logger,
	})
	if err != nil {
		return nil, err
	}
	return session.Process(), nil
}

// NormalizeLogs replays raw protocol output as canonical entries.
func (c *Copilot) NormalizeLogs(store *logs.Store, worktreePath string) {
	harness.NormalizeLogs(store, worktreePath)
}

// copilotModels is the fixed model list the CLI accepts; Copilot exposes no
// model-listing endpoint.
var copilotModels = [][2]string{
	{"gpt-5.2", "GPT-5.2"},
	{"gemini-3-pro-preview", "Gemini 3 Pro Preview"},
	{"claude-opus-4.5", "Claude Opus 4.5"},
	{"claude-sonnet-4.5", "Claude Sonnet 4.5"},
	{"claude-haiku-4.5", "Claude Haiku 4.5"},
	{"gpt-5.1-codex-max", "GPT-5.1 Codex Max"},
	{"gpt-5.1-codex", "GPT-5.1 Codex"},
	{"gpt-5", "GPT-5"},
	{"gpt-5.1", "GPT-5.1"},
	{"gpt-5.1-codex-mini", "GPT-5.1 Codex Mini"},
	{"gpt-5-mini", "GPT-5 Mini"},
	{"gpt-4.1", "GPT-4.1"},
	{"claude-sonnet-4", "Claude Sonnet 4"},
}

// DiscoverOptions yields the static capability set. Scope is irrelevant
// because nothing is probed.
func (c *Copilot) DiscoverOptions(ctx context.Context, scope discovery.Scope) (discovery.Stream, error) {
	models := make([]discovery.ModelInfo, len(copilotModels))
	for i, m := range copilotModels {
		models[i] = discovery.ModelInfo{ID: m[0], Name: m[1]}
	}
	options := discovery.Options{
		ModelSelector: discovery.ModelSelector{
			Models:      models,
			Permissions: []discovery.PermissionPolicy{discovery.PermissionAuto, discovery.PermissionSupervised},
		},
	}
	return discovery.Single(discovery.Replace(options)), nil
}

// GetAvailabilityInfo checks Copilot's config markers under the home dir.
func (c *Copilot) GetAvailabilityInfo() executor.AvailabilityInfo {
	home, err := os.UserHomeDir()
	if err != nil {
		return executor.NotFound
	}
	for _, marker := range []string{
		filepath.Join(home, ".copilot", "mcp-config.json"),
		filepath.Join(home, ".copilot", "config.json"),
	} {
		if _, err := os.Stat(marker); err == nil {
			return executor.InstallationFound
		}
	}
	return executor.NotFound
}

// GetPresetOptions reflects instance state back as a config.
func (c *Copilot) GetPresetOptions() executor.Config {
	policy := discovery.PermissionSupervised
	if c.AllowAllTools {
		policy = discovery.PermissionAuto
	}
	return executor.Config{
		Kind:             executor.KindCopilot,
		ModelID:          c.Model,
		PermissionPolicy: policy,
	}
}

// DefaultMCPConfigPath is Copilot's own MCP server config.
func (c *Copilot) DefaultMCPConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".copilot", "mcp-config.json")
}
