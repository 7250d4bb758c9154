// Package opencode runs OpenCode as a sidecar HTTP server. The CLI is
// spawned with `serve`; the executor waits for the listening URL on stdout,
// then drives sessions and capability probes over the server's API.
package opencode

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cexll/agentexec-go/pkg/approvals"
	"github.com/cexll/agentexec-go/pkg/command"
	"github.com/cexll/agentexec-go/pkg/discovery"
	"github.com/cexll/agentexec-go/pkg/executor"
	"github.com/cexll/agentexec-go/pkg/logs"
	"github.com/cexll/agentexec-go/pkg/slashcmd"
	"github.com/cexll/agentexec-go/pkg/spawn"
	"github.com/cexll/agentexec-go/pkg/telemetry"
)

const (
	baseCommand = "npx -y opencode-ai@1.1.59"
	// readyPrefix is the stdout line the server prints once listening.
	readyPrefix = "opencode server listening on "
	// readyTimeout bounds server startup; npx may need to download the CLI.
	readyTimeout = 180 * time.Second
)

// Opencode is the executor for the OpenCode CLI.
type Opencode struct {
	AppendPrompt executor.AppendPrompt `json:"append_prompt,omitempty"`
	Model        string                `json:"model,omitempty"`
	Variant      string                `json:"variant,omitempty"`
	Agent        string                `json:"agent,omitempty"`
	AutoApprove  bool                  `json:"auto_approve"`
	AutoCompact  bool                  `json:"auto_compact"`
	Overrides    command.Overrides     `json:"-"`
	Logger       logs.Logger           `json:"-"`

	gate approvals.Gate
}

// New creates an Opencode executor. Auto-approve and auto-compaction default
// on, matching the CLI's own headless defaults.
func New() *Opencode {
	return &Opencode{AutoApprove: true, AutoCompact: true}
}

func (o *Opencode) builder() (command.Builder, error) {
	// Hostname and port go as separate argv entries so the server treats
	// them as explicitly set.
	b := command.NewBuilder(baseCommand).
		ExtendParams("serve", "--hostname", "127.0.0.1", "--port", "0")
	return b.ApplyOverrides(o.Overrides)
}

// ApplyOverrides folds caller config into instance state. The reasoning id
// selects a model variant.
func (o *Opencode) ApplyOverrides(cfg executor.Config) {
	if cfg.ModelID != "" {
		o.Model = cfg.ModelID
	}
	if cfg.AgentID != "" {
		o.Agent = cfg.AgentID
	}
	if cfg.ReasoningID != "" {
		o.Variant = cfg.ReasoningID
	}
	if cfg.PermissionPolicy != "" {
		o.AutoApprove = cfg.PermissionPolicy == discovery.PermissionAuto
	}
}

// UseApprovals attaches the gate. Tool policy reaches the server through the
// permission env; the gate is retained for callers that inspect it.
func (o *Opencode) UseApprovals(gate approvals.Gate) { o.gate = gate }

// server is one spawned sidecar with its negotiated base URL.
type server struct {
	proc     *spawn.Process
	baseURL  string
	password string
}

// spawnServer launches the sidecar and waits for its listening URL. On error
// the process has already been cleaned up.
func (o *Opencode) spawnServer(ctx context.Context, dir string, env map[string]string, store *logs.Store) (*server, error) {
	b, err := o.builder()
	if err != nil {
		return nil, err
	}
	parts, err := b.BuildInitial()
	if err != nil {
		return nil, err
	}
	resolved, err := parts.Resolve()
	if err != nil {
		return nil, err
	}

	password := uuid.NewString()
	spawnEnv := executor.OverlayEnv(env, resolved.Env)
	spawnEnv = executor.OverlayEnv(spawnEnv, map[string]string{
		"NPM_CONFIG_LOGLEVEL":      "error",
		"NODE_NO_WARNINGS":         "1",
		"NO_COLOR":                 "1",
		"OPENCODE_SERVER_USERNAME": serverUsername,
		"OPENCODE_SERVER_PASSWORD": password,
	})

	proc, err := spawn.Start(spawn.Spec{
		Program: resolved.Program,
		Args:    resolved.Args,
		Dir:     dir,
		Env:     spawnEnv,
		Logger:  o.Logger,
	})
	if err != nil {
		return nil, err
	}

	baseURL, err := proc.WaitForReadyLine(ctx, spawn.ReadyConfig{
		Timeout: readyTimeout,
		Store:   store,
		Match: func(line string) (string, bool) {
			if rest, ok := strings.CutPrefix(strings.TrimSpace(line), readyPrefix); ok {
				return strings.TrimSpace(rest), true
			}
			return "", false
		},
	})
	if err != nil {
		proc.Close()
		return nil, err
	}
	return &server{proc: proc, baseURL: baseURL, password: password}, nil
}

// Spawn starts the sidecar and runs a fresh session against it.
func (o *Opencode) Spawn(ctx context.Context, req executor.SpawnRequest) (*spawn.Process, error) {
	ctx, span := telemetry.StartSpan(ctx, "opencode.spawn")
	defer span.End()
	return o.run(ctx, req, "")
}

// SpawnFollowUp resumes req.SessionID on a fresh sidecar. OpenCode has no
// message rewind; ResetMessageID is ignored.
func (o *Opencode) SpawnFollowUp(ctx context.Context, req executor.SpawnRequest) (*spawn.Process, error) {
	ctx, span := telemetry.StartSpan(ctx, "opencode.spawn_follow_up")
	defer span.End()
	return o.run(ctx, req, req.SessionID)
}

func (o *Opencode) run(ctx context.Context, req executor.SpawnRequest, sessionID string) (*spawn.Process, error) {
	prompt := o.AppendPrompt.Combine(req.Prompt)
	env := permissionEnv(o.AutoApprove, req.Env)
	env = compactionEnv(o.AutoCompact, env)

	store := req.Store
	if store == nil {
		store = logs.NewStore()
	}

	srv, err := o.spawnServer(ctx, req.Workdir, env, store)
	if err != nil {
		return nil, err
	}

	go o.converse(ctx, srv, req.Workdir, prompt, sessionID, store)
	return srv.proc, nil
}

// converse drives one prompt turn over the sidecar's API and signals the
// logical outcome on the process.
func (o *Opencode) converse(ctx context.Context, srv *server, dir, prompt, sessionID string, store *logs.Store) {
	logger := logs.OrNop(o.Logger)
	fail := func(err error) {
		logger.Printf("opencode: %v", err)
		store.Push(logs.Entry{Type: logs.EntryError, Content: err.Error(), SessionID: sessionID})
		srv.proc.SignalExit(spawn.ResultFailure)
	}

	c := newClient(srv.baseURL, dir, srv.password)
	if sessionID == "" {
		id, err := c.createSession(ctx)
		if err != nil {
			fail(fmt.Errorf("create session: %w", err))
			return
		}
		sessionID = id
	}
	store.Push(logs.Entry{Type: logs.EntryInit, SessionID: sessionID})

	resp, err := c.sendMessage(ctx, sessionID, prompt, o.Model, o.Agent, o.Variant)
	if err != nil {
		fail(fmt.Errorf("send message: %w", err))
		return
	}
	for _, entry := range convertParts(resp.Parts, sessionID) {
		store.Push(entry)
	}
	if len(resp.Info.Error) > 0 && string(resp.Info.Error) != "null" {
		fail(fmt.Errorf("assistant error: %s", resp.Info.Error))
		return
	}
	store.Push(logs.Entry{Type: logs.EntryFinished, Content: "end_turn", SessionID: sessionID})
	srv.proc.SignalExit(spawn.ResultSuccess)
}

// convertParts maps assistant message parts to canonical entries.
func convertParts(parts []messagePart, sessionID string) []logs.Entry {
	var entries []logs.Entry
	for _, part := range parts {
		switch part.Type {
		case "text":
			entries = append(entries, logs.Entry{Type: logs.EntryText, Content: part.Text, SessionID: sessionID})
		case "reasoning":
			entries = append(entries, logs.Entry{Type: logs.EntryThinking, Content: part.Text, SessionID: sessionID})
		case "tool":
			entry := logs.Entry{
				Type:      logs.EntryToolUse,
				Tool:      &logs.ToolCall{Name: part.Tool, Input: part.State.Input},
				SessionID: sessionID,
			}
			if part.State.Status == "completed" {
				entry.Type = logs.EntryToolResult
				output, _ := json.Marshal(part.State.Output)
				entry.Tool.Output = output
			} else if part.State.Status == "error" {
				entry = logs.Entry{
					Type:      logs.EntryError,
					Content:   "tool " + part.Tool + ": " + part.State.Error,
					SessionID: sessionID,
				}
			}
			entries = append(entries, entry)
		}
	}
	return entries
}

// NormalizeLogs is a no-op for the sidecar path: entries are produced from
// API responses, never re-derived from raw output.
func (o *Opencode) NormalizeLogs(store *logs.Store, worktreePath string) {}

// hardcodedCommands are the slash commands the CLI always provides.
func hardcodedCommands() []slashcmd.Command {
	return []slashcmd.Command{
		{Name: "compact", Description: "Summarize the session into a fresh context"},
		{Name: "init", Description: "Create or update AGENTS.md with project notes"},
		{Name: "undo", Description: "Undo the last message and its file changes"},
		{Name: "redo", Description: "Redo a previously undone message"},
		{Name: "share", Description: "Share the current session"},
		{Name: "unshare", Description: "Stop sharing the current session"},
	}
}

func defaultOptions() discovery.Options {
	return discovery.Options{
		ModelSelector: discovery.ModelSelector{
			Permissions: []discovery.PermissionPolicy{discovery.PermissionAuto, discovery.PermissionSupervised},
		},
		SlashCommands: slashcmd.Reorder(hardcodedCommands()),
	}
}

// mapAgents converts server-reported agents; "sisyphus" is preferred as the
// default when installed, otherwise "build".
func mapAgents(agents []agentEntry) []discovery.AgentInfo {
	defaultName := "build"
	for _, a := range agents {
		if strings.EqualFold(a.Name, "sisyphus") {
			defaultName = "sisyphus"
			break
		}
	}
	out := make([]discovery.AgentInfo, len(agents))
	for i, a := range agents {
		out[i] = discovery.AgentInfo{
			ID:          a.Name,
			Label:       discovery.FormatAgentLabel(a.Name),
			Description: a.Description,
			IsDefault:   strings.EqualFold(a.Name, defaultName),
		}
	}
	return out
}

// GetAvailabilityInfo checks OpenCode's XDG and home markers.
func (o *Opencode) GetAvailabilityInfo() executor.AvailabilityInfo {
	if p := o.DefaultMCPConfigPath(); p != "" {
		if _, err := os.Stat(p); err == nil {
			return executor.InstallationFound
		}
	}
	for _, dir := range installDirs() {
		if _, err := os.Stat(dir); err == nil {
			return executor.InstallationFound
		}
	}
	return executor.NotFound
}

// installDirs lists the directories whose presence indicates an OpenCode
// installation: XDG config/data/state dirs plus the legacy CLI home.
func installDirs() []string {
	var dirs []string
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	dirs = append(dirs, filepath.Join(xdgDir("XDG_CONFIG_HOME", filepath.Join(home, ".config")), "opencode"))
	dirs = append(dirs, filepath.Join(xdgDir("XDG_DATA_HOME", filepath.Join(home, ".local", "share")), "opencode"))
	dirs = append(dirs, filepath.Join(xdgDir("XDG_STATE_HOME", filepath.Join(home, ".local", "state")), "opencode"))
	dirs = append(dirs, filepath.Join(home, ".opencode"))
	return dirs
}

func xdgDir(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

// GetPresetOptions reflects instance state back as a config.
func (o *Opencode) GetPresetOptions() executor.Config {
	policy := discovery.PermissionSupervised
	if o.AutoApprove {
		policy = discovery.PermissionAuto
	}
	return executor.Config{
		Kind:             executor.KindOpencode,
		ModelID:          o.Model,
		AgentID:          o.Agent,
		ReasoningID:      o.Variant,
		PermissionPolicy: policy,
	}
}

// DefaultMCPConfigPath prefers opencode.json, falling back to the jsonc
// variant whether or not it exists yet.
func (o *Opencode) DefaultMCPConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	configDir := filepath.Join(xdgDir("XDG_CONFIG_HOME", filepath.Join(home, ".config")), "opencode")
	jsonPath := filepath.Join(configDir, "opencode.json")
	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath
	}
	return filepath.Join(configDir, "opencode.jsonc")
}
