package claudecode

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cexll/agentexec-go/pkg/discovery"
	"github.com/cexll/agentexec-go/pkg/executor"
	"github.com/cexll/agentexec-go/pkg/logs"
)

func TestApplyOverridesRoundTrip(t *testing.T) {
	cases := []struct {
		policy discovery.PermissionPolicy
	}{
		{discovery.PermissionAuto},
		{discovery.PermissionSupervised},
		{discovery.PermissionPlan},
	}
	for _, tc := range cases {
		c := New()
		c.ApplyOverrides(executor.Config{ModelID: "opus", PermissionPolicy: tc.policy})
		preset := c.GetPresetOptions()
		if preset.ModelID != "opus" {
			t.Fatalf("model = %q", preset.ModelID)
		}
		if preset.PermissionPolicy != tc.policy {
			t.Fatalf("policy = %s, want %s", preset.PermissionPolicy, tc.policy)
		}
	}
}

func TestBuilderFlags(t *testing.T) {
	c := New()
	c.Model = "sonnet"
	c.SkipPermissions = true

	b, err := c.builder()
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	parts, err := b.BuildFollowUp([]string{"--resume", "sess-1"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []string{"-y", "@anthropic-ai/claude-code@latest", "-p", "--verbose",
		"--output-format=stream-json", "--model", "sonnet", "--dangerously-skip-permissions",
		"--resume", "sess-1"}
	if len(parts.Args) != len(want) {
		t.Fatalf("args = %v", parts.Args)
	}
	for i := range want {
		if parts.Args[i] != want[i] {
			t.Fatalf("args = %v, want %v", parts.Args, want)
		}
	}
}

func TestParseInit(t *testing.T) {
	raw := json.RawMessage(`{"type":"system","subtype":"init","session_id":"s1","model":"sonnet",` +
		`"slash_commands":["compact","deploy"],"agents":["general-purpose","statusline-setup"],` +
		`"plugins":[{"name":"tools","path":"/p/tools"}]}`)
	init := parseInit(raw)
	if init == nil {
		t.Fatal("init is nil")
	}
	if init.SessionID != "s1" || len(init.SlashCommands) != 2 || len(init.Agents) != 2 {
		t.Fatalf("init = %+v", init)
	}
	if init.Plugins[0].Name != "tools" {
		t.Fatalf("plugins = %+v", init.Plugins)
	}

	if parseInit(json.RawMessage(`{"type":"system","subtype":"status"}`)) != nil {
		t.Fatal("non-init system event must not parse as init")
	}
}

func TestConvertEventAssistantBlocks(t *testing.T) {
	raw := json.RawMessage(`{"type":"assistant","session_id":"s1","message":{"content":[` +
		`{"type":"text","text":"hello"},` +
		`{"type":"thinking","thinking":"hmm"},` +
		`{"type":"tool_use","id":"t1","name":"Bash","input":{"command":"ls"}}]}}`)
	entries := convertEvent(raw)
	if len(entries) != 3 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Type != logs.EntryText || entries[0].Content != "hello" {
		t.Fatalf("entry 0 = %+v", entries[0])
	}
	if entries[1].Type != logs.EntryThinking || entries[1].Content != "hmm" {
		t.Fatalf("entry 1 = %+v", entries[1])
	}
	if entries[2].Type != logs.EntryToolUse || entries[2].Tool.Name != "Bash" || entries[2].Tool.CallID != "t1" {
		t.Fatalf("entry 2 = %+v", entries[2])
	}
}

func TestConvertEventResult(t *testing.T) {
	success := convertEvent(json.RawMessage(`{"type":"result","subtype":"success","is_error":false}`))
	if len(success) != 1 || success[0].Type != logs.EntryFinished {
		t.Fatalf("success = %+v", success)
	}
	failure := convertEvent(json.RawMessage(`{"type":"result","subtype":"error_max_turns","is_error":true}`))
	if len(failure) != 1 || failure[0].Type != logs.EntryError {
		t.Fatalf("failure = %+v", failure)
	}
}

func TestConvertEventUnknownIgnored(t *testing.T) {
	if entries := convertEvent(json.RawMessage(`{"type":"stream_event","event":{}}`)); entries != nil {
		t.Fatalf("unknown event must yield nothing, got %+v", entries)
	}
}

func TestNormalizeLogsReplaysRawHistory(t *testing.T) {
	store := logs.NewStore()
	store.PushRawLine(logs.SourceStdout, `{"type":"assistant","message":{"content":[{"type":"text","text":"done"}]}}`)
	store.PushRawLine(logs.SourceStdout, "not json at all")
	store.PushRawLine(logs.SourceStderr, `{"type":"assistant"}`)

	New().NormalizeLogs(store, "/work")

	history := store.History()
	if len(history) != 1 {
		t.Fatalf("history = %+v", history)
	}
	if history[0].Type != logs.EntryText || history[0].Content != "done" {
		t.Fatalf("entry = %+v", history[0])
	}
}

func TestMapAgents(t *testing.T) {
	agents := mapAgents([]string{"general-purpose", "statusline-setup", "feature:code-reviewer"})
	if len(agents) != 2 {
		t.Fatalf("agents = %+v", agents)
	}
	if !agents[0].IsDefault {
		t.Fatal("general-purpose must be the default")
	}
	if agents[1].Label != "feature: Code Reviewer" {
		t.Fatalf("label = %q", agents[1].Label)
	}
}

func TestMapAgentsDropsEmptyAndRepeated(t *testing.T) {
	agents := mapAgents([]string{"", "general-purpose", "general-purpose", "reviewer", "", "reviewer"})
	if len(agents) != 2 {
		t.Fatalf("agents = %+v", agents)
	}
	if agents[0].ID != "general-purpose" || agents[1].ID != "reviewer" {
		t.Fatalf("agents = %+v", agents)
	}
}

func TestStreamFacetsDegradesWhenProbeFails(t *testing.T) {
	failing := func(context.Context, string) (*initEvent, error) {
		return nil, errors.New("agent binary missing")
	}
	stream := discovery.Generate(context.Background(), func(emit func(discovery.Patch)) {
		New().streamFacets(context.Background(), t.TempDir(), logs.NopLogger, failing, emit)
	})
	options, err := discovery.Collect(context.Background(), stream)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	// The fixed model facet must survive a failed probe.
	if len(options.ModelSelector.Models) != 3 || options.ModelSelector.DefaultModel != "sonnet" {
		t.Fatalf("selector = %+v", options.ModelSelector)
	}
	if len(options.ModelSelector.Agents) != 0 {
		t.Fatalf("agents = %+v, want defaults only", options.ModelSelector.Agents)
	}
	want := defaultOptions().SlashCommands
	if len(options.SlashCommands) != len(want) || options.SlashCommands[0].Name != want[0].Name {
		t.Fatalf("commands = %+v", options.SlashCommands)
	}
	if options.LoadingModels || options.LoadingAgents || options.LoadingSlashCommands {
		t.Fatalf("loading flags not cleared: %+v", options)
	}
	if options.Error != "" {
		t.Fatalf("degraded discovery must not error the stream: %q", options.Error)
	}
}

func TestDefaultOptionsShape(t *testing.T) {
	options := defaultOptions()
	if options.ModelSelector.DefaultModel != "sonnet" {
		t.Fatalf("default model = %q", options.ModelSelector.DefaultModel)
	}
	if len(options.ModelSelector.Permissions) != 3 {
		t.Fatalf("permissions = %v", options.ModelSelector.Permissions)
	}
	if options.SlashCommands[0].Name != "compact" || options.SlashCommands[1].Name != "review" {
		t.Fatalf("command order = %+v", options.SlashCommands[:2])
	}
}
