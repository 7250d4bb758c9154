package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/cexll/agentexec-go/pkg/approvals"
	"github.com/cexll/agentexec-go/pkg/discovery"
	"github.com/cexll/agentexec-go/pkg/executor"
	"github.com/cexll/agentexec-go/pkg/logs"
	"github.com/cexll/agentexec-go/pkg/spawn"
)

type fakeExecutor struct {
	availability executor.AvailabilityInfo
	mcpPath      string
	options      discovery.Options
	applied      []executor.Config
	discovered   chan struct{}
}

func (f *fakeExecutor) Spawn(ctx context.Context, req executor.SpawnRequest) (*spawn.Process, error) {
	return nil, errors.New("not spawnable in tests")
}

func (f *fakeExecutor) SpawnFollowUp(ctx context.Context, req executor.SpawnRequest) (*spawn.Process, error) {
	return nil, errors.New("not spawnable in tests")
}

func (f *fakeExecutor) ApplyOverrides(cfg executor.Config) {
	f.applied = append(f.applied, cfg)
}

func (f *fakeExecutor) UseApprovals(approvals.Gate) {}

func (f *fakeExecutor) NormalizeLogs(*logs.Store, string) {}

func (f *fakeExecutor) DiscoverOptions(ctx context.Context, scope discovery.Scope) (discovery.Stream, error) {
	if f.discovered != nil {
		select {
		case f.discovered <- struct{}{}:
		default:
		}
	}
	return discovery.Single(discovery.Replace(f.options)), nil
}

func (f *fakeExecutor) GetAvailabilityInfo() executor.AvailabilityInfo { return f.availability }

func (f *fakeExecutor) GetPresetOptions() executor.Config { return executor.Config{} }

func (f *fakeExecutor) DefaultMCPConfigPath() string { return f.mcpPath }

func testRegistry(fake *fakeExecutor) *executor.Registry {
	registry := executor.NewRegistry(nil)
	registry.Register(executor.KindClaudeCode, func() executor.Executor { return fake })
	return registry
}

func TestClassifyCommandArgs(t *testing.T) {
	var out bytes.Buffer
	err := classifyCommand([]string{"cat main.go", "curl https://example.com"}, ioStreams{out: &out, err: io.Discard})
	if err != nil {
		t.Fatalf("classifyCommand error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("output = %q", out.String())
	}
	if !strings.HasPrefix(lines[0], "read\t") || !strings.HasPrefix(lines[1], "fetch\t") {
		t.Fatalf("lines = %v", lines)
	}
}

func TestClassifyCommandUnwrap(t *testing.T) {
	var out bytes.Buffer
	err := classifyCommand([]string{"-unwrap", `bash -lc "grep -r TODO ."`}, ioStreams{out: &out, err: io.Discard})
	if err != nil {
		t.Fatalf("classifyCommand error: %v", err)
	}
	if !strings.Contains(out.String(), "search\tgrep -r TODO .") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestDoctorCommandReportsAvailability(t *testing.T) {
	fake := &fakeExecutor{availability: executor.InstallationFound, mcpPath: "/tmp/mcp.json"}
	var out bytes.Buffer
	err := doctorCommand(nil, testRegistry(fake), ioStreams{out: &out, err: io.Discard})
	if err != nil {
		t.Fatalf("doctorCommand error: %v", err)
	}
	output := out.String()
	if !strings.Contains(output, "CLAUDE_CODE") || !strings.Contains(output, "INSTALLATION_FOUND") {
		t.Fatalf("output = %q", output)
	}
	if !strings.Contains(output, "/tmp/mcp.json") {
		t.Fatalf("output = %q", output)
	}
}

func TestDoctorCommandFailsWhenNothingInstalled(t *testing.T) {
	fake := &fakeExecutor{availability: executor.NotFound}
	err := doctorCommand(nil, testRegistry(fake), ioStreams{out: io.Discard, err: io.Discard})
	if err == nil {
		t.Fatal("doctor must fail when no agent is installed")
	}
}

func TestDiscoverCommandPrintsOptions(t *testing.T) {
	fake := &fakeExecutor{options: discovery.Options{
		ModelSelector: discovery.ModelSelector{
			Models:       []discovery.ModelInfo{{ID: "sonnet", Name: "Sonnet"}},
			DefaultModel: "sonnet",
		},
	}}
	var out bytes.Buffer
	err := discoverCommand(context.Background(), []string{"-e", "CLAUDE_CODE"}, testRegistry(fake), ioStreams{out: &out, err: io.Discard})
	if err != nil {
		t.Fatalf("discoverCommand error: %v", err)
	}
	if !strings.Contains(out.String(), `"sonnet"`) {
		t.Fatalf("output = %q", out.String())
	}
}

func TestDiscoverCommandStreamMode(t *testing.T) {
	fake := &fakeExecutor{}
	var out bytes.Buffer
	err := discoverCommand(context.Background(), []string{"-e", "CLAUDE_CODE", "-stream"}, testRegistry(fake), ioStreams{out: &out, err: io.Discard})
	if err != nil {
		t.Fatalf("discoverCommand error: %v", err)
	}
	if !strings.Contains(out.String(), `"kind":"replace"`) {
		t.Fatalf("output = %q", out.String())
	}
}

func TestBuildExecutorAppliesOverrides(t *testing.T) {
	fake := &fakeExecutor{}
	_, err := buildExecutor(testRegistry(fake), spawnFlags{
		kind:        "CLAUDE_CODE",
		model:       "opus",
		permissions: "plan",
	})
	if err != nil {
		t.Fatalf("buildExecutor error: %v", err)
	}
	if len(fake.applied) != 1 {
		t.Fatalf("applied = %+v", fake.applied)
	}
	cfg := fake.applied[0]
	if cfg.ModelID != "opus" || cfg.PermissionPolicy != discovery.PermissionPlan {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestBuildExecutorWarmsDiscoveryCache(t *testing.T) {
	fake := &fakeExecutor{discovered: make(chan struct{}, 1)}
	if _, err := buildExecutor(testRegistry(fake), spawnFlags{kind: "CLAUDE_CODE"}); err != nil {
		t.Fatalf("buildExecutor error: %v", err)
	}
	select {
	case <-fake.discovered:
	case <-time.After(time.Second):
		t.Fatal("spawn path never refreshed the discovery cache")
	}
}

func TestBuildExecutorRejectsUnknownKind(t *testing.T) {
	_, err := buildExecutor(testRegistry(&fakeExecutor{}), spawnFlags{kind: "GEMINI"})
	if !errors.Is(err, executor.ErrUnknownKind) {
		t.Fatalf("err = %v", err)
	}
}

func TestBuildExecutorRejectsBadPolicy(t *testing.T) {
	_, err := buildExecutor(testRegistry(&fakeExecutor{}), spawnFlags{kind: "CLAUDE_CODE", permissions: "yolo"})
	if err == nil {
		t.Fatal("bad policy must be rejected")
	}
}

func TestTerminalGateDecisions(t *testing.T) {
	gate := terminalGate(strings.NewReader("y\nn\n"), io.Discard)
	req := approvals.NewRequest("s1", "bash", "", "execute", nil)

	decision, err := gate.RequestApproval(context.Background(), req)
	if err != nil {
		t.Fatalf("RequestApproval error: %v", err)
	}
	if decision.Behavior != approvals.BehaviorAllow {
		t.Fatalf("decision = %+v", decision)
	}

	decision, err = gate.RequestApproval(context.Background(), req)
	if err != nil {
		t.Fatalf("RequestApproval error: %v", err)
	}
	if decision.Behavior != approvals.BehaviorDeny {
		t.Fatalf("decision = %+v", decision)
	}

	// Exhausted input denies rather than errors.
	decision, err = gate.RequestApproval(context.Background(), req)
	if err != nil || decision.Behavior != approvals.BehaviorDeny {
		t.Fatalf("decision = %+v, err = %v", decision, err)
	}
}

func TestRunCLIUnknownCommand(t *testing.T) {
	err := runCLI(context.Background(), []string{"frobnicate"}, ioStreams{out: io.Discard, err: io.Discard})
	if err == nil {
		t.Fatal("unknown command must fail")
	}
}

func TestRunCommandRequiresPrompt(t *testing.T) {
	err := runCommand(context.Background(), []string{"-e", "CLAUDE_CODE"}, testRegistry(&fakeExecutor{}), ioStreams{out: io.Discard, err: io.Discard})
	if err == nil || !strings.Contains(err.Error(), "prompt") {
		t.Fatalf("err = %v", err)
	}
}
