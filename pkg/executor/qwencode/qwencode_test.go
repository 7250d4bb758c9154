package qwencode

import (
	"context"
	"testing"

	"github.com/cexll/agentexec-go/pkg/discovery"
	"github.com/cexll/agentexec-go/pkg/executor"
)

func TestApplyOverridesRoundTrip(t *testing.T) {
	q := New()
	q.ApplyOverrides(executor.Config{
		ModelID:          "qwen3-coder-plus",
		AgentID:          "planner",
		PermissionPolicy: discovery.PermissionAuto,
	})
	preset := q.GetPresetOptions()
	if preset.Kind != executor.KindQwenCode {
		t.Fatalf("kind = %s", preset.Kind)
	}
	if preset.ModelID != "qwen3-coder-plus" || preset.AgentID != "planner" {
		t.Fatalf("preset = %+v", preset)
	}
	if preset.PermissionPolicy != discovery.PermissionAuto {
		t.Fatalf("policy = %s", preset.PermissionPolicy)
	}

	q.ApplyOverrides(executor.Config{PermissionPolicy: discovery.PermissionPlan})
	if got := q.GetPresetOptions().PermissionPolicy; got != discovery.PermissionSupervised {
		t.Fatalf("non-auto policy must read back as supervised, got %s", got)
	}
}

func TestBuilderFlags(t *testing.T) {
	q := New()
	q.Model = "qwen3-coder-plus"
	q.Yolo = true

	b, err := q.builder()
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	parts, err := b.BuildInitial()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []string{"-y", "@qwen-code/qwen-code@0.9.1", "--model", "qwen3-coder-plus", "--yolo", "--acp"}
	if len(parts.Args) != len(want) {
		t.Fatalf("args = %v", parts.Args)
	}
	for i := range want {
		if parts.Args[i] != want[i] {
			t.Fatalf("args = %v, want %v", parts.Args, want)
		}
	}
}

func TestDiscoverOptionsPermissionsOnly(t *testing.T) {
	q := New()
	stream, err := q.DiscoverOptions(context.Background(), discovery.Scope{Workdir: "/tmp"})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	options, err := discovery.Collect(context.Background(), stream)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(options.ModelSelector.Models) != 0 {
		t.Fatalf("models = %v, want none", options.ModelSelector.Models)
	}
	if len(options.ModelSelector.Permissions) != 2 {
		t.Fatalf("permissions = %v", options.ModelSelector.Permissions)
	}
}
