package executor

import (
	"errors"
	"testing"

	"github.com/cexll/agentexec-go/pkg/logs"
)

func TestParseKind(t *testing.T) {
	for _, name := range []string{"CLAUDE_CODE", "COPILOT", "QWEN_CODE", "OPENCODE"} {
		kind, err := ParseKind(name)
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", name, err)
		}
		if string(kind) != name {
			t.Fatalf("ParseKind(%q) = %q", name, kind)
		}
	}
	if _, err := ParseKind("GEMINI"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("ParseKind(GEMINI) err = %v, want ErrUnknownKind", err)
	}
	if _, err := ParseKind("claude_code"); err == nil {
		t.Fatal("kind names are case sensitive")
	}
}

func TestAppendPromptCombine(t *testing.T) {
	a := AppendPrompt("Always run the tests.")
	if got := a.Combine("fix the bug"); got != "fix the bug\n\nAlways run the tests." {
		t.Fatalf("Combine = %q", got)
	}
	if got := a.Combine("/compact now"); got != "/compact now" {
		t.Fatalf("slash command must pass through verbatim, got %q", got)
	}
	if got := AppendPrompt("").Combine("fix the bug"); got != "fix the bug" {
		t.Fatalf("empty suffix must be a no-op, got %q", got)
	}
}

func TestRegistryGet(t *testing.T) {
	r := NewRegistry(logs.NopLogger)

	built := 0
	r.Register(KindOpencode, func() Executor {
		built++
		return nil
	})

	if _, err := r.Get(KindOpencode); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := r.Get(KindOpencode); err != nil {
		t.Fatalf("get: %v", err)
	}
	if built != 2 {
		t.Fatalf("factory invoked %d times, want a fresh instance per Get", built)
	}

	if _, err := r.Get(KindCopilot); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("unregistered kind err = %v, want ErrUnknownKind", err)
	}
}

func TestRegistryKindsSorted(t *testing.T) {
	r := NewRegistry(logs.NopLogger)
	r.Register(KindQwenCode, func() Executor { return nil })
	r.Register(KindClaudeCode, func() Executor { return nil })
	r.Register(KindCopilot, func() Executor { return nil })

	kinds := r.Kinds()
	want := []Kind{KindClaudeCode, KindCopilot, KindQwenCode}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", kinds, want)
		}
	}
}
