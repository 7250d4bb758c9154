package slashcmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	cases := []struct {
		prompt   string
		wantOK   bool
		wantName string
		wantArgs string
	}{
		{"/compact extra args", true, "compact", "extra args"},
		{"  /Review", true, "review", ""},
		{"/compact", true, "compact", ""},
		{"/compact   trailing   ", true, "compact", "trailing"},
		{"not a command", false, "", ""},
		{"/", false, "", ""},
		{"/   ", false, "", ""},
		{"", false, "", ""},
	}
	for _, tc := range cases {
		call, ok := Parse(tc.prompt)
		if ok != tc.wantOK {
			t.Errorf("Parse(%q) ok = %v, want %v", tc.prompt, ok, tc.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if call.Name != tc.wantName || call.Arguments != tc.wantArgs {
			t.Errorf("Parse(%q) = {%q %q}, want {%q %q}", tc.prompt, call.Name, call.Arguments, tc.wantName, tc.wantArgs)
		}
	}
}

func TestReorder(t *testing.T) {
	in := []Command{{Name: "foo"}, {Name: "review"}, {Name: "compact"}, {Name: "bar"}}
	got := Reorder(in)
	want := []string{"compact", "review", "foo", "bar"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Fatalf("got[%d] = %s, want %s", i, got[i].Name, name)
		}
	}
}

func TestReorderWithoutSpecialCommands(t *testing.T) {
	in := []Command{{Name: "b"}, {Name: "a"}}
	got := Reorder(in)
	if got[0].Name != "b" || got[1].Name != "a" {
		t.Fatalf("relative order changed: %+v", got)
	}
}

func TestDedupe(t *testing.T) {
	names := []string{"foo", "", "compact", "foo", "bar"}
	got := Dedupe(names, ClaudeBuiltins())
	if len(got) != 2 || got[0] != "foo" || got[1] != "bar" {
		t.Fatalf("got %v, want [foo bar]", got)
	}
}

func TestExtractDescription(t *testing.T) {
	cases := []struct {
		content string
		want    string
	}{
		{"---\ndescription: Run the linter\n---\nbody", "Run the linter"},
		{"---\nname: x\ndescription: Multi word description\n---\n", "Multi word description"},
		{"no frontmatter here", ""},
		{"---\nname: x\n---\n", ""},
		{"---\nunterminated", ""},
	}
	for _, tc := range cases {
		if got := ExtractDescription(tc.content); got != tc.want {
			t.Errorf("ExtractDescription(%q) = %q, want %q", tc.content, got, tc.want)
		}
	}
}

func TestDiscoverDescriptions(t *testing.T) {
	project := t.TempDir()
	commandsDir := filepath.Join(project, ".claude", "commands")
	if err := os.MkdirAll(commandsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	write := func(path, content string) {
		t.Helper()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(filepath.Join(commandsDir, "deploy.md"), "---\ndescription: Deploy the service\n---\n")
	write(filepath.Join(commandsDir, "nodesc.md"), "just a body")
	write(filepath.Join(project, ".claude", "skills", "triage", "SKILL.md"), "---\ndescription: Triage an incident\n---\n")

	pluginDir := t.TempDir()
	write(filepath.Join(pluginDir, "commands", "lint.md"), "---\ndescription: Run plugin lint\n---\n")

	got := DiscoverDescriptions(project, []Plugin{{Name: "tools", Path: pluginDir}}, nil)

	if got["deploy"] != "Deploy the service" {
		t.Errorf("deploy = %q", got["deploy"])
	}
	if got["triage"] != "Triage an incident" {
		t.Errorf("triage = %q", got["triage"])
	}
	if got["tools:lint"] != "Run plugin lint" {
		t.Errorf("tools:lint = %q", got["tools:lint"])
	}
	if _, ok := got["nodesc"]; ok {
		t.Error("file without description must not contribute an entry")
	}
}

func TestFillDescriptions(t *testing.T) {
	commands := []Command{{Name: "deploy"}, {Name: "keep", Description: "existing"}}
	got := FillDescriptions(commands, map[string]string{"deploy": "Deploy the service"})
	if got[0].Description != "Deploy the service" {
		t.Fatalf("deploy description = %q", got[0].Description)
	}
	if got[1].Description != "existing" {
		t.Fatalf("existing description lost: %q", got[1].Description)
	}
}

func TestWatcherFiresOnChange(t *testing.T) {
	base := t.TempDir()
	commandsDir := filepath.Join(base, "commands")
	if err := os.MkdirAll(commandsDir, 0o755); err != nil {
		t.Fatal(err)
	}

	fired := make(chan struct{}, 1)
	w, err := WatchCommandDirs([]string{base}, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(commandsDir, "new.md"), []byte("---\ndescription: x\n---\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never fired after file creation")
	}
}
