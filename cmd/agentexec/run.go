package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/cexll/agentexec-go/pkg/approvals"
	"github.com/cexll/agentexec-go/pkg/discovery"
	"github.com/cexll/agentexec-go/pkg/executor"
	"github.com/cexll/agentexec-go/pkg/executor/claudecode"
	"github.com/cexll/agentexec-go/pkg/executor/copilot"
	"github.com/cexll/agentexec-go/pkg/executor/opencode"
	"github.com/cexll/agentexec-go/pkg/executor/qwencode"
	"github.com/cexll/agentexec-go/pkg/logs"
	"github.com/cexll/agentexec-go/pkg/spawn"
)

// spawnFlags are the flags shared by run, resume, and review.
type spawnFlags struct {
	kind        string
	workdir     string
	model       string
	agent       string
	reasoning   string
	permissions string
	appendText  string
	raw         bool
}

func (f *spawnFlags) register(set *flag.FlagSet) {
	set.StringVar(&f.kind, "e", "", "Executor kind (CLAUDE_CODE, COPILOT, QWEN_CODE, OPENCODE). Required.")
	set.StringVar(&f.workdir, "C", ".", "Working directory the agent operates in.")
	set.StringVar(&f.model, "model", "", "Model override.")
	set.StringVar(&f.agent, "agent", "", "Agent/mode override.")
	set.StringVar(&f.reasoning, "reasoning", "", "Reasoning effort override.")
	set.StringVar(&f.permissions, "permissions", "", "Permission policy: auto, supervised, or plan.")
	set.StringVar(&f.appendText, "append-prompt", "", "Suffix combined with every non-slash prompt.")
	set.BoolVar(&f.raw, "raw", false, "Print raw subprocess lines instead of normalized entries.")
}

func runCommand(ctx context.Context, argv []string, registry *executor.Registry, streams ioStreams) error {
	set := flag.NewFlagSet("run", flag.ContinueOnError)
	set.SetOutput(streams.err)
	var flags spawnFlags
	flags.register(set)
	set.Usage = func() {
		fmt.Fprintln(streams.err, "Usage: agentexec run -e KIND [flags] \"prompt\"")
		fmt.Fprintln(streams.err, "\nFlags:")
		set.PrintDefaults()
		fmt.Fprintln(streams.err, "\nExamples:")
		fmt.Fprintln(streams.err, "  agentexec run -e CLAUDE_CODE \"fix the failing test\"")
		fmt.Fprintln(streams.err, "  agentexec run -e OPENCODE -model anthropic/claude-sonnet-4-5 -permissions supervised \"plan release\"")
	}
	if err := set.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	prompt := strings.TrimSpace(strings.Join(set.Args(), " "))
	if prompt == "" {
		return errors.New("run requires a prompt")
	}
	exec, err := buildExecutor(registry, flags)
	if err != nil {
		return err
	}
	return streamSession(ctx, streams, flags.raw, func(store *logs.Store) (*spawn.Process, error) {
		return exec.Spawn(ctx, executor.SpawnRequest{
			Workdir: flags.workdir,
			Prompt:  prompt,
			Store:   store,
		})
	})
}

// buildExecutor resolves the kind, folds flag overrides into a fresh
// instance, and attaches a terminal approval gate for supervised runs.
func buildExecutor(registry *executor.Registry, flags spawnFlags) (executor.Executor, error) {
	kind, err := executor.ParseKind(flags.kind)
	if err != nil {
		return nil, err
	}
	exec, err := registry.Get(kind)
	if err != nil {
		return nil, err
	}
	// Every spawn is also a use signal; refresh the discovery cache for this
	// kind in the background.
	registry.KeepWarm(kind)
	policy, err := parsePolicy(flags.permissions)
	if err != nil {
		return nil, err
	}
	exec.ApplyOverrides(executor.Config{
		ModelID:          flags.model,
		AgentID:          flags.agent,
		ReasoningID:      flags.reasoning,
		PermissionPolicy: policy,
	})
	if flags.appendText != "" {
		setAppendPrompt(exec, executor.AppendPrompt(flags.appendText))
	}
	if policy != "" && policy != discovery.PermissionAuto {
		exec.UseApprovals(terminalGate(os.Stdin, os.Stderr))
	}
	return exec, nil
}

// setAppendPrompt reaches the concrete executor because the suffix is not an
// override; it is instance configuration.
func setAppendPrompt(exec executor.Executor, suffix executor.AppendPrompt) {
	switch e := exec.(type) {
	case *claudecode.ClaudeCode:
		e.AppendPrompt = suffix
	case *copilot.Copilot:
		e.AppendPrompt = suffix
	case *qwencode.QwenCode:
		e.AppendPrompt = suffix
	case *opencode.Opencode:
		e.AppendPrompt = suffix
	}
}

func parsePolicy(name string) (discovery.PermissionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return "", nil
	case "auto":
		return discovery.PermissionAuto, nil
	case "supervised":
		return discovery.PermissionSupervised, nil
	case "plan":
		return discovery.PermissionPlan, nil
	default:
		return "", fmt.Errorf("unknown permission policy %q", name)
	}
}

// streamSession subscribes to the store before spawning so no entry is
// missed, prints entries as JSON lines, and maps the logical exit result to
// the process exit code.
func streamSession(ctx context.Context, streams ioStreams, raw bool, start func(*logs.Store) (*spawn.Process, error)) error {
	store := logs.NewStore()
	defer store.Close()
	entries, cancel := store.Subscribe(256)
	defer cancel()

	proc, err := start(store)
	if err != nil {
		return err
	}
	defer proc.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		encoder := json.NewEncoder(streams.out)
		encoder.SetEscapeHTML(false)
		for entry := range entries {
			if raw {
				continue
			}
			if err := encoder.Encode(entry); err != nil {
				return
			}
		}
	}()

	result, err := proc.ExitResult(ctx)
	if err != nil {
		proc.Cancel()
		return err
	}
	store.Close()
	<-done
	if raw {
		for _, line := range store.RawHistory() {
			fmt.Fprintln(streams.out, line.Line)
		}
	}
	if result != spawn.ResultSuccess {
		return fmt.Errorf("session finished: %s", result)
	}
	return nil
}

// terminalGate asks the operator to approve each tool use on the controlling
// terminal. Reads are serialized; concurrent requests queue up.
func terminalGate(in io.Reader, out io.Writer) approvals.Gate {
	reader := bufio.NewReader(in)
	var mu sync.Mutex
	return approvals.GateFunc(func(ctx context.Context, req approvals.Request) (approvals.Decision, error) {
		mu.Lock()
		defer mu.Unlock()
		detail := req.ToolName
		if len(req.Input) > 0 {
			detail += " " + string(req.Input)
		}
		fmt.Fprintf(out, "approve %s? [y/N] ", detail)
		line, err := reader.ReadString('\n')
		if err != nil {
			return approvals.Decision{Behavior: approvals.BehaviorDeny, Comment: "no answer"}, nil
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return approvals.Decision{Behavior: approvals.BehaviorAllow}, nil
		default:
			return approvals.Decision{Behavior: approvals.BehaviorDeny, Comment: "denied at terminal"}, nil
		}
	})
}
