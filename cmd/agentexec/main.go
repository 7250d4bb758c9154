package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cexll/agentexec-go/pkg/executor"
	"github.com/cexll/agentexec-go/pkg/executor/claudecode"
	"github.com/cexll/agentexec-go/pkg/executor/copilot"
	"github.com/cexll/agentexec-go/pkg/executor/opencode"
	"github.com/cexll/agentexec-go/pkg/executor/qwencode"
	"github.com/cexll/agentexec-go/pkg/logs"
	"github.com/cexll/agentexec-go/pkg/telemetry"
)

// ioStreams wires stdout/stderr for commands and becomes injectable in tests.
type ioStreams struct {
	out io.Writer
	err io.Writer
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	streams := ioStreams{out: os.Stdout, err: os.Stderr}
	if err := runCLI(ctx, os.Args[1:], streams); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(streams.err, err)
		}
		os.Exit(1)
	}
}

func runCLI(ctx context.Context, argv []string, streams ioStreams) error {
	global := flag.NewFlagSet("agentexec", flag.ContinueOnError)
	global.SetOutput(streams.err)
	var (
		verbose  = global.Bool("v", false, "Log executor internals to stderr.")
		otlpAddr = global.String("otlp-endpoint", "", "OTLP/HTTP collector endpoint (host:port). Empty disables trace export.")
		warm     = global.Bool("warm-cache", false, "Refresh discovery caches for all executors in the background.")
	)
	global.Usage = func() {
		fmt.Fprintln(streams.err, "agentexec - coding agent execution harness")
		fmt.Fprintln(streams.err, "\nUsage:")
		fmt.Fprintln(streams.err, "  agentexec [global flags] <command> [args]")
		fmt.Fprintln(streams.err, "\nCommands:")
		fmt.Fprintln(streams.err, "  run       Start a fresh agent session with a prompt")
		fmt.Fprintln(streams.err, "  resume    Follow up an existing session")
		fmt.Fprintln(streams.err, "  review    Start a review pass")
		fmt.Fprintln(streams.err, "  discover  Probe an agent for models, agents, and slash commands")
		fmt.Fprintln(streams.err, "  classify  Categorize shell command lines")
		fmt.Fprintln(streams.err, "  doctor    Report which agents look installed")
		fmt.Fprintln(streams.err, "\nGlobal Flags:")
		global.PrintDefaults()
		fmt.Fprintln(streams.err, "\nRun 'agentexec <command> -h' for command-specific usage.")
	}
	if err := global.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	args := global.Args()
	if len(args) == 0 {
		global.Usage()
		return fmt.Errorf("missing command")
	}

	var logger logs.Logger = logs.NopLogger
	if *verbose {
		logger = log.New(streams.err, "agentexec: ", log.Ltime)
	}
	if *otlpAddr != "" {
		manager, err := telemetry.NewManager(ctx, telemetry.Config{
			ServiceName: "agentexec",
			Endpoint:    *otlpAddr,
			Insecure:    true,
		})
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer manager.Shutdown(context.Background())
	}
	registry := newRegistry(logger)
	if *warm {
		registry.PreloadAll()
	}

	sub := args[0]
	rest := args[1:]
	switch sub {
	case "run":
		return runCommand(ctx, rest, registry, streams)
	case "resume":
		return resumeCommand(ctx, rest, registry, streams)
	case "review":
		return reviewCommand(ctx, rest, registry, streams)
	case "discover":
		return discoverCommand(ctx, rest, registry, streams)
	case "classify":
		return classifyCommand(rest, streams)
	case "doctor":
		return doctorCommand(rest, registry, streams)
	case "help", "-h", "--help":
		global.Usage()
		return nil
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", sub)
	}
}

// newRegistry wires every supported agent integration. Factories return fresh
// instances because overrides mutate executor state.
func newRegistry(logger logs.Logger) *executor.Registry {
	registry := executor.NewRegistry(logger)
	registry.Register(executor.KindClaudeCode, func() executor.Executor {
		c := claudecode.New()
		c.Logger = logger
		return c
	})
	registry.Register(executor.KindCopilot, func() executor.Executor {
		c := copilot.New()
		c.Logger = logger
		return c
	})
	registry.Register(executor.KindQwenCode, func() executor.Executor {
		q := qwencode.New()
		q.Logger = logger
		return q
	})
	registry.Register(executor.KindOpencode, func() executor.Executor {
		o := opencode.New()
		o.Logger = logger
		return o
	})
	return registry
}
