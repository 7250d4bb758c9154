package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cexll/agentexec-go/pkg/discovery"
	"github.com/cexll/agentexec-go/pkg/executor"
	"github.com/cexll/agentexec-go/pkg/slashcmd"
)

func discoverCommand(ctx context.Context, argv []string, registry *executor.Registry, streams ioStreams) error {
	set := flag.NewFlagSet("discover", flag.ContinueOnError)
	set.SetOutput(streams.err)
	var (
		kindFlag    = set.String("e", "", "Executor kind to probe. Empty probes all registered kinds.")
		workdirFlag = set.String("C", "", "Working directory scope for per-project capabilities.")
		repoFlag    = set.String("repo", "", "Repository root scope.")
		streamFlag  = set.Bool("stream", false, "Print incremental patches instead of the final option set.")
		watchFlag   = set.Bool("watch", false, "Keep running; re-probe when command definitions change on disk. Requires -e.")
	)
	set.Usage = func() {
		fmt.Fprintln(streams.err, "Usage: agentexec discover [-e KIND] [flags]")
		fmt.Fprintln(streams.err, "\nFlags:")
		set.PrintDefaults()
	}
	if err := set.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	kinds := registry.Kinds()
	if *kindFlag != "" {
		kind, err := executor.ParseKind(*kindFlag)
		if err != nil {
			return err
		}
		kinds = []executor.Kind{kind}
	}
	if *watchFlag && len(kinds) != 1 {
		return errors.New("discover -watch requires -e")
	}
	scope := discovery.Scope{Workdir: *workdirFlag, RepoPath: *repoFlag}

	probe := func(kind executor.Kind) error {
		exec, err := registry.Get(kind)
		if err != nil {
			return err
		}
		stream, err := exec.DiscoverOptions(ctx, scope)
		if err != nil {
			return fmt.Errorf("discover %s: %w", kind, err)
		}
		if *streamFlag {
			encoder := json.NewEncoder(streams.out)
			for patch := range stream {
				if err := encoder.Encode(patch); err != nil {
					return err
				}
			}
			return nil
		}
		options, err := discovery.Collect(ctx, stream)
		if err != nil {
			return err
		}
		fmt.Fprintf(streams.out, "%s:\n", kind)
		encoder := json.NewEncoder(streams.out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(options)
	}

	for _, kind := range kinds {
		if err := probe(kind); err != nil {
			return err
		}
	}
	if !*watchFlag {
		return nil
	}
	return watchAndReprobe(ctx, kinds[0], *workdirFlag, probe, streams)
}

// watchAndReprobe blocks, re-running discovery whenever command or skill
// files change under the project or home command directories. Cached results
// for the kind are dropped first so the probe actually reaches the agent.
func watchAndReprobe(ctx context.Context, kind executor.Kind, workdir string, probe func(executor.Kind) error, streams ioStreams) error {
	var bases []string
	if workdir != "" {
		bases = append(bases, filepath.Join(workdir, ".claude"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		bases = append(bases, filepath.Join(home, ".claude"))
	}
	changed := make(chan struct{}, 1)
	watcher, err := slashcmd.WatchCommandDirs(bases, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}, nil)
	if err != nil {
		return fmt.Errorf("watch command dirs: %w", err)
	}
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
			discovery.SharedCache().InvalidateKind(string(kind))
			if err := probe(kind); err != nil {
				fmt.Fprintf(streams.err, "re-probe %s: %v\n", kind, err)
			}
		}
	}
}
