package main

import (
	"errors"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/cexll/agentexec-go/pkg/executor"
	"github.com/cexll/agentexec-go/pkg/executor/qwencode"
	"github.com/cexll/agentexec-go/pkg/harness"
)

func doctorCommand(argv []string, registry *executor.Registry, streams ioStreams) error {
	set := flag.NewFlagSet("doctor", flag.ContinueOnError)
	set.SetOutput(streams.err)
	sessions := set.Bool("sessions", false, "List recorded session ids per executor, newest first.")
	set.Usage = func() {
		fmt.Fprintln(streams.err, "Usage: agentexec doctor [flags]")
		fmt.Fprintln(streams.err, "\nFlags:")
		set.PrintDefaults()
	}
	if err := set.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	w := tabwriter.NewWriter(streams.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EXECUTOR\tAVAILABILITY\tMCP CONFIG")
	anyFound := false
	for _, kind := range registry.Kinds() {
		exec, err := registry.Get(kind)
		if err != nil {
			return err
		}
		info := exec.GetAvailabilityInfo()
		if info == executor.InstallationFound {
			anyFound = true
		}
		path := exec.DefaultMCPConfigPath()
		if path == "" {
			path = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", kind, info, path)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if *sessions {
		dir := qwencode.New().SessionDir()
		ids, err := harness.ListSessions(dir)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		fmt.Fprintf(streams.out, "\n%s sessions (%s):\n", executor.KindQwenCode, dir)
		if len(ids) == 0 {
			fmt.Fprintln(streams.out, "  none recorded")
		}
		for _, id := range ids {
			fmt.Fprintf(streams.out, "  %s\n", id)
		}
	}

	if !anyFound {
		return errors.New("no coding agents found; install one and re-run")
	}
	return nil
}
