package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/cexll/agentexec-go/pkg/executor"
	"github.com/cexll/agentexec-go/pkg/logs"
	"github.com/cexll/agentexec-go/pkg/spawn"
)

func resumeCommand(ctx context.Context, argv []string, registry *executor.Registry, streams ioStreams) error {
	set := flag.NewFlagSet("resume", flag.ContinueOnError)
	set.SetOutput(streams.err)
	var flags spawnFlags
	flags.register(set)
	var (
		sessionFlag = set.String("session", "", "Session to resume. Required.")
		resetFlag   = set.String("reset-to", "", "Rewind the session to this message ID before resuming, where supported.")
	)
	set.Usage = func() {
		fmt.Fprintln(streams.err, "Usage: agentexec resume -e KIND -session ID [flags] \"prompt\"")
		fmt.Fprintln(streams.err, "\nFlags:")
		set.PrintDefaults()
	}
	if err := set.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	prompt := strings.TrimSpace(strings.Join(set.Args(), " "))
	if prompt == "" {
		return errors.New("resume requires a prompt")
	}
	if *sessionFlag == "" {
		return errors.New("resume requires -session")
	}
	exec, err := buildExecutor(registry, flags)
	if err != nil {
		return err
	}
	return streamSession(ctx, streams, flags.raw, func(store *logs.Store) (*spawn.Process, error) {
		return exec.SpawnFollowUp(ctx, executor.SpawnRequest{
			Workdir:        flags.workdir,
			Prompt:         prompt,
			Store:          store,
			SessionID:      *sessionFlag,
			ResetMessageID: *resetFlag,
		})
	})
}
