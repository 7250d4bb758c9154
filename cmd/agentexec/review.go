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

func reviewCommand(ctx context.Context, argv []string, registry *executor.Registry, streams ioStreams) error {
	set := flag.NewFlagSet("review", flag.ContinueOnError)
	set.SetOutput(streams.err)
	var flags spawnFlags
	flags.register(set)
	sessionFlag := set.String("session", "", "Session to review within. Optional; a fresh session is used when empty.")
	set.Usage = func() {
		fmt.Fprintln(streams.err, "Usage: agentexec review -e KIND [flags] \"review instructions\"")
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
		return errors.New("review requires instructions")
	}
	exec, err := buildExecutor(registry, flags)
	if err != nil {
		return err
	}
	reviewer, ok := exec.(executor.Reviewer)
	if !ok {
		return fmt.Errorf("executor %s does not support review sessions", flags.kind)
	}
	return streamSession(ctx, streams, flags.raw, func(store *logs.Store) (*spawn.Process, error) {
		return reviewer.SpawnReview(ctx, executor.SpawnRequest{
			Workdir:   flags.workdir,
			Prompt:    prompt,
			Store:     store,
			SessionID: *sessionFlag,
		})
	})
}
