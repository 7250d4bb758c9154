package opencode

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cexll/agentexec-go/pkg/discovery"
	"github.com/cexll/agentexec-go/pkg/executor"
	"github.com/cexll/agentexec-go/pkg/logs"
	"github.com/cexll/agentexec-go/pkg/slashcmd"
	"github.com/cexll/agentexec-go/pkg/telemetry"
)

// DiscoverOptions spawns a sidecar and probes its capability endpoints in
// parallel. Cached results are served immediately; otherwise a provisional
// patch precedes the live probes, each facet landing as its request returns.
// A failed facet is logged and keeps its default; it never halts the stream.
func (o *Opencode) DiscoverOptions(ctx context.Context, scope discovery.Scope) (discovery.Stream, error) {
	cache := discovery.SharedCache()
	cmdKey := o.Overrides.Key()

	lookup := cache.Resolve(string(executor.KindOpencode), cmdKey, scope, defaultOptions())
	if lookup.Fresh {
		return discovery.Single(discovery.Replace(lookup.Hit)), nil
	}

	logger := logs.OrNop(o.Logger)
	probeDir := scope.Workdir
	if probeDir == "" {
		probeDir = scope.RepoPath
	}
	if probeDir == "" {
		probeDir = "."
	}

	return discovery.Generate(ctx, func(emit func(discovery.Patch)) {
		ctx, span := telemetry.StartSpan(ctx, "opencode.discover")
		defer span.End()

		emit(discovery.Replace(lookup.Provisional))

		srv, err := o.spawnServer(ctx, probeDir, permissionEnv(o.AutoApprove, nil), nil)
		if err != nil {
			logger.Printf("opencode: spawn discovery server: %v", err)
			emit(discovery.Error(err.Error()))
			return
		}
		defer srv.proc.Close()

		c := newClient(srv.baseURL, probeDir, srv.password)

		final := defaultOptions()
		var mu sync.Mutex

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			data, err := c.providers(ctx)
			if err != nil {
				logger.Printf("opencode: fetch providers: %v", err)
				return nil
			}
			connected := make(map[string]bool, len(data.Connected))
			for _, id := range data.Connected {
				connected[id] = true
			}
			var providers []discovery.ModelProvider
			var models []discovery.ModelInfo
			for _, p := range data.All {
				if !connected[p.ID] {
					continue
				}
				providers = append(providers, discovery.ModelProvider{ID: p.ID, Name: p.Name})
				models = append(models, transformModels(p.Models, p.ID)...)
			}
			mu.Lock()
			final.ModelSelector.Providers = providers
			final.ModelSelector.Models = models
			mu.Unlock()
			emit(discovery.Providers(providers))
			emit(discovery.Models(models))
			emit(discovery.ModelsLoaded())
			return nil
		})
		g.Go(func() error {
			model, err := c.defaultModel(ctx)
			if err != nil {
				logger.Printf("opencode: fetch config: %v", err)
				return nil
			}
			mu.Lock()
			final.ModelSelector.DefaultModel = model
			mu.Unlock()
			emit(discovery.DefaultModel(model))
			return nil
		})
		g.Go(func() error {
			agents, err := c.agents(ctx)
			if err != nil {
				logger.Printf("opencode: fetch agents: %v", err)
				return nil
			}
			mapped := mapAgents(agents)
			mu.Lock()
			final.ModelSelector.Agents = mapped
			mu.Unlock()
			emit(discovery.Agents(mapped))
			emit(discovery.AgentsLoaded())
			return nil
		})
		g.Go(func() error {
			commands, err := c.commands(ctx)
			merged := mergeCommands(commands, err == nil)
			if err != nil {
				logger.Printf("opencode: fetch commands: %v", err)
			}
			mu.Lock()
			final.SlashCommands = merged
			mu.Unlock()
			emit(discovery.SlashCommands(merged))
			emit(discovery.SlashCommandsLoaded())
			return nil
		})
		_ = g.Wait()

		cache.WriteBack(string(executor.KindOpencode), cmdKey, lookup.TargetPath, final)
	}), nil
}

// mergeCommands puts server-discovered commands ahead of the hardcoded set,
// deduped by name, in presentation order. With no server data only the
// hardcoded set remains.
func mergeCommands(discovered []commandEntry, haveDiscovered bool) []slashcmd.Command {
	defaults := hardcodedCommands()
	if !haveDiscovered {
		return slashcmd.Reorder(defaults)
	}
	names := make([]string, 0, len(discovered))
	byName := make(map[string]string, len(discovered))
	for _, c := range discovered {
		name := trimSlash(c.Name)
		names = append(names, name)
		byName[name] = c.Description
	}
	merged := make([]slashcmd.Command, 0, len(discovered)+len(defaults))
	for _, name := range slashcmd.Dedupe(names, defaults) {
		merged = append(merged, slashcmd.Command{Name: name, Description: byName[name]})
	}
	merged = append(merged, defaults...)
	return slashcmd.Reorder(merged)
}

func trimSlash(name string) string {
	for len(name) > 0 && name[0] == '/' {
		name = name[1:]
	}
	return name
}
