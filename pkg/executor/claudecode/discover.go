package claudecode

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cexll/agentexec-go/pkg/discovery"
	"github.com/cexll/agentexec-go/pkg/executor"
	"github.com/cexll/agentexec-go/pkg/logs"
	"github.com/cexll/agentexec-go/pkg/slashcmd"
	"github.com/cexll/agentexec-go/pkg/spawn"
	"github.com/cexll/agentexec-go/pkg/telemetry"
)

// discoverTimeout bounds the capability probe; the probe spawns the real CLI.
const discoverTimeout = 120 * time.Second

// claudeModels is the fixed alias list the CLI accepts for --model.
var claudeModels = [][2]string{
	{"opus", "Opus"},
	{"sonnet", "Sonnet"},
	{"haiku", "Haiku"},
}

const defaultModel = "sonnet"

func defaultOptions() discovery.Options {
	models := make([]discovery.ModelInfo, len(claudeModels))
	for i, m := range claudeModels {
		models[i] = discovery.ModelInfo{ID: m[0], Name: m[1]}
	}
	return discovery.Options{
		ModelSelector: discovery.ModelSelector{
			Models:       models,
			DefaultModel: defaultModel,
			Permissions: []discovery.PermissionPolicy{
				discovery.PermissionAuto,
				discovery.PermissionSupervised,
				discovery.PermissionPlan,
			},
		},
		SlashCommands: slashcmd.Reorder(slashcmd.ClaudeBuiltins()),
	}
}

// DiscoverOptions probes the CLI for its capability manifest. Cached results
// are served immediately; otherwise a provisional patch precedes the live
// probe, whose facets stream in as they resolve.
func (c *ClaudeCode) DiscoverOptions(ctx context.Context, scope discovery.Scope) (discovery.Stream, error) {
	cache := discovery.SharedCache()
	cmdKey := c.Overrides.Key()

	lookup := cache.Resolve(string(executor.KindClaudeCode), cmdKey, scope, defaultOptions())
	if lookup.Fresh {
		return discovery.Single(discovery.Replace(lookup.Hit)), nil
	}

	logger := logs.OrNop(c.Logger)
	probeDir := scope.Workdir
	if probeDir == "" {
		probeDir = scope.RepoPath
	}

	return discovery.Generate(ctx, func(emit func(discovery.Patch)) {
		ctx, span := telemetry.StartSpan(ctx, "claudecode.discover")
		defer span.End()

		emit(discovery.Replace(lookup.Provisional))
		final := c.streamFacets(ctx, probeDir, logger, c.probeInit, emit)

		cache.WriteBack(string(executor.KindClaudeCode), cmdKey, lookup.TargetPath, final)
	}), nil
}

// streamFacets resolves each capability facet in order, emitting patches as
// they land, and returns the final option set for write-back. Models are
// fixed; that facet resolves before the probe runs. A probe failure degrades
// agents and commands to their defaults instead of erroring the stream.
func (c *ClaudeCode) streamFacets(ctx context.Context, probeDir string, logger logs.Logger, probe func(context.Context, string) (*initEvent, error), emit func(discovery.Patch)) discovery.Options {
	final := defaultOptions()

	emit(discovery.Models(final.ModelSelector.Models))
	emit(discovery.DefaultModel(final.ModelSelector.DefaultModel))
	emit(discovery.ModelsLoaded())

	init, err := probe(ctx, probeDir)
	if err != nil {
		logger.Printf("claudecode: capability probe: %v", err)
		// Agents stay at their default; builtins still serve commands.
		emit(discovery.SlashCommands(final.SlashCommands))
		emit(discovery.SlashCommandsLoaded())
		emit(discovery.AgentsLoaded())
		return final
	}

	final.ModelSelector.Agents = mapAgents(init.Agents)
	emit(discovery.Agents(final.ModelSelector.Agents))
	emit(discovery.AgentsLoaded())

	final.SlashCommands = c.assembleCommands(probeDir, init, logger)
	emit(discovery.SlashCommands(final.SlashCommands))
	emit(discovery.SlashCommandsLoaded())
	return final
}

// probeInit runs the CLI just long enough to capture the system/init event,
// then kills it; only the manifest is needed.
func (c *ClaudeCode) probeInit(ctx context.Context, dir string) (*initEvent, error) {
	b, err := c.builder()
	if err != nil {
		return nil, err
	}
	parts, err := b.BuildInitial()
	if err != nil {
		return nil, err
	}
	resolved, err := parts.Resolve()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, discoverTimeout)
	defer cancel()

	proc, err := spawn.Start(spawn.Spec{
		Program: resolved.Program,
		Args:    append(resolved.Args, "--max-turns", "1", "--", "/"),
		Dir:     dir,
		Env:     resolved.Env,
		Logger:  c.Logger,
	})
	if err != nil {
		return nil, err
	}
	defer proc.Close()

	found := make(chan *initEvent, 1)
	go func() {
		defer close(found)
		_ = logs.ScanJSONLines(proc.Stdout(), func(line string, raw json.RawMessage) bool {
			if raw == nil {
				return true
			}
			if init := parseInit(raw); init != nil {
				found <- init
				return false
			}
			return true
		})
	}()

	select {
	case init, ok := <-found:
		if !ok || init == nil {
			return nil, fmt.Errorf("claudecode: stream ended without init event")
		}
		return init, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("claudecode: capability probe timed out after %s", discoverTimeout)
	}
}

// assembleCommands merges builtins with agent-reported names, enriched by
// on-disk descriptions, in presentation order.
func (c *ClaudeCode) assembleCommands(projectDir string, init *initEvent, logger logs.Logger) []slashcmd.Command {
	builtins := slashcmd.ClaudeBuiltins()
	commands := append([]slashcmd.Command(nil), builtins...)
	for _, name := range slashcmd.Dedupe(init.SlashCommands, builtins) {
		commands = append(commands, slashcmd.Command{Name: name})
	}
	descriptions := slashcmd.DiscoverDescriptions(projectDir, init.Plugins, logger)
	return slashcmd.Reorder(slashcmd.FillDescriptions(commands, descriptions))
}

// mapAgents converts agent names from the manifest. Setup-only pseudo-agents
// are hidden, empty and repeated names are dropped; general-purpose is the
// default.
func mapAgents(names []string) []discovery.AgentInfo {
	var agents []discovery.AgentInfo
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if name == "statusline-setup" || name == "output-style-setup" {
			continue
		}
		agents = append(agents, discovery.AgentInfo{
			ID:        name,
			Label:     discovery.FormatAgentLabel(name),
			IsDefault: strings.EqualFold(name, "general-purpose"),
		})
	}
	return agents
}
