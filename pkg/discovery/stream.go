package discovery

import (
	"context"

	"github.com/cexll/agentexec-go/pkg/slashcmd"
)

// PatchKind discriminates incremental discovery updates.
type PatchKind string

const (
	// PatchReplace replaces the whole option set.
	PatchReplace PatchKind = "replace"
	// PatchProviders updates the provider list.
	PatchProviders PatchKind = "providers"
	// PatchModels updates the model list.
	PatchModels PatchKind = "models"
	// PatchDefaultModel updates the default model.
	PatchDefaultModel PatchKind = "default_model"
	// PatchAgents updates the agent list.
	PatchAgents PatchKind = "agents"
	// PatchSlashCommands updates the slash command list.
	PatchSlashCommands PatchKind = "slash_commands"
	// PatchModelsLoaded clears the models loading flag.
	PatchModelsLoaded PatchKind = "models_loaded"
	// PatchAgentsLoaded clears the agents loading flag.
	PatchAgentsLoaded PatchKind = "agents_loaded"
	// PatchSlashCommandsLoaded clears the slash commands loading flag.
	PatchSlashCommandsLoaded PatchKind = "slash_commands_loaded"
	// PatchError records a discovery failure and clears all loading flags.
	PatchError PatchKind = "error"
)

// Patch is one incremental discovery update. Only the field matching Kind is
// meaningful.
type Patch struct {
	Kind          PatchKind          `json:"kind"`
	Options       *Options           `json:"options,omitempty"`
	Providers     []ModelProvider    `json:"providers,omitempty"`
	Models        []ModelInfo        `json:"models,omitempty"`
	DefaultModel  string             `json:"default_model,omitempty"`
	Agents        []AgentInfo        `json:"agents,omitempty"`
	SlashCommands []slashcmd.Command `json:"slash_commands,omitempty"`
	Err           string             `json:"error,omitempty"`
}

// Replace builds a patch that swaps in a full option set.
func Replace(options Options) Patch {
	return Patch{Kind: PatchReplace, Options: &options}
}

// Providers builds a provider list update.
func Providers(providers []ModelProvider) Patch {
	return Patch{Kind: PatchProviders, Providers: providers}
}

// Models builds a model list update.
func Models(models []ModelInfo) Patch {
	return Patch{Kind: PatchModels, Models: models}
}

// DefaultModel builds a default model update.
func DefaultModel(model string) Patch {
	return Patch{Kind: PatchDefaultModel, DefaultModel: model}
}

// Agents builds an agent list update.
func Agents(agents []AgentInfo) Patch {
	return Patch{Kind: PatchAgents, Agents: agents}
}

// SlashCommands builds a slash command list update.
func SlashCommands(commands []slashcmd.Command) Patch {
	return Patch{Kind: PatchSlashCommands, SlashCommands: commands}
}

// ModelsLoaded clears the models loading flag.
func ModelsLoaded() Patch { return Patch{Kind: PatchModelsLoaded} }

// AgentsLoaded clears the agents loading flag.
func AgentsLoaded() Patch { return Patch{Kind: PatchAgentsLoaded} }

// SlashCommandsLoaded clears the slash commands loading flag.
func SlashCommandsLoaded() Patch { return Patch{Kind: PatchSlashCommandsLoaded} }

// Error builds a failure patch.
func Error(msg string) Patch { return Patch{Kind: PatchError, Err: msg} }

// Apply folds a patch into an option set.
func Apply(o *Options, p Patch) {
	switch p.Kind {
	case PatchReplace:
		if p.Options != nil {
			*o = *p.Options
		}
	case PatchProviders:
		o.ModelSelector.Providers = p.Providers
	case PatchModels:
		o.ModelSelector.Models = p.Models
	case PatchDefaultModel:
		o.ModelSelector.DefaultModel = p.DefaultModel
	case PatchAgents:
		o.ModelSelector.Agents = p.Agents
	case PatchSlashCommands:
		o.SlashCommands = p.SlashCommands
	case PatchModelsLoaded:
		o.LoadingModels = false
	case PatchAgentsLoaded:
		o.LoadingAgents = false
	case PatchSlashCommandsLoaded:
		o.LoadingSlashCommands = false
	case PatchError:
		o.Error = p.Err
		o.LoadingModels = false
		o.LoadingAgents = false
		o.LoadingSlashCommands = false
	}
}

// Stream is a finite sequence of discovery patches. The producer closes the
// channel when discovery completes; a stream is consumed once and cannot be
// restarted.
type Stream <-chan Patch

// Single returns a stream that yields one patch and completes. Used for
// cache hits.
func Single(p Patch) Stream {
	ch := make(chan Patch, 1)
	ch <- p
	close(ch)
	return ch
}

// Generate runs produce on a background goroutine, forwarding everything it
// emits. The channel closes when produce returns. Once ctx is done emit drops
// patches instead of blocking, so a producer with an abandoned consumer still
// runs to completion and releases whatever it holds (sidecar processes,
// cache write-backs).
func Generate(ctx context.Context, produce func(emit func(Patch))) Stream {
	ch := make(chan Patch, 8)
	go func() {
		defer close(ch)
		produce(func(p Patch) {
			select {
			case ch <- p:
			case <-ctx.Done():
			}
		})
	}()
	return ch
}

// Collect drains a stream, folding every patch into a final option set.
func Collect(ctx context.Context, s Stream) (Options, error) {
	var o Options
	for {
		select {
		case p, ok := <-s:
			if !ok {
				return o, nil
			}
			Apply(&o, p)
		case <-ctx.Done():
			return o, ctx.Err()
		}
	}
}

// Drain consumes a stream to completion, discarding patches. Used to keep
// caches warm.
func Drain(s Stream) {
	for range s {
	}
}
