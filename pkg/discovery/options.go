// Package discovery models the capability options an executor learns from
// its agent CLI: providers, models, agents, permission policies, and slash
// commands. Discovery is slow (it spawns the agent), so results flow as a
// stream of patches and land in a shared TTL cache.
package discovery

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/cexll/agentexec-go/pkg/slashcmd"
)

// PermissionPolicy is the tool approval stance an executor runs under.
type PermissionPolicy string

const (
	// PermissionAuto skips all permission checks.
	PermissionAuto PermissionPolicy = "AUTO"
	// PermissionSupervised requires approval for risky operations.
	PermissionSupervised PermissionPolicy = "SUPERVISED"
	// PermissionPlan runs a planning pass before execution; the exact
	// meaning is executor-defined.
	PermissionPlan PermissionPolicy = "PLAN"
)

// ModelProvider identifies one model provider.
type ModelProvider struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ModelInfo describes one selectable model.
type ModelInfo struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	ProviderID       string            `json:"provider_id,omitempty"`
	ReasoningOptions []ReasoningOption `json:"reasoning_options,omitempty"`
}

// ReasoningOption is one selectable reasoning effort level.
type ReasoningOption struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	IsDefault bool   `json:"is_default,omitempty"`
}

// AgentInfo is one selectable sub-agent an executor exposes.
type AgentInfo struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	IsDefault   bool   `json:"is_default,omitempty"`
}

// ModelSelector is the full selector configuration discovered from an agent.
type ModelSelector struct {
	Providers []ModelProvider `json:"providers"`
	Models    []ModelInfo     `json:"models"`
	// DefaultModel uses the provider_id/model_id form.
	DefaultModel string             `json:"default_model,omitempty"`
	Agents       []AgentInfo        `json:"agents"`
	Permissions  []PermissionPolicy `json:"permissions"`
}

// Options is the complete discovered option set for one executor
// configuration. The loading flags let consumers render provisional data
// while discovery is still running.
type Options struct {
	ModelSelector        ModelSelector     `json:"model_selector"`
	SlashCommands        []slashcmd.Command `json:"slash_commands"`
	LoadingModels        bool              `json:"loading_models"`
	LoadingAgents        bool              `json:"loading_agents"`
	LoadingSlashCommands bool              `json:"loading_slash_commands"`
	Error                string            `json:"error,omitempty"`
}

// WithLoading returns a copy with all loading flags set to loading.
func (o Options) WithLoading(loading bool) Options {
	o.LoadingModels = loading
	o.LoadingAgents = loading
	o.LoadingSlashCommands = loading
	return o
}

var reasoningRank = map[string]int{
	"none":   0,
	"low":    1,
	"medium": 2,
	"high":   3,
	"xhigh":  4,
	"max":    5,
}

var titleCaser = cases.Title(language.English)

// ReasoningOptionsFromNames builds reasoning options from bare level names,
// generating display labels.
func ReasoningOptionsFromNames(names ...string) []ReasoningOption {
	pairs := make([][2]string, len(names))
	for i, n := range names {
		pairs[i] = [2]string{n, ""}
	}
	return ReasoningOptionsFromPairs(pairs)
}

// ReasoningOptionsFromPairs builds reasoning options from (id, label) pairs;
// empty labels are generated from the id. Known levels sort by effort, with
// "high" marked default; unknown levels sort after by label.
func ReasoningOptionsFromPairs(pairs [][2]string) []ReasoningOption {
	options := make([]ReasoningOption, 0, len(pairs))
	for _, p := range pairs {
		id, label := p[0], p[1]
		if label == "" {
			label = reasoningLabel(id)
		}
		options = append(options, ReasoningOption{
			ID:        id,
			Label:     label,
			IsDefault: strings.EqualFold(id, "high"),
		})
	}
	sort.SliceStable(options, func(i, j int) bool {
		ri, iok := reasoningRank[strings.ToLower(options[i].ID)]
		rj, jok := reasoningRank[strings.ToLower(options[j].ID)]
		switch {
		case iok && jok:
			return ri < rj
		case iok:
			return true
		case jok:
			return false
		default:
			return options[i].Label < options[j].Label
		}
	})
	return options
}

func reasoningLabel(id string) string {
	if id == "xhigh" {
		return "Extra High"
	}
	return titleCaser.String(id)
}

// FormatAgentLabel renders an agent id for display. Namespaced ids keep the
// namespace as a prefix: "feature:code-reviewer" becomes
// "feature: Code Reviewer".
func FormatAgentLabel(raw string) string {
	raw = strings.TrimSpace(raw)
	if prefix, suffix, ok := strings.Cut(raw, ":"); ok {
		return strings.TrimSpace(prefix) + ": " + titleWords(suffix)
	}
	return titleWords(raw)
}

func titleWords(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	for i, w := range words {
		words[i] = titleCaser.String(w)
	}
	return strings.Join(words, " ")
}
