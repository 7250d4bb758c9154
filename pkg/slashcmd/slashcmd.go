// Package slashcmd implements slash command parsing and discovery for coding
// agents. A slash command is a prompt of the form "/name arguments"; agents
// report which names they support, and markdown files on disk contribute
// human-readable descriptions.
package slashcmd

import (
	"strings"
	"unicode"
)

// Command is one available slash command. Description is empty when no source
// provided one.
type Command struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Call is a parsed slash command invocation.
type Call struct {
	// Name is lowercased, without the leading slash.
	Name string
	// Arguments is the trimmed remainder of the prompt.
	Arguments string
}

// Parse interprets a prompt as a slash command invocation. It returns false
// when the prompt does not start with a slash or names no command ("/" alone).
func Parse(prompt string) (Call, bool) {
	trimmed := strings.TrimLeftFunc(prompt, unicode.IsSpace)
	rest, ok := strings.CutPrefix(trimmed, "/")
	if !ok {
		return Call{}, false
	}
	name := rest
	args := ""
	if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
		name, args = rest[:i], rest[i+1:]
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Call{}, false
	}
	return Call{Name: name, Arguments: strings.TrimSpace(args)}, true
}

// Reorder moves "compact" first and "review" second; all other commands keep
// their relative order.
func Reorder(commands []Command) []Command {
	var compact, review *Command
	remaining := make([]Command, 0, len(commands))
	for i := range commands {
		switch commands[i].Name {
		case "compact":
			compact = &commands[i]
		case "review":
			review = &commands[i]
		default:
			remaining = append(remaining, commands[i])
		}
	}
	out := make([]Command, 0, len(commands))
	if compact != nil {
		out = append(out, *compact)
	}
	if review != nil {
		out = append(out, *review)
	}
	return append(out, remaining...)
}

// Dedupe removes empty names, names already covered by builtin, and repeats,
// preserving first-seen order.
func Dedupe(names []string, builtin []Command) []string {
	known := make(map[string]bool, len(builtin))
	for _, c := range builtin {
		known[c.Name] = true
	}
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" || known[name] || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// FillDescriptions overlays disk-sourced descriptions on agent-reported
// commands. A command keeps its existing description when no file provides
// one.
func FillDescriptions(commands []Command, descriptions map[string]string) []Command {
	out := make([]Command, len(commands))
	for i, c := range commands {
		if desc, ok := descriptions[c.Name]; ok {
			c.Description = desc
		}
		out[i] = c
	}
	return out
}
