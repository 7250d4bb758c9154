// Package command assembles concrete agent invocations from a base template,
// executor-derived flags, and caller overrides. Executable path resolution is
// deferred until spawn time so that construction never touches the filesystem.
package command

import (
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/google/shlex"
)

// BuildError reports a malformed template or override.
type BuildError struct {
	Msg string
	Err error
}

func (e *BuildError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("command: %s: %v", e.Msg, e.Err)
	}
	return "command: " + e.Msg
}

func (e *BuildError) Unwrap() error { return e.Err }

// Overrides carries free-form per-invocation adjustments layered on top of an
// executor's defaults. Later layers win: defaults, executor flags, overrides.
type Overrides struct {
	// BaseCommand replaces the entire program template when non-empty.
	BaseCommand string `json:"base_command,omitempty" yaml:"base_command,omitempty"`
	// AdditionalParams are appended after all builder params.
	AdditionalParams []string `json:"additional_params,omitempty" yaml:"additional_params,omitempty"`
	// Env is injected into the child environment at spawn time.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// IsZero reports whether the overrides would change nothing.
func (o Overrides) IsZero() bool {
	return o.BaseCommand == "" && len(o.AdditionalParams) == 0 && len(o.Env) == 0
}

// Key returns a deterministic signature of the overrides, used to scope
// discovery cache entries to the effective configuration.
func (o Overrides) Key() string {
	var b strings.Builder
	b.WriteString(o.BaseCommand)
	for _, p := range o.AdditionalParams {
		b.WriteByte(0x1f)
		b.WriteString(p)
	}
	for _, k := range sortedKeys(o.Env) {
		b.WriteByte(0x1e)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(o.Env[k])
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Builder accumulates a program template plus ordered parameter groups.
// It is a value type; every method returns a derived copy.
type Builder struct {
	base     string
	params   []string
	oneShot  []string
	extraEnv map[string]string
}

// NewBuilder starts a builder from a base template such as
// "npx -y @github/copilot@0.0.403". The template is whitespace-split with
// shell-style quoting honoured.
func NewBuilder(base string) Builder {
	return Builder{base: base}
}

// ExtendParams appends parameters included in every invocation.
func (b Builder) ExtendParams(params ...string) Builder {
	b.params = append(append([]string(nil), b.params...), params...)
	return b
}

// OneShotParams appends parameters included only in the initial invocation.
// Follow-up builds (session resume) omit them.
func (b Builder) OneShotParams(params ...string) Builder {
	b.oneShot = append(append([]string(nil), b.oneShot...), params...)
	return b
}

// ApplyOverrides layers caller overrides on top of the builder. A base
// command override replaces the template; additional params are appended
// after all builder params; env is carried through to the built Parts.
func (b Builder) ApplyOverrides(o Overrides) (Builder, error) {
	if o.BaseCommand != "" {
		if strings.TrimSpace(o.BaseCommand) == "" {
			return b, &BuildError{Msg: "base command override is blank"}
		}
		b.base = o.BaseCommand
	}
	b.params = append(append([]string(nil), b.params...), o.AdditionalParams...)
	if len(o.Env) > 0 {
		merged := make(map[string]string, len(b.extraEnv)+len(o.Env))
		for k, v := range b.extraEnv {
			merged[k] = v
		}
		for k, v := range o.Env {
			merged[k] = v
		}
		b.extraEnv = merged
	}
	return b, nil
}

// BuildInitial produces the argument vector for a fresh session.
func (b Builder) BuildInitial() (Parts, error) {
	return b.build(append(append([]string(nil), b.oneShot...), b.params...))
}

// BuildFollowUp produces the argument vector for resuming an existing
// session: one-shot params are dropped, resumeArgs are appended last.
func (b Builder) BuildFollowUp(resumeArgs []string) (Parts, error) {
	return b.build(append(append([]string(nil), b.params...), resumeArgs...))
}

func (b Builder) build(params []string) (Parts, error) {
	fields, err := splitTemplate(b.base)
	if err != nil {
		return Parts{}, err
	}
	if len(fields) == 0 {
		return Parts{}, &BuildError{Msg: "empty base command"}
	}
	args := append(append([]string(nil), fields[1:]...), params...)
	return Parts{Program: fields[0], Args: args, Env: b.extraEnv}, nil
}

// Parts is an unresolved invocation: the program reference still needs a
// PATH lookup before it can be spawned.
type Parts struct {
	Program string
	Args    []string
	Env     map[string]string
}

// Resolve locates the program on PATH. A missing binary surfaces here, at
// spawn time, as a BuildError.
func (p Parts) Resolve() (Resolved, error) {
	path, err := exec.LookPath(p.Program)
	if err != nil {
		return Resolved{}, &BuildError{Msg: fmt.Sprintf("resolve %q", p.Program), Err: err}
	}
	return Resolved{Program: path, Args: p.Args, Env: p.Env}, nil
}

// Resolved is a fully located invocation ready for the spawner.
type Resolved struct {
	Program string
	Args    []string
	Env     map[string]string
}

// splitTemplate tokenizes a base template with shell-style quoting.
func splitTemplate(s string) ([]string, error) {
	fields, err := shlex.Split(s)
	if err != nil {
		return nil, &BuildError{Msg: "tokenize base command", Err: err}
	}
	return fields, nil
}
