// Package logs defines the canonical event stream produced by every
// executor, regardless of the wire protocol its agent speaks. Raw subprocess
// output and normalized entries share one store so that callers can replay
// either view.
package logs

import (
	"encoding/json"
	"time"
)

// EntryType identifies the kind of normalized log entry.
type EntryType string

const (
	EntryText       EntryType = "text"
	EntryThinking   EntryType = "thinking"
	EntryToolUse    EntryType = "tool_use"
	EntryToolResult EntryType = "tool_result"
	EntrySystem     EntryType = "system"
	EntryInit       EntryType = "init"
	EntryError      EntryType = "error"
	EntryFinished   EntryType = "finished"
)

// ToolCall carries tool invocation detail on tool entries.
type ToolCall struct {
	Name   string          `json:"name"`
	CallID string          `json:"call_id,omitempty"`
	Input  json.RawMessage `json:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
}

// Entry is one canonical log event.
type Entry struct {
	Type      EntryType       `json:"type"`
	Content   string          `json:"content,omitempty"`
	Tool      *ToolCall       `json:"tool,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Source tags a raw line with the stream it arrived on.
type Source string

const (
	SourceStdout Source = "stdout"
	SourceStderr Source = "stderr"
	SourceSystem Source = "system"
)

// RawLine is one unparsed line of subprocess output.
type RawLine struct {
	Source    Source    `json:"source"`
	Line      string    `json:"line"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger is the minimal logging contract used throughout the framework.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// NopLogger discards all output.
var NopLogger Logger = nopLogger{}

// OrNop returns l when non-nil, otherwise the no-op logger.
func OrNop(l Logger) Logger {
	if l == nil {
		return NopLogger
	}
	return l
}
