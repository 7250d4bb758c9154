// events.go parses the Claude Code stream-json output: one JSON object per
// line, discriminated by "type". Assistant messages carry content blocks;
// a "system"/"init" event announces the session and its capability manifest;
// a terminal "result" event reports the outcome.
package claudecode

import (
	"encoding/json"
	"fmt"

	"github.com/cexll/agentexec-go/pkg/logs"
	"github.com/cexll/agentexec-go/pkg/slashcmd"
)

type eventHeader struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
}

// initEvent is the system/init manifest the CLI prints at session start.
type initEvent struct {
	SessionID     string            `json:"session_id"`
	Model         string            `json:"model"`
	SlashCommands []string          `json:"slash_commands"`
	Agents        []string          `json:"agents"`
	Plugins       []slashcmd.Plugin `json:"plugins"`
}

type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Thinking  string          `json:"thinking"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

type message struct {
	Content []contentBlock `json:"content"`
}

type resultEvent struct {
	Subtype string `json:"subtype"`
	IsError bool   `json:"is_error"`
	Result  string `json:"result"`
}

// parseInit returns the manifest when raw is a system/init event.
func parseInit(raw json.RawMessage) *initEvent {
	var header eventHeader
	if json.Unmarshal(raw, &header) != nil {
		return nil
	}
	if header.Type != "system" || header.Subtype != "init" {
		return nil
	}
	var init initEvent
	if json.Unmarshal(raw, &init) != nil {
		return nil
	}
	return &init
}

// parseResult returns the outcome when raw is a terminal result event.
func parseResult(raw json.RawMessage) (resultEvent, bool) {
	var header eventHeader
	if json.Unmarshal(raw, &header) != nil || header.Type != "result" {
		return resultEvent{}, false
	}
	var result resultEvent
	if json.Unmarshal(raw, &result) != nil {
		return resultEvent{}, false
	}
	return result, true
}

// convertEvent maps one stream event to canonical entries. Events that carry
// no user-visible content (and unknown shapes) yield nothing.
func convertEvent(raw json.RawMessage) []logs.Entry {
	var header eventHeader
	if json.Unmarshal(raw, &header) != nil {
		return nil
	}

	switch header.Type {
	case "system":
		if header.Subtype == "init" {
			return []logs.Entry{{Type: logs.EntryInit, SessionID: header.SessionID, Raw: raw}}
		}
		return nil
	case "assistant":
		return convertMessage(raw, header.SessionID)
	case "user":
		return convertToolResults(raw, header.SessionID)
	case "result":
		result, ok := parseResult(raw)
		if !ok {
			return nil
		}
		entry := logs.Entry{Type: logs.EntryFinished, Content: result.Subtype, SessionID: header.SessionID, Raw: raw}
		if result.IsError {
			entry = logs.Entry{
				Type:      logs.EntryError,
				Content:   fmt.Sprintf("agent finished with error: %s", result.Subtype),
				SessionID: header.SessionID,
				Raw:       raw,
			}
		}
		return []logs.Entry{entry}
	default:
		return nil
	}
}

func convertMessage(raw json.RawMessage, sessionID string) []logs.Entry {
	var d struct {
		Message message `json:"message"`
	}
	if json.Unmarshal(raw, &d) != nil {
		return nil
	}
	var entries []logs.Entry
	for _, block := range d.Message.Content {
		switch block.Type {
		case "text":
			entries = append(entries, logs.Entry{Type: logs.EntryText, Content: block.Text, SessionID: sessionID})
		case "thinking":
			entries = append(entries, logs.Entry{Type: logs.EntryThinking, Content: block.Thinking, SessionID: sessionID})
		case "tool_use":
			entries = append(entries, logs.Entry{
				Type:      logs.EntryToolUse,
				Tool:      &logs.ToolCall{Name: block.Name, CallID: block.ID, Input: block.Input},
				SessionID: sessionID,
			})
		}
	}
	return entries
}

func convertToolResults(raw json.RawMessage, sessionID string) []logs.Entry {
	var d struct {
		Message message `json:"message"`
	}
	if json.Unmarshal(raw, &d) != nil {
		return nil
	}
	var entries []logs.Entry
	for _, block := range d.Message.Content {
		if block.Type != "tool_result" {
			continue
		}
		typ := logs.EntryToolResult
		if block.IsError {
			typ = logs.EntryError
		}
		entries = append(entries, logs.Entry{
			Type:      typ,
			Tool:      &logs.ToolCall{CallID: block.ToolUseID, Output: block.Content},
			SessionID: sessionID,
		})
	}
	return entries
}
