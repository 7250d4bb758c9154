// update.go maps ACP session/update payloads to canonical log entries.
//
// Updates arrive as {"sessionUpdate":"agent_message_chunk", ...}; parsing
// dispatches on the discriminator. Unknown update types become system
// entries rather than errors so new protocol revisions degrade gracefully.
package harness

import (
	"encoding/json"
	"fmt"

	"github.com/cexll/agentexec-go/pkg/logs"
)

type updateHeader struct {
	SessionUpdate string `json:"sessionUpdate"`
}

type toolCallUpdate struct {
	ToolCallID string          `json:"toolCallId"`
	Title      string          `json:"title"`
	Kind       string          `json:"kind"`
	Status     string          `json:"status"`
	RawInput   json.RawMessage `json:"rawInput"`
	RawOutput  json.RawMessage `json:"rawOutput"`
	Content    json.RawMessage `json:"content"`
}

// parseUpdate converts one session update into a log entry. A nil return
// means the update is consumed silently (usage notifications).
func parseUpdate(raw json.RawMessage) *logs.Entry {
	var header updateHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return &logs.Entry{Type: logs.EntryError, Content: fmt.Sprintf("harness: bad session update: %v", err)}
	}

	switch header.SessionUpdate {
	case "agent_message_chunk":
		return contentChunk(raw, logs.EntryText)
	case "agent_thought_chunk":
		return contentChunk(raw, logs.EntryThinking)
	case "tool_call":
		return parseToolCall(raw)
	case "tool_call_update":
		return parseToolCallUpdate(raw)
	case "plan":
		return parsePlan(raw)
	case "usage_update":
		return nil
	case "":
		return &logs.Entry{Type: logs.EntrySystem, Content: "unknown", Raw: raw}
	default:
		return &logs.Entry{Type: logs.EntrySystem, Content: header.SessionUpdate, Raw: raw}
	}
}

func contentChunk(raw json.RawMessage, typ logs.EntryType) *logs.Entry {
	var d struct {
		Content struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return &logs.Entry{Type: logs.EntryError, Content: fmt.Sprintf("harness: bad content chunk: %v", err)}
	}
	return &logs.Entry{Type: typ, Content: d.Content.Text, Raw: raw}
}

func parseToolCall(raw json.RawMessage) *logs.Entry {
	var d toolCallUpdate
	if err := json.Unmarshal(raw, &d); err != nil {
		return &logs.Entry{Type: logs.EntryError, Content: fmt.Sprintf("harness: bad tool_call: %v", err)}
	}
	return &logs.Entry{
		Type: logs.EntryToolUse,
		Tool: &logs.ToolCall{Name: d.Title, CallID: d.ToolCallID, Input: d.RawInput},
		Raw:  raw,
	}
}

func parseToolCallUpdate(raw json.RawMessage) *logs.Entry {
	var d toolCallUpdate
	if err := json.Unmarshal(raw, &d); err != nil {
		return &logs.Entry{Type: logs.EntryError, Content: fmt.Sprintf("harness: bad tool_call_update: %v", err)}
	}
	switch d.Status {
	case "completed":
		return &logs.Entry{
			Type: logs.EntryToolResult,
			Tool: &logs.ToolCall{Name: d.Title, CallID: d.ToolCallID, Output: toolOutput(d)},
			Raw:  raw,
		}
	case "failed":
		return &logs.Entry{Type: logs.EntryError, Content: "tool call failed: " + d.Title, Raw: raw}
	default:
		return &logs.Entry{
			Type:    logs.EntrySystem,
			Content: fmt.Sprintf("tool_call_update: %s (%s)", d.Title, d.Status),
			Raw:     raw,
		}
	}
}

// toolOutput prefers structured content text over rawOutput.
func toolOutput(d toolCallUpdate) json.RawMessage {
	if text := firstContentText(d.Content); text != "" {
		b, _ := json.Marshal(text)
		return b
	}
	if len(d.RawOutput) > 0 {
		return d.RawOutput
	}
	return nil
}

func firstContentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var blocks []struct {
		Content struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &blocks); err != nil || len(blocks) == 0 {
		return ""
	}
	return blocks[0].Content.Text
}

func parsePlan(raw json.RawMessage) *logs.Entry {
	var d struct {
		Entries []struct {
			Content string `json:"content"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return &logs.Entry{Type: logs.EntryError, Content: fmt.Sprintf("harness: bad plan: %v", err)}
	}
	text := ""
	for i, e := range d.Entries {
		if i > 0 {
			text += "\n"
		}
		text += e.Content
	}
	return &logs.Entry{Type: logs.EntryText, Content: text, Raw: raw}
}
