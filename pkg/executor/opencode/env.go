package opencode

import (
	"encoding/json"
	"sort"
	"strings"
)

// permissionEnv returns env with OPENCODE_PERMISSION set. A caller-provided
// value is preserved but "question" is always forced to deny: the server has
// no interactive stdin to answer questions on.
func permissionEnv(autoApprove bool, env map[string]string) map[string]string {
	out := make(map[string]string, len(env)+1)
	for k, v := range env {
		out[k] = v
	}
	if existing, ok := out["OPENCODE_PERMISSION"]; ok {
		out["OPENCODE_PERMISSION"] = mergeQuestionDeny(existing)
	} else {
		out["OPENCODE_PERMISSION"] = defaultPermissions(autoApprove)
	}
	return out
}

func defaultPermissions(autoApprove bool) string {
	if autoApprove {
		return `{"question":"deny"}`
	}
	return `{"edit":"ask","bash":"ask","webfetch":"ask","doom_loop":"ask","external_directory":"ask","question":"deny"}`
}

func mergeQuestionDeny(existing string) string {
	permissions := map[string]json.RawMessage{}
	_ = json.Unmarshal([]byte(strings.TrimSpace(existing)), &permissions)
	permissions["question"] = json.RawMessage(`"deny"`)
	return marshalSorted(permissions)
}

// compactionEnv returns env with auto-compaction enabled in
// OPENCODE_CONFIG_CONTENT, preserving any other caller-provided config keys.
func compactionEnv(autoCompact bool, env map[string]string) map[string]string {
	if !autoCompact {
		return env
	}
	out := make(map[string]string, len(env)+1)
	for k, v := range env {
		out[k] = v
	}
	out["OPENCODE_CONFIG_CONTENT"] = mergeCompaction(out["OPENCODE_CONFIG_CONTENT"])
	return out
}

func mergeCompaction(existing string) string {
	config := map[string]json.RawMessage{}
	if existing != "" {
		_ = json.Unmarshal([]byte(strings.TrimSpace(existing)), &config)
	}
	compaction := map[string]json.RawMessage{}
	if raw, ok := config["compaction"]; ok {
		_ = json.Unmarshal(raw, &compaction)
	}
	compaction["auto"] = json.RawMessage("true")
	config["compaction"] = json.RawMessage(marshalSorted(compaction))
	return marshalSorted(config)
}

// marshalSorted renders a JSON object with deterministic key order so env
// values compare stably across spawns.
func marshalSorted(m map[string]json.RawMessage) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		name, _ := json.Marshal(k)
		b.Write(name)
		b.WriteByte(':')
		b.Write(m[k])
	}
	b.WriteByte('}')
	return b.String()
}
