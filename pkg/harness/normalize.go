package harness

import (
	"encoding/json"

	"github.com/cexll/agentexec-go/pkg/logs"
)

// NormalizeLogs replays raw protocol lines already captured in store as
// canonical entries. A live session pushes entries as updates arrive; this
// path exists for re-normalizing a recorded invocation after the fact.
func NormalizeLogs(store *logs.Store, worktreePath string) {
	for _, line := range store.RawHistory() {
		if line.Source != logs.SourceStdout {
			continue
		}
		if !json.Valid([]byte(line.Line)) {
			continue
		}
		entry := parseUpdate(json.RawMessage(line.Line))
		if entry == nil {
			continue
		}
		store.Push(*entry)
	}
}
