package harness

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// sessionRecord is the marker written per negotiated session.
type sessionRecord struct {
	SessionID string    `json:"session_id"`
	Cwd       string    `json:"cwd"`
	CreatedAt time.Time `json:"created_at"`
}

func recordSession(dir, sessionID, cwd string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	record := sessionRecord{SessionID: sessionID, Cwd: cwd, CreatedAt: time.Now().UTC()}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, sanitizeSessionID(sessionID)+".json"), data, 0o644)
}

// ListSessions returns the session ids recorded under dir, newest first.
func ListSessions(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	type stamped struct {
		id string
		at time.Time
	}
	var found []stamped
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var record sessionRecord
		if json.Unmarshal(data, &record) != nil || record.SessionID == "" {
			continue
		}
		found = append(found, stamped{id: record.SessionID, at: record.CreatedAt})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].at.After(found[j].at) })
	ids := make([]string, len(found))
	for i, s := range found {
		ids[i] = s.id
	}
	return ids, nil
}

// sanitizeSessionID keeps marker filenames flat; agent session ids can carry
// path separators.
func sanitizeSessionID(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		}
		return r
	}, id)
}
