package logs

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// maxLineBytes bounds a single JSON line; agents occasionally emit very
// large tool results on one line.
const maxLineBytes = 8 * 1024 * 1024

// LineFunc receives each non-blank output line. raw is nil when the line is
// not valid JSON. Returning false stops the scan early.
type LineFunc func(line string, raw json.RawMessage) bool

// ScanJSONLines reads line-delimited output from r, opportunistically
// parsing each line as JSON. Malformed lines are passed through with a nil
// raw value, never treated as fatal. The scan ends at EOF, on a read error,
// or when fn returns false.
func ScanJSONLines(r io.Reader, fn LineFunc) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var raw json.RawMessage
		if json.Valid([]byte(line)) {
			raw = json.RawMessage(line)
		}
		if !fn(line, raw) {
			return nil
		}
	}
	return scanner.Err()
}
