// Package shellclass assigns coarse categories to shell command lines so
// that UIs can render an agent's bash activity with the same affordances as
// first-class file tools.
package shellclass

import (
	"strings"
	"unicode"

	"github.com/google/shlex"
)

// Category is the coarse classification of a shell command.
type Category string

const (
	// CategoryRead covers file reading commands (cat, head, sed without -i).
	CategoryRead Category = "read"
	// CategorySearch covers content and path search commands.
	CategorySearch Category = "search"
	// CategoryEdit covers anything that mutates files, including output
	// redirects to real files.
	CategoryEdit Category = "edit"
	// CategoryFetch covers network retrieval commands.
	CategoryFetch Category = "fetch"
	// CategoryOther is the fallback.
	CategoryOther Category = "other"
)

// Classify categorizes one shell command line. Wrapper invocations such as
// `bash -lc "cmd"` are unwrapped first so the inner command decides.
func Classify(command string) Category {
	command = strings.TrimSpace(command)
	if command == "" {
		return CategoryOther
	}
	command = UnwrapShell(command)

	// A redirect to a real file makes the whole line an edit, whatever the
	// program is.
	if hasFileRedirect(command) {
		return CategoryEdit
	}

	first := ""
	if fields := strings.Fields(command); len(fields) > 0 {
		first = fields[0]
	}
	if i := strings.LastIndexByte(first, '/'); i >= 0 {
		first = first[i+1:]
	}

	switch strings.ToLower(first) {
	case "cat", "head", "tail", "zcat", "gzcat", "ls":
		return CategoryRead
	case "grep", "rg", "find", "awk":
		return CategorySearch
	case "sed":
		if strings.Contains(command, "-i") {
			return CategoryEdit
		}
		return CategoryRead
	case "tee", "truncate", "chmod", "chown", "rm", "mv", "cp", "touch", "ln":
		return CategoryEdit
	case "curl", "wget":
		return CategoryFetch
	default:
		return CategoryOther
	}
}

// hasFileRedirect reports whether the command redirects output to an actual
// file. Redirects to /dev/null and fd duplications (>&2) do not count.
func hasFileRedirect(command string) bool {
	if !strings.Contains(command, ">") {
		return false
	}
	tokens, err := shlex.Split(command)
	if err != nil {
		// Unbalanced quoting; tokenize naively rather than give up.
		tokens = strings.Fields(command)
	}
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if target, ok := inlineRedirectTarget(t); ok {
			if isFileTarget(target) {
				return true
			}
			continue
		}
		if t == ">" || t == ">>" || strings.HasSuffix(t, ">") {
			if i+1 < len(tokens) && isFileTarget(tokens[i+1]) {
				return true
			}
			i++
		}
	}
	return false
}

// inlineRedirectTarget extracts the target from a token like ">file" or
// "2>/dev/null". A bare ">" has no inline target.
func inlineRedirectTarget(token string) (string, bool) {
	pos := strings.IndexByte(token, '>')
	if pos < 0 {
		return "", false
	}
	after := strings.TrimPrefix(token[pos+1:], ">")
	if after == "" {
		return "", false
	}
	return after, true
}

func isFileTarget(target string) bool {
	return !strings.HasPrefix(target, "&") && target != "/dev/null"
}

// UnwrapShell strips nested `sh -c` / `bash -lc` / `zsh -c` wrappers,
// returning the innermost command string.
func UnwrapShell(command string) string {
	remaining := command
	for {
		trimmed := strings.TrimLeftFunc(remaining, unicode.IsSpace)
		end := strings.IndexFunc(trimmed, unicode.IsSpace)
		if end < 0 {
			end = len(trimmed)
		}
		name := trimmed[:end]
		if i := strings.LastIndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
		if name != "sh" && name != "bash" && name != "zsh" {
			return remaining
		}
		inner, ok := commandAfterCFlag(trimmed[end:])
		if !ok {
			return remaining
		}
		remaining = inner
	}
}

// commandAfterCFlag finds the argument following a flag cluster containing
// 'c' (-c, -lc, -cl) and returns it with surrounding quotes stripped.
func commandAfterCFlag(args string) (string, bool) {
	for idx := 0; idx < len(args); {
		rest := args[idx:]
		dash := strings.IndexByte(rest, '-')
		if dash < 0 {
			return "", false
		}
		afterDash := rest[dash+1:]
		flagEnd := strings.IndexFunc(afterDash, func(r rune) bool {
			return !unicode.IsLetter(r)
		})
		if flagEnd < 0 {
			flagEnd = len(afterDash)
		}
		if strings.ContainsRune(afterDash[:flagEnd], 'c') {
			cmd := strings.TrimLeftFunc(rest[dash+1+flagEnd:], unicode.IsSpace)
			return stripQuotes(cmd), true
		}
		idx += dash + 1 + flagEnd
	}
	return "", false
}

func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}
