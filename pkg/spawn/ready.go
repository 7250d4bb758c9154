package spawn

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cexll/agentexec-go/pkg/logs"
)

// readyTailLines bounds how many recent startup lines are echoed into a
// timeout error.
const readyTailLines = 12

// ReadyConfig controls WaitForReadyLine for sidecar-style agents that print
// a ready signal (e.g. a listening URL) before they are usable.
type ReadyConfig struct {
	// Timeout is the overall deadline for the signal to appear.
	Timeout time.Duration
	// Match inspects each line; on success it returns the extracted value
	// (e.g. the base URL) and true.
	Match func(line string) (string, bool)
	// Store, when set, receives every startup line verbatim.
	Store *logs.Store
}

// WaitForReadyLine reads the process's stdout until Match succeeds. Lines
// seen before the signal are kept in a most-recent ring and surfaced in the
// timeout error. After the signal, the same reader goroutine keeps consuming
// stdout until EOF so the child never blocks on a full pipe; the output is no
// longer inspected.
//
// On timeout or premature exit the caller still owns the process and must
// Close it.
func (p *Process) WaitForReadyLine(ctx context.Context, cfg ReadyConfig) (string, error) {
	if cfg.Match == nil {
		return "", fmt.Errorf("spawn: ready config missing matcher")
	}
	deadline := time.Now().Add(cfg.Timeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	reader := bufio.NewReader(p.stdout)
	type lineResult struct {
		line string
		err  error
	}
	lines := make(chan lineResult)
	// drain closes once the signal matched; from then on the goroutine keeps
	// reading but stops delivering. Only this goroutine touches reader.
	drain := make(chan struct{})
	go func() {
		for {
			line, err := reader.ReadString('\n')
			line = strings.TrimRight(line, "\r\n")
			select {
			case <-drain:
				if err != nil {
					return
				}
				continue
			default:
			}
			select {
			case lines <- lineResult{line: line, err: err}:
			case <-drain:
			case <-ctx.Done():
				// The deadline cancel fires right after a match; drain wins.
				select {
				case <-drain:
				default:
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	tail := make([]string, 0, readyTailLines)
	record := func(line string) {
		if cfg.Store != nil {
			cfg.Store.PushRawLine(logs.SourceStdout, line)
		}
		if len(tail) == readyTailLines {
			copy(tail, tail[1:])
			tail = tail[:readyTailLines-1]
		}
		tail = append(tail, line)
	}

	for {
		select {
		case res := <-lines:
			if res.line != "" {
				record(res.line)
				if value, ok := cfg.Match(res.line); ok {
					close(drain)
					return value, nil
				}
			}
			if res.err != nil {
				return "", fmt.Errorf("spawn: process exited before ready signal\noutput tail:\n%s", strings.Join(tail, "\n"))
			}
		case <-ctx.Done():
			return "", fmt.Errorf("spawn: timed out waiting for ready signal after %s\noutput tail:\n%s", cfg.Timeout, strings.Join(tail, "\n"))
		}
	}
}
