// Package spawn owns subprocess lifecycle for agent executors: process-group
// creation, exit observation, cancellation, and unconditional cleanup.
//
// Every spawned agent becomes the leader of a new OS process group so that
// helpers it forks (npx -> sh -> node -> agent is a common chain) die with
// it. Cleanup is an explicit, awaited operation invoked by every exit path;
// the destructor-style async kill exists only as a backstop.
package spawn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/cexll/agentexec-go/pkg/logs"
)

// Result is the logical outcome an executor reports for an invocation. It is
// distinct from the OS exit status: a sidecar-style agent can fail logically
// while its server process exits 0.
type Result int

const (
	ResultSuccess Result = iota
	ResultFailure
	ResultKilled
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultFailure:
		return "failure"
	case ResultKilled:
		return "killed"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// ErrExitConsumed reports a second read of the one-shot exit result.
var ErrExitConsumed = errors.New("spawn: exit result already consumed")

// killGrace bounds how long Close waits for the group to die after SIGKILL.
const killGrace = 5 * time.Second

// Spec describes one subprocess to launch.
type Spec struct {
	Program string
	Args    []string
	Dir     string
	// Env is overlaid on the parent environment.
	Env map[string]string
	// PipeStdin pipes stdin for bidirectional protocols; otherwise stdin is
	// closed.
	PipeStdin bool
	// PipeStderr pipes stderr for adapters that read it; otherwise stderr
	// goes to the null device.
	PipeStderr bool
	Logger     logs.Logger
}

// Process is the exclusive owner of one spawned process group.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
	logger logs.Logger

	done    chan struct{} // closed once cmd.Wait returns
	waitErr error

	exitMu       sync.Mutex
	exitCh       chan Result
	exitConsumed bool

	killOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

// Start launches the subprocess as a new process-group leader with stdin
// closed and stdout piped.
func Start(spec Spec) (*Process, error) {
	cmd := exec.Command(spec.Program, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = MergeEnv(os.Environ(), spec.Env)
	setProcessGroup(cmd)

	var stdin io.WriteCloser
	var err error
	if spec.PipeStdin {
		stdin, err = cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("spawn: stdin pipe: %w", err)
		}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("spawn: stdout pipe: %w", err)
	}
	var stderr io.ReadCloser
	if spec.PipeStderr {
		stderr, err = cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("spawn: stderr pipe: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn: start %s: %w", spec.Program, err)
	}

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		logger: logs.OrNop(spec.Logger),
		done:   make(chan struct{}),
		exitCh: make(chan Result, 1),
	}
	go p.reap()
	return p, nil
}

// reap is the sole caller of cmd.Wait.
func (p *Process) reap() {
	p.waitErr = p.cmd.Wait()
	close(p.done)
}

// Stdin returns the piped stdin stream, or nil when not requested.
func (p *Process) Stdin() io.WriteCloser { return p.stdin }

// Stdout returns the piped stdout stream.
func (p *Process) Stdout() io.ReadCloser { return p.stdout }

// Stderr returns the piped stderr stream, or nil when not requested.
func (p *Process) Stderr() io.ReadCloser { return p.stderr }

// PID returns the group leader's process id.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// SignalExit records the logical outcome of the invocation. Only the first
// call wins; later signals are dropped.
func (p *Process) SignalExit(r Result) {
	select {
	case p.exitCh <- r:
	default:
	}
}

// ExitResult blocks until the logical exit signal arrives or, absent one,
// the process exits. It resolves exactly once; subsequent calls return
// ErrExitConsumed.
func (p *Process) ExitResult(ctx context.Context) (Result, error) {
	p.exitMu.Lock()
	if p.exitConsumed {
		p.exitMu.Unlock()
		return ResultFailure, ErrExitConsumed
	}
	p.exitConsumed = true
	p.exitMu.Unlock()

	select {
	case r := <-p.exitCh:
		return r, nil
	case <-p.done:
		// Prefer an already-delivered signal over the raw exit status.
		select {
		case r := <-p.exitCh:
			return r, nil
		default:
		}
		if p.waitErr != nil {
			return ResultFailure, nil
		}
		return ResultSuccess, nil
	case <-ctx.Done():
		p.exitMu.Lock()
		p.exitConsumed = false
		p.exitMu.Unlock()
		return ResultFailure, ctx.Err()
	}
}

// Wait blocks until the OS process has been reaped.
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.waitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Exited reports whether the process has been reaped.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Cancel kills the process group without waiting for confirmation. Safe to
// call multiple times and after exit.
func (p *Process) Cancel() {
	p.kill()
	p.SignalExit(ResultKilled)
}

func (p *Process) kill() {
	p.killOnce.Do(func() {
		if p.Exited() {
			return
		}
		if err := killProcessGroup(p.PID()); err != nil {
			p.logger.Printf("spawn: kill group %d: %v", p.PID(), err)
			if p.cmd.Process != nil {
				if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
					p.logger.Printf("spawn: kill pid %d: %v", p.PID(), err)
				}
			}
		}
	})
}

// Close guarantees the process group is dead and reaped. It kills the group
// if still alive and waits a bounded grace period for confirmation; a group
// that outlives the grace period is logged, not escalated. Idempotent.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		if !p.Exited() {
			p.kill()
			select {
			case <-p.done:
			case <-time.After(killGrace):
				p.closeErr = fmt.Errorf("spawn: process group %d survived kill", p.PID())
				p.logger.Printf("%v", p.closeErr)
			}
		}
	})
	return p.closeErr
}

// MergeEnv overlays entries on base, later values winning per key.
func MergeEnv(base []string, overlay map[string]string) []string {
	if len(overlay) == 0 {
		return base
	}
	index := make(map[string]int, len(base))
	merged := make([]string, len(base))
	copy(merged, base)
	for i, kv := range merged {
		for j := 0; j < len(kv); j++ {
			if kv[j] == '=' {
				index[kv[:j]] = i
				break
			}
		}
	}
	for _, k := range sortedEnvKeys(overlay) {
		entry := k + "=" + overlay[k]
		if i, ok := index[k]; ok {
			merged[i] = entry
		} else {
			merged = append(merged, entry)
		}
	}
	return merged
}

func sortedEnvKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
