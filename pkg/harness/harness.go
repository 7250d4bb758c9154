// Package harness runs one structured protocol session against a coding
// agent speaking ACP over its standard streams. It owns the handshake, mode
// and model negotiation, prompt submission, and the translation of streaming
// updates into canonical log entries.
package harness

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	acp "github.com/coder/acp-go-sdk"

	"github.com/cexll/agentexec-go/pkg/approvals"
	"github.com/cexll/agentexec-go/pkg/logs"
	"github.com/cexll/agentexec-go/pkg/spawn"
)

// State is one phase of a session's lifecycle.
type State int32

const (
	StateStarting State = iota
	StateHandshaking
	StateReady
	StatePrompting
	StateStreaming
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StatePrompting:
		return "prompting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether no further transitions can occur.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Config describes one harness session.
type Config struct {
	Program string
	Args    []string
	Dir     string
	Env     map[string]string
	Prompt  string
	// SessionID, when set, resumes an existing session instead of creating
	// one; the handshake skips session creation.
	SessionID string
	// Mode is the session mode to negotiate (e.g. a permission mode).
	// Failure to set an explicitly requested mode is fatal.
	Mode string
	// Model is the session model to request. Failure is non-fatal.
	Model string
	// SessionDir, when set, receives a marker file per negotiated session so
	// callers can enumerate resumable sessions for this agent. Agents that
	// share session storage must not share a dir; qwen uses "qwen_sessions".
	SessionDir string
	// AutoApprove answers all permission requests positively without
	// consulting the gate.
	AutoApprove bool
	Store       *logs.Store
	Gate        approvals.Gate
	Logger      logs.Logger
}

// Session is one running protocol conversation. The conversation advances on
// a background goroutine; the session's process carries the exit result.
type Session struct {
	proc   *spawn.Process
	store  *logs.Store
	logger logs.Logger

	state      atomic.Int32
	sessionID  atomic.Value // string
	cancelOnce sync.Once
}

// Run spawns the agent and starts the protocol conversation. It returns as
// soon as the process is up; handshake and prompt progress are observable
// through the store and the process exit result.
func Run(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Store == nil {
		cfg.Store = logs.NewStore()
	}
	logger := logs.OrNop(cfg.Logger)

	proc, err := spawn.Start(spawn.Spec{
		Program:   cfg.Program,
		Args:      cfg.Args,
		Dir:       cfg.Dir,
		Env:       cfg.Env,
		PipeStdin: true,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	s := &Session{proc: proc, store: cfg.Store, logger: logger}
	s.state.Store(int32(StateStarting))
	s.sessionID.Store("")

	go s.converse(ctx, cfg)
	return s, nil
}

// Process returns the underlying spawned process.
func (s *Session) Process() *spawn.Process { return s.proc }

// State returns the session's current lifecycle phase.
func (s *Session) State() State { return State(s.state.Load()) }

// SessionID returns the negotiated session id, or empty before the
// handshake completes.
func (s *Session) SessionID() string { return s.sessionID.Load().(string) }

// Cancel terminates the session and its process group. Idempotent; safe
// from any state.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() {
		s.transition(StateCancelled)
		s.proc.Cancel()
	})
}

// transition moves to next unless already terminal.
func (s *Session) transition(next State) bool {
	for {
		cur := s.state.Load()
		if State(cur).Terminal() {
			return false
		}
		if s.state.CompareAndSwap(cur, int32(next)) {
			return true
		}
	}
}

func (s *Session) fail(err error) {
	s.logger.Printf("harness: %v", err)
	s.store.Push(logs.Entry{Type: logs.EntryError, Content: err.Error(), SessionID: s.SessionID()})
	if s.transition(StateFailed) {
		s.proc.Cancel()
		// Cancel signals killed; failure is the truthful outcome here.
		s.proc.SignalExit(spawn.ResultFailure)
	}
}

// converse drives handshake, negotiation, and the prompt turn.
func (s *Session) converse(ctx context.Context, cfg Config) {
	cl := &client{
		store:       cfg.Store,
		gate:        cfg.Gate,
		autoApprove: cfg.AutoApprove,
		logger:      s.logger,
	}
	conn := acp.NewClientSideConnection(cl, s.proc.Stdin(), s.proc.Stdout())

	s.transition(StateHandshaking)
	if _, err := conn.Initialize(ctx, acp.InitializeRequest{
		ProtocolVersion:    acp.ProtocolVersionNumber,
		ClientCapabilities: acp.ClientCapabilities{},
	}); err != nil {
		s.fail(fmt.Errorf("initialize: %w", err))
		return
	}

	var (
		sessionID acp.SessionId
		modes     *acp.SessionModeState
		models    *acp.SessionModelState
	)
	if cfg.SessionID != "" {
		resp, err := conn.LoadSession(ctx, acp.LoadSessionRequest{
			SessionId:  acp.SessionId(cfg.SessionID),
			Cwd:        cfg.Dir,
			McpServers: []acp.McpServer{},
		})
		if err != nil {
			s.fail(fmt.Errorf("load session %s: %w", cfg.SessionID, err))
			return
		}
		sessionID = acp.SessionId(cfg.SessionID)
		modes, models = resp.Modes, resp.Models
	} else {
		resp, err := conn.NewSession(ctx, acp.NewSessionRequest{
			Cwd:        cfg.Dir,
			McpServers: []acp.McpServer{},
		})
		if err != nil {
			s.fail(fmt.Errorf("new session: %w", err))
			return
		}
		sessionID = resp.SessionId
		modes, models = resp.Modes, resp.Models
	}
	s.sessionID.Store(string(sessionID))
	cl.setSessionID(string(sessionID))
	if cfg.SessionDir != "" {
		if err := recordSession(cfg.SessionDir, string(sessionID), cfg.Dir); err != nil {
			s.logger.Printf("harness: record session %s: %v", sessionID, err)
		}
	}

	// Mode is the permission boundary; an ignored mode request must not be
	// papered over.
	if cfg.Mode != "" && modes != nil && len(modes.AvailableModes) > 0 {
		if _, err := conn.SetSessionMode(ctx, acp.SetSessionModeRequest{
			SessionId: sessionID,
			ModeId:    acp.SessionModeId(cfg.Mode),
		}); err != nil {
			s.fail(fmt.Errorf("set session mode %s: %w", cfg.Mode, err))
			return
		}
	}
	if cfg.Model != "" && models != nil {
		if _, err := conn.UnstableSetSessionModel(ctx, acp.UnstableSetSessionModelRequest{
			SessionId: sessionID,
			ModelId:   acp.UnstableModelId(cfg.Model),
		}); err != nil {
			s.store.Push(logs.Entry{
				Type:      logs.EntryError,
				Content:   fmt.Sprintf("set session model %s: %v", cfg.Model, err),
				SessionID: string(sessionID),
			})
		}
	}

	s.transition(StateReady)
	s.store.Push(logs.Entry{Type: logs.EntryInit, SessionID: string(sessionID)})

	s.transition(StatePrompting)
	s.transition(StateStreaming)
	resp, err := conn.Prompt(ctx, acp.PromptRequest{
		SessionId: sessionID,
		Prompt:    []acp.ContentBlock{acp.TextBlock(cfg.Prompt)},
	})
	if err != nil {
		s.fail(fmt.Errorf("prompt: %w", err))
		return
	}

	s.store.Push(logs.Entry{
		Type:      logs.EntryFinished,
		Content:   string(resp.StopReason),
		SessionID: string(sessionID),
	})
	if resp.StopReason == acp.StopReasonEndTurn {
		s.transition(StateCompleted)
		s.proc.SignalExit(spawn.ResultSuccess)
	} else {
		s.transition(StateFailed)
		s.proc.SignalExit(spawn.ResultFailure)
	}
}
