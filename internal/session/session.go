package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/michaelbrown/javarena/internal/sandbox"
	"github.com/michaelbrown/javarena/internal/workspace"
)

// ErrNotRunning is returned when input arrives for a session that has no
// live process.
var ErrNotRunning = errors.New("session is not running")

// Session is one interactive program: a workspace, at most one process,
// and the sink its output goes to.
type Session struct {
	id      string
	created time.Time
	sink    Sink

	state        atomic.Int32
	lastActivity atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	build      sandbox.BuildResult
	notice     Notice
	stopReason Reason
	ws         *workspace.Workspace
	cmd        *exec.Cmd

	inMu  sync.Mutex
	stdin io.WriteCloser
}

func (s *Session) ID() string              { return s.id }
func (s *Session) CreatedAt() time.Time    { return s.created }
func (s *Session) State() State            { return State(s.state.Load()) }
func (s *Session) Done() <-chan struct{}   { return s.done }
func (s *Session) LastActivity() time.Time { return time.Unix(0, s.lastActivity.Load()) }

// Build returns the compile result once compilation has finished.
func (s *Session) Build() sandbox.BuildResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.build
}

// Notice returns the termination notice. It is zero until Done is closed.
func (s *Session) Notice() Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notice
}

// Write forwards p to the program's standard input.
func (s *Session) Write(p []byte) (int, error) {
	if s.State() != Running {
		return 0, ErrNotRunning
	}
	s.inMu.Lock()
	defer s.inMu.Unlock()
	if s.stdin == nil {
		return 0, ErrNotRunning
	}
	s.touch()
	n, err := s.stdin.Write(p)
	if err != nil {
		return n, fmt.Errorf("writing to stdin: %w", err)
	}
	return n, nil
}

// CloseInput closes the program's standard input, which it sees as EOF.
func (s *Session) CloseInput() error {
	s.inMu.Lock()
	defer s.inMu.Unlock()
	if s.stdin == nil {
		return ErrNotRunning
	}
	err := s.stdin.Close()
	s.stdin = nil
	return err
}

// Stop kills the session's process, or aborts its build. The first
// reason recorded wins. Stop does not wait; use Done for that.
func (s *Session) Stop(reason Reason) {
	if s.State() == Terminated {
		return
	}
	s.mu.Lock()
	if s.stopReason == "" {
		s.stopReason = reason
	}
	s.mu.Unlock()
	s.cancel()
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Session) transition(to State) bool {
	for {
		from := s.State()
		if !canTransition(from, to) {
			return false
		}
		if s.state.CompareAndSwap(int32(from), int32(to)) {
			return true
		}
	}
}

func (s *Session) stoppedBy() Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopReason
}
