// Package session runs long-lived interactive programs and streams their
// output to a remote caller.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"github.com/michaelbrown/javarena/internal/logging"
	"github.com/michaelbrown/javarena/internal/sandbox"
	"github.com/michaelbrown/javarena/internal/workspace"
)

const readChunk = 4096

// Options tune the reaper and hook into termination.
type Options struct {
	// IdleTimeout stops sessions with no input or output for this long. Zero disables.
	IdleTimeout time.Duration
	// MaxLifetime stops sessions older than this. Zero disables.
	MaxLifetime time.Duration
	// OnTerminate runs after a session has terminated and been unregistered,
	// before Done is closed.
	OnTerminate func(*Session)
}

// Manager owns the registry of live sessions.
type Manager struct {
	builder    *sandbox.Builder
	workspaces *workspace.Manager
	opts       Options
	sessions   *xsync.MapOf[string, *Session]
	log        *slog.Logger
}

// NewManager creates a Manager that compiles with builder and takes
// workspaces from workspaces.
func NewManager(builder *sandbox.Builder, workspaces *workspace.Manager, opts Options, logger *slog.Logger) *Manager {
	return &Manager{
		builder:    builder,
		workspaces: workspaces,
		opts:       opts,
		sessions:   xsync.NewMapOf[string, *Session](),
		log:        logging.Or(logger),
	}
}

// Start registers a session, compiles source and launches the program.
// A compile failure is not an error: the returned session is already
// Terminated, Build() holds the diagnostics, and sink has been told.
// An error means the session could not be set up at all; sink has been
// told about that too.
func (m *Manager) Start(ctx context.Context, source string, sink Sink) (*Session, error) {
	s, sctx := m.register(ctx, sink)
	return s, m.boot(sctx, s, source)
}

// Begin is Start without the wait: it returns the registered session
// while it is still compiling, so the caller can Stop it mid-build. Every
// outcome, including setup errors, reaches sink.
func (m *Manager) Begin(ctx context.Context, source string, sink Sink) *Session {
	s, sctx := m.register(ctx, sink)
	go func() {
		if err := m.boot(sctx, s, source); err != nil {
			m.log.Warn("session did not start", "session", s.id, "err", err)
		}
	}()
	return s
}

// register creates a session in Compiling. The returned context lives
// until the session is stopped or finished.
func (m *Manager) register(ctx context.Context, sink Sink) (*Session, context.Context) {
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Session{
		id:      uuid.NewString(),
		created: time.Now(),
		sink:    sink,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.touch()
	s.state.Store(int32(Created))
	m.sessions.Store(s.id, s)
	s.transition(Compiling)
	return s, sctx
}

func (m *Manager) boot(sctx context.Context, s *Session, source string) error {
	log := m.log.With("session", s.id)

	ws, err := m.workspaces.Acquire()
	if err != nil {
		err = fmt.Errorf("%w: %v", sandbox.ErrSandbox, err)
		m.finish(s, Notice{Reason: ReasonError, ExitCode: -1, Message: "could not prepare a workspace"})
		return err
	}
	s.mu.Lock()
	s.ws = ws
	s.mu.Unlock()

	build := m.builder.Build(sctx, ws, source)
	s.mu.Lock()
	s.build = build
	s.mu.Unlock()
	if r := s.stoppedBy(); r != "" {
		log.Debug("session stopped while compiling", "reason", r)
		n := Notice{Reason: r, ExitCode: -1}
		n.Message = noticeMessage(n, m.opts)
		m.finish(s, n)
		return nil
	}
	if !build.Succeeded {
		log.Debug("session build failed")
		m.finish(s, Notice{Reason: ReasonCompileFailed, ExitCode: -1, Message: build.Diagnostics})
		if errors.Is(build.Err, sandbox.ErrCompileFailure) {
			return nil
		}
		return build.Err
	}

	if err := m.launch(sctx, s, ws); err != nil {
		log.Warn("could not start session process", "err", err)
		m.finish(s, Notice{Reason: ReasonError, ExitCode: -1, Message: err.Error()})
		return err
	}
	log.Info("session running", "workspace", ws.Path())
	return nil
}

// launch spawns java with stdout and stderr joined on one pipe and starts
// the pumps. It moves the session to Running.
func (m *Manager) launch(ctx context.Context, s *Session, ws *workspace.Workspace) error {
	if r := s.stoppedBy(); r != "" {
		return fmt.Errorf("session stopped before launch: %s", r)
	}

	cmd := sandbox.Command(ctx, m.builder.Toolchain(), m.builder.Policy(), ws)

	out, outW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("%w: output pipe: %v", sandbox.ErrSandbox, err)
	}
	cmd.Stdout = outW
	cmd.Stderr = outW

	stdin, err := cmd.StdinPipe()
	if err != nil {
		out.Close()
		outW.Close()
		return fmt.Errorf("%w: stdin pipe: %v", sandbox.ErrSandbox, err)
	}

	if err := cmd.Start(); err != nil {
		out.Close()
		outW.Close()
		return fmt.Errorf("%w: starting java: %v", sandbox.ErrToolchainUnavailable, err)
	}
	// The child holds its own copy; ours must go for EOF to arrive.
	outW.Close()

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()
	s.inMu.Lock()
	s.stdin = stdin
	s.inMu.Unlock()
	s.transition(Running)
	if err := s.sink.Started(s.id); err != nil {
		s.Stop(ReasonDisconnected)
	}

	go m.supervise(s, cmd, out)
	return nil
}

// supervise pumps output until every writer is gone and reaps the process,
// then terminates the session.
func (m *Manager) supervise(s *Session, cmd *exec.Cmd, out *os.File) {
	var g errgroup.Group
	g.Go(func() error {
		pump(s, out)
		return nil
	})
	g.Go(func() error {
		err := cmd.Wait()
		// Anything the program forked may still hold the output pipe.
		if kerr := sandbox.KillGroup(cmd); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			m.log.Debug("killing session process group", "session", s.id, "err", kerr)
		}
		return err
	})
	waitErr := g.Wait()
	out.Close()

	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}

	n := Notice{Reason: ReasonExited, ExitCode: code}
	if r := s.stoppedBy(); r != "" {
		n.Reason = r
	}
	n.Message = noticeMessage(n, m.opts)
	if waitErr != nil && !isExitError(waitErr) && n.Reason == ReasonExited {
		n.Reason = ReasonError
		n.Message = waitErr.Error()
	}
	m.finish(s, n)
}

func pump(s *Session, r io.Reader) {
	buf := make([]byte, readChunk)
	discard := false
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.touch()
			if !discard {
				if serr := s.sink.Output(buf[:n]); serr != nil {
					discard = true
					s.Stop(ReasonDisconnected)
				}
			}
		}
		if err != nil {
			return
		}
	}
}

// finish moves the session to Terminated and runs every cleanup step
// exactly once.
func (m *Manager) finish(s *Session, n Notice) {
	if !s.transition(Terminated) {
		return
	}
	s.cancel()

	s.inMu.Lock()
	if s.stdin != nil {
		s.stdin.Close()
		s.stdin = nil
	}
	s.inMu.Unlock()

	s.mu.Lock()
	s.notice = n
	ws := s.ws
	s.mu.Unlock()

	m.workspaces.Release(ws)
	m.sessions.Delete(s.id)

	if err := s.sink.Terminated(n); err != nil {
		m.log.Debug("termination notice not delivered", "session", s.id, "err", err)
	}
	m.log.Info("session terminated", "session", s.id, "reason", n.Reason, "exit", n.ExitCode)
	if m.opts.OnTerminate != nil {
		m.opts.OnTerminate(s)
	}
	close(s.done)
}

func noticeMessage(n Notice, opts Options) string {
	switch n.Reason {
	case ReasonExited:
		return fmt.Sprintf("Process exited with code %d", n.ExitCode)
	case ReasonIdle:
		return fmt.Sprintf("Session closed after %s without activity", opts.IdleTimeout)
	case ReasonLifetime:
		return fmt.Sprintf("Session exceeded the %s lifetime limit", opts.MaxLifetime)
	case ReasonShutdown:
		return "Server is shutting down"
	case ReasonDisconnected:
		return "Client disconnected"
	default:
		return "Process stopped"
	}
}

// Get looks up a live session.
func (m *Manager) Get(id string) (*Session, bool) {
	return m.sessions.Load(id)
}

// Stop stops the session with the given id. It reports whether the
// session was found.
func (m *Manager) Stop(id string, reason Reason) bool {
	s, ok := m.sessions.Load(id)
	if !ok {
		return false
	}
	s.Stop(reason)
	return true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	return m.sessions.Size()
}

// Sweep stops sessions that have been idle or alive for too long and
// returns how many it stopped.
func (m *Manager) Sweep(now time.Time) int {
	stopped := 0
	m.sessions.Range(func(id string, s *Session) bool {
		switch {
		case m.opts.MaxLifetime > 0 && now.Sub(s.CreatedAt()) > m.opts.MaxLifetime:
			s.Stop(ReasonLifetime)
			stopped++
		case m.opts.IdleTimeout > 0 && now.Sub(s.LastActivity()) > m.opts.IdleTimeout:
			s.Stop(ReasonIdle)
			stopped++
		}
		return true
	})
	if stopped > 0 {
		m.log.Info("reaped sessions", "count", stopped)
	}
	return stopped
}

// RunReaper calls Sweep every interval until ctx is done.
func (m *Manager) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 || (m.opts.IdleTimeout <= 0 && m.opts.MaxLifetime <= 0) {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

// CloseAll stops every live session and waits for them to terminate or
// for ctx to end.
func (m *Manager) CloseAll(ctx context.Context) error {
	var live []*Session
	m.sessions.Range(func(_ string, s *Session) bool {
		live = append(live, s)
		return true
	})
	for _, s := range live {
		s.Stop(ReasonShutdown)
	}
	for _, s := range live {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return fmt.Errorf("waiting for sessions to close: %w", ctx.Err())
		}
	}
	return nil
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}
