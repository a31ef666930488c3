package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/javarena/internal/explain"
	"github.com/michaelbrown/javarena/internal/history"
	"github.com/michaelbrown/javarena/internal/session"
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive <file.java>",
	Short: "Run a program with a live terminal attached",
	Long: `Compile a program and run it as an interactive session. Each line you
type is sent to the program's standard input as it is entered.

Ctrl+D closes the program's input; Ctrl+C or SIGTERM stops the program.`,
	Args: cobra.ExactArgs(1),
	RunE: runInteractive,
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
}

// terminalSink prints a session's output above the readline prompt.
type terminalSink struct {
	out    io.Writer
	source string
	notice chan session.Notice
}

func (t *terminalSink) Started(string) error { return nil }

func (t *terminalSink) Output(p []byte) error {
	_, err := t.out.Write(p)
	return err
}

func (t *terminalSink) Terminated(n session.Notice) error {
	t.notice <- n
	return nil
}

func runInteractive(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	source, err := readSource(args[0])
	if err != nil {
		return err
	}

	opts := session.Options{
		IdleTimeout: a.cfg.Sessions.IdleTimeout,
		MaxLifetime: a.cfg.Sessions.MaxLifetime,
	}
	if store, err := a.openStore(); err != nil {
		a.log.Warn("session will not be recorded", "err", err)
	} else {
		defer store.Close()
		opts.OnTerminate = history.NewRecorder(store, a.log).Session
	}
	mgr := session.NewManager(a.builder, a.workspaces, opts, a.log)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mgr.CloseAll(ctx)
	}()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "",
		HistoryFile:     filepath.Join(os.TempDir(), "javarena_history"),
		InterruptPrompt: "^C",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.RunReaper(ctx, a.cfg.Sessions.SweepInterval)

	sink := &terminalSink{out: rl.Stdout(), source: source, notice: make(chan session.Notice, 1)}
	s, err := mgr.Start(ctx, source, sink)
	if err != nil && s == nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	bridge(sigCtx, s, rl, a.log)

	return reportNotice(cmd.ErrOrStderr(), <-sink.notice, source)
}

// lineReader is the part of readline the terminal bridge uses.
type lineReader interface {
	Readline() (string, error)
	Close() error
}

// bridge feeds lines from lr to s until s has terminated. Ctrl+D closes
// the program's input and reading goes on; Ctrl+C or a cancelled ctx
// stops the program.
func bridge(ctx context.Context, s *session.Session, lr lineReader, log *slog.Logger) {
	go func() {
		select {
		case <-ctx.Done():
			s.Stop(session.ReasonStopped)
		case <-s.Done():
		}
	}()
	// Unblock Readline once the program is gone.
	go func() {
		<-s.Done()
		lr.Close()
	}()

	for s.State() != session.Terminated {
		line, err := lr.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			s.Stop(session.ReasonStopped)
		case errors.Is(err, io.EOF):
			s.CloseInput()
		case err != nil:
			s.Stop(session.ReasonStopped)
		default:
			if _, werr := s.Write([]byte(line + "\n")); werr != nil && !errors.Is(werr, session.ErrNotRunning) {
				log.Warn("writing to program", "err", werr)
			}
		}
	}
	<-s.Done()
}

func reportNotice(w io.Writer, n session.Notice, source string) error {
	switch n.Reason {
	case session.ReasonExited:
		if n.ExitCode == 0 {
			return nil
		}
		color.New(color.FgYellow).Fprintln(w, n.Message)
		return exitError{code: n.ExitCode}
	case session.ReasonCompileFailed:
		color.New(color.FgRed).Fprintln(w, strings.TrimRight(n.Message, "\n"))
		if rv := explain.Explain(n.Message, source, true); rv != nil {
			color.New(color.FgCyan, color.Bold).Fprintln(w, rv.Title)
			fmt.Fprintln(w, rv.Explanation)
		}
		return exitError{code: 1}
	default:
		color.New(color.FgYellow).Fprintln(w, n.Message)
		return exitError{code: 1}
	}
}
