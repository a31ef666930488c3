package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/michaelbrown/javarena/internal/logging"
	"github.com/michaelbrown/javarena/internal/toolchain"
	"github.com/michaelbrown/javarena/internal/workspace"
)

// NeedsInputMessage is shown when a run timed out waiting for stdin.
const NeedsInputMessage = "This program requires user input (Scanner/System.in detected). " +
	"Please provide input in the 'Stdin Input' panel below the console before running."

// Command returns the java command for a built workspace. The process
// gets its own group; cancelling ctx kills the whole group.
func Command(ctx context.Context, info toolchain.Info, p Policy, ws *workspace.Workspace) *exec.Cmd {
	cmd := exec.CommandContext(ctx, info.Runtime, p.RuntimeArgs(ws.Path())...)
	cmd.Dir = ws.Path()
	isolateProcess(cmd)
	return cmd
}

// Runner builds and runs programs to completion.
type Runner struct {
	builder    *Builder
	workspaces *workspace.Manager
	log        *slog.Logger
}

// NewRunner creates a Runner that takes workspaces from workspaces.
func NewRunner(builder *Builder, workspaces *workspace.Manager, logger *slog.Logger) *Runner {
	return &Runner{builder: builder, workspaces: workspaces, log: logging.Or(logger)}
}

// Execute compiles and runs source in a fresh workspace. The workspace is
// released before Execute returns, whatever happened. Cancelling ctx does
// not stop the job; only the compile and run time limits do.
func (r *Runner) Execute(ctx context.Context, source, stdin string) Outcome {
	ctx = context.WithoutCancel(ctx)
	ws, err := r.workspaces.Acquire()
	if err != nil {
		r.log.Error("acquiring workspace", "err", err)
		return Outcome{Error: "could not prepare a workspace", Err: fmt.Errorf("%w: %v", ErrSandbox, err)}
	}
	defer r.workspaces.Release(ws)

	build := r.builder.Build(ctx, ws, source)
	if !build.Succeeded {
		return Outcome{Build: build, Error: build.Diagnostics, Err: build.Err}
	}

	run := r.Run(ctx, ws, source, stdin)
	out := Outcome{
		Compiled: true,
		Build:    build,
		Run:      &run,
		Stdout:   run.Stdout,
		Stderr:   run.Stderr,
		Err:      run.Err,
	}
	switch run.ExitReason {
	case Completed:
		out.Succeeded = run.Err == nil || errors.Is(run.Err, ErrRuntimeFailure)
		out.Error = run.Stderr
		if !out.Succeeded {
			out.Error = run.Err.Error()
		}
	case NeedsInput:
		out.NeedsInput = true
		out.Error = NeedsInputMessage
	case TimedOut:
		out.Error = fmt.Sprintf("Execution timeout (%s limit)", r.builder.policy.RunTimeout)
	}
	return out
}

// Run executes the compiled program in ws. A non-empty stdin is written
// and closed; an empty one stays open and unwritten, so a program reading
// input blocks until the time limit. source is only used to classify a
// timeout. Only the run time limit counts as a timeout; a cancelled ctx
// is reported as a sandbox error.
func (r *Runner) Run(ctx context.Context, ws *workspace.Workspace, source, stdin string) RunResult {
	policy := r.builder.policy
	runCtx, cancel := context.WithTimeout(ctx, policy.RunTimeout)
	defer cancel()

	cmd := Command(runCtx, r.builder.tc.Info(), policy, ws)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	} else if _, err := cmd.StdinPipe(); err != nil {
		return RunResult{ExitCode: -1, Err: fmt.Errorf("%w: stdin pipe: %v", ErrSandbox, err)}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		r.log.Warn("could not start java", "java", cmd.Path, "err", err)
		return RunResult{ExitCode: -1, Err: fmt.Errorf("%w: starting java: %v", ErrToolchainUnavailable, err)}
	}
	waitErr := cmd.Wait()

	res := RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: -1,
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err := ctx.Err(); err != nil {
		res.ExitReason = Completed
		res.Err = fmt.Errorf("%w: run cancelled: %w", ErrSandbox, err)
		r.log.Info("run cancelled by caller", "workspace", ws.Path())
		return res
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.ExitReason = ClassifyTimeout(source, stdin)
		res.Err = ErrTimeoutExceeded
		if res.ExitReason == NeedsInput {
			res.Err = ErrNeedsInput
		}
		r.log.Info("run killed at time limit", "workspace", ws.Path(), "reason", res.ExitReason, "limit", policy.RunTimeout)
		return res
	}

	res.ExitReason = Completed
	switch {
	case waitErr == nil:
		res.Succeeded = true
	case isExitError(waitErr):
		res.Err = fmt.Errorf("%w: exit status %d", ErrRuntimeFailure, res.ExitCode)
	default:
		// Output copying outlived WaitDelay or similar I/O trouble.
		res.Err = fmt.Errorf("%w: %v", ErrSandbox, waitErr)
	}
	r.log.Debug("run finished", "workspace", ws.Path(), "exit", res.ExitCode, "duration", res.Duration)
	return res
}
