// Package sandbox compiles and runs submitted Java source inside a
// workspace with hard time limits.
package sandbox

import (
	"errors"
	"fmt"
	"time"
)

// Failure taxonomy. Results carry one of these in Err; callers test with errors.Is.
var (
	ErrToolchainUnavailable = errors.New("java toolchain unavailable")
	ErrCompileFailure       = errors.New("compilation failed")
	ErrRuntimeFailure       = errors.New("program exited with an error")
	ErrTimeoutExceeded      = errors.New("time limit exceeded")
	ErrSandbox              = errors.New("sandbox error")

	// ErrNeedsInput is a timeout refined by source inspection.
	ErrNeedsInput = fmt.Errorf("program is waiting for input: %w", ErrTimeoutExceeded)
)

// ExitReason says how a run ended.
type ExitReason string

const (
	Completed  ExitReason = "completed"
	TimedOut   ExitReason = "timed_out"
	NeedsInput ExitReason = "needs_input"
)

// BuildResult is the outcome of one compiler invocation.
type BuildResult struct {
	Succeeded   bool
	Diagnostics string
	Duration    time.Duration
	Err         error
}

// RunResult is the outcome of one batch run.
type RunResult struct {
	Succeeded  bool // exited normally with status 0
	Stdout     string
	Stderr     string
	ExitCode   int
	ExitReason ExitReason
	Duration   time.Duration
	Err        error
}

// Outcome is what a build-and-run call hands back to its caller.
type Outcome struct {
	// Succeeded is true when the program ran to completion, whatever its
	// exit status; stderr carries any runtime failure.
	Succeeded  bool
	Stdout     string
	Stderr     string
	Error      string
	NeedsInput bool
	Compiled   bool
	Build      BuildResult
	Run        *RunResult
	Err        error
}
