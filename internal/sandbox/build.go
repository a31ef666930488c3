package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/michaelbrown/javarena/internal/logging"
	"github.com/michaelbrown/javarena/internal/toolchain"
	"github.com/michaelbrown/javarena/internal/workspace"
)

// waitDelay bounds how long Wait keeps copying output after the process
// is gone, in case something else still holds the pipes.
const waitDelay = 2 * time.Second

const unavailableMessage = "Java compiler (javac) not found on this system"

// Builder runs javac against a workspace.
type Builder struct {
	tc     toolchain.Provider
	policy Policy
	log    *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(tc toolchain.Provider, policy Policy, logger *slog.Logger) *Builder {
	return &Builder{tc: tc, policy: policy, log: logging.Or(logger)}
}

// Policy returns the limits this builder applies.
func (b *Builder) Policy() Policy { return b.policy }

// Toolchain returns the toolchain this builder compiles with.
func (b *Builder) Toolchain() toolchain.Info { return b.tc.Info() }

// Build writes source into the workspace and compiles it. It never
// retries; a failed build is final for the job.
func (b *Builder) Build(ctx context.Context, ws *workspace.Workspace, source string) BuildResult {
	info := b.tc.Info()
	if !info.Available() {
		return BuildResult{Diagnostics: unavailableMessage, Err: ErrToolchainUnavailable}
	}

	srcPath := ws.File(b.policy.SourceFile)
	if err := os.WriteFile(srcPath, []byte(source), 0o644); err != nil {
		return BuildResult{
			Diagnostics: fmt.Sprintf("writing source: %v", err),
			Err:         fmt.Errorf("%w: writing %s: %v", ErrSandbox, srcPath, err),
		}
	}

	compileCtx, cancel := context.WithTimeout(ctx, b.policy.CompileTimeout)
	defer cancel()

	cmd := exec.CommandContext(compileCtx, info.Compiler, b.policy.compileArgs()...)
	cmd.Dir = ws.Path()
	cmd.WaitDelay = waitDelay
	isolateProcess(cmd)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := BuildResult{Diagnostics: stderr.String(), Duration: time.Since(start)}

	switch {
	case err == nil:
		res.Succeeded = true
		b.log.Debug("compile succeeded", "workspace", ws.Path(), "duration", res.Duration)
	case ctx.Err() != nil:
		res.Diagnostics = "Compilation cancelled"
		res.Err = fmt.Errorf("%w: compile cancelled: %w", ErrSandbox, ctx.Err())
		b.log.Info("compile cancelled by caller", "workspace", ws.Path())
	case errors.Is(compileCtx.Err(), context.DeadlineExceeded):
		res.Diagnostics += fmt.Sprintf("Compilation timeout (%s limit)", b.policy.CompileTimeout)
		res.Err = fmt.Errorf("%w: %w", ErrCompileFailure, ErrTimeoutExceeded)
		b.log.Info("compile timed out", "workspace", ws.Path(), "limit", b.policy.CompileTimeout)
	case isExitError(err):
		if res.Diagnostics == "" {
			res.Diagnostics = "Compilation failed"
		}
		res.Err = ErrCompileFailure
		b.log.Debug("compile failed", "workspace", ws.Path(), "duration", res.Duration)
	case errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist):
		res.Diagnostics = unavailableMessage
		res.Err = ErrToolchainUnavailable
		b.log.Warn("compiler disappeared", "javac", info.Compiler, "err", err)
	default:
		res.Diagnostics = fmt.Sprintf("starting javac: %v", err)
		res.Err = fmt.Errorf("%w: %v", ErrToolchainUnavailable, err)
		b.log.Warn("could not start compiler", "javac", info.Compiler, "err", err)
	}
	return res
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}
