// Package history turns finished batch runs and interactive sessions into
// storage records.
package history

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/michaelbrown/javarena/internal/logging"
	"github.com/michaelbrown/javarena/internal/sandbox"
	"github.com/michaelbrown/javarena/internal/session"
	"github.com/michaelbrown/javarena/internal/storage"
)

// FromOutcome classifies a batch run.
func FromOutcome(out sandbox.Outcome) *storage.Execution {
	e := &storage.Execution{
		Mode:           storage.ModeBatch,
		ExitCode:       -1,
		DurationMillis: out.Build.Duration.Milliseconds(),
	}
	if out.Run != nil {
		e.ExitCode = out.Run.ExitCode
		e.DurationMillis += out.Run.Duration.Milliseconds()
	}

	switch {
	case !out.Compiled && errors.Is(out.Err, sandbox.ErrCompileFailure):
		e.Status = storage.StatusCompileError
	case !out.Compiled:
		e.Status = storage.StatusError
		e.Error = out.Error
	case out.NeedsInput:
		e.Status = storage.StatusNeedsInput
	case out.Run.ExitReason == sandbox.TimedOut:
		e.Status = storage.StatusTimeout
	case out.Succeeded && e.ExitCode == 0:
		e.Status = storage.StatusCompleted
	case out.Succeeded:
		e.Status = storage.StatusRuntimeError
	default:
		e.Status = storage.StatusError
		e.Error = out.Error
	}
	return e
}

// FromSession classifies a terminated session. now is when it was observed
// to be done.
func FromSession(s *session.Session, now time.Time) *storage.Execution {
	n := s.Notice()
	e := &storage.Execution{
		ID:             s.ID(),
		Mode:           storage.ModeInteractive,
		ExitCode:       n.ExitCode,
		DurationMillis: now.Sub(s.CreatedAt()).Milliseconds(),
	}
	switch n.Reason {
	case session.ReasonExited:
		e.Status = storage.StatusCompleted
		if n.ExitCode != 0 {
			e.Status = storage.StatusRuntimeError
		}
	case session.ReasonCompileFailed:
		e.Status = storage.StatusCompileError
	case session.ReasonError:
		e.Status = storage.StatusError
		e.Error = n.Message
	default:
		e.Status = storage.StatusStopped
		e.Error = string(n.Reason)
	}
	return e
}

// Recorder writes execution records to a store. Write failures are
// logged; history is never worth failing a run over.
type Recorder struct {
	store storage.Store
	now   func() time.Time
	log   *slog.Logger
}

// NewRecorder creates a Recorder backed by store.
func NewRecorder(store storage.Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, now: time.Now, log: logging.Or(logger)}
}

// Outcome records a batch run and returns the stored record, or nil if
// it could not be stored.
func (r *Recorder) Outcome(ctx context.Context, out sandbox.Outcome) *storage.Execution {
	return r.record(ctx, FromOutcome(out))
}

// Session records a terminated session. Its signature fits
// session.Options.OnTerminate.
func (r *Recorder) Session(s *session.Session) {
	r.record(context.Background(), FromSession(s, r.now()))
}

func (r *Recorder) record(ctx context.Context, e *storage.Execution) *storage.Execution {
	if err := r.store.RecordExecution(context.WithoutCancel(ctx), e); err != nil {
		r.log.Warn("recording execution", "mode", e.Mode, "status", e.Status, "err", err)
		return nil
	}
	return e
}
