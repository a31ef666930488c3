package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExpired  = errors.New("expired")
)

// Share is a snapshot of code and its output published under a short id.
type Share struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Output    string    `json:"output"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Views     int       `json:"views"`
}

// NewShareID returns a 10-character id derived from a random UUID.
func NewShareID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// Mode says how a program was executed.
type Mode string

const (
	ModeBatch       Mode = "batch"
	ModeInteractive Mode = "interactive"
)

// ExecStatus is the final classification of one execution.
type ExecStatus string

const (
	StatusCompleted    ExecStatus = "completed"
	StatusCompileError ExecStatus = "compile_error"
	StatusRuntimeError ExecStatus = "runtime_error"
	StatusTimeout      ExecStatus = "timeout"
	StatusNeedsInput   ExecStatus = "needs_input"
	StatusStopped      ExecStatus = "stopped"
	StatusError        ExecStatus = "error"
)

// Execution is one history record. Source code is not kept.
type Execution struct {
	ID             string     `json:"id"`
	Mode           Mode       `json:"mode"`
	Status         ExecStatus `json:"status"`
	ExitCode       int        `json:"exit_code"`
	DurationMillis int64      `json:"duration_ms"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ExecutionListOptions controls filtering and pagination for ListExecutions.
type ExecutionListOptions struct {
	Mode   Mode
	Limit  int
	Offset int
}

// Store is the persistence interface for shares and execution history.
type Store interface {
	// CreateShare inserts a share. ID and ExpiresAt must be set by the caller.
	CreateShare(ctx context.Context, s *Share) error

	// GetShare returns a live share and counts the view. Unknown ids give
	// ErrNotFound, shares past ExpiresAt give ErrExpired.
	GetShare(ctx context.Context, id string) (*Share, error)

	// DeleteExpiredShares removes shares that expired at or before now.
	DeleteExpiredShares(ctx context.Context, now time.Time) (int64, error)

	// RecordExecution appends a history record. An empty ID is filled in.
	RecordExecution(ctx context.Context, e *Execution) error

	// GetExecution returns a record by ID or unique ID prefix.
	GetExecution(ctx context.Context, id string) (*Execution, error)

	// ListExecutions returns records newest first.
	ListExecutions(ctx context.Context, opts ExecutionListOptions) ([]Execution, error)

	// Close releases resources.
	Close() error
}
