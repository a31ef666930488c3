// Package workspace hands out per-job scratch directories.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/michaelbrown/javarena/internal/logging"
)

// Workspace is an exclusively-owned directory for one build/run job.
type Workspace struct {
	path string
	once sync.Once
}

// Path returns the workspace directory.
func (w *Workspace) Path() string { return w.path }

// File returns the path of name inside the workspace.
func (w *Workspace) File(name string) string { return filepath.Join(w.path, name) }

// Manager creates and removes workspaces under a base directory.
type Manager struct {
	baseDir string
	log     *slog.Logger
}

// NewManager returns a Manager rooted at baseDir. The directory is
// created on first Acquire.
func NewManager(baseDir string, logger *slog.Logger) *Manager {
	return &Manager{baseDir: baseDir, log: logging.Or(logger)}
}

// Acquire creates a fresh, empty, uniquely named directory.
func (m *Manager) Acquire() (*Workspace, error) {
	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace base %s: %w", m.baseDir, err)
	}

	dir := filepath.Join(m.baseDir, "run-"+uuid.NewString())
	// Mkdir, not MkdirAll: an existing directory is an error, never reused.
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace %s: %w", dir, err)
	}
	m.log.Debug("workspace acquired", "path", dir)
	return &Workspace{path: dir}, nil
}

// Release removes the workspace tree. Only the first call for a given
// workspace does anything; failures are logged, not returned.
func (m *Manager) Release(w *Workspace) {
	if w == nil {
		return
	}
	w.once.Do(func() {
		if err := os.RemoveAll(w.path); err != nil {
			m.log.Warn("failed to remove workspace", "path", w.path, "err", err)
			return
		}
		m.log.Debug("workspace released", "path", w.path)
	})
}
