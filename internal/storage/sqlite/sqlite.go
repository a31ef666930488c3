package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/michaelbrown/javarena/internal/storage"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements storage.Store backed by a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.Store = (*SQLiteStore)(nil)

// Open creates or opens a SQLite database at the given path and runs migrations.
// Use ":memory:" for an in-memory database (useful for testing).
func Open(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: every ":memory:" connection is its own database, and
	// a single writer avoids SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func (s *SQLiteStore) CreateShare(ctx context.Context, sh *storage.Share) error {
	if sh.CreatedAt.IsZero() {
		sh.CreatedAt = s.now().UTC().Truncate(time.Second)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shares (id, code, output, created_at, expires_at, views)
		VALUES (?, ?, ?, ?, ?, 0)`,
		sh.ID, sh.Code, sh.Output, formatTime(sh.CreatedAt), formatTime(sh.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("inserting share: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetShare(ctx context.Context, id string) (*storage.Share, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var sh storage.Share
	var createdAt, expiresAt string
	err = tx.QueryRowContext(ctx, `
		SELECT id, code, output, created_at, expires_at, views
		FROM shares WHERE id = ?`, id).
		Scan(&sh.ID, &sh.Code, &sh.Output, &createdAt, &expiresAt, &sh.Views)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying share: %w", err)
	}
	sh.CreatedAt, sh.ExpiresAt = parseTime(createdAt), parseTime(expiresAt)

	if !s.now().Before(sh.ExpiresAt) {
		return nil, storage.ErrExpired
	}

	if _, err := tx.ExecContext(ctx, `UPDATE shares SET views = views + 1 WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("counting view: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing view: %w", err)
	}
	sh.Views++
	return &sh, nil
}

func (s *SQLiteStore) DeleteExpiredShares(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM shares WHERE expires_at <= ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("deleting expired shares: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) RecordExecution(ctx context.Context, e *storage.Execution) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC().Truncate(time.Second)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (id, mode, status, exit_code, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Mode, e.Status, e.ExitCode, e.DurationMillis, e.Error, formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

const executionColumns = `id, mode, status, exit_code, duration_ms, error, created_at`

func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*storage.Execution, error) {
	// Try exact match first, then prefix match
	row := s.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)
	e, err := scanExecution(row)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("querying execution: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+executionColumns+` FROM executions WHERE id LIKE ? || '%' LIMIT 2`, id)
	if err != nil {
		return nil, fmt.Errorf("querying execution: %w", err)
	}
	defer rows.Close()

	var matches []*storage.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("execution %s: %w", id, storage.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous execution prefix %q", id)
	}
}

func (s *SQLiteStore) ListExecutions(ctx context.Context, opts storage.ExecutionListOptions) ([]storage.Execution, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + executionColumns + ` FROM executions`
	var args []any

	if opts.Mode != "" {
		query += ` WHERE mode = ?`
		args = append(args, string(opts.Mode))
	}

	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}
	defer rows.Close()

	executions := []storage.Execution{}
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, *e)
	}
	return executions, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Scanner interface to work with both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanExecution(s scanner) (*storage.Execution, error) {
	var e storage.Execution
	var createdAt string
	err := s.Scan(&e.ID, &e.Mode, &e.Status, &e.ExitCode, &e.DurationMillis, &e.Error, &createdAt)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = parseTime(createdAt)
	return &e, nil
}
