package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/michaelbrown/javarena/internal/storage"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening memory db: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// at pins the store clock.
func at(s *SQLiteStore, now time.Time) {
	s.now = func() time.Time { return now }
}

func TestCreateAndGetShare(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	at(s, now)

	sh := &storage.Share{
		ID:        "abcdef1234",
		Code:      "public class Main {}",
		Output:    "hello\n",
		ExpiresAt: now.Add(time.Hour),
	}
	if err := s.CreateShare(ctx, sh); err != nil {
		t.Fatalf("CreateShare: %v", err)
	}
	if !sh.CreatedAt.Equal(now) {
		t.Errorf("created_at = %s, want %s", sh.CreatedAt, now)
	}

	for want := 1; want <= 2; want++ {
		got, err := s.GetShare(ctx, sh.ID)
		if err != nil {
			t.Fatalf("GetShare: %v", err)
		}
		if got.Code != sh.Code || got.Output != sh.Output {
			t.Errorf("share = %+v", got)
		}
		if got.Views != want {
			t.Errorf("views = %d, want %d", got.Views, want)
		}
		if !got.ExpiresAt.Equal(sh.ExpiresAt) {
			t.Errorf("expires_at = %s, want %s", got.ExpiresAt, sh.ExpiresAt)
		}
	}
}

func TestGetShareNotFound(t *testing.T) {
	s := testStore(t)
	if _, err := s.GetShare(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetShareExpired(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	at(s, now)

	sh := &storage.Share{ID: "old", Code: "x", ExpiresAt: now.Add(time.Minute)}
	if err := s.CreateShare(ctx, sh); err != nil {
		t.Fatalf("CreateShare: %v", err)
	}

	at(s, now.Add(time.Minute))
	if _, err := s.GetShare(ctx, "old"); !errors.Is(err, storage.ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
}

func TestDuplicateShareID(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	sh := &storage.Share{ID: "dup", Code: "x", ExpiresAt: time.Now().Add(time.Hour)}
	if err := s.CreateShare(ctx, sh); err != nil {
		t.Fatalf("CreateShare: %v", err)
	}
	if err := s.CreateShare(ctx, sh); err == nil {
		t.Fatal("expected error for duplicate id")
	}
}

func TestDeleteExpiredShares(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	at(s, now)

	for id, ttl := range map[string]time.Duration{"a": -time.Hour, "b": 0, "c": time.Hour} {
		if err := s.CreateShare(ctx, &storage.Share{ID: id, Code: id, ExpiresAt: now.Add(ttl)}); err != nil {
			t.Fatalf("CreateShare: %v", err)
		}
	}

	n, err := s.DeleteExpiredShares(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredShares: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}
	if _, err := s.GetShare(ctx, "c"); err != nil {
		t.Errorf("live share should remain: %v", err)
	}
	if _, err := s.GetShare(ctx, "a"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expired share should be gone: %v", err)
	}
}

func TestRecordAndGetExecution(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	e := &storage.Execution{
		Mode:           storage.ModeBatch,
		Status:         storage.StatusRuntimeError,
		ExitCode:       1,
		DurationMillis: 420,
		Error:          "Exception in thread \"main\"",
	}
	if err := s.RecordExecution(ctx, e); err != nil {
		t.Fatalf("RecordExecution: %v", err)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("id and created_at should be filled in: %+v", e)
	}

	got, err := s.GetExecution(ctx, e.ID[:8])
	if err != nil {
		t.Fatalf("GetExecution by prefix: %v", err)
	}
	if got.ID != e.ID || got.Status != storage.StatusRuntimeError || got.ExitCode != 1 || got.DurationMillis != 420 {
		t.Errorf("execution = %+v", got)
	}
	if got.Error != e.Error {
		t.Errorf("error = %q", got.Error)
	}
}

func TestGetExecutionErrors(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, id := range []string{"abc00000", "abc11111"} {
		if err := s.RecordExecution(ctx, &storage.Execution{ID: id, Mode: storage.ModeBatch, Status: storage.StatusCompleted}); err != nil {
			t.Fatalf("RecordExecution: %v", err)
		}
	}

	if _, err := s.GetExecution(ctx, "abc"); err == nil {
		t.Fatal("expected error for ambiguous prefix")
	}
	if _, err := s.GetExecution(ctx, "zzz"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRecordExecutionRejectsUnknownMode(t *testing.T) {
	s := testStore(t)
	err := s.RecordExecution(context.Background(), &storage.Execution{Mode: "bogus", Status: storage.StatusCompleted})
	if err == nil {
		t.Fatal("expected constraint error")
	}
}

func TestListExecutions(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	records := []struct {
		id   string
		mode storage.Mode
	}{
		{"e1", storage.ModeBatch},
		{"e2", storage.ModeInteractive},
		{"e3", storage.ModeBatch},
		{"e4", storage.ModeBatch},
	}
	for i, r := range records {
		e := &storage.Execution{ID: r.id, Mode: r.mode, Status: storage.StatusCompleted, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := s.RecordExecution(ctx, e); err != nil {
			t.Fatalf("RecordExecution: %v", err)
		}
	}

	all, err := s.ListExecutions(ctx, storage.ExecutionListOptions{})
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(all) != 4 || all[0].ID != "e4" || all[3].ID != "e1" {
		t.Errorf("want newest first, got %+v", all)
	}

	batch, err := s.ListExecutions(ctx, storage.ExecutionListOptions{Mode: storage.ModeBatch, Limit: 2})
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(batch) != 2 || batch[0].ID != "e4" || batch[1].ID != "e3" {
		t.Errorf("batch page = %+v", batch)
	}

	page2, err := s.ListExecutions(ctx, storage.ExecutionListOptions{Mode: storage.ModeBatch, Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(page2) != 1 || page2[0].ID != "e1" {
		t.Errorf("second page = %+v", page2)
	}
}

func TestListExecutionsEmpty(t *testing.T) {
	s := testStore(t)
	got, err := s.ListExecutions(context.Background(), storage.ExecutionListOptions{})
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("want empty non-nil slice, got %#v", got)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "javarena.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	if err := s.RecordExecution(ctx, &storage.Execution{ID: "keep", Mode: storage.ModeInteractive, Status: storage.StatusStopped}); err != nil {
		t.Fatalf("RecordExecution: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if currentVersion(s.db) != schemaVersion() {
		t.Errorf("schema version = %d, want %d", currentVersion(s.db), schemaVersion())
	}
	if _, err := s.GetExecution(ctx, "keep"); err != nil {
		t.Errorf("record lost across reopen: %v", err)
	}
}
