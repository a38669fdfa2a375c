package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"courtcast/internal/task"
	logx "courtcast/pkg/logx"
)

func openTemp(t *testing.T) (Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.json")
	s, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, path
}

func mkTask(id, key string, status task.Status, created time.Time) *task.Task {
	return &task.Task{
		ID:        id,
		EventKey:  key,
		Status:    status,
		CreatedAt: created,
		Snapshot:  task.Snapshot{HomeTeam: "Lakers", AwayTeam: "Celtics"},
	}
}

func TestPutSurvivesReload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, path := openTemp(t)
	now := time.Now().UTC().Truncate(time.Second)

	tk := mkTask("t1", "g1", task.StatusPending, now)
	tk.Attempts = map[string]string{"clips_dir": "/tmp/clips"}
	if err := s.Put(ctx, tk); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Simulate a restart.
	re, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := re.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get after reload: %v", err)
	}
	if got.EventKey != "g1" || got.Status != task.StatusPending {
		t.Fatalf("reloaded task mismatch: %+v", got)
	}
	if got.Attempts["clips_dir"] != "/tmp/clips" {
		t.Fatalf("attempts lost on reload: %+v", got.Attempts)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()
	s, _ := openTemp(t)
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindByEventKeySkipsFailed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := openTemp(t)
	now := time.Now()

	if err := s.Put(ctx, mkTask("t1", "g1", task.StatusFailed, now)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok, _ := s.FindByEventKey(ctx, "g1"); ok {
		t.Fatal("failed task should not block the event key")
	}

	if err := s.Put(ctx, mkTask("t2", "g1", task.StatusCompleted, now)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := s.FindByEventKey(ctx, "g1")
	if err != nil || !ok {
		t.Fatalf("completed task should be found (ok=%v err=%v)", ok, err)
	}
	if got.ID != "t2" {
		t.Fatalf("found %s, want t2", got.ID)
	}
}

func TestListFilterAndOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := openTemp(t)
	base := time.Now()

	for i, tk := range []*task.Task{
		mkTask("b", "g2", task.StatusWaitingGameEnd, base.Add(2*time.Second)),
		mkTask("a", "g1", task.StatusWaitingGameEnd, base.Add(1*time.Second)),
		mkTask("c", "g3", task.StatusCompleted, base.Add(3*time.Second)),
	} {
		if err := s.Put(ctx, tk); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
	}

	got, err := s.List(ctx, task.StatusWaitingGameEnd)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("unexpected list: %+v", got)
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(all))
	}
}

func TestOpenRefusesCorruptFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tasks.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Open(Config{Driver: "file", Path: path}, logx.Nop()); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestOpenRefusesUnknownStatus(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tasks.json")
	blob := `{"tasks":{"t1":{"task_id":"t1","event_key":"g1","status":"exploded","created_at":"2026-01-02T12:00:00Z","event":{}}}}`
	if err := os.WriteFile(path, []byte(blob), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Open(Config{Driver: "file", Path: path}, logx.Nop()); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestPutRollsBackOnWriteError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, path := openTemp(t)
	now := time.Now()

	if err := s.Put(ctx, mkTask("t1", "g1", task.StatusCollecting, now)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Occupy the temp path with a directory so the atomic replace fails.
	if err := os.Mkdir(path+".tmp", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	advanced := mkTask("t1", "g1", task.StatusGenerating, now)
	if err := s.Put(ctx, advanced); err == nil {
		t.Fatal("expected write error")
	}

	// In-memory state must still match the last durable state.
	got, err := s.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != task.StatusCollecting {
		t.Fatalf("status = %s, want collecting after failed persist", got.Status)
	}
}
