package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"courtcast/internal/store"
	"courtcast/internal/task"
	logx "courtcast/pkg/logx"
)

func setupRouter(t *testing.T) (http.Handler, store.Store) {
	t.Helper()
	s, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "tasks.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return NewRouter(NewHandler(s)), s
}

func seedTask(t *testing.T, s store.Store, key string, status task.Status) *task.Task {
	t.Helper()
	tk := &task.Task{
		ID:        uuid.NewString(),
		EventKey:  key,
		Snapshot:  task.Snapshot{HomeTeam: "Lakers", AwayTeam: "Celtics"},
		Status:    status,
		CreatedAt: time.Now(),
	}
	if err := s.Put(context.Background(), tk); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return tk
}

func TestHealthCheck(t *testing.T) {
	router, _ := setupRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestListTasksEmpty(t *testing.T) {
	router, _ := setupRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/tasks", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var tasks []*task.Task
	if err := json.Unmarshal(rr.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("got %d tasks, want 0", len(tasks))
	}
}

func TestListTasksStatusFilter(t *testing.T) {
	router, s := setupRouter(t)
	seedTask(t, s, "game-1", task.StatusCompleted)
	seedTask(t, s, "game-2", task.StatusFailed)
	seedTask(t, s, "game-3", task.StatusPending)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/tasks?status=completed,failed", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var tasks []*task.Task
	if err := json.Unmarshal(rr.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	for _, tk := range tasks {
		if tk.Status != task.StatusCompleted && tk.Status != task.StatusFailed {
			t.Fatalf("unexpected status %q in filtered list", tk.Status)
		}
	}
}

func TestListTasksRejectsUnknownStatus(t *testing.T) {
	router, _ := setupRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/tasks?status=sideways", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestGetTask(t *testing.T) {
	router, s := setupRouter(t)
	tk := seedTask(t, s, "game-1", task.StatusPending)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/tasks/"+tk.ID, nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var got task.Task
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != tk.ID || got.EventKey != "game-1" {
		t.Fatalf("got task %q/%q, want %q/%q", got.ID, got.EventKey, tk.ID, "game-1")
	}
}

func TestGetTaskNotFound(t *testing.T) {
	router, _ := setupRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/tasks/no-such-id", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestServerStartStop(t *testing.T) {
	_, s := setupRouter(t)
	srv := NewServer(ServerConfig{Enabled: true, Addr: "127.0.0.1:0"}, NewHandler(s), logx.Nop())
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	srv.Stop(ctx)
	if srv.Addr() != "" {
		t.Fatal("Addr non-empty after Stop")
	}
}
