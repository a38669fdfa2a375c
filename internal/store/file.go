package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"courtcast/internal/task"
	logx "courtcast/pkg/logx"
)

// fileStore keeps the full task set in memory and rewrites the whole file on
// every Put using write -> fsync -> rename. The single-writer model makes a
// mutex sufficient; readers (the status API) always see a committed set.
type fileStore struct {
	log  logx.Logger
	path string

	mu    sync.Mutex
	tasks map[string]*task.Task
}

// fileLayout is the on-disk shape: a single object keyed by task id.
type fileLayout struct {
	Tasks map[string]*task.Task `json:"tasks"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("store.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{log: log, path: path, tasks: map[string]*task.Task{}}

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		// First run: create an empty set so later failures are write errors,
		// not missing-file ambiguity.
		if err := s.persistLocked(); err != nil {
			return nil, err
		}
		log.Info("created task store", logx.String("path", path))
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	var layout fileLayout
	if err := json.Unmarshal(b, &layout); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	for id, t := range layout.Tasks {
		if t == nil || t.ID == "" || t.ID != id {
			return nil, fmt.Errorf("%w: %s: record %q is malformed", ErrCorrupt, path, id)
		}
		if !t.Status.Valid() {
			return nil, fmt.Errorf("%w: %s: task %s has unknown status %q", ErrCorrupt, path, id, t.Status)
		}
		s.tasks[id] = t
	}
	log.Info("loaded task store", logx.String("path", path), logx.Int("tasks", len(s.tasks)))
	return s, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Put(ctx context.Context, t *task.Task) error {
	_ = ctx
	if t == nil || strings.TrimSpace(t.ID) == "" {
		return errors.New("task id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.tasks[t.ID]
	s.tasks[t.ID] = t.Clone()
	if err := s.persistLocked(); err != nil {
		// Not committed: roll memory back so it never diverges from disk.
		if had {
			s.tasks[t.ID] = prev
		} else {
			delete(s.tasks, t.ID)
		}
		return fmt.Errorf("persist task %s: %w", t.ID, err)
	}
	return nil
}

func (s *fileStore) Get(ctx context.Context, id string) (*task.Task, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t.Clone(), nil
}

func (s *fileStore) FindByEventKey(ctx context.Context, key string) (*task.Task, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.EventKey == key && t.Status != task.StatusFailed {
			return t.Clone(), true, nil
		}
	}
	return nil, false, nil
}

func (s *fileStore) List(ctx context.Context, statuses ...task.Status) ([]*task.Task, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if statusIn(t.Status, statuses) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// persistLocked atomically replaces the task file. The temp file lives in the
// same directory so the rename stays on one filesystem.
func (s *fileStore) persistLocked() error {
	b, err := json.MarshalIndent(fileLayout{Tasks: s.tasks}, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.path)
}
