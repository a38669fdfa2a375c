//go:build sqlite
// +build sqlite

package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"courtcast/internal/task"
	logx "courtcast/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store.path is required for sqlite driver")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = FULL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Put(ctx context.Context, t *task.Task) error {
	if t == nil || strings.TrimSpace(t.ID) == "" {
		return errors.New("task id is required")
	}
	snap, err := json.Marshal(t.Snapshot)
	if err != nil {
		return err
	}
	var attempts any
	if len(t.Attempts) > 0 {
		b, err := json.Marshal(t.Attempts)
		if err != nil {
			return err
		}
		attempts = string(b)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks(task_id, event_key, status, created_at, started_at, completed_at, next_check_at, snapshot, attempts, err)
		 VALUES(?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(task_id) DO UPDATE SET
		   event_key=excluded.event_key, status=excluded.status,
		   started_at=excluded.started_at, completed_at=excluded.completed_at,
		   next_check_at=excluded.next_check_at, snapshot=excluded.snapshot,
		   attempts=excluded.attempts, err=excluded.err`,
		t.ID, t.EventKey, string(t.Status),
		t.CreatedAt.Format(time.RFC3339Nano),
		nullTime(t.StartedAt), nullTime(t.CompletedAt), nullTime(t.NextCheckAt),
		string(snap), attempts, nullStr(t.Error),
	)
	if err != nil {
		return fmt.Errorf("persist task %s: %w", t.ID, err)
	}
	return nil
}

func (s *sqliteStore) Get(ctx context.Context, id string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT task_id, event_key, status, created_at, started_at, completed_at, next_check_at, snapshot, attempts, err
		 FROM tasks WHERE task_id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, err
}

func (s *sqliteStore) FindByEventKey(ctx context.Context, key string) (*task.Task, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT task_id, event_key, status, created_at, started_at, completed_at, next_check_at, snapshot, attempts, err
		 FROM tasks WHERE event_key = ? AND status != ? LIMIT 1`, key, string(task.StatusFailed))
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

func (s *sqliteStore) List(ctx context.Context, statuses ...task.Status) ([]*task.Task, error) {
	q := `SELECT task_id, event_key, status, created_at, started_at, completed_at, next_check_at, snapshot, attempts, err FROM tasks`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		q += ` WHERE status IN (?` + strings.Repeat(",?", len(statuses)-1) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	q += ` ORDER BY created_at, task_id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		t                            task.Task
		status, createdAt, snapshot  string
		startedAt, completedAt       sql.NullString
		nextCheckAt, attempts, errMsg sql.NullString
	)
	if err := row.Scan(&t.ID, &t.EventKey, &status, &createdAt,
		&startedAt, &completedAt, &nextCheckAt, &snapshot, &attempts, &errMsg); err != nil {
		return nil, err
	}
	t.Status = task.Status(status)
	if !t.Status.Valid() {
		return nil, fmt.Errorf("%w: task %s has unknown status %q", ErrCorrupt, t.ID, status)
	}
	ct, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("%w: task %s: %v", ErrCorrupt, t.ID, err)
	}
	t.CreatedAt = ct
	if t.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, fmt.Errorf("%w: task %s: %v", ErrCorrupt, t.ID, err)
	}
	if t.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, fmt.Errorf("%w: task %s: %v", ErrCorrupt, t.ID, err)
	}
	if t.NextCheckAt, err = parseNullTime(nextCheckAt); err != nil {
		return nil, fmt.Errorf("%w: task %s: %v", ErrCorrupt, t.ID, err)
	}
	if err := json.Unmarshal([]byte(snapshot), &t.Snapshot); err != nil {
		return nil, fmt.Errorf("%w: task %s: %v", ErrCorrupt, t.ID, err)
	}
	if attempts.Valid && attempts.String != "" {
		if err := json.Unmarshal([]byte(attempts.String), &t.Attempts); err != nil {
			return nil, fmt.Errorf("%w: task %s: %v", ErrCorrupt, t.ID, err)
		}
	}
	if errMsg.Valid {
		t.Error = errMsg.String
	}
	return &t, nil
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
