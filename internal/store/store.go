package store

import (
	"context"
	"errors"
	"strings"

	"courtcast/internal/task"
	logx "courtcast/pkg/logx"
)

var (
	// ErrNotFound is returned by Get for unknown task ids.
	ErrNotFound = errors.New("task not found")

	// ErrCorrupt means the persisted task set could not be parsed. The
	// process must refuse to start rather than guess at state.
	ErrCorrupt = errors.New("task store corrupt")
)

// Config configures storage.
//
// Driver values:
//   - "file" (or empty): single JSON file with atomic whole-file replace
//   - "sqlite": SQLite database file (requires the sqlite build tag)
type Config struct {
	Driver string
	Path   string
}

// Store is the persistence API used by the scheduler. Every Put is durable
// before it returns; there is no background writer.
type Store interface {
	Put(ctx context.Context, t *task.Task) error
	Get(ctx context.Context, id string) (*task.Task, error)
	// FindByEventKey returns the task tracking the given event, if one exists
	// outside the failed state. Failed tasks do not block re-creation;
	// completed ones do.
	FindByEventKey(ctx context.Context, key string) (*task.Task, bool, error)
	// List returns tasks whose status is in the given set (all tasks when the
	// set is empty), in creation order.
	List(ctx context.Context, statuses ...task.Status) ([]*task.Task, error)
	Close() error
}

// Open initializes the configured store, loading the persisted task set.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown store driver: " + driver)
	}
}

func statusIn(s task.Status, set []task.Status) bool {
	if len(set) == 0 {
		return true
	}
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
