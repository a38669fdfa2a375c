// Package task defines the unit of work tracked by the scheduler: one task
// per real-world game, driven through the content pipeline exactly once.
package task

import "time"

type Status string

const (
	StatusPending        Status = "pending"
	StatusRunning        Status = "running"
	StatusCollecting     Status = "collecting"
	StatusGenerating     Status = "generating"
	StatusPublishing     Status = "publishing"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusWaitingGameEnd Status = "waiting_game_end"
)

// Snapshot is the last-known game metadata, refreshed on each recheck.
// The schedule source stays authoritative; this is a value copy for display
// and for the pipeline stages.
type Snapshot struct {
	HomeTeam    string `json:"home_team"`
	AwayTeam    string `json:"away_team"`
	HomeScore   string `json:"home_score,omitempty"`
	AwayScore   string `json:"away_score,omitempty"`
	StageDesc   string `json:"stage_desc,omitempty"`
	StatusLabel string `json:"status_label,omitempty"`
	RatingCount int    `json:"rating_count,omitempty"`
}

// Task is persisted as a unit; no field is ever durable on its own.
type Task struct {
	ID       string   `json:"task_id"`
	EventKey string   `json:"event_key"`
	Snapshot Snapshot `json:"event"`
	Status   Status   `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// NextCheckAt is set if and only if Status is waiting_game_end.
	NextCheckAt *time.Time `json:"next_check_at,omitempty"`

	// Attempts holds pipeline stage outputs (artifact paths, remote ids).
	// A key is written once when its stage succeeds and never overwritten.
	Attempts map[string]string `json:"attempts,omitempty"`

	Error string `json:"error,omitempty"`
}

// Terminal reports whether no further automatic transitions can occur.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Inflight reports whether the task was mid-pipeline (resumable after a crash).
func (s Status) Inflight() bool {
	switch s {
	case StatusRunning, StatusCollecting, StatusGenerating, StatusPublishing:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCollecting, StatusGenerating,
		StatusPublishing, StatusCompleted, StatusFailed, StatusWaitingGameEnd:
		return true
	}
	return false
}

// next maps each happy-path state to its successor.
var next = map[Status]Status{
	StatusPending:    StatusRunning,
	StatusRunning:    StatusCollecting,
	StatusCollecting: StatusGenerating,
	StatusGenerating: StatusPublishing,
	StatusPublishing: StatusCompleted,
}

// Next returns the happy-path successor state, or "" for terminal/waiting states.
func (s Status) Next() Status { return next[s] }

// CanTransition reports whether from -> to is a legal state machine edge.
// Failure is reachable from any non-terminal state; waiting_game_end only
// re-enters pending; the happy path is strictly linear.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	if from == StatusWaitingGameEnd {
		return to == StatusPending
	}
	return next[from] == to
}

// SetAttempt records a stage output, refusing to overwrite a committed value.
func (t *Task) SetAttempt(key, value string) bool {
	if t.Attempts == nil {
		t.Attempts = map[string]string{}
	}
	if _, ok := t.Attempts[key]; ok {
		return false
	}
	t.Attempts[key] = value
	return true
}

// Clone returns a deep copy so callers can mutate without aliasing the
// store's in-memory record.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.StartedAt != nil {
		v := *t.StartedAt
		cp.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		cp.CompletedAt = &v
	}
	if t.NextCheckAt != nil {
		v := *t.NextCheckAt
		cp.NextCheckAt = &v
	}
	if t.Attempts != nil {
		cp.Attempts = make(map[string]string, len(t.Attempts))
		for k, v := range t.Attempts {
			cp.Attempts[k] = v
		}
	}
	return &cp
}
