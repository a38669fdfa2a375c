// Package event defines the schedule-source boundary. Raw status labels are
// normalized into a fixed three-value enum here so the scheduler's state
// machine never branches on source-specific text.
package event

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnavailable wraps network or parse failures talking to the source.
// A sweep seeing it aborts for the cycle and retries at the next fire.
var ErrUnavailable = errors.New("event source unavailable")

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
)

// Event is one game as reported by the source for a given day.
type Event struct {
	Key         string
	HomeTeam    string
	AwayTeam    string
	HomeScore   string
	AwayScore   string
	StageDesc   string
	StatusLabel string
	Status      Status
	RatingCount int
}

// StatusInfo is the result of a per-game status recheck.
type StatusInfo struct {
	Status      Status
	RatingCount int
}

// Source lists a day's games and reports per-game status.
type Source interface {
	ListEvents(ctx context.Context, date time.Time) ([]Event, error)
	GetStatus(ctx context.Context, key string) (StatusInfo, error)
}

// NormalizeStatus maps raw source labels onto the fixed enum.
func NormalizeStatus(label string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "未开始", "not started", "not_started", "scheduled":
		return StatusNotStarted, nil
	case "进行中", "直播中", "in progress", "in_progress", "live":
		return StatusInProgress, nil
	case "已结束", "finished", "final", "ended":
		return StatusFinished, nil
	default:
		return "", fmt.Errorf("unknown game status label %q", label)
	}
}
