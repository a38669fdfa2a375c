// Package pipeline defines the contracts between the scheduler and the three
// content stages. The stages themselves are external collaborators; the
// scheduler only sees attempt-metadata fragments and StageError outcomes.
package pipeline

import (
	"context"
	"fmt"

	"courtcast/internal/task"
)

// Attempt-metadata keys written by the stages. Each is committed once when
// its stage succeeds and never overwritten (crash-resume relies on this).
const (
	KeyClipsDir  = "clips_dir"
	KeyVideoPath = "video_path"
	KeyRemoteID  = "remote_id"
)

// StageError is a stage failure. Recoverable failures leave the task parked
// at its current state for a later manual re-run; unrecoverable ones fail
// the task permanently.
type StageError struct {
	Stage       string
	Reason      string
	Recoverable bool
}

func (e *StageError) Error() string {
	kind := "unrecoverable"
	if e.Recoverable {
		kind = "recoverable"
	}
	return fmt.Sprintf("%s stage failed (%s): %s", e.Stage, kind, e.Reason)
}

// Collector acquires raw game material (clips, stats) for a finished game.
// Implementations must be idempotent over the same snapshot: a re-run after a
// crash may happen before the collecting state was left.
type Collector interface {
	Collect(ctx context.Context, snap task.Snapshot, attempts map[string]string) (map[string]string, error)
}

// Generator renders the highlight video from collected material.
type Generator interface {
	Generate(ctx context.Context, snap task.Snapshot, attempts map[string]string) (map[string]string, error)
}

// Publisher uploads the rendered video. Implementations that cannot resume an
// interrupted upload safely must return an unrecoverable StageError rather
// than risk a duplicate publish.
type Publisher interface {
	Publish(ctx context.Context, snap task.Snapshot, attempts map[string]string) (map[string]string, error)
}

// Stages bundles the three collaborators the scheduler drives.
type Stages struct {
	Collector Collector
	Generator Generator
	Publisher Publisher
}
