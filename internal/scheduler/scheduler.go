// Package scheduler owns task lifecycle: creation during discovery sweeps,
// promotion of waiting tasks, and driving eligible tasks through the
// content pipeline with a durable persist after every transition.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"courtcast/internal/event"
	"courtcast/internal/pipeline"
	"courtcast/internal/store"
	"courtcast/internal/task"
	logx "courtcast/pkg/logx"
)

// Clock abstracts wall time so retry-interval behavior is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }

// Eligibility decides whether a discovered game is worth tracking at all.
type Eligibility func(ev event.Event) bool

// MinRating gates finished games on a minimum rating count. n <= 0 disables
// the gate.
func MinRating(n int) Eligibility {
	return func(ev event.Event) bool {
		return n <= 0 || ev.RatingCount >= n
	}
}

// Notifier receives operator-facing task outcome messages. May be nil.
type Notifier interface {
	Notify(ctx context.Context, msg string)
}

type Config struct {
	// RetryInterval is how far NextCheckAt advances for waiting tasks.
	RetryInterval time.Duration
	// MaxWait bounds how long a task may stay in waiting_game_end, measured
	// from creation. 0 means wait forever.
	MaxWait time.Duration
}

type Scheduler struct {
	cfg      Config
	store    store.Store
	source   event.Source
	stages   pipeline.Stages
	eligible Eligibility
	clock    Clock
	notify   Notifier
	log      logx.Logger
}

type Option func(*Scheduler)

func WithClock(c Clock) Option            { return func(s *Scheduler) { s.clock = c } }
func WithEligibility(e Eligibility) Option { return func(s *Scheduler) { s.eligible = e } }
func WithNotifier(n Notifier) Option      { return func(s *Scheduler) { s.notify = n } }

func New(cfg Config, st store.Store, src event.Source, stages pipeline.Stages, log logx.Logger, opts ...Option) *Scheduler {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Hour
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Scheduler{
		cfg:      cfg,
		store:    st,
		source:   src,
		stages:   stages,
		eligible: MinRating(0),
		clock:    SystemClock(),
		log:      log,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Discover fetches the day's games and creates one task per untracked game:
// pending when the game is finished and eligible, waiting_game_end when it
// has not finished yet. Newly pending tasks are executed before returning.
// Re-running for the same date creates nothing new.
func (s *Scheduler) Discover(ctx context.Context, date time.Time) error {
	events, err := s.source.ListEvents(ctx, date)
	if err != nil {
		return fmt.Errorf("discover sweep: %w", err)
	}
	s.log.Info("discovery sweep", logx.Time("date", date), logx.Int("games", len(events)))

	now := s.clock.Now()
	var pending []*task.Task
	for _, ev := range events {
		if _, ok, err := s.store.FindByEventKey(ctx, ev.Key); err != nil {
			return fmt.Errorf("discover sweep: %w", err)
		} else if ok {
			s.log.Debug("game already tracked", logx.String("event_key", ev.Key))
			continue
		}

		t := &task.Task{
			ID:        uuid.NewString(),
			EventKey:  ev.Key,
			Snapshot:  snapshotOf(ev),
			CreatedAt: now,
		}
		switch {
		case ev.Status == event.StatusFinished && s.eligible(ev):
			t.Status = task.StatusPending
		case ev.Status == event.StatusFinished:
			s.log.Info("game below eligibility threshold; not tracked",
				logx.String("event_key", ev.Key), logx.Int("rating", ev.RatingCount))
			continue
		default:
			t.Status = task.StatusWaitingGameEnd
			next := now.Add(s.cfg.RetryInterval)
			t.NextCheckAt = &next
		}

		if err := s.store.Put(ctx, t); err != nil {
			return fmt.Errorf("discover sweep: %w", err)
		}
		s.log.Info("task created",
			logx.String("task_id", t.ID),
			logx.String("event_key", t.EventKey),
			logx.String("status", string(t.Status)),
			logx.String("matchup", t.Snapshot.AwayTeam+" vs "+t.Snapshot.HomeTeam))
		if t.Status == task.StatusPending {
			pending = append(pending, t)
		}
	}

	for _, t := range pending {
		if err := s.Execute(ctx, t); err != nil {
			s.log.Error("task execution failed", logx.String("task_id", t.ID), logx.Err(err))
		}
	}
	return nil
}

// RecheckWaiting re-evaluates waiting tasks whose NextCheckAt has passed.
// Finished games are promoted to pending and executed within the same call;
// unfinished ones get their next check pushed out by the retry interval, up
// to the configured wait horizon.
func (s *Scheduler) RecheckWaiting(ctx context.Context) error {
	waiting, err := s.store.List(ctx, task.StatusWaitingGameEnd)
	if err != nil {
		return fmt.Errorf("recheck sweep: %w", err)
	}

	now := s.clock.Now()
	for _, t := range waiting {
		if t.NextCheckAt != nil && now.Before(*t.NextCheckAt) {
			continue
		}

		info, err := s.source.GetStatus(ctx, t.EventKey)
		if err != nil {
			// Source trouble aborts the sweep; tasks stay untouched and the
			// next fire retries them all.
			return fmt.Errorf("recheck sweep: task %s: %w", t.ID, err)
		}

		t.Snapshot.StatusLabel = string(info.Status)
		t.Snapshot.RatingCount = info.RatingCount

		if info.Status == event.StatusFinished {
			t.Status = task.StatusPending
			t.NextCheckAt = nil
			if err := s.store.Put(ctx, t); err != nil {
				return fmt.Errorf("recheck sweep: %w", err)
			}
			s.log.Info("game finished; task promoted", logx.String("task_id", t.ID), logx.String("event_key", t.EventKey))
			if err := s.Execute(ctx, t); err != nil {
				s.log.Error("task execution failed", logx.String("task_id", t.ID), logx.Err(err))
			}
			continue
		}

		if s.cfg.MaxWait > 0 && now.Sub(t.CreatedAt) >= s.cfg.MaxWait {
			s.failTask(ctx, t, "wait horizon exceeded: game never finished")
			continue
		}

		next := now.Add(s.cfg.RetryInterval)
		t.NextCheckAt = &next
		if err := s.store.Put(ctx, t); err != nil {
			return fmt.Errorf("recheck sweep: %w", err)
		}
		s.log.Debug("game not finished; task still waiting",
			logx.String("task_id", t.ID), logx.Time("next_check", next))
	}
	return nil
}

// ResumeInflight re-enters tasks that were mid-pipeline (or pending) when the
// process last stopped. Stage idempotence makes re-entry from the persisted
// state safe.
func (s *Scheduler) ResumeInflight(ctx context.Context) error {
	tasks, err := s.store.List(ctx,
		task.StatusPending, task.StatusRunning, task.StatusCollecting,
		task.StatusGenerating, task.StatusPublishing)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		s.log.Info("resuming task", logx.String("task_id", t.ID), logx.String("status", string(t.Status)))
		if err := s.Execute(ctx, t); err != nil {
			s.log.Error("task resume failed", logx.String("task_id", t.ID), logx.Err(err))
		}
	}
	return nil
}

// Execute drives a task from its current state to completed, persisting after
// every transition. A crash mid-pipeline leaves the task durably parked at
// the last committed state; Execute picks it up from there on the next run.
func (s *Scheduler) Execute(ctx context.Context, t *task.Task) error {
	t = t.Clone()

	if t.Status == task.StatusPending {
		now := s.clock.Now()
		t.StartedAt = &now
		if err := s.advance(ctx, t, task.StatusRunning); err != nil {
			return err
		}
	}
	if t.Status == task.StatusRunning {
		if err := s.advance(ctx, t, task.StatusCollecting); err != nil {
			return err
		}
	}
	if t.Status == task.StatusCollecting {
		frag, err := s.stages.Collector.Collect(ctx, t.Snapshot, t.Attempts)
		if err != nil {
			return s.stageFailed(ctx, t, "collect", err)
		}
		mergeAttempts(t, frag)
		if err := s.advance(ctx, t, task.StatusGenerating); err != nil {
			return err
		}
	}
	if t.Status == task.StatusGenerating {
		frag, err := s.stages.Generator.Generate(ctx, t.Snapshot, t.Attempts)
		if err != nil {
			return s.stageFailed(ctx, t, "generate", err)
		}
		mergeAttempts(t, frag)
		if err := s.advance(ctx, t, task.StatusPublishing); err != nil {
			return err
		}
	}
	if t.Status == task.StatusPublishing {
		frag, err := s.stages.Publisher.Publish(ctx, t.Snapshot, t.Attempts)
		if err != nil {
			return s.stageFailed(ctx, t, "publish", err)
		}
		mergeAttempts(t, frag)
		now := s.clock.Now()
		t.CompletedAt = &now
		if err := s.advance(ctx, t, task.StatusCompleted); err != nil {
			return err
		}
		s.log.Info("task completed",
			logx.String("task_id", t.ID),
			logx.String("remote_id", t.Attempts[pipeline.KeyRemoteID]))
		s.send(ctx, fmt.Sprintf("✅ published: %s vs %s (%s)",
			t.Snapshot.AwayTeam, t.Snapshot.HomeTeam, t.Attempts[pipeline.KeyRemoteID]))
		return nil
	}

	if !t.Status.Terminal() {
		return fmt.Errorf("task %s in unexpected state %s", t.ID, t.Status)
	}
	return nil
}

// advance performs one state machine transition and persists it. On persist
// failure the transition is not committed and the error is surfaced.
func (s *Scheduler) advance(ctx context.Context, t *task.Task, to task.Status) error {
	if !task.CanTransition(t.Status, to) {
		return fmt.Errorf("illegal transition %s -> %s for task %s", t.Status, to, t.ID)
	}
	from := t.Status
	t.Status = to
	if err := s.store.Put(ctx, t); err != nil {
		t.Status = from
		return err
	}
	s.log.Debug("task transition",
		logx.String("task_id", t.ID),
		logx.String("from", string(from)),
		logx.String("to", string(to)))
	return nil
}

// stageFailed records a stage outcome. Recoverable failures leave the task at
// its current state for a later re-run; anything else fails it permanently.
func (s *Scheduler) stageFailed(ctx context.Context, t *task.Task, stage string, err error) error {
	var se *pipeline.StageError
	if errors.As(err, &se) && se.Recoverable {
		t.Error = se.Error()
		if perr := s.store.Put(ctx, t); perr != nil {
			s.log.Error("failed recording stage error", logx.String("task_id", t.ID), logx.Err(perr))
		}
		s.log.Warn("recoverable stage failure; task parked",
			logx.String("task_id", t.ID),
			logx.String("stage", stage),
			logx.String("status", string(t.Status)),
			logx.Err(err))
		return err
	}

	s.failTask(ctx, t, fmt.Sprintf("%s: %v", stage, err))
	return err
}

func (s *Scheduler) failTask(ctx context.Context, t *task.Task, reason string) {
	t.Error = reason
	now := s.clock.Now()
	t.CompletedAt = &now
	t.NextCheckAt = nil
	if err := s.advance(ctx, t, task.StatusFailed); err != nil {
		s.log.Error("failed persisting task failure", logx.String("task_id", t.ID), logx.Err(err))
		return
	}
	s.log.Error("task failed", logx.String("task_id", t.ID), logx.String("reason", reason))
	s.send(ctx, fmt.Sprintf("❌ task failed: %s vs %s: %s",
		t.Snapshot.AwayTeam, t.Snapshot.HomeTeam, reason))
}

func (s *Scheduler) send(ctx context.Context, msg string) {
	if s.notify != nil {
		s.notify.Notify(ctx, msg)
	}
}

func mergeAttempts(t *task.Task, frag map[string]string) {
	for k, v := range frag {
		t.SetAttempt(k, v)
	}
}

func snapshotOf(ev event.Event) task.Snapshot {
	return task.Snapshot{
		HomeTeam:    ev.HomeTeam,
		AwayTeam:    ev.AwayTeam,
		HomeScore:   ev.HomeScore,
		AwayScore:   ev.AwayScore,
		StageDesc:   ev.StageDesc,
		StatusLabel: string(ev.Status),
		RatingCount: ev.RatingCount,
	}
}
