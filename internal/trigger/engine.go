// Package trigger fires the two periodic sweeps against the scheduler: a
// daily discovery at a configured wall-clock time and an interval recheck of
// waiting tasks. Execution is serialized so the task store only ever has one
// writer.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"courtcast/internal/pipeline"
	logx "courtcast/pkg/logx"
)

// Sweeper is the scheduler surface the engine drives.
type Sweeper interface {
	Discover(ctx context.Context, date time.Time) error
	RecheckWaiting(ctx context.Context) error
}

type Config struct {
	// DailyAt is the discovery fire time as "HH:MM" (default "12:00").
	DailyAt string
	// RecheckEvery is the waiting-task sweep interval (default 1h).
	RecheckEvery time.Duration
	// Timezone is an IANA name for the daily fire time; empty means local.
	Timezone string
	// CleanupDir, when set, is swept for leftover media files after each job.
	CleanupDir string
}

type Engine struct {
	mu  sync.Mutex
	cfg Config

	sweeper Sweeper
	log     logx.Logger

	c         *cron.Cron
	loc       *time.Location
	stopCh    chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	// jobMu serializes job bodies: a job firing while another runs waits its
	// turn instead of running concurrently.
	jobMu sync.Mutex

	now func() time.Time
}

func New(cfg Config, sweeper Sweeper, log logx.Logger) *Engine {
	if cfg.DailyAt == "" {
		cfg.DailyAt = "12:00"
	}
	if cfg.RecheckEvery <= 0 {
		cfg.RecheckEvery = time.Hour
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{cfg: cfg, sweeper: sweeper, log: log, now: time.Now}
}

// Start installs both jobs and fires an immediate discovery so operators see
// behavior without waiting for the next boundary. It returns once the cron
// loop is running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopCh != nil {
		return nil
	}

	loc := time.Local
	if tz := strings.TrimSpace(e.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("trigger: invalid timezone %q: %w", tz, err)
		}
		loc = l
	}
	e.loc = loc

	h, m, err := parseHHMM(e.cfg.DailyAt)
	if err != nil {
		return fmt.Errorf("trigger: invalid daily_at: %w", err)
	}

	e.stopCh = make(chan struct{})
	e.runCtx, e.runCancel = context.WithCancel(context.WithoutCancel(ctx))

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	e.c = cron.New(cron.WithParser(parser), cron.WithLocation(loc))

	dailySpec := fmt.Sprintf("%d %d * * *", m, h)
	if _, err := e.c.AddFunc(dailySpec, func() { e.runJob("daily_discover", e.discoverSweep) }); err != nil {
		return fmt.Errorf("trigger: register daily job: %w", err)
	}
	intervalSpec := fmt.Sprintf("@every %s", e.cfg.RecheckEvery.String())
	if _, err := e.c.AddFunc(intervalSpec, func() { e.runJob("recheck_waiting", e.recheckSweep) }); err != nil {
		return fmt.Errorf("trigger: register interval job: %w", err)
	}

	e.c.Start()

	// First discovery right away, off the caller's goroutine.
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runJob("startup_discover", e.discoverSweep)
	}()

	e.log.Info("trigger engine started",
		logx.String("daily_at", e.cfg.DailyAt),
		logx.Duration("recheck_every", e.cfg.RecheckEvery),
		logx.String("tz", loc.String()))
	return nil
}

// Stop prevents new job starts and waits for in-flight work, up to ctx.
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	if e.stopCh == nil {
		e.mu.Unlock()
		return
	}
	stopCh := e.stopCh
	c := e.c
	cancel := e.runCancel
	e.stopCh = nil
	e.c = nil
	e.runCancel = nil
	e.mu.Unlock()

	close(stopCh)
	if c != nil {
		// Waits for jobs the cron loop started.
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			if cancel != nil {
				cancel()
			}
			<-c.Stop().Done()
		}
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		<-done
	}
	if cancel != nil {
		cancel()
	}
	e.log.Info("trigger engine stopped")
}

// runJob serializes and fences job execution. Errors and panics are logged
// and never unschedule future firings.
func (e *Engine) runJob(name string, fn func(ctx context.Context) error) {
	e.mu.Lock()
	stopCh := e.stopCh
	runCtx := e.runCtx
	e.mu.Unlock()
	if stopCh == nil || runCtx == nil {
		return
	}

	e.jobMu.Lock()
	defer e.jobMu.Unlock()

	// Re-check after waiting for the previous job: no new work after stop.
	select {
	case <-stopCh:
		return
	default:
	}

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic in sweep",
				logx.String("job", name),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())))
		}
	}()

	start := e.now()
	e.log.Info("sweep started", logx.String("job", name))
	if err := fn(runCtx); err != nil {
		e.log.Error("sweep failed", logx.String("job", name), logx.Err(err), logx.Duration("took", e.now().Sub(start)))
	} else {
		e.log.Info("sweep finished", logx.String("job", name), logx.Duration("took", e.now().Sub(start)))
	}

	e.cleanup()
}

func (e *Engine) discoverSweep(ctx context.Context) error {
	return e.sweeper.Discover(ctx, e.now().In(e.loc))
}

func (e *Engine) recheckSweep(ctx context.Context) error {
	return e.sweeper.RecheckWaiting(ctx)
}

func (e *Engine) cleanup() {
	dir := strings.TrimSpace(e.cfg.CleanupDir)
	if dir == "" {
		return
	}
	removed, err := pipeline.CleanDir(dir)
	if err != nil {
		e.log.Warn("work dir cleanup failed", logx.String("dir", dir), logx.Err(err))
		return
	}
	if removed > 0 {
		e.log.Info("work dir cleaned", logx.String("dir", dir), logx.Int("removed", removed))
	}
}

func parseHHMM(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, errors.New("expected HH:MM")
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour %q", parts[0])
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute %q", parts[1])
	}
	return h, m, nil
}
