// Package app wires configuration, storage, the schedule source, the
// pipeline stages, and the trigger engine into one runnable process.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"courtcast/internal/api"
	"courtcast/internal/config"
	"courtcast/internal/event/hupu"
	"courtcast/internal/notify"
	"courtcast/internal/pipeline/execstage"
	"courtcast/internal/scheduler"
	"courtcast/internal/store"
	"courtcast/internal/trigger"
	logx "courtcast/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	store store.Store
	sched *scheduler.Scheduler
	eng   *trigger.Engine
	api   *api.Server
	notif *notify.Service

	loc *time.Location

	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg))
	log = log.With(logx.String("comp", "app"))

	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(func(_ context.Context, c *config.Config) error { return validate(c) })
	// Hot reload only re-applies logging; everything else needs a restart.
	cfgm.SetOnChange(func(c *config.Config) { logSvc.Apply(mapLogging(c)) })

	loc := time.Local
	if tz := strings.TrimSpace(cfg.Trigger.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("trigger.timezone: %w", err)
		}
	}

	storePath := cfg.Store.Path
	if storePath == "" {
		storePath = config.DefaultStorePath
	}
	st, err := store.Open(store.Config{Driver: cfg.Store.Driver, Path: storePath},
		log.With(logx.String("comp", "store")))
	if err != nil {
		if errors.Is(err, store.ErrCorrupt) {
			return nil, fmt.Errorf("task store %s is corrupt; refusing to start (restore from backup or move the file aside): %w", storePath, err)
		}
		return nil, fmt.Errorf("open task store: %w", err)
	}

	srcTimeout, _ := config.ParseDurationField("source.timeout", cfg.Source.Timeout)
	src := hupu.New(hupu.Config{
		BaseURL:    cfg.Source.BaseURL,
		Timeout:    srcTimeout,
		RatePerMin: cfg.Source.RatePerMin,
	}, log.With(logx.String("comp", "hupu")))

	stageTimeout, _ := config.ParseDurationField("pipeline.stage_timeout", cfg.Pipeline.StageTimeout)
	stages := execstage.New(execstage.Config{
		CollectCmd:   cfg.Pipeline.CollectCmd,
		GenerateCmd:  cfg.Pipeline.GenerateCmd,
		PublishCmd:   cfg.Pipeline.PublishCmd,
		WorkDir:      cfg.Pipeline.WorkDir,
		StageTimeout: stageTimeout,
	}, log.With(logx.String("comp", "pipeline")))

	var notifSvc *notify.Service
	if nc := cfg.Notify; nc != nil && nc.Enabled {
		notifSvc, err = notify.New(notify.Config{
			Token:      nc.Token,
			ChatID:     nc.ChatID,
			RatePerSec: nc.RatePerSec,
		}, log.With(logx.String("comp", "notify")))
		if err != nil {
			return nil, fmt.Errorf("notify: %w", err)
		}
	}

	recheck, _ := config.ParseDurationOrDefault("trigger.recheck_every", cfg.Trigger.RecheckEvery, time.Hour)
	maxWait := maxWaitFrom(cfg.Scheduler.MaxWait)

	opts := []scheduler.Option{scheduler.WithEligibility(scheduler.MinRating(cfg.Scheduler.MinRating))}
	if notifSvc != nil {
		opts = append(opts, scheduler.WithNotifier(notifSvc))
	}
	sched := scheduler.New(scheduler.Config{
		RetryInterval: recheck,
		MaxWait:       maxWait,
	}, st, src, stages.Bundle(), log.With(logx.String("comp", "scheduler")), opts...)

	eng := trigger.New(trigger.Config{
		DailyAt:      cfg.Trigger.DailyAt,
		RecheckEvery: recheck,
		Timezone:     cfg.Trigger.Timezone,
		CleanupDir:   cfg.Trigger.CleanupDir,
	}, sched, log.With(logx.String("comp", "trigger")))

	var apiSrv *api.Server
	if ac := cfg.API; ac != nil && ac.Enabled {
		addr := ac.Addr
		if addr == "" {
			addr = config.DefaultAPIAddr
		}
		apiSrv = api.NewServer(api.ServerConfig{Enabled: true, Addr: addr},
			api.NewHandler(st), log.With(logx.String("comp", "api")))
	}

	return &App{
		cfgm:  cfgm,
		log:   log,
		logs:  logSvc,
		store: st,
		sched: sched,
		eng:   eng,
		api:   apiSrv,
		notif: notifSvc,
		loc:   loc,
	}, nil
}

// Start resumes interrupted tasks, starts the trigger engine (which fires an
// immediate discovery), the optional status API, and the config watcher.
func (a *App) Start(ctx context.Context) error {
	if err := a.sched.ResumeInflight(ctx); err != nil {
		return fmt.Errorf("resume inflight tasks: %w", err)
	}

	if a.api != nil {
		if err := a.api.Start(ctx); err != nil {
			return fmt.Errorf("status api: %w", err)
		}
	}

	if err := a.eng.Start(ctx); err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.watchCancel = cancel
	a.watchDone = make(chan struct{})
	go func() {
		defer close(a.watchDone)
		_ = a.cfgm.Watch(watchCtx)
	}()

	a.log.Info("started")
	return nil
}

// RunOnce performs the startup resume plus a single discovery sweep and
// returns. It drives the same scheduler path the daily trigger fires.
func (a *App) RunOnce(ctx context.Context) error {
	if err := a.sched.ResumeInflight(ctx); err != nil {
		return fmt.Errorf("resume inflight tasks: %w", err)
	}
	return a.sched.Discover(ctx, time.Now().In(a.loc))
}

func (a *App) Stop(ctx context.Context) {
	a.log.Info("stopping")

	a.eng.Stop(ctx)
	if a.api != nil {
		a.api.Stop(ctx)
	}
	if a.watchCancel != nil {
		a.watchCancel()
		select {
		case <-a.watchDone:
		case <-ctx.Done():
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close", logx.Err(err))
	}

	a.log.Info("stopped")
	_ = a.logs.Close()
}

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// maxWaitFrom treats an omitted max_wait as the 48h default and an explicit
// zero as "wait forever".
func maxWaitFrom(raw string) time.Duration {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 48 * time.Hour
	}
	d, err := config.ParseDurationField("scheduler.max_wait", s)
	if err != nil {
		return 48 * time.Hour
	}
	return d
}

// validate rejects configs that would break at runtime; used at startup and
// before committing a hot reload.
func validate(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("empty config")
	}
	if _, err := config.ParseDurationField("source.timeout", cfg.Source.Timeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("trigger.recheck_every", cfg.Trigger.RecheckEvery); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("scheduler.max_wait", cfg.Scheduler.MaxWait); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("pipeline.stage_timeout", cfg.Pipeline.StageTimeout); err != nil {
		return err
	}
	if tz := strings.TrimSpace(cfg.Trigger.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("trigger.timezone: invalid %q: %w", tz, err)
		}
	}
	if cfg.Scheduler.MinRating < 0 {
		return errors.New("scheduler.min_rating must be >= 0")
	}
	return nil
}
