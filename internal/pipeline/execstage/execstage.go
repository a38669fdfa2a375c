// Package execstage adapts external command-line tools into the three
// pipeline stages. Each stage invokes one configured command with the game
// metadata and prior artifacts in the environment; the command's last stdout
// line is taken as the stage artifact.
//
// Exit code 75 (EX_TEMPFAIL) signals a recoverable failure: the task stays
// parked at its current stage instead of failing permanently.
package execstage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"courtcast/internal/pipeline"
	"courtcast/internal/task"
	logx "courtcast/pkg/logx"
)

const exitTempFail = 75

type Config struct {
	// Commands, each parsed with strings.Fields; empty string disables the
	// stage (it fails every invocation).
	CollectCmd  string
	GenerateCmd string
	PublishCmd  string

	// WorkDir is the working directory for stage commands (and where media
	// artifacts are expected to land). Created on demand.
	WorkDir string

	// StageTimeout bounds one command run (default 30m; rendering is slow).
	StageTimeout time.Duration
}

type Stages struct {
	cfg Config
	log logx.Logger
}

func New(cfg Config, log logx.Logger) *Stages {
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 30 * time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Stages{cfg: cfg, log: log}
}

// Bundle returns the stage set the scheduler consumes.
func (s *Stages) Bundle() pipeline.Stages {
	return pipeline.Stages{Collector: s, Generator: s, Publisher: s}
}

func (s *Stages) Collect(ctx context.Context, snap task.Snapshot, attempts map[string]string) (map[string]string, error) {
	out, err := s.run(ctx, "collect", s.cfg.CollectCmd, snap, attempts)
	if err != nil {
		return nil, err
	}
	return map[string]string{pipeline.KeyClipsDir: out}, nil
}

func (s *Stages) Generate(ctx context.Context, snap task.Snapshot, attempts map[string]string) (map[string]string, error) {
	out, err := s.run(ctx, "generate", s.cfg.GenerateCmd, snap, attempts)
	if err != nil {
		return nil, err
	}
	return map[string]string{pipeline.KeyVideoPath: out}, nil
}

func (s *Stages) Publish(ctx context.Context, snap task.Snapshot, attempts map[string]string) (map[string]string, error) {
	out, err := s.run(ctx, "publish", s.cfg.PublishCmd, snap, attempts)
	if err != nil {
		return nil, err
	}
	return map[string]string{pipeline.KeyRemoteID: out}, nil
}

func (s *Stages) run(ctx context.Context, stage, cmdline string, snap task.Snapshot, attempts map[string]string) (string, error) {
	argv := strings.Fields(cmdline)
	if len(argv) == 0 {
		return "", &pipeline.StageError{Stage: stage, Reason: "no command configured"}
	}

	if dir := s.cfg.WorkDir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", &pipeline.StageError{Stage: stage, Reason: "work dir: " + err.Error(), Recoverable: true}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StageTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = s.cfg.WorkDir
	cmd.Env = append(os.Environ(), stageEnv(snap, attempts)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	s.log.Debug("stage command finished",
		logx.String("stage", stage),
		logx.String("cmd", argv[0]),
		logx.Duration("took", time.Since(start)),
		logx.Err(err))

	if err != nil {
		reason := strings.TrimSpace(stderr.String())
		if reason == "" {
			reason = err.Error()
		}
		if ctx.Err() != nil {
			return "", &pipeline.StageError{Stage: stage, Reason: "timed out: " + reason, Recoverable: true}
		}
		var ee *exec.ExitError
		if errors.As(err, &ee) && ee.ExitCode() == exitTempFail {
			return "", &pipeline.StageError{Stage: stage, Reason: reason, Recoverable: true}
		}
		return "", &pipeline.StageError{Stage: stage, Reason: reason}
	}

	out := lastLine(stdout.String())
	if out == "" {
		return "", &pipeline.StageError{Stage: stage, Reason: "command produced no artifact on stdout"}
	}
	return out, nil
}

// stageEnv exposes game metadata and prior artifacts to the command.
func stageEnv(snap task.Snapshot, attempts map[string]string) []string {
	env := []string{
		"COURTCAST_HOME_TEAM=" + snap.HomeTeam,
		"COURTCAST_AWAY_TEAM=" + snap.AwayTeam,
		"COURTCAST_HOME_SCORE=" + snap.HomeScore,
		"COURTCAST_AWAY_SCORE=" + snap.AwayScore,
		"COURTCAST_STAGE_DESC=" + snap.StageDesc,
		fmt.Sprintf("COURTCAST_RATING_COUNT=%d", snap.RatingCount),
	}
	for k, v := range attempts {
		env = append(env, "COURTCAST_"+strings.ToUpper(k)+"="+v)
	}
	return env
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
