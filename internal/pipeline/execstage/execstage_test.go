package execstage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"courtcast/internal/pipeline"
	"courtcast/internal/task"
	logx "courtcast/pkg/logx"
)

func snap() task.Snapshot {
	return task.Snapshot{HomeTeam: "Lakers", AwayTeam: "Celtics", HomeScore: "112", AwayScore: "108"}
}

func writeScript(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestCollectReturnsLastStdoutLine(t *testing.T) {
	s := New(Config{CollectCmd: "sh collect.sh", WorkDir: t.TempDir()}, logx.Nop())
	writeScript(t, s.cfg.WorkDir+"/collect.sh", "echo downloading clips\necho /tmp/clips/game-1\n")

	frag, err := s.Collect(context.Background(), snap(), nil)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got := frag[pipeline.KeyClipsDir]; got != "/tmp/clips/game-1" {
		t.Fatalf("clips dir = %q", got)
	}
}

func TestStageEnvCarriesSnapshotAndArtifacts(t *testing.T) {
	env := stageEnv(snap(), map[string]string{pipeline.KeyClipsDir: "/tmp/clips"})
	want := map[string]bool{
		"COURTCAST_HOME_TEAM=Lakers":   false,
		"COURTCAST_AWAY_TEAM=Celtics":  false,
		"COURTCAST_CLIPS_DIR=/tmp/clips": false,
	}
	for _, kv := range env {
		if _, ok := want[kv]; ok {
			want[kv] = true
		}
	}
	for kv, seen := range want {
		if !seen {
			t.Errorf("env missing %q", kv)
		}
	}
}

func TestMissingCommandIsUnrecoverable(t *testing.T) {
	s := New(Config{}, logx.Nop())

	_, err := s.Generate(context.Background(), snap(), nil)
	var se *pipeline.StageError
	if !errors.As(err, &se) {
		t.Fatalf("error type %T, want StageError", err)
	}
	if se.Recoverable {
		t.Fatal("unconfigured stage reported recoverable")
	}
}

func TestExitTempFailIsRecoverable(t *testing.T) {
	s := New(Config{PublishCmd: "sh exit75.sh", WorkDir: t.TempDir()}, logx.Nop())
	writeScript(t, s.cfg.WorkDir+"/exit75.sh", "echo upstream throttled >&2\nexit 75\n")

	_, err := s.Publish(context.Background(), snap(), nil)
	var se *pipeline.StageError
	if !errors.As(err, &se) {
		t.Fatalf("error type %T, want StageError", err)
	}
	if !se.Recoverable {
		t.Fatal("exit 75 not treated as recoverable")
	}
}

func TestNonZeroExitIsUnrecoverable(t *testing.T) {
	s := New(Config{PublishCmd: "sh exit1.sh", WorkDir: t.TempDir()}, logx.Nop())
	writeScript(t, s.cfg.WorkDir+"/exit1.sh", "echo bad credentials >&2\nexit 1\n")

	_, err := s.Publish(context.Background(), snap(), nil)
	var se *pipeline.StageError
	if !errors.As(err, &se) {
		t.Fatalf("error type %T, want StageError", err)
	}
	if se.Recoverable {
		t.Fatal("exit 1 treated as recoverable")
	}
	if se.Reason != "bad credentials" {
		t.Fatalf("reason = %q, want stderr text", se.Reason)
	}
}

func TestTimeoutIsRecoverable(t *testing.T) {
	s := New(Config{GenerateCmd: "sleep 5", StageTimeout: 50 * time.Millisecond}, logx.Nop())

	_, err := s.Generate(context.Background(), snap(), nil)
	var se *pipeline.StageError
	if !errors.As(err, &se) {
		t.Fatalf("error type %T, want StageError", err)
	}
	if !se.Recoverable {
		t.Fatal("timeout not treated as recoverable")
	}
}
