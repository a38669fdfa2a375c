package task

import "testing"

func TestCanTransition(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		from Status
		to   Status
		ok   bool
	}{
		{name: "pending to running", from: StatusPending, to: StatusRunning, ok: true},
		{name: "running to collecting", from: StatusRunning, to: StatusCollecting, ok: true},
		{name: "collecting to generating", from: StatusCollecting, to: StatusGenerating, ok: true},
		{name: "generating to publishing", from: StatusGenerating, to: StatusPublishing, ok: true},
		{name: "publishing to completed", from: StatusPublishing, to: StatusCompleted, ok: true},
		{name: "no skipping", from: StatusRunning, to: StatusPublishing, ok: false},
		{name: "no skipping to completed", from: StatusPending, to: StatusCompleted, ok: false},
		{name: "waiting to pending", from: StatusWaitingGameEnd, to: StatusPending, ok: true},
		{name: "waiting not to running", from: StatusWaitingGameEnd, to: StatusRunning, ok: false},
		{name: "any to failed", from: StatusGenerating, to: StatusFailed, ok: true},
		{name: "waiting to failed", from: StatusWaitingGameEnd, to: StatusFailed, ok: true},
		{name: "completed is terminal", from: StatusCompleted, to: StatusFailed, ok: false},
		{name: "failed is terminal", from: StatusFailed, to: StatusPending, ok: false},
		{name: "no backward edge", from: StatusCollecting, to: StatusRunning, ok: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.ok {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
			}
		})
	}
}

func TestSetAttemptWriteOnce(t *testing.T) {
	t.Parallel()
	tk := &Task{}
	if !tk.SetAttempt("video_path", "a.mp4") {
		t.Fatal("first write should succeed")
	}
	if tk.SetAttempt("video_path", "b.mp4") {
		t.Fatal("second write should be refused")
	}
	if tk.Attempts["video_path"] != "a.mp4" {
		t.Fatalf("value overwritten: %q", tk.Attempts["video_path"])
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()
	tk := &Task{ID: "t1", Attempts: map[string]string{"k": "v"}}
	cp := tk.Clone()
	cp.Attempts["k"] = "changed"
	cp.ID = "t2"
	if tk.Attempts["k"] != "v" || tk.ID != "t1" {
		t.Fatal("Clone aliases the original")
	}
}
