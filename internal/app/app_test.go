package app

import (
	"testing"
	"time"

	"courtcast/internal/config"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr bool
	}{
		{name: "empty config ok", mutate: func(c *config.Config) {}},
		{name: "bad recheck interval", mutate: func(c *config.Config) {
			c.Trigger.RecheckEvery = "hourly"
		}, wantErr: true},
		{name: "negative max wait", mutate: func(c *config.Config) {
			c.Scheduler.MaxWait = "-1h"
		}, wantErr: true},
		{name: "bad timezone", mutate: func(c *config.Config) {
			c.Trigger.Timezone = "Mars/Olympus"
		}, wantErr: true},
		{name: "negative min rating", mutate: func(c *config.Config) {
			c.Scheduler.MinRating = -1
		}, wantErr: true},
		{name: "valid full config", mutate: func(c *config.Config) {
			c.Trigger.DailyAt = "12:00"
			c.Trigger.RecheckEvery = "1h"
			c.Trigger.Timezone = "Asia/Shanghai"
			c.Scheduler.MinRating = 30000
			c.Scheduler.MaxWait = "48h"
			c.Pipeline.StageTimeout = "30m"
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			tt.mutate(cfg)
			err := validate(cfg)
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestMaxWaitFrom(t *testing.T) {
	if d := maxWaitFrom(""); d != 48*time.Hour {
		t.Fatalf("default = %v, want 48h", d)
	}
	if d := maxWaitFrom("0s"); d != 0 {
		t.Fatalf("explicit zero = %v, want 0 (wait forever)", d)
	}
	if d := maxWaitFrom("6h"); d != 6*time.Hour {
		t.Fatalf("parsed = %v, want 6h", d)
	}
}
