package config

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Store controls task persistence. The file driver is the default and
	// keeps the whole task set in one JSON file with atomic replacement.
	Store StoreConfig `json:"store"`

	// Source configures the schedule/status fetcher.
	Source SourceConfig `json:"source"`

	// Trigger controls the two periodic sweeps.
	Trigger TriggerConfig `json:"trigger"`

	// Scheduler controls task creation and retry policy.
	Scheduler SchedulerConfig `json:"scheduler"`

	// Pipeline configures the external stage commands.
	Pipeline PipelineConfig `json:"pipeline"`

	API    *APIConfig    `json:"api,omitempty"`
	Notify *NotifyConfig `json:"notify,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level,omitempty"`
	Console bool           `json:"console"`
	File    LogFileConfig  `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StoreConfig controls the persistence layer.
//
// Driver values:
//   - "file": single JSON file, atomic whole-file replace (default)
//   - "sqlite": SQLite database file (requires the sqlite build tag)
type StoreConfig struct {
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path,omitempty"`
}

// SourceConfig configures the game schedule source.
//
// Timeout is a Go duration string (e.g. "10s").
type SourceConfig struct {
	BaseURL    string `json:"base_url,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	RatePerMin int    `json:"rate_per_min,omitempty"`
}

// TriggerConfig controls the periodic sweeps.
//
// Defaults (when fields are omitted/zero):
//   - daily_at: "12:00"
//   - recheck_every: "1h"
//   - timezone: system local time
type TriggerConfig struct {
	DailyAt      string `json:"daily_at,omitempty"`
	RecheckEvery string `json:"recheck_every,omitempty"`
	Timezone     string `json:"timezone,omitempty"` // IANA TZ, e.g. "Asia/Shanghai"

	// CleanupDir, when set, is swept after every completed sweep to drop
	// leftover media files from finished pipelines.
	CleanupDir string `json:"cleanup_dir,omitempty"`
}

// SchedulerConfig controls task eligibility and waiting-task retry policy.
//
// All durations are Go duration strings.
//
// MinRating of 0 disables the rating gate (every finished game qualifies).
// MaxWait of "0s" disables the wait horizon (retry forever).
type SchedulerConfig struct {
	MinRating int    `json:"min_rating,omitempty"`
	MaxWait   string `json:"max_wait,omitempty"`
}

// PipelineConfig names the external commands that implement the three content
// stages. Each command is invoked with game metadata and prior artifacts in
// COURTCAST_* environment variables and reports its artifact on stdout.
//
// StageTimeout is a Go duration string (default "30m").
type PipelineConfig struct {
	CollectCmd   string `json:"collect_cmd,omitempty"`
	GenerateCmd  string `json:"generate_cmd,omitempty"`
	PublishCmd   string `json:"publish_cmd,omitempty"`
	WorkDir      string `json:"work_dir,omitempty"`
	StageTimeout string `json:"stage_timeout,omitempty"`
}

// APIConfig controls the optional read-only status HTTP server.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8650"
}

// NotifyConfig controls optional operator notifications via Telegram.
// Disabled when the section is omitted or token/chat_id are empty.
type NotifyConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token,omitempty"`
	ChatID     int64  `json:"chat_id,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// Defaults used across the wiring code.
const (
	DefaultStorePath = "data/tasks.json"
	DefaultDailyAt   = "12:00"
	DefaultAPIAddr   = "127.0.0.1:8650"
)
