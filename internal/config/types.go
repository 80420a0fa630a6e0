package config

// Config is the full bookmill configuration.
//
// All durations are Go duration strings (e.g. "30s", "5m").
//
// Timezone is the canonical decision timezone: every window and gate
// comparison happens in this location, on every host, across restarts.
// It is fixed at process start and is not hot-reloadable.
type Config struct {
	// Timezone is an IANA name, e.g. "America/Los_Angeles". Default: "UTC".
	Timezone string `json:"timezone,omitempty"`

	// Interval is the sleep between cycles. The first cycle always runs
	// immediately on startup. Default: "5m".
	Interval string `json:"interval,omitempty"`

	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`
	Notify  *NotifyConfig `json:"notify,omitempty"`

	// Subsystems run in declared order within each cycle.
	Subsystems []SubsystemConfig `json:"subsystems"`
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"` // trace|debug|info|warn|error
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig selects the event-log backend.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "file":   dependency-free JSON Lines log
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// NotifyConfig controls the optional Telegram failure notifier.
// If the section is omitted, notification is disabled.
type NotifyConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token,omitempty"` // do not log
	ChatID     int64  `json:"chat_id,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	QueueSize  int    `json:"queue_size,omitempty"`
}

// SubsystemConfig is one independent pipeline (e.g. "catalog", "audiobook").
// Each subsystem gets its own orchestrator; one subsystem's failure never
// blocks the next.
type SubsystemConfig struct {
	Name  string       `json:"name"`
	Steps []StepConfig `json:"steps"`
}

// StepConfig declares one step of a subsystem.
//
// Ordering dependencies between steps are expressed only through the order
// of this list: a later step may assume files produced by an earlier one.
type StepConfig struct {
	// Name identifies the step in the event log, e.g. "LOAD_CATALOG".
	Name string `json:"name"`

	// Window is the recurrence window: "none" (default), "daily" or "weekly".
	// Weekly windows start Monday 00:00 in the canonical timezone.
	Window string `json:"window,omitempty"`

	// Gate restricts when the step may be attempted, independent of the
	// window, e.g. only Sundays after 17:00.
	Gate *GateConfig `json:"gate,omitempty"`

	// Command is the external program that does the actual work,
	// argv-style. It runs with the step's working directory and inherits
	// the daemon's environment.
	Command []string `json:"command"`
	Dir     string   `json:"dir,omitempty"`

	// Timeout bounds the command's execution. Empty means no bound: the
	// scheduler itself never times work out, so a bound must be declared
	// here per step if wanted.
	Timeout string `json:"timeout,omitempty"`

	// SkipIfEmpty names a file probed before running the command: if the
	// file is missing or has no content rows, the step reports SKIP
	// ("nothing to do this cycle") and no events are written.
	SkipIfEmpty string `json:"skip_if_empty,omitempty"`
}

// GateConfig is a day/time attempt gate in the canonical timezone.
// The gate reopens by itself as soon as the wall clock enters it; no event
// needs to have been written while it was closed.
type GateConfig struct {
	Weekday   string `json:"weekday"`              // "Sunday", "Monday", ...
	AfterHour int    `json:"after_hour,omitempty"` // 0-23; gate opens at this hour
}
