package config

// Config is the whole assistant configuration. It is loaded once at startup,
// passed to components explicitly, and republished by Watch on file changes.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   StorageConfig   `json:"storage"`
	// Notifier defaults to enabled when the whole section is omitted.
	Notifier  *NotifierConfig `json:"notifier,omitempty"`
	Assistant AssistantConfig `json:"assistant"`
	Debug     DebugConfig     `json:"debug"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Announce LoggingAnnounce `json:"announce"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAnnounce forwards high-severity log records to the notifier so the
// user hears about persistent faults.
type LoggingAnnounce struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SchedulerConfig controls the task poll loop.
//
// Durations are Go duration strings (e.g. "10s"). Defaults: poll_interval
// "10s", stop_timeout "1s".
type SchedulerConfig struct {
	Enabled      bool   `json:"enabled"`
	PollInterval string `json:"poll_interval,omitempty"`
	StopTimeout  string `json:"stop_timeout,omitempty"`
}

// StorageConfig selects where tasks are persisted.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data/tasks.json" }
//
// Drivers: "file" (JSON document), "sqlite", or "none" (memory only).
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// NotifierConfig controls the async notification pipeline.
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	DedupWindow   string `json:"dedup_window,omitempty"`
	// SpeakCommand, when set, is run with the text as its last argument
	// (e.g. "espeak -s 150").
	SpeakCommand string `json:"speak_command,omitempty"`
}

// DebugConfig controls the optional local HTTP server exposing pprof and
// JSON views of tasks and scheduler stats. A non-loopback addr needs a token.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`
}

type AssistantConfig struct {
	Name string `json:"name"`
	// DefaultReminder is the time expression used when a task request names no time.
	DefaultReminder string `json:"default_reminder,omitempty"`
	// ListLimit caps spoken task listings.
	ListLimit int `json:"list_limit,omitempty"`
}
