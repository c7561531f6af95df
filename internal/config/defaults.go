package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultPollInterval    = "10s"
	DefaultStopTimeout     = "1s"
	DefaultStoragePath     = "./data/tasks.json"
	DefaultReminderTime    = "in 30 minutes"
	DefaultAssistantName   = "Assistant"
	DefaultListLimit       = 5
	DefaultDebugAddr       = "127.0.0.1:6060"
	defaultAnnounceMinLvl  = "error"
	defaultNotifierRateSec = 2
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
		Scheduler: SchedulerConfig{Enabled: true},
		Storage:   StorageConfig{Driver: "file"},
		Notifier:  &NotifierConfig{Enabled: true},
	}
	cfg.Normalize()
	return cfg
}

// Normalize fills omitted fields with defaults.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Logging.Announce.MinLevel) == "" {
		c.Logging.Announce.MinLevel = defaultAnnounceMinLvl
	}
	if strings.TrimSpace(c.Scheduler.PollInterval) == "" {
		c.Scheduler.PollInterval = DefaultPollInterval
	}
	if strings.TrimSpace(c.Scheduler.StopTimeout) == "" {
		c.Scheduler.StopTimeout = DefaultStopTimeout
	}
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Storage.Driver != "none" && strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = DefaultStoragePath
	}
	if c.Notifier == nil {
		c.Notifier = &NotifierConfig{Enabled: true}
	}
	if c.Notifier.RatePerSec <= 0 {
		c.Notifier.RatePerSec = defaultNotifierRateSec
	}
	if strings.TrimSpace(c.Assistant.Name) == "" {
		c.Assistant.Name = DefaultAssistantName
	}
	if strings.TrimSpace(c.Assistant.DefaultReminder) == "" {
		c.Assistant.DefaultReminder = DefaultReminderTime
	}
	if c.Assistant.ListLimit <= 0 {
		c.Assistant.ListLimit = DefaultListLimit
	}
	if strings.TrimSpace(c.Debug.Addr) == "" {
		c.Debug.Addr = DefaultDebugAddr
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	check("scheduler.poll_interval", c.Scheduler.PollInterval)
	check("scheduler.stop_timeout", c.Scheduler.StopTimeout)
	check("storage.busy_timeout", c.Storage.BusyTimeout)
	if n := c.Notifier; n != nil {
		check("notifier.retry_base", n.RetryBase)
		check("notifier.retry_max_delay", n.RetryMaxDelay)
		check("notifier.dedup_window", n.DedupWindow)
		if n.QueueSize < 0 {
			errs = append(errs, errors.New("notifier.queue_size must be >= 0"))
		}
		if n.RetryMax < 0 {
			errs = append(errs, errors.New("notifier.retry_max must be >= 0"))
		}
	}
	switch c.Storage.Driver {
	case "", "none", "file", "json", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	for path, lvl := range map[string]string{"logging.level": c.Logging.Level, "logging.announce.min_level": c.Logging.Announce.MinLevel} {
		switch strings.ToLower(strings.TrimSpace(lvl)) {
		case "", "trace", "debug", "info", "warn", "warning", "error":
		default:
			errs = append(errs, fmt.Errorf("%s: unknown level %q", path, lvl))
		}
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		errs = append(errs, errors.New("logging.file.path required when file logging is enabled"))
	}
	return errors.Join(errs...)
}
