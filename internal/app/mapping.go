package app

import (
	"fmt"
	"strings"
	"time"

	"voxassist/internal/config"
	"voxassist/internal/intent"
	"voxassist/internal/notifier"
	"voxassist/internal/observability/debugsrv"
	"voxassist/internal/storage"
	"voxassist/internal/task/scheduler"
	logx "voxassist/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Announce: logx.AnnounceConfig{
			Enabled:    cfg.Logging.Announce.Enabled,
			MinLevel:   cfg.Logging.Announce.MinLevel,
			RatePerSec: cfg.Logging.Announce.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "none":
		return storage.Config{Driver: "none"}, nil
	case "file", "json":
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.DurationOr("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	every, err := config.DurationOr("scheduler.poll_interval", cfg.Scheduler.PollInterval, scheduler.DefaultPollInterval)
	if err != nil {
		return scheduler.Config{}, err
	}
	stop, err := config.DurationOr("scheduler.stop_timeout", cfg.Scheduler.StopTimeout, scheduler.DefaultStopTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:      cfg.Scheduler.Enabled,
		PollInterval: every,
		StopTimeout:  stop,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	if nc == nil {
		return notifier.Config{Enabled: true}, nil
	}
	if nc.QueueSize < 0 || nc.RetryMax < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.queue_size and notifier.retry_max must be >= 0")
	}
	base, err := config.DurationOr("notifier.retry_base", nc.RetryBase, 0)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.DurationOr("notifier.retry_max_delay", nc.RetryMaxDelay, 0)
	if err != nil {
		return notifier.Config{}, err
	}
	dedup, err := config.DurationOr("notifier.dedup_window", nc.DedupWindow, 0)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:       nc.Enabled,
		QueueSize:     nc.QueueSize,
		RatePerSec:    nc.RatePerSec,
		RetryMax:      nc.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		DedupWindow:   dedup,
	}, nil
}

func mapDebugConfig(cfg *config.Config) debugsrv.Config {
	return debugsrv.Config{
		Enabled: cfg.Debug.Enabled,
		Addr:    cfg.Debug.Addr,
		Token:   cfg.Debug.Token,
	}
}

func mapIntentConfig(cfg *config.Config) intent.Config {
	return intent.Config{
		DefaultReminder: cfg.Assistant.DefaultReminder,
		ListLimit:       cfg.Assistant.ListLimit,
	}
}

// validate rejects a reloaded config that any component would refuse.
func validate(cfg *config.Config) error {
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapSchedulerConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	return nil
}
