package config

import (
	"reflect"

	logx "voxassist/pkg/logx"
)

// SummarizeChange lists the changed top-level sections and a few safe fields
// for logging.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var (
		changed []string
		attrs   []logx.Field
	)
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.announce", newCfg.Logging.Announce.Enabled),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.poll_interval", newCfg.Scheduler.PollInterval),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		if newCfg.Notifier != nil {
			attrs = append(attrs,
				logx.Bool("notifier.enabled", newCfg.Notifier.Enabled),
				logx.Bool("notifier.speak_command_set", newCfg.Notifier.SpeakCommand != ""),
			)
		}
	}
	if oldCfg.Assistant != newCfg.Assistant {
		changed = append(changed, "assistant")
		attrs = append(attrs, logx.String("assistant.name", newCfg.Assistant.Name))
	}
	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", newCfg.Debug.Addr),
		)
	}
	return changed, attrs
}
