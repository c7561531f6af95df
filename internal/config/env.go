package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "VOXASSIST_"

// LoadDotEnv loads KEY=VALUE files into the process environment. Missing files
// are ignored and existing variables are never overwritten.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}

// ApplyEnv overrides cfg from VOXASSIST_* variables. lookup defaults to
// os.LookupEnv. It reports the variables that were applied.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) []string {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if cfg.Notifier == nil {
		cfg.Notifier = &NotifierConfig{Enabled: true}
	}

	var applied []string
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
			applied = append(applied, EnvPrefix+key)
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				*dst = b
				applied = append(applied, EnvPrefix+key)
			}
		}
	}

	str("LOG_LEVEL", &cfg.Logging.Level)
	boolean("SCHEDULER_ENABLED", &cfg.Scheduler.Enabled)
	str("POLL_INTERVAL", &cfg.Scheduler.PollInterval)
	str("STORAGE_DRIVER", &cfg.Storage.Driver)
	str("STORAGE_PATH", &cfg.Storage.Path)
	boolean("NOTIFIER_ENABLED", &cfg.Notifier.Enabled)
	str("SPEAK_COMMAND", &cfg.Notifier.SpeakCommand)
	str("ASSISTANT_NAME", &cfg.Assistant.Name)
	str("DEFAULT_REMINDER", &cfg.Assistant.DefaultReminder)
	boolean("DEBUG_ENABLED", &cfg.Debug.Enabled)
	str("DEBUG_ADDR", &cfg.Debug.Addr)
	str("DEBUG_TOKEN", &cfg.Debug.Token)
	return applied
}
