package storage

import (
	"errors"
	"strings"

	logx "voxassist/pkg/logx"
)

// Open initializes the configured backend.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Backend, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file", "json":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
