package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	// ErrCorrupt wraps decode failures of previously written state.
	ErrCorrupt = errors.New("stored tasks unreadable")
)

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record is the durable shape of one task. Times are RFC 3339 strings.
// The in-memory next run time is deliberately absent.
type Record struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Kind          string `json:"kind"`
	ScheduledTime string `json:"scheduled_time"`
	Completed     bool   `json:"completed"`
	Recurrence    string `json:"recurrence"`
	// AnchorDay is the day of month monthly tasks roll over to; 0 when unset.
	AnchorDay int `json:"anchor_day,omitempty"`
}

// Backend stores the full ordered task collection.
//
// Save replaces everything previously stored; Load returns (nil, nil) when
// nothing has been stored yet.
type Backend interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, recs []Record) error
	Close() error
}
