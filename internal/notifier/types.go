package notifier

import (
	"context"
	"time"
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled       bool
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	DedupWindow   time.Duration
}

// Priority orders urgency; higher is more urgent.
type Priority int

const (
	PriorityNormal Priority = 5
	PriorityHigh   Priority = 7
	PriorityUrgent Priority = 9
)

// Notification is one message for the user.
type Notification struct {
	Message  string
	Detail   string
	Priority Priority
	// Distinct bypasses the dedup window. Fired tasks are each spoken even
	// when two of them render the same text.
	Distinct bool
}

// Sink delivers rendered text, e.g. to a speech engine or a terminal.
type Sink interface {
	Speak(ctx context.Context, text string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, text string) error

func (f SinkFunc) Speak(ctx context.Context, text string) error { return f(ctx, text) }

type HistoryItem struct {
	At   time.Time
	Text string
}

// NotificationEvent is emitted on the event bus for notifier lifecycle events.
type NotificationEvent struct {
	Key   string    `json:"key"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}

// Event types published by the notifier.
const (
	EventQueued  = "notifier.queued"
	EventDeduped = "notifier.deduped"
	EventDropped = "notifier.dropped"
	EventSent    = "notifier.sent"
	EventFailed  = "notifier.failed"
)
