package task

import (
	"fmt"
	"strings"
	"time"
)

// Kind only changes the prefix of the notification message.
type Kind string

const (
	KindReminder Kind = "reminder"
	KindAlarm    Kind = "alarm"
	KindTask     Kind = "task"
	KindTimer    Kind = "timer"
)

func (k Kind) Valid() bool {
	switch k {
	case KindReminder, KindAlarm, KindTask, KindTimer:
		return true
	default:
		return false
	}
}

// Label is the capitalized form used as message prefix ("Reminder").
func (k Kind) Label() string {
	s := string(k)
	if s == "" {
		return "Task"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ParseKind accepts the persisted names case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown task kind %q", s)
	}
	return k, nil
}

// Recurrence is empty for one-shot tasks.
type Recurrence string

const (
	RecurNone    Recurrence = ""
	RecurDaily   Recurrence = "daily"
	RecurWeekly  Recurrence = "weekly"
	RecurMonthly Recurrence = "monthly"
)

func (r Recurrence) IsRecurring() bool { return r != RecurNone }

// ParseRecurrence maps "", "none" and "null" to RecurNone.
func ParseRecurrence(s string) (Recurrence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "null":
		return RecurNone, nil
	case "daily":
		return RecurDaily, nil
	case "weekly":
		return RecurWeekly, nil
	case "monthly":
		return RecurMonthly, nil
	default:
		return RecurNone, fmt.Errorf("unknown recurrence %q", s)
	}
}

// Callback is a per-task notification hook. It is never persisted.
type Callback func(t Task)

// Task is one schedulable unit owned by the task store.
//
// NextRunTime mirrors ScheduledTime; it is not persisted and is rebuilt from
// ScheduledTime on load. AnchorDay is the day of month a monthly task was
// first scheduled for; zero means the day of ScheduledTime.
type Task struct {
	ID            string
	Title         string
	Description   string
	Kind          Kind
	ScheduledTime time.Time
	Completed     bool
	Recurrence    Recurrence
	NextRunTime   time.Time
	AnchorDay     int

	Notify Callback
}

// Message is the short line announced when the task fires.
func (t Task) Message() string {
	return t.Kind.Label() + ": " + t.Title
}

// Due reports whether the task should fire at now.
func (t Task) Due(now time.Time) bool {
	if t.Completed {
		return false
	}
	return !t.NextRunTime.After(now)
}

// Fire applies the post-firing transition at poll time now. One-shot tasks
// complete; recurring tasks roll over and stay pending.
func (t *Task) Fire(now time.Time) {
	if !t.Recurrence.IsRecurring() {
		t.Completed = true
		return
	}
	if t.AnchorDay <= 0 {
		t.AnchorDay = t.ScheduledTime.In(now.Location()).Day()
	}
	next := nextOccurrence(t.ScheduledTime, t.AnchorDay, t.Recurrence, now)
	t.Completed = false
	t.ScheduledTime = next
	t.NextRunTime = next
}

// NextOccurrence computes the rollover of a recurring task that fired at now.
// The time of day comes from scheduled; the date comes from now. Monthly tasks
// keep the day of scheduled, clamped to the length of the target month.
func NextOccurrence(scheduled time.Time, r Recurrence, now time.Time) time.Time {
	return nextOccurrence(scheduled, scheduled.In(now.Location()).Day(), r, now)
}

func nextOccurrence(scheduled time.Time, anchorDay int, r Recurrence, now time.Time) time.Time {
	loc := now.Location()
	scheduled = scheduled.In(loc)
	hh, mm := scheduled.Hour(), scheduled.Minute()
	today := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, loc)

	switch r {
	case RecurDaily:
		return today.AddDate(0, 0, 1)
	case RecurWeekly:
		return today.AddDate(0, 0, 7)
	case RecurMonthly:
		// Month after the scheduled one, moved forward until it is past now.
		year, month := scheduled.Year(), scheduled.Month()
		for {
			year, month = nextMonth(year, month)
			day := anchorDay
			if last := DaysInMonth(year, month); day > last {
				day = last
			}
			next := time.Date(year, month, day, hh, mm, 0, 0, loc)
			if next.After(now) {
				return next
			}
		}
	default:
		return scheduled
	}
}

// IsLeap follows the Gregorian rule.
func IsLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func nextMonth(year int, month time.Month) (int, time.Month) {
	if month == time.December {
		return year + 1, time.January
	}
	return year, month + 1
}

var monthDays = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

func DaysInMonth(year int, month time.Month) int {
	if month == time.February && IsLeap(year) {
		return 29
	}
	return monthDays[month-1]
}
