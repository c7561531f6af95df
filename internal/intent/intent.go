// Package intent turns spoken task requests ("wake me up at 7", "remind me
// tomorrow at 9 to call mom", "set a timer for 5 minutes") into task store
// operations and a one-line spoken reply.
package intent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"voxassist/internal/task"
	"voxassist/internal/task/store"
	"voxassist/internal/task/timeparse"
	logx "voxassist/pkg/logx"
)

// Action names what a handled utterance did.
type Action string

const (
	ActionNone     Action = ""
	ActionAlarm    Action = "alarm"
	ActionReminder Action = "reminder"
	ActionTimer    Action = "timer"
	ActionList     Action = "list"
	ActionCancel   Action = "cancel"
)

// Reply is what the assistant says back. Task is set when one was created
// or removed.
type Reply struct {
	Action Action
	Text   string
	Task   *task.Task
	Err    error
}

// Tasks is the part of the task store the handler drives.
type Tasks interface {
	Now() time.Time
	CreateReminder(ctx context.Context, title, timeText string, opts ...store.Option) (task.Task, error)
	CreateAlarm(ctx context.Context, timeText string, opts ...store.Option) (task.Task, error)
	CreateTimer(ctx context.Context, durationText string, opts ...store.Option) (task.Task, error)
	Upcoming(limit int) []task.Task
	FindPrefix(prefix string) (task.Task, bool)
	Remove(ctx context.Context, id string) bool
}

type Config struct {
	// DefaultReminder is the time expression used when a request names no time.
	DefaultReminder string
	// ListLimit caps how many tasks a listing reads out.
	ListLimit int
}

const (
	DefaultReminder  = "in 30 minutes"
	DefaultListLimit = 5

	// spokenLayout reads as "07:30 AM on Friday, October 16".
	spokenLayout = "03:04 PM on Monday, January 02"

	replyAlarmUnclear = "I couldn't understand when to set the alarm. Please specify a time like '7:30 AM' or 'tomorrow at 9'."
	replyTimerUnclear = "I couldn't understand the timer duration. Try something like '5 minutes' or '1 hour'."
	replyTimeUnclear  = "I couldn't understand when to remind you. Try something like 'at 5 PM', 'in 10 minutes' or 'tomorrow at 9'."
)

// Handler routes utterances to task operations.
type Handler struct {
	tasks Tasks
	log   logx.Logger
	cfg   Config
}

func New(tasks Tasks, cfg Config, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.DefaultReminder) == "" {
		cfg.DefaultReminder = DefaultReminder
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = DefaultListLimit
	}
	return &Handler{tasks: tasks, log: log, cfg: cfg}
}

var (
	reList   = regexp.MustCompile(`^(?:(?:list|show)(?: my)?|what are my) (?:reminders|tasks|alarms|timers)$|^what(?:'s| is) scheduled$`)
	reCancel = regexp.MustCompile(`^(?:cancel|delete|remove) (?:the )?(?:task|reminder|alarm|timer) (\S+)$`)

	// Utterances that ask for a task at all.
	reTaskTrigger = regexp.MustCompile(`^(?:remind me\b|set (?:a |an )?(?:alarm|reminder|timer)\b|schedule\b|wake me\b|alarm\b|timer\b|start (?:a )?timer\b)`)

	reAlarmStart = regexp.MustCompile(`^(?:wake me|alarm|set (?:an |a )?alarm)\b`)
	reTimerStart = regexp.MustCompile(`^(?:timer|(?:set|start) (?:a )?timer)\b`)
	reAlarmTime  = regexp.MustCompile(`\b(at|in|for)\s+(.+)$`)

	// "remind me tomorrow at 9 to call mom"
	reTimeFirst = regexp.MustCompile(`\b(at|in|on|tomorrow|next)\s+(.*?)\s*\bto\s+(.+)$`)
	// "remind me to call mom at 5 pm"
	reTitleFirst = regexp.MustCompile(`^(?:remind me |set (?:a |an )?reminder )?to\s+(.+)$`)
	reTimeWord   = regexp.MustCompile(`\s(?:at|in|on|tomorrow|next)\b`)

	reRecurrence = regexp.MustCompile(`\s*\b(every day|daily|every week|weekly|every month|monthly)\b\s*`)

	reLead = regexp.MustCompile(`^(?:please\s+|can you\s+|could you\s+)+`)
)

var recurrenceWords = map[string]task.Recurrence{
	"every day":   task.RecurDaily,
	"daily":       task.RecurDaily,
	"every week":  task.RecurWeekly,
	"weekly":      task.RecurWeekly,
	"every month": task.RecurMonthly,
	"monthly":     task.RecurMonthly,
}

// Matches reports whether utterance is a task request this handler owns.
func Matches(utterance string) bool {
	s := normalize(utterance)
	return reList.MatchString(s) || reCancel.MatchString(s) || reTaskTrigger.MatchString(s)
}

// Handle executes utterance. ok is false when the utterance is not a task
// request; callers should route it elsewhere.
func (h *Handler) Handle(ctx context.Context, utterance string) (Reply, bool) {
	s := normalize(utterance)
	if s == "" {
		return Reply{}, false
	}
	if reList.MatchString(s) {
		return h.list(), true
	}
	if m := reCancel.FindStringSubmatch(s); m != nil {
		return h.cancel(ctx, m[1]), true
	}
	if !reTaskTrigger.MatchString(s) {
		return Reply{}, false
	}

	s, rec := extractRecurrence(s)
	var opts []store.Option
	if rec.IsRecurring() {
		opts = append(opts, store.WithRecurrence(rec))
	}

	switch {
	case reAlarmStart.MatchString(s):
		return h.alarm(ctx, s, rec, opts), true
	case reTimerStart.MatchString(s):
		return h.timer(ctx, s), true
	default:
		return h.reminder(ctx, s, rec, opts), true
	}
}

func (h *Handler) alarm(ctx context.Context, s string, rec task.Recurrence, opts []store.Option) Reply {
	m := reAlarmTime.FindStringSubmatch(s)
	if m == nil {
		return Reply{Action: ActionAlarm, Text: replyAlarmUnclear, Err: store.ErrParse}
	}
	when := m[2]
	if m[1] == "in" {
		when = "in " + when
	}
	tk, err := h.tasks.CreateAlarm(ctx, when, opts...)
	if err != nil {
		return h.failed(ActionAlarm, replyAlarmUnclear, err)
	}
	return Reply{
		Action: ActionAlarm,
		Text:   "I've set an alarm for " + tk.ScheduledTime.Format(spokenLayout) + recurrenceSuffix(rec),
		Task:   &tk,
	}
}

func (h *Handler) timer(ctx context.Context, s string) Reply {
	tk, err := h.tasks.CreateTimer(ctx, s)
	if err != nil {
		return h.failed(ActionTimer, replyTimerUnclear, err)
	}
	return Reply{
		Action: ActionTimer,
		Text:   "I've set a timer " + strings.TrimPrefix(tk.Description, "Timer "),
		Task:   &tk,
	}
}

func (h *Handler) reminder(ctx context.Context, s string, rec task.Recurrence, opts []store.Option) Reply {
	var title, when string
	if m := reTitleFirst.FindStringSubmatch(s); m != nil {
		title, when = h.splitTitleTime(m[1])
	}
	if title == "" {
		if m := reTimeFirst.FindStringSubmatch(s); m != nil {
			title, when = m[3], strings.TrimSpace(m[1]+" "+m[2])
		}
	}

	if title != "" {
		tk, err := h.tasks.CreateReminder(ctx, title, when, opts...)
		if err != nil {
			return h.failed(ActionReminder, replyTimeUnclear, err)
		}
		return Reply{
			Action: ActionReminder,
			Text:   "I'll remind you to " + title + " at " + tk.ScheduledTime.Format(spokenLayout) + recurrenceSuffix(rec),
			Task:   &tk,
		}
	}

	// No recognizable time: schedule the whole request at the default offset.
	title = stripTrigger(s)
	if title == "" {
		return Reply{Action: ActionReminder, Text: "What should I remind you about?", Err: store.ErrParse}
	}
	tk, err := h.tasks.CreateReminder(ctx, title, h.cfg.DefaultReminder, opts...)
	if err != nil {
		return h.failed(ActionReminder, replyTimeUnclear, err)
	}
	return Reply{
		Action: ActionReminder,
		Text:   "I've scheduled a reminder for: " + title + " " + h.cfg.DefaultReminder + recurrenceSuffix(rec),
		Task:   &tk,
	}
}

// splitTitleTime finds the first time word in rest after which the remainder
// parses as a time, so "turn on the lights at 7" keeps "on" in the title.
func (h *Handler) splitTitleTime(rest string) (string, string) {
	now := h.tasks.Now()
	for _, loc := range reTimeWord.FindAllStringIndex(rest, -1) {
		when := strings.TrimSpace(rest[loc[0]:])
		if _, err := timeparse.Parse(when, now); err == nil {
			return strings.TrimSpace(rest[:loc[0]]), when
		}
	}
	return "", ""
}

func (h *Handler) list() Reply {
	up := h.tasks.Upcoming(h.cfg.ListLimit)
	if len(up) == 0 {
		return Reply{Action: ActionList, Text: "You have nothing scheduled."}
	}
	now := h.tasks.Now()
	parts := make([]string, 0, len(up))
	for _, t := range up {
		parts = append(parts, fmt.Sprintf("%s %s at %s, %s",
			t.Kind.Label(), t.Title,
			t.ScheduledTime.Format(spokenLayout),
			humanize.RelTime(t.ScheduledTime, now, "ago", "from now"),
		))
	}
	noun := "tasks"
	if len(up) == 1 {
		noun = "task"
	}
	return Reply{
		Action: ActionList,
		Text:   fmt.Sprintf("You have %d upcoming %s. %s.", len(up), noun, strings.Join(parts, "; ")),
	}
}

func (h *Handler) cancel(ctx context.Context, prefix string) Reply {
	tk, ok := h.tasks.FindPrefix(prefix)
	if !ok || !h.tasks.Remove(ctx, tk.ID) {
		return Reply{Action: ActionCancel, Text: fmt.Sprintf("I couldn't find a single task matching %q.", prefix)}
	}
	return Reply{
		Action: ActionCancel,
		Text:   fmt.Sprintf("Cancelled the %s %q.", strings.ToLower(tk.Kind.Label()), tk.Title),
		Task:   &tk,
	}
}

func (h *Handler) failed(a Action, text string, err error) Reply {
	if !errors.Is(err, store.ErrParse) {
		h.log.Warn("task request failed", logx.String("action", string(a)), logx.Err(err))
		text = "Sorry, I couldn't save that " + string(a) + "."
	}
	return Reply{Action: a, Text: text, Err: err}
}

func normalize(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	s = strings.TrimRight(s, ".!?")
	return reLead.ReplaceAllString(s, "")
}

// extractRecurrence removes the first recurrence phrase from s.
func extractRecurrence(s string) (string, task.Recurrence) {
	loc := reRecurrence.FindStringSubmatchIndex(s)
	if loc == nil {
		return s, task.RecurNone
	}
	rec := recurrenceWords[s[loc[2]:loc[3]]]
	out := strings.TrimSpace(s[:loc[0]] + " " + s[loc[1]:])
	return out, rec
}

func recurrenceSuffix(r task.Recurrence) string {
	switch r {
	case task.RecurDaily:
		return ", every day"
	case task.RecurWeekly:
		return ", every week"
	case task.RecurMonthly:
		return ", every month"
	default:
		return ""
	}
}

var triggerPrefixes = []string{
	"set a reminder to ", "set a reminder for ", "set reminder to ", "set a reminder ",
	"remind me to ", "remind me about ", "remind me ",
	"schedule ",
}

func stripTrigger(s string) string {
	for _, p := range triggerPrefixes {
		if strings.HasPrefix(s, p) {
			return strings.TrimSpace(strings.TrimPrefix(s, p))
		}
	}
	return ""
}
