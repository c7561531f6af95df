package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"voxassist/internal/eventbus"
	"voxassist/internal/storage"
	"voxassist/internal/task"
	"voxassist/internal/task/timeparse"
	logx "voxassist/pkg/logx"
)

var (
	// ErrParse is returned by the Create* methods when the time or duration
	// text is not understood. Nothing is stored in that case.
	ErrParse       = timeparse.ErrParse
	ErrDuplicateID = errors.New("task id already exists")
	ErrInvalidTask = errors.New("invalid task")
)

// DefaultCallback receives fired tasks that carry no callback of their own.
type DefaultCallback func(message, detail string)

// Config wires a Store. Only Backend is needed for durability; a nil Backend
// keeps tasks in memory only.
type Config struct {
	Backend storage.Backend
	Log     logx.Logger
	Bus     eventbus.Bus
	Now     func() time.Time
	NewID   func() string
}

// Store owns the task collection. All methods are safe for concurrent use.
type Store struct {
	backend storage.Backend
	log     logx.Logger
	bus     eventbus.Bus
	now     func() time.Time
	newID   func() string

	mu        sync.Mutex
	tasks     []task.Task
	defaultCb DefaultCallback
	// gen counts mutations; a write only clears dirty if gen is unchanged
	// since its snapshot.
	gen uint64

	// persistMu is held across snapshot and write so writes land in order.
	persistMu sync.Mutex
	dirty     atomic.Bool
}

func New(cfg Config) *Store {
	s := &Store{
		backend: cfg.Backend,
		log:     cfg.Log,
		bus:     cfg.Bus,
		now:     cfg.Now,
		newID:   cfg.NewID,
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	if s.bus == nil {
		s.bus = eventbus.Nop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Now is the store's clock.
func (s *Store) Now() time.Time { return s.now() }

func (s *Store) SetDefaultCallback(cb DefaultCallback) {
	s.mu.Lock()
	s.defaultCb = cb
	s.mu.Unlock()
}

func (s *Store) DefaultCallback() DefaultCallback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultCb
}

// ---- creation ----

type createOpts struct {
	title       string
	description string
	recurrence  task.Recurrence
	callback    task.Callback
}

// Option customizes a created task.
type Option func(*createOpts)

// WithTitle overrides the default title of alarms and timers.
func WithTitle(title string) Option {
	return func(o *createOpts) { o.title = strings.TrimSpace(title) }
}

func WithDescription(desc string) Option {
	return func(o *createOpts) { o.description = strings.TrimSpace(desc) }
}

// WithRecurrence is ignored by CreateTimer.
func WithRecurrence(r task.Recurrence) Option {
	return func(o *createOpts) { o.recurrence = r }
}

// WithCallback sets a per-task callback that takes priority over the store default.
func WithCallback(cb task.Callback) Option {
	return func(o *createOpts) { o.callback = cb }
}

func buildOpts(opts []Option) createOpts {
	var o createOpts
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// CreateReminder schedules a reminder at the time described by timeText.
func (s *Store) CreateReminder(ctx context.Context, title, timeText string, opts ...Option) (task.Task, error) {
	o := buildOpts(opts)
	at, err := timeparse.Parse(timeText, s.now())
	if err != nil {
		return task.Task{}, err
	}
	desc := o.description
	if desc == "" {
		desc = title
	}
	return s.insert(ctx, task.Task{
		Title:         title,
		Description:   desc,
		Kind:          task.KindReminder,
		ScheduledTime: at,
		Recurrence:    o.recurrence,
		Notify:        o.callback,
	})
}

// CreateAlarm schedules an alarm; its description names the resolved clock time.
func (s *Store) CreateAlarm(ctx context.Context, timeText string, opts ...Option) (task.Task, error) {
	o := buildOpts(opts)
	at, err := timeparse.Parse(timeText, s.now())
	if err != nil {
		return task.Task{}, err
	}
	title := o.title
	if title == "" {
		title = "Alarm"
	}
	return s.insert(ctx, task.Task{
		Title:         title,
		Description:   "Alarm for " + at.Format("03:04 PM"),
		Kind:          task.KindAlarm,
		ScheduledTime: at,
		Recurrence:    o.recurrence,
		Notify:        o.callback,
	})
}

// CreateTimer schedules a one-shot timer after the duration in durationText.
func (s *Store) CreateTimer(ctx context.Context, durationText string, opts ...Option) (task.Task, error) {
	o := buildOpts(opts)
	span, err := timeparse.ParseSpan(durationText)
	if err != nil {
		return task.Task{}, err
	}
	title := o.title
	if title == "" {
		title = "Timer"
	}
	return s.insert(ctx, task.Task{
		Title:         title,
		Description:   "Timer for " + span.String(),
		Kind:          task.KindTimer,
		ScheduledTime: s.now().Add(span.Duration),
		Recurrence:    task.RecurNone,
		Notify:        o.callback,
	})
}

// Add stores a pre-built task. An empty ID is filled in; a duplicate is rejected.
func (s *Store) Add(ctx context.Context, t task.Task) (task.Task, error) {
	if !t.Kind.Valid() {
		return task.Task{}, fmt.Errorf("%w: kind %q", ErrInvalidTask, t.Kind)
	}
	if t.ScheduledTime.IsZero() {
		return task.Task{}, fmt.Errorf("%w: scheduled time required", ErrInvalidTask)
	}
	if t.Description == "" {
		t.Description = t.Title
	}
	return s.insert(ctx, t)
}

func (s *Store) insert(ctx context.Context, t task.Task) (task.Task, error) {
	if t.ID == "" {
		t.ID = s.newID()
	}
	t.NextRunTime = t.ScheduledTime

	s.mu.Lock()
	if s.indexLocked(t.ID) >= 0 {
		s.mu.Unlock()
		return task.Task{}, fmt.Errorf("%w: %s", ErrDuplicateID, t.ID)
	}
	s.tasks = append(s.tasks, t)
	s.changedLocked()
	s.mu.Unlock()

	s.log.Info("task created",
		logx.String("id", t.ID),
		logx.String("kind", string(t.Kind)),
		logx.Time("at", t.ScheduledTime),
		logx.String("recurrence", string(t.Recurrence)),
	)
	s.persistLogged(ctx, "create")
	s.bus.Publish(eventbus.Event{Type: eventbus.TaskCreated, TaskID: t.ID, Data: t})
	return t, nil
}

// ---- queries and removal ----

// Remove deletes the task with id. Unknown ids return false and write nothing.
func (s *Store) Remove(ctx context.Context, id string) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	s.changedLocked()
	s.mu.Unlock()

	s.log.Info("task removed", logx.String("id", id))
	s.persistLogged(ctx, "remove")
	s.bus.Publish(eventbus.Event{Type: eventbus.TaskRemoved, TaskID: id})
	return true
}

func (s *Store) Get(id string) (task.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return task.Task{}, false
	}
	return s.tasks[i], true
}

// FindPrefix returns the only task whose id starts with prefix.
func (s *Store) FindPrefix(prefix string) (task.Task, bool) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return task.Task{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		found task.Task
		n     int
	)
	for _, t := range s.tasks {
		if strings.HasPrefix(t.ID, prefix) {
			found = t
			n++
		}
	}
	return found, n == 1
}

// All returns a copy of every task in insertion order.
func (s *Store) All() []task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]task.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Upcoming returns pending tasks scheduled after now, earliest first. Ties keep
// insertion order. limit <= 0 returns nothing.
func (s *Store) Upcoming(limit int) []task.Task {
	if limit <= 0 {
		return nil
	}
	now := s.now()
	s.mu.Lock()
	out := make([]task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if !t.Completed && t.ScheduledTime.After(now) {
			out = append(out, t)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// FireDue applies the firing transition to every task due at now, scanning in
// store order inside one critical section. It returns the fired tasks as they
// were before the transition. Notification is the caller's job.
func (s *Store) FireDue(now time.Time) []task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fired []task.Task
	for i := range s.tasks {
		if !s.tasks[i].Due(now) {
			continue
		}
		fired = append(fired, s.tasks[i])
		s.tasks[i].Fire(now)
	}
	if len(fired) > 0 {
		s.changedLocked()
	}
	return fired
}

func (s *Store) changedLocked() {
	s.gen++
	s.dirty.Store(true)
}

func (s *Store) indexLocked(id string) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}
