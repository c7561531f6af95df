package store

import (
	"context"
	"fmt"
	"time"

	"voxassist/internal/storage"
	"voxassist/internal/task"
	logx "voxassist/pkg/logx"
)

// naiveLayouts are accepted for timestamps written without a zone offset;
// they are read in the local zone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Dirty reports whether some change has not been written yet.
func (s *Store) Dirty() bool { return s.dirty.Load() }

// Persist writes the full collection. With no backend it is a no-op.
func (s *Store) Persist(ctx context.Context) error {
	if s.backend == nil {
		s.dirty.Store(false)
		return nil
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	gen := s.gen
	recs := make([]storage.Record, 0, len(s.tasks))
	for _, t := range s.tasks {
		recs = append(recs, toRecord(t))
	}
	s.mu.Unlock()

	if err := s.backend.Save(ctx, recs); err != nil {
		s.dirty.Store(true)
		return fmt.Errorf("persist tasks: %w", err)
	}
	s.mu.Lock()
	if s.gen == gen {
		s.dirty.Store(false)
	}
	s.mu.Unlock()
	return nil
}

// persistLogged is used after in-memory mutations that already succeeded:
// a failed write is logged and left for the next poll cycle to retry.
func (s *Store) persistLogged(ctx context.Context, op string) {
	if err := s.Persist(ctx); err != nil {
		s.log.Warn("persist failed; will retry on next poll", logx.String("op", op), logx.Err(err))
	}
}

// Load replaces the collection with the stored one. A missing store yields an
// empty collection; an unreadable one is logged and also yields an empty
// collection. Individual bad records are skipped.
func (s *Store) Load(ctx context.Context) error {
	var loaded []task.Task
	if s.backend != nil {
		recs, err := s.backend.Load(ctx)
		if err != nil {
			s.log.Warn("stored tasks unreadable; starting empty", logx.Err(err))
			recs = nil
		}
		seen := make(map[string]struct{}, len(recs))
		for i, r := range recs {
			t, err := fromRecord(r)
			if err != nil {
				s.log.Warn("skipping stored task", logx.Int("index", i), logx.String("id", r.ID), logx.Err(err))
				continue
			}
			if _, dup := seen[t.ID]; dup {
				s.log.Warn("skipping duplicate stored task", logx.String("id", t.ID))
				continue
			}
			seen[t.ID] = struct{}{}
			loaded = append(loaded, t)
		}
	}

	s.mu.Lock()
	s.tasks = loaded
	s.gen++
	s.dirty.Store(false)
	s.mu.Unlock()

	s.log.Info("tasks loaded", logx.Int("count", len(loaded)))
	return nil
}

func toRecord(t task.Task) storage.Record {
	return storage.Record{
		ID:            t.ID,
		Title:         t.Title,
		Description:   t.Description,
		Kind:          string(t.Kind),
		ScheduledTime: t.ScheduledTime.Format(time.RFC3339Nano),
		Completed:     t.Completed,
		Recurrence:    string(t.Recurrence),
		AnchorDay:     t.AnchorDay,
	}
}

func fromRecord(r storage.Record) (task.Task, error) {
	if r.ID == "" {
		return task.Task{}, fmt.Errorf("%w: missing id", ErrInvalidTask)
	}
	kind, err := task.ParseKind(r.Kind)
	if err != nil {
		return task.Task{}, err
	}
	rec, err := task.ParseRecurrence(r.Recurrence)
	if err != nil {
		return task.Task{}, err
	}
	at, err := parseStoredTime(r.ScheduledTime)
	if err != nil {
		return task.Task{}, err
	}
	if r.AnchorDay < 0 || r.AnchorDay > 31 {
		return task.Task{}, fmt.Errorf("%w: bad anchor_day %d", ErrInvalidTask, r.AnchorDay)
	}
	desc := r.Description
	if desc == "" {
		desc = r.Title
	}
	return task.Task{
		ID:            r.ID,
		Title:         r.Title,
		Description:   desc,
		Kind:          kind,
		ScheduledTime: at,
		Completed:     r.Completed,
		Recurrence:    rec,
		NextRunTime:   at,
		AnchorDay:     r.AnchorDay,
	}, nil
}

func parseStoredTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: bad scheduled_time %q", ErrInvalidTask, s)
}
