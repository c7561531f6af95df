package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"voxassist/internal/eventbus"
	"voxassist/internal/task"
	logx "voxassist/pkg/logx"
)

// PollNow runs one poll pass at the current time.
func (s *Service) PollNow(ctx context.Context) eventbus.PollSummary {
	return s.Poll(ctx, s.now())
}

// Poll fires every task due at now, in store order, then persists once if
// anything fired or some change is still unwritten. Callbacks run outside the store
// lock and must be fast: a blocking callback delays the rest of the pass.
func (s *Service) Poll(ctx context.Context, now time.Time) eventbus.PollSummary {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	start := time.Now()
	fired := s.store.FireDue(now)

	var sum eventbus.PollSummary
	sum.Fired = len(fired)
	for _, t := range fired {
		if !s.notify(t) {
			sum.CallbackFails++
		}
		s.bus.Publish(eventbus.Event{Type: eventbus.TaskFired, TaskID: t.ID, Data: t})
	}

	if len(fired) > 0 || s.store.Dirty() {
		if err := s.store.Persist(ctx); err != nil {
			s.persistFails.Add(1)
			sum.PersistErr = err.Error()
			s.log.Warn("persist after poll failed; will retry", logx.Int("fired", len(fired)), logx.Err(err))
		}
	}

	sum.Took = time.Since(start)
	s.cycles.Add(1)
	s.fired.Add(uint64(sum.Fired))
	s.callbackFails.Add(uint64(sum.CallbackFails))
	s.lastPoll.Store(now.UnixNano())

	if sum.Fired > 0 {
		s.log.Debug("poll fired tasks", logx.Int("fired", sum.Fired), logx.Int("callback_fails", sum.CallbackFails), logx.Duration("took", sum.Took))
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.PollCompleted, Data: sum})
	return sum
}

// notify delivers t through exactly one listener: the task's own callback,
// else the store default. Without a listener, or when it fails, the
// notification is written to the log instead. It reports whether the
// listener succeeded.
func (s *Service) notify(t task.Task) bool {
	msg := t.Message()
	ok := true

	switch cb := s.store.DefaultCallback(); {
	case t.Notify != nil:
		if err := safeCall(func() { t.Notify(t) }); err != nil {
			ok = false
			s.reportCallbackError(t, "task", err)
			break
		}
		return true
	case cb != nil:
		if err := safeCall(func() { cb(msg, t.Description) }); err != nil {
			ok = false
			s.reportCallbackError(t, "default", err)
			break
		}
		return true
	}

	s.log.Info("NOTIFICATION",
		logx.String("id", t.ID),
		logx.String("message", msg),
		logx.String("detail", t.Description),
	)
	return ok
}

func safeCall(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &callbackPanic{value: r, stack: string(debug.Stack())}
		}
	}()
	fn()
	return nil
}

type callbackPanic struct {
	value any
	stack string
}

func (p *callbackPanic) Error() string { return fmt.Sprintf("callback panic: %v", p.value) }
