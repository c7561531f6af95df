package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxassist/internal/eventbus"
	"voxassist/internal/storage"
	"voxassist/internal/task"
	"voxassist/internal/task/store"
	logx "voxassist/pkg/logx"
)

// Thursday.
var refNow = time.Date(2026, time.October, 15, 8, 0, 0, 0, time.UTC)

type countingBackend struct {
	mu    sync.Mutex
	saves int
	fail  error
}

func (b *countingBackend) Load(context.Context) ([]storage.Record, error) { return nil, nil }
func (b *countingBackend) Close() error                                   { return nil }

func (b *countingBackend) Save(context.Context, []storage.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	b.saves++
	return nil
}

func (b *countingBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

func (b *countingBackend) setFail(err error) {
	b.mu.Lock()
	b.fail = err
	b.mu.Unlock()
}

func newFixture(t *testing.T, log logx.Logger) (*store.Store, *countingBackend, *Service) {
	t.Helper()
	b := &countingBackend{}
	seq := 0
	st := store.New(store.Config{
		Backend: b,
		Log:     logx.Nop(),
		Now:     func() time.Time { return refNow },
		NewID: func() string {
			seq++
			return fmt.Sprintf("t%d", seq)
		},
	})
	svc := New(Config{Enabled: true, PollInterval: time.Hour}, Deps{Store: st, Log: log})
	return st, b, svc
}

func TestPollWeeklyFiresOnceAndRollsOver(t *testing.T) {
	st, b, svc := newFixture(t, logx.Nop())
	ctx := context.Background()

	var calls atomic.Int32
	tk, err := st.Add(ctx, task.Task{
		Title:         "standup",
		Kind:          task.KindReminder,
		ScheduledTime: time.Date(2026, time.October, 15, 7, 0, 0, 0, time.UTC),
		Recurrence:    task.RecurWeekly,
		Notify:        func(task.Task) { calls.Add(1) },
	})
	require.NoError(t, err)
	savesBefore := b.count()

	sum := svc.Poll(ctx, refNow)
	assert.Equal(t, 1, sum.Fired)
	assert.Zero(t, sum.CallbackFails)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, savesBefore+1, b.count(), "one write per poll cycle")

	got, ok := st.Get(tk.ID)
	require.True(t, ok)
	assert.False(t, got.Completed)
	want := time.Date(2026, time.October, 22, 7, 0, 0, 0, time.UTC)
	assert.True(t, got.ScheduledTime.Equal(want), "got %s", got.ScheduledTime)
	assert.True(t, got.NextRunTime.Equal(want))

	sum = svc.Poll(ctx, refNow.Add(time.Second))
	assert.Zero(t, sum.Fired)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, savesBefore+1, b.count(), "quiet poll writes nothing")
}

func TestPollOneShotCompletesAndPersistsOnce(t *testing.T) {
	st, b, svc := newFixture(t, logx.Nop())
	ctx := context.Background()

	var msgs []string
	st.SetDefaultCallback(func(message, detail string) { msgs = append(msgs, message+"|"+detail) })

	for i := 0; i < 3; i++ {
		_, err := st.Add(ctx, task.Task{
			Title:         fmt.Sprintf("job %d", i),
			Kind:          task.KindTask,
			ScheduledTime: refNow.Add(-time.Duration(i+1) * time.Minute),
		})
		require.NoError(t, err)
	}
	_, err := st.Add(ctx, task.Task{Title: "later", Kind: task.KindTask, ScheduledTime: refNow.Add(time.Minute)})
	require.NoError(t, err)
	savesBefore := b.count()

	sum := svc.Poll(ctx, refNow)
	assert.Equal(t, 3, sum.Fired)
	assert.Equal(t, []string{"Task: job 0|job 0", "Task: job 1|job 1", "Task: job 2|job 2"}, msgs, "store order")
	assert.Equal(t, savesBefore+1, b.count())

	for _, tk := range st.All() {
		assert.Equal(t, tk.Title != "later", tk.Completed, tk.Title)
	}
}

func TestPollCallbackPanicFallsBackToLog(t *testing.T) {
	var buf bytes.Buffer
	st, _, svc := newFixture(t, logx.NewWriter(&buf, "info"))
	ctx := context.Background()

	var defaults []string
	st.SetDefaultCallback(func(message, _ string) { defaults = append(defaults, message) })

	_, err := st.Add(ctx, task.Task{
		Title:         "broken",
		Kind:          task.KindAlarm,
		ScheduledTime: refNow.Add(-time.Second),
		Notify:        func(task.Task) { panic("speaker unplugged") },
	})
	require.NoError(t, err)
	_, err = st.Add(ctx, task.Task{Title: "fine", Kind: task.KindReminder, ScheduledTime: refNow.Add(-time.Second)})
	require.NoError(t, err)

	sum := svc.Poll(ctx, refNow)
	assert.Equal(t, 2, sum.Fired)
	assert.Equal(t, 1, sum.CallbackFails)
	assert.Equal(t, []string{"Reminder: fine"}, defaults, "a failed task callback is not announced twice")
	assert.Contains(t, buf.String(), `"message":"NOTIFICATION"`)
	assert.Contains(t, buf.String(), "Alarm: broken")
	assert.NotContains(t, buf.String(), "Reminder: fine")
	for _, tk := range st.All() {
		assert.True(t, tk.Completed, "%s counts as fired", tk.Title)
	}
	assert.EqualValues(t, 1, svc.Stats().CallbackFails)
}

func TestPollLogFallbackWithoutListeners(t *testing.T) {
	var buf bytes.Buffer
	st, _, svc := newFixture(t, logx.NewWriter(&buf, "info"))
	ctx := context.Background()

	_, err := st.CreateTimer(ctx, "1 second")
	require.NoError(t, err)

	sum := svc.Poll(ctx, refNow.Add(2*time.Second))
	require.Equal(t, 1, sum.Fired)
	out := buf.String()
	assert.Contains(t, out, `"message":"NOTIFICATION"`)
	assert.Contains(t, out, "Timer: Timer")
	assert.Contains(t, out, "Timer for 1 second")
}

func TestPollPersistFailureRetriedNextCycle(t *testing.T) {
	st, b, svc := newFixture(t, logx.Nop())
	ctx := context.Background()

	b.setFail(errors.New("read-only filesystem"))
	_, err := st.CreateTimer(ctx, "1 second")
	require.NoError(t, err)

	sum := svc.Poll(ctx, refNow.Add(time.Minute))
	assert.Equal(t, 1, sum.Fired)
	assert.Contains(t, sum.PersistErr, "read-only filesystem")
	assert.True(t, st.Dirty())

	b.setFail(nil)
	sum = svc.Poll(ctx, refNow.Add(2*time.Minute))
	assert.Zero(t, sum.Fired)
	assert.Empty(t, sum.PersistErr)
	assert.False(t, st.Dirty())
	assert.Equal(t, 1, b.count())
	assert.EqualValues(t, 1, svc.Stats().PersistFails)
}

func TestPollPublishesEvents(t *testing.T) {
	b := &countingBackend{}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8)
	defer unsub()

	st := store.New(store.Config{Backend: b, Now: func() time.Time { return refNow }})
	svc := New(Config{}, Deps{Store: st, Bus: bus})
	ctx := context.Background()

	tk, err := st.Add(ctx, task.Task{Title: "x", Kind: task.KindTask, ScheduledTime: refNow})
	require.NoError(t, err)
	svc.Poll(ctx, refNow)

	var fired, polled bool
	for i := 0; i < 2; i++ {
		e := <-ch
		switch e.Type {
		case eventbus.TaskFired:
			fired = e.TaskID == tk.ID
		case eventbus.PollCompleted:
			sum, ok := e.Data.(eventbus.PollSummary)
			polled = ok && sum.Fired == 1
		}
	}
	assert.True(t, fired)
	assert.True(t, polled)
}

func TestStartPollsImmediatelyAndStopIsBounded(t *testing.T) {
	b := &countingBackend{}
	st := store.New(store.Config{Backend: b})
	svc := New(Config{Enabled: true, PollInterval: time.Second, StopTimeout: 500 * time.Millisecond}, Deps{Store: st})
	ctx := context.Background()

	var calls atomic.Int32
	_, err := st.Add(ctx, task.Task{
		Title:         "due",
		Kind:          task.KindReminder,
		ScheduledTime: time.Now().Add(-time.Minute),
		Notify:        func(task.Task) { calls.Add(1) },
	})
	require.NoError(t, err)

	svc.Start(ctx)
	svc.Start(ctx)
	assert.EqualValues(t, 1, calls.Load(), "first poll runs on Start")
	assert.True(t, svc.Running())

	require.Eventually(t, func() bool { return svc.Stats().Cycles >= 2 }, 3*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, calls.Load(), "one-shot fires once")

	start := time.Now()
	require.NoError(t, svc.Stop(ctx))
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, svc.Running())
	require.NoError(t, svc.Stop(ctx))
}

func TestStopTimesOutOnStuckCallback(t *testing.T) {
	st := store.New(store.Config{})
	svc := New(Config{PollInterval: time.Second, StopTimeout: 50 * time.Millisecond}, Deps{Store: st})
	ctx := context.Background()

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	defer close(release)
	svc.Start(ctx)

	_, err := st.Add(ctx, task.Task{
		Title:         "stuck",
		Kind:          task.KindTask,
		ScheduledTime: time.Now(),
		Notify: func(task.Task) {
			entered <- struct{}{}
			<-release
		},
	})
	require.NoError(t, err)

	select {
	case <-entered:
	case <-time.After(3 * time.Second):
		t.Fatal("poll never reached the callback")
	}

	err = svc.Stop(ctx)
	assert.ErrorIs(t, err, ErrStopTimeout)
}

func TestDefaultCallbackFailureFallsBackToLog(t *testing.T) {
	var buf bytes.Buffer
	st, _, svc := newFixture(t, logx.NewWriter(&buf, "info"))
	ctx := context.Background()
	st.SetDefaultCallback(func(string, string) { panic("queue closed") })

	_, err := st.CreateTimer(ctx, "1 second")
	require.NoError(t, err)
	sum := svc.Poll(ctx, refNow.Add(time.Minute))
	assert.Equal(t, 1, sum.CallbackFails)
	assert.Contains(t, buf.String(), "Timer for 1 second")
}

func TestPollPersistsFiringAfterConcurrentWrite(t *testing.T) {
	st, b, svc := newFixture(t, logx.Nop())
	ctx := context.Background()

	_, err := st.Add(ctx, task.Task{Title: "due", Kind: task.KindTimer, ScheduledTime: refNow.Add(-time.Second)})
	require.NoError(t, err)

	// The callback's own write clears dirty; the cycle still writes once.
	_, err = st.Add(ctx, task.Task{
		Title:         "writer",
		Kind:          task.KindTask,
		ScheduledTime: refNow.Add(-time.Second),
		Notify: func(task.Task) {
			_, _ = st.CreateTimer(ctx, "1 hour")
		},
	})
	require.NoError(t, err)
	savesBefore := b.count()

	sum := svc.Poll(ctx, refNow)
	assert.Equal(t, 2, sum.Fired)
	assert.False(t, st.Dirty())
	assert.Equal(t, savesBefore+2, b.count(), "callback write plus the end-of-cycle write")
}

func TestApplyIntervalIsBoundedByStuckPoll(t *testing.T) {
	st := store.New(store.Config{})
	svc := New(Config{PollInterval: time.Hour, StopTimeout: 50 * time.Millisecond}, Deps{Store: st})
	ctx := context.Background()
	svc.Start(ctx)

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	_, err := st.Add(ctx, task.Task{
		Title:         "stuck",
		Kind:          task.KindTask,
		ScheduledTime: time.Now(),
		Notify: func(task.Task) {
			entered <- struct{}{}
			<-release
		},
	})
	require.NoError(t, err)
	go svc.PollNow(ctx)
	<-entered

	// Let a cron-driven poll queue behind the stuck one, then restart again.
	svc.SetInterval(time.Second)
	time.Sleep(2100 * time.Millisecond)

	start := time.Now()
	svc.SetInterval(2 * time.Second)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 2*time.Second, svc.Stats().PollInterval)

	close(release)
	require.NoError(t, svc.Stop(ctx))
}

func TestSetIntervalRestartsTrigger(t *testing.T) {
	st := store.New(store.Config{})
	svc := New(Config{PollInterval: time.Hour}, Deps{Store: st})
	ctx := context.Background()
	svc.Start(ctx)
	defer func() { _ = svc.Stop(ctx) }()

	assert.Equal(t, time.Hour, svc.Stats().PollInterval)
	// cron intervals round up to one second.
	svc.SetInterval(time.Second)
	assert.Equal(t, time.Second, svc.Stats().PollInterval)
	require.Eventually(t, func() bool { return svc.Stats().Cycles >= 2 }, 3*time.Second, 10*time.Millisecond)
}

func TestCronLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l := cronLogger{log: logx.NewWriter(&buf, "trace")}
	l.Info("wake", "now", "x", "dangling")
	l.Error(errors.New("boom"), "panic", "entry", 3)

	out := buf.String()
	assert.Contains(t, out, `"message":"cron wake"`)
	assert.Contains(t, out, `"extra":"dangling"`)
	assert.Contains(t, out, "boom")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}
