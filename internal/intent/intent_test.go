package intent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxassist/internal/task"
	"voxassist/internal/task/store"
	logx "voxassist/pkg/logx"
)

// Thursday.
var refNow = time.Date(2026, time.October, 15, 8, 0, 0, 0, time.UTC)

func newHandler(cfg Config) (*Handler, *store.Store) {
	seq := 0
	st := store.New(store.Config{
		Log: logx.Nop(),
		Now: func() time.Time { return refNow },
		NewID: func() string {
			seq++
			return fmt.Sprintf("task-%02d", seq)
		},
	})
	return New(st, cfg, logx.Nop()), st
}

func at(day, hh, mm int) time.Time {
	return time.Date(2026, time.October, day, hh, mm, 0, 0, time.UTC)
}

func TestHandleCreatesTasks(t *testing.T) {
	tests := []struct {
		in    string
		kind  task.Kind
		title string
		when  time.Time
		rec   task.Recurrence
		reply string
	}{
		{
			in: "Wake me up at 7:30 AM", kind: task.KindAlarm, title: "Alarm", when: at(16, 7, 30),
			reply: "I've set an alarm for 07:30 AM on Friday, October 16",
		},
		{
			in: "set an alarm for tomorrow at 6", kind: task.KindAlarm, title: "Alarm", when: at(16, 6, 0),
			reply: "I've set an alarm for 06:00 AM on Friday, October 16",
		},
		{
			in: "wake me in 20 minutes", kind: task.KindAlarm, title: "Alarm", when: at(15, 8, 20),
			reply: "I've set an alarm for 08:20 AM on Thursday, October 15",
		},
		{
			in: "please wake me up every day at 6", kind: task.KindAlarm, title: "Alarm", when: at(16, 6, 0), rec: task.RecurDaily,
			reply: "I've set an alarm for 06:00 AM on Friday, October 16, every day",
		},
		{
			in: "Remind me to call mom at 5 pm.", kind: task.KindReminder, title: "call mom", when: at(15, 17, 0),
			reply: "I'll remind you to call mom at 05:00 PM on Thursday, October 15",
		},
		{
			in: "remind me tomorrow at 9 to water the plants", kind: task.KindReminder, title: "water the plants", when: at(16, 9, 0),
			reply: "I'll remind you to water the plants at 09:00 AM on Friday, October 16",
		},
		{
			in: "remind me in 10 minutes to stretch", kind: task.KindReminder, title: "stretch", when: at(15, 8, 10),
			reply: "I'll remind you to stretch at 08:10 AM on Thursday, October 15",
		},
		{
			in: "remind me to turn on the lights at 7pm", kind: task.KindReminder, title: "turn on the lights", when: at(15, 19, 0),
			reply: "I'll remind you to turn on the lights at 07:00 PM on Thursday, October 15",
		},
		{
			in: "remind me to pay rent monthly on friday", kind: task.KindReminder, title: "pay rent", when: at(16, 9, 0), rec: task.RecurMonthly,
			reply: "I'll remind you to pay rent at 09:00 AM on Friday, October 16, every month",
		},
		{
			in: "remind me at 5 pm to check the timer", kind: task.KindReminder, title: "check the timer", when: at(15, 17, 0),
			reply: "I'll remind you to check the timer at 05:00 PM on Thursday, October 15",
		},
		{
			in: "start a timer for 90 seconds", kind: task.KindTimer, title: "Timer", when: at(15, 8, 1).Add(30 * time.Second),
			reply: "I've set a timer for 90 seconds",
		},
		{
			in: "Set a timer for 5 minutes", kind: task.KindTimer, title: "Timer", when: at(15, 8, 5),
			reply: "I've set a timer for 5 minutes",
		},
		{
			in: "schedule dentist appointment", kind: task.KindReminder, title: "dentist appointment", when: at(15, 8, 30),
			reply: "I've scheduled a reminder for: dentist appointment in 30 minutes",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			h, st := newHandler(Config{})
			r, ok := h.Handle(context.Background(), tt.in)
			require.True(t, ok)
			require.NoError(t, r.Err)
			require.NotNil(t, r.Task)
			assert.Equal(t, tt.reply, r.Text)
			assert.Equal(t, tt.kind, r.Task.Kind)
			assert.Equal(t, tt.title, r.Task.Title)
			assert.Equal(t, tt.rec, r.Task.Recurrence)
			assert.True(t, r.Task.ScheduledTime.Equal(tt.when), "scheduled %v, want %v", r.Task.ScheduledTime, tt.when)
			assert.Equal(t, 1, st.Len())
		})
	}
}

func TestHandleUnclearRequestsCreateNothing(t *testing.T) {
	tests := []struct {
		in    string
		reply string
	}{
		{"wake me up", replyAlarmUnclear},
		{"set an alarm for whenever", replyAlarmUnclear},
		{"set a timer", replyTimerUnclear},
		{"remind me", "What should I remind you about?"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			h, st := newHandler(Config{})
			r, ok := h.Handle(context.Background(), tt.in)
			require.True(t, ok)
			assert.ErrorIs(t, r.Err, store.ErrParse)
			assert.Equal(t, tt.reply, r.Text)
			assert.Nil(t, r.Task)
			assert.Equal(t, 0, st.Len())
		})
	}
}

func TestHandleIgnoresOtherUtterances(t *testing.T) {
	h, _ := newHandler(Config{})
	for _, in := range []string{"", "what's the weather", "tell me a joke", "play some music"} {
		_, ok := h.Handle(context.Background(), in)
		assert.False(t, ok, in)
		assert.False(t, Matches(in), in)
	}
	assert.True(t, Matches("Remind me to stretch"))
}

func TestDefaultReminderFromConfig(t *testing.T) {
	h, _ := newHandler(Config{DefaultReminder: "in 2 hours"})
	r, ok := h.Handle(context.Background(), "remind me to back up the laptop")
	require.True(t, ok)
	require.NotNil(t, r.Task)
	assert.Equal(t, "back up the laptop", r.Task.Title)
	assert.True(t, r.Task.ScheduledTime.Equal(at(15, 10, 0)))
	assert.Equal(t, "I've scheduled a reminder for: back up the laptop in 2 hours", r.Text)
}

func TestListAndCancel(t *testing.T) {
	h, st := newHandler(Config{ListLimit: 2})
	ctx := context.Background()

	r, _ := h.Handle(ctx, "what's scheduled?")
	assert.Equal(t, "You have nothing scheduled.", r.Text)

	for _, in := range []string{"remind me tomorrow at 9 to water the plants", "set a timer for 1 hour", "remind me to stretch in 10 minutes"} {
		_, ok := h.Handle(ctx, in)
		require.True(t, ok, in)
	}
	require.Equal(t, 3, st.Len())

	r, ok := h.Handle(ctx, "list reminders")
	require.True(t, ok)
	assert.Equal(t, ActionList, r.Action)
	assert.Equal(t,
		"You have 2 upcoming tasks. Reminder stretch at 08:10 AM on Thursday, October 15, 10 minutes from now; Timer Timer at 09:00 AM on Thursday, October 15, 1 hour from now.",
		r.Text)

	r, ok = h.Handle(ctx, "cancel task task-03")
	require.True(t, ok)
	assert.Equal(t, `Cancelled the reminder "stretch".`, r.Text)
	assert.Equal(t, 2, st.Len())

	r, _ = h.Handle(ctx, "cancel task task-0")
	assert.Equal(t, `I couldn't find a single task matching "task-0".`, r.Text, "ambiguous prefix")
	assert.Equal(t, 2, st.Len())
}
