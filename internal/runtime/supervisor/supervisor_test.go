package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoRecoversPanicAndCancelsOnError(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))
	s.Go("boom", func(context.Context) error { panic("bad") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	select {
	case <-s.Context().Done():
	case <-ctx.Done():
		t.Fatal("supervisor context not cancelled after panic")
	}
	err := s.Wait(ctx)
	if err == nil || !strings.Contains(err.Error(), "panic in boom") {
		t.Fatalf("Wait err = %v", err)
	}
	if c := s.Counters(); c.Panics != 1 || c.Active != 0 || c.Started != 1 {
		t.Fatalf("counters = %+v", c)
	}
}

func TestGoRestartBacksOffThenStops(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("flaky", func(context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond), WithPublishFirstError(true))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if got := runs.Load(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
	if err == nil || !strings.Contains(err.Error(), "transient") {
		t.Fatalf("first error not published: %v", err)
	}
}

func TestGoRestartGivesUp(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("dead", func(context.Context) error {
		runs.Add(1)
		return errors.New("always")
	}, WithRestartBackoff(time.Millisecond, time.Millisecond), WithMaxRestarts(2))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatal("expected final error")
	}
	if got := runs.Load(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
}

func TestStopCancelsLongRunners(t *testing.T) {
	s := New(context.Background())
	s.Go0("loop", func(ctx context.Context) { <-ctx.Done() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
