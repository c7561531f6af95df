package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"voxassist/internal/eventbus"
	logx "voxassist/pkg/logx"
)

// ErrStopTimeout is returned by Stop when an in-flight poll outlives the grace period.
var ErrStopTimeout = errors.New("scheduler stop timed out")

func New(cfg Config, deps Deps) *Service {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	bus := deps.Bus
	if bus == nil {
		bus = eventbus.Nop()
	}
	now := deps.Now
	if now == nil {
		now = deps.Store.Now
	}
	return &Service{
		cfg:          cfg,
		log:          log,
		bus:          bus,
		store:        deps.Store,
		now:          now,
		lastFailWarn: map[string]time.Time{},
	}
}

// Enabled reports the current config flag. (Thread-safe; Apply() may run concurrently.)
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply swaps the config. A changed poll interval restarts the cron trigger;
// toggling Enabled is left to the caller (Start/Stop).
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldEvery := s.cfg.interval()
	s.cfg = cfg
	if s.c == nil {
		return
	}
	if oldEvery != cfg.interval() {
		s.restartLocked()
	}
}

// SetInterval changes the poll interval, restarting the trigger if running.
func (s *Service) SetInterval(d time.Duration) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	cfg.PollInterval = d
	s.Apply(cfg)
}

// Start runs one poll immediately and then one per interval. Calling Start on
// a running service is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.c != nil {
		s.mu.Unlock()
		return
	}
	s.startLocked()
	every := s.cfg.interval()
	s.mu.Unlock()

	s.log.Info("service started", logx.Duration("poll_interval", every), logx.Int("tasks", s.store.Len()))
	s.PollNow(ctx)
}

func (s *Service) startLocked() {
	cl := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s.entryID = s.c.Schedule(cron.Every(s.cfg.interval()), cron.FuncJob(func() {
		s.PollNow(context.Background())
	}))
	s.c.Start()
}

// restartLocked waits at most StopTimeout for an in-flight poll. Polls from
// the new trigger queue behind a stuck one on pollMu.
func (s *Service) restartLocked() {
	if s.c != nil {
		grace := s.cfg.stopTimeout()
		timer := time.NewTimer(grace)
		select {
		case <-s.c.Stop().Done():
		case <-timer.C:
			s.log.Warn("in-flight poll still running during restart", logx.Duration("grace", grace))
		}
		timer.Stop()
	}
	s.startLocked()
	s.log.Info("service restarted", logx.Duration("poll_interval", s.cfg.interval()))
}

// Running reports whether the cron trigger is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c != nil
}

// Stop halts the trigger and waits for an in-flight poll, bounded by ctx or
// StopTimeout, whichever ends first. Tasks stay in the store.
func (s *Service) Stop(ctx context.Context) error {
	start := time.Now()
	s.log.Info("stop requested")

	s.mu.Lock()
	c := s.c
	s.c = nil
	s.entryID = 0
	grace := s.cfg.stopTimeout()
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	var err error
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		err = ErrStopTimeout
		s.log.Warn("in-flight poll still running after grace period", logx.Duration("grace", grace))
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
	return err
}
