package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"voxassist/internal/eventbus"
	rtsup "voxassist/internal/runtime/supervisor"
	logx "voxassist/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

type job struct {
	n    Notification
	text string
	// key is computed at enqueue time for dedup and event correlation.
	key string
}

// Service implements an async notification pipeline:
// queue + single worker + rate limit + retry + dedup.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log  logx.Logger
	sink Sink
	bus  eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan job
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	// In-memory dedup cache: key -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

const (
	historyMax      = 100
	dedupMaxEntries = 500
)

func New(cfg Config, sink Sink, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	s := &Service{
		sink:  sink,
		log:   log,
		bus:   bus,
		dedup: map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 2
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 250 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 5 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}

	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start is idempotent. A disabled notifier never starts.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	// If stopping, wait for it to finish before restarting.
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// notifier failures should not take down the whole app; treat as best-effort.
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	s.mu.Unlock()

	sup.GoRestart("speaker", func(c context.Context) error {
		s.workerLoop(c, q)
		// Clean exits happen on shutdown (queue close).
		s.mu.Lock()
		stopping := s.stopDone != nil
		s.mu.Unlock()
		if stopping {
			return context.Canceled
		}
		if c.Err() != nil {
			return c.Err()
		}
		return errors.New("notifier worker exited unexpectedly")
	}, rtsup.WithPublishFirstError(true))
	s.log.Info("service started", logx.Int("queue", cap(q)))
}

// Stop stops intake and drains the queue best-effort until ctx deadline.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q := s.queue
	sup := s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	// Shutdown happens asynchronously so callers can time out without leaking state.
	go func() {
		defer close(done)
		// Wait for in-flight enqueues to finish, then close the queue so the worker can drain.
		s.sendWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.queue = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Force-stop the worker; undelivered messages are dropped.
		sup.Cancel()
	}
	s.log.Info("service stopped")
}

// Notify enqueues a normal-priority message that is never deduplicated. Its
// signature matches the task store's default callback, so it can be installed
// there directly.
func (s *Service) Notify(message, detail string) {
	n := Notification{Message: message, Detail: detail, Priority: PriorityNormal, Distinct: true}
	if err := s.Send(context.Background(), n); err != nil && !errors.Is(err, ErrDisabled) {
		s.log.Warn("notification not queued", logx.String("message", message), logx.Err(err))
	}
}

// Announce enqueues a high-priority operator message. It never logs, since
// it is fed by the log pipeline itself.
func (s *Service) Announce(message, detail string) {
	_ = s.Send(context.Background(), Notification{Message: message, Detail: detail, Priority: PriorityHigh})
}

// Send enqueues n without blocking.
func (s *Service) Send(ctx context.Context, n Notification) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	dedupWindow := s.cfg.DedupWindow
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	text := render(n)
	if text == "" {
		return nil
	}
	key := dedupKey(text, n.Priority)
	if dedupWindow > 0 && !n.Distinct && !s.dedupAllow(key, dedupWindow) {
		s.publish(EventDeduped, key, nil)
		return nil
	}

	select {
	case q <- job{n: n, text: text, key: key}:
		s.publish(EventQueued, key, nil)
		return nil
	default:
		s.publish(EventDropped, key, ErrQueueFull)
		return ErrQueueFull
	}
}

// History returns recently spoken texts, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(text string) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Text: text})
	if len(s.history) > historyMax {
		s.history = s.history[len(s.history)-historyMax:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ, key string, err error) {
	ev := NotificationEvent{Key: key, At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, j)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, j job) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	sink := s.sink
	s.mu.Unlock()

	if sink == nil {
		return
	}

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}

		// Bound per-send call. Keep tight to avoid hanging the worker.
		callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := sink.Speak(callCtx, j.text)
		cancel()
		if err == nil {
			s.appendHistory(j.text)
			s.publish(EventSent, j.key, nil)
			return
		}
		lastErr = err
		// Announcements come from the log pipeline; logging their failure could loop.
		if j.n.Priority < PriorityHigh {
			s.log.Debug("speak failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))
		}

		if attempt >= maxAttempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
	s.publish(EventFailed, j.key, lastErr)
}

// render joins message and detail into one utterance.
func render(n Notification) string {
	msg := strings.TrimSpace(n.Message)
	detail := strings.TrimSpace(n.Detail)
	text := msg
	switch {
	case msg == "":
		text = detail
	case detail != "" && !strings.Contains(msg, detail):
		text = strings.TrimRight(msg, ".") + ". " + detail
	}
	if text == "" {
		return ""
	}
	return prefixForPriority(n.Priority) + text
}

func prefixForPriority(p Priority) string {
	switch {
	case p >= PriorityUrgent:
		return "Urgent. "
	case p >= PriorityHigh:
		return "Attention. "
	default:
		return ""
	}
}

func dedupKey(text string, p Priority) string {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%d|%s", p, text)
	return fmt.Sprintf("%x", h.Sum64())
}

func (s *Service) dedupAllow(key string, window time.Duration) bool {
	now := time.Now()
	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)

	if len(s.dedup) > dedupMaxEntries {
		for k, until := range s.dedup {
			if !now.Before(until) {
				delete(s.dedup, k)
			}
		}
	}
	return true
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// Exponential backoff: base * 2^(attempt-1), capped.
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	// Jitter 0.7..1.3
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return d
}
