package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"voxassist/internal/config"
	"voxassist/internal/eventbus"
	"voxassist/internal/intent"
	"voxassist/internal/notifier"
	"voxassist/internal/observability/debugsrv"
	"voxassist/internal/runtime/supervisor"
	"voxassist/internal/storage"
	"voxassist/internal/task/scheduler"
	"voxassist/internal/task/store"
	logx "voxassist/pkg/logx"
)

const replyUnsupported = "Sorry, I can only help with reminders, alarms and timers right now."

type options struct {
	out    io.Writer
	now    func() time.Time
	lookup func(string) (string, bool)
	watch  bool
}

type Option func(*options)

// WithOutput sets where spoken replies and notifications are printed.
func WithOutput(w io.Writer) Option { return func(o *options) { o.out = w } }

// WithClock replaces the wall clock used for parsing and firing tasks.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithEnvLookup replaces os.LookupEnv for config overrides.
func WithEnvLookup(fn func(string) (string, bool)) Option {
	return func(o *options) { o.lookup = fn }
}

// WithConfigWatch toggles reloading the config file on change (default on).
func WithConfigWatch(enabled bool) Option { return func(o *options) { o.watch = enabled } }

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor
	opts options

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	backend storage.Backend
	store   *store.Store
	sched   *scheduler.Service
	notif   *notifier.Service
	debug   *debugsrv.Service
	intents atomic.Pointer[intent.Handler]
}

func New(cfgPath string, opts ...Option) (*App, error) {
	o := options{out: os.Stdout, watch: true}
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewManager(cfgPath)
	if o.lookup != nil {
		cfgm.SetEnvLookup(o.lookup)
	}
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	backend, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if backend != nil {
		log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	st := store.New(store.Config{
		Backend: backend,
		Log:     log.With(logx.String("comp", "store")),
		Bus:     bus,
		Now:     o.now,
	})

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, buildSink(o.out, cfg), log.With(logx.String("comp", "notifier")), bus)
	logSvc.SetAnnouncer(notif)

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, scheduler.Deps{
		Store: st,
		Log:   log.With(logx.String("comp", "scheduler")),
		Bus:   bus,
	})

	a := &App{
		cfgm:    cfgm,
		opts:    o,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     bus,
		backend: backend,
		store:   st,
		sched:   sched,
		notif:   notif,
	}
	a.intents.Store(intent.New(st, mapIntentConfig(cfg), log.With(logx.String("comp", "intent"))))
	a.routeNotifications(ncfg.Enabled)
	a.debug = debugsrv.New(mapDebugConfig(cfg), log.With(logx.String("comp", "debug")),
		debugsrv.Route{Path: "/debug/tasks", Fn: a.taskViews},
		debugsrv.Route{Path: "/debug/scheduler", Fn: func() any { return a.sched.Stats() }},
		debugsrv.Route{Path: "/debug/notifications", Fn: func() any { return a.notif.History() }},
	)
	return a, nil
}

// taskView is the JSON shape of a task on the debug server.
type taskView struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Completed     bool      `json:"completed"`
	Recurrence    string    `json:"recurrence,omitempty"`
}

func (a *App) taskViews() any {
	all := a.store.All()
	out := make([]taskView, 0, len(all))
	for _, t := range all {
		out = append(out, taskView{
			ID:            t.ID,
			Kind:          string(t.Kind),
			Title:         t.Title,
			Description:   t.Description,
			ScheduledTime: t.ScheduledTime,
			Completed:     t.Completed,
			Recurrence:    string(t.Recurrence),
		})
	}
	return out
}

// buildSink prints to out and, when configured, also runs the speech command.
func buildSink(out io.Writer, cfg *config.Config) notifier.Sink {
	sinks := []notifier.Sink{notifier.NewWriterSink(out, cfg.Assistant.Name)}
	if cfg.Notifier != nil {
		if cmd := notifier.NewCommandSink(cfg.Notifier.SpeakCommand); cmd != nil {
			sinks = append(sinks, cmd)
		}
	}
	return notifier.Tee(sinks...)
}

// routeNotifications sends fired tasks to the notifier while it is enabled.
// Otherwise the scheduler falls back to logging them.
func (a *App) routeNotifications(enabled bool) {
	if enabled {
		a.store.SetDefaultCallback(a.notif.Notify)
		return
	}
	a.store.SetDefaultCallback(nil)
}

func (a *App) Store() *store.Store { return a.store }

func (a *App) Scheduler() *scheduler.Service { return a.sched }

func (a *App) Config() *config.Config { return a.cfgm.Get() }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validate(cfg)
	})

	if err := a.store.Load(ctx); err != nil {
		return err
	}

	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}
	if a.sched.Enabled() {
		a.sched.Start(a.sup.Context())
	} else {
		a.log.Warn("scheduler disabled; tasks will not fire")
	}
	if a.debug.Enabled() {
		a.debug.Start(a.sup.Context())
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				// Polls happen every few seconds; keep them at trace.
				if e.Type == eventbus.PollCompleted {
					a.log.Trace("event", logx.String("type", e.Type))
					continue
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.String("task", e.TaskID), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	if a.opts.watch {
		a.sup.Go("config.watch", func(c context.Context) error {
			return a.cfgm.Watch(c)
		})
	}

	a.log.Info("app started", logx.Int("tasks", a.store.Len()))
	return nil
}

// Handle answers one utterance.
func (a *App) Handle(ctx context.Context, line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}
	switch strings.ToLower(strings.TrimRight(line, ".!?")) {
	case "status", "scheduler status":
		return a.statusText()
	}
	r, ok := a.intents.Load().Handle(ctx, line)
	if !ok {
		return replyUnsupported
	}
	if r.Err != nil {
		a.log.Debug("task request not fulfilled", logx.String("action", string(r.Action)), logx.Err(r.Err))
	}
	return r.Text
}

func (a *App) statusText() string {
	st := a.sched.Stats()
	if !st.Running {
		return fmt.Sprintf("The scheduler is stopped. %d tasks are pending.", st.Pending)
	}
	text := fmt.Sprintf("The scheduler checks every %s. %d tasks are pending and %s have fired since start.",
		st.PollInterval, st.Pending, humanize.Comma(int64(st.Fired)))
	if !st.NextPoll.IsZero() {
		text += " Next check " + humanize.Time(st.NextPoll) + "."
	}
	if st.Dirty {
		text += " Some changes are not saved yet."
	}
	return text
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// step bounds one shutdown step so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// never extend the caller's deadline
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			if max <= 0 {
				a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
				return
			}
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { return a.sched.Stop(c) })
	step("store", 2*time.Second, func(c context.Context) error {
		if !a.store.Dirty() {
			return nil
		}
		return a.store.Persist(c)
	})
	step("debug", time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	step("notifier", time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("storage", time.Second, func(context.Context) error {
		if a.backend != nil {
			return a.backend.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	return a.logs.Close()
}
