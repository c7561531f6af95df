package app

import (
	"context"
	"strings"
	"time"

	"voxassist/internal/config"
	"voxassist/internal/intent"
	logx "voxassist/pkg/logx"
)

// reloadLoop applies published configs to the running components.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range sections {
		if s == "storage" {
			a.log.Warn("storage config changed; restart required for changes to take effect")
			break
		}
	}

	a.logs.Apply(mapLogConfig(newCfg))
	a.intents.Store(intent.New(a.store, mapIntentConfig(newCfg), a.log.With(logx.String("comp", "intent"))))

	if sc, err := mapSchedulerConfig(newCfg); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.sched.Enabled()
		a.sched.Apply(sc)
		switch {
		case wasEnabled && !sc.Enabled:
			a.log.Info("scheduler disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			if err := a.sched.Stop(stopCtx); err != nil {
				a.log.Warn("scheduler stop", logx.Err(err))
			}
			cancel()
		case !wasEnabled && sc.Enabled:
			a.log.Info("scheduler enabled via config")
			a.sched.Start(ctx)
		}
	}

	if nc, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.notif.Enabled()
		a.notif.Apply(nc)
		switch {
		case wasEnabled && !nc.Enabled:
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		case !wasEnabled && nc.Enabled:
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
		}
		a.routeNotifications(nc.Enabled)
	}

	a.debug.Reconfigure(ctx, mapDebugConfig(newCfg))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
