package app

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"voxassist/internal/config"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func noEnv(string) (string, bool) { return "", false }

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "assistant.json")
	body := fmt.Sprintf(`{
  "logging": {"level": "error"},
  "scheduler": {"enabled": true, "poll_interval": "1s"},
  "storage": {"driver": "file", "path": %q},
  "assistant": {"name": "Jarvis"}
}`, filepath.Join(dir, "tasks.json"))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func startApp(t *testing.T, cfgPath string, out *syncBuffer) *App {
	t.Helper()
	a, err := New(cfgPath, WithOutput(out), WithEnvLookup(noEnv), WithConfigWatch(false))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return a
}

func stopApp(t *testing.T, a *App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(ctx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestTimerFiresThroughNotifier(t *testing.T) {
	out := &syncBuffer{}
	a := startApp(t, writeConfig(t, t.TempDir()), out)
	defer stopApp(t, a)

	reply := a.Handle(context.Background(), "Set a timer for 1 second")
	if reply != "I've set a timer for 1 second" {
		t.Fatalf("reply = %q", reply)
	}
	waitFor(t, 5*time.Second, func() bool {
		return strings.Contains(out.String(), "[Jarvis] Timer: Timer. Timer for 1 second")
	})
	waitFor(t, time.Second, func() bool {
		st := a.Scheduler().Stats()
		return st.Fired == 1 && st.Pending == 0
	})
}

func TestTasksSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	a := startApp(t, cfgPath, &syncBuffer{})
	reply := a.Handle(context.Background(), "remind me tomorrow at 9 to water the plants")
	if !strings.HasPrefix(reply, "I'll remind you to water the plants at 09:00 AM on ") {
		t.Fatalf("reply = %q", reply)
	}
	stopApp(t, a)

	b := startApp(t, cfgPath, &syncBuffer{})
	defer stopApp(t, b)
	if n := b.Store().Len(); n != 1 {
		t.Fatalf("reloaded %d tasks, want 1", n)
	}
	if got := b.Handle(context.Background(), "list reminders"); !strings.Contains(got, "water the plants") {
		t.Fatalf("list = %q", got)
	}
}

func TestHandleRoutesNonTaskUtterances(t *testing.T) {
	a := startApp(t, writeConfig(t, t.TempDir()), &syncBuffer{})
	defer stopApp(t, a)

	if got := a.Handle(context.Background(), "what's the weather"); got != replyUnsupported {
		t.Fatalf("got %q", got)
	}
	if got := a.Handle(context.Background(), "   "); got != "" {
		t.Fatalf("blank got %q", got)
	}
	if got := a.Handle(context.Background(), "Status?"); !strings.Contains(got, "checks every 1s") {
		t.Fatalf("status = %q", got)
	}
}

func TestApplyConfigTogglesComponents(t *testing.T) {
	a := startApp(t, writeConfig(t, t.TempDir()), &syncBuffer{})
	defer stopApp(t, a)

	next := *a.Config()
	nc := *next.Notifier
	nc.Enabled = false
	next.Notifier = &nc
	next.Scheduler.Enabled = false
	next.Assistant.ListLimit = 1

	a.applyConfig(context.Background(), a.Config(), &next)

	if a.notif.Enabled() {
		t.Fatal("notifier should be disabled")
	}
	if a.store.DefaultCallback() != nil {
		t.Fatal("fired tasks should fall back to the log while the notifier is off")
	}
	if a.sched.Running() {
		t.Fatal("scheduler should be stopped")
	}
	if got := a.Handle(context.Background(), "status"); !strings.Contains(got, "stopped") {
		t.Fatalf("status = %q", got)
	}
}

func TestMappingRejectsBadValues(t *testing.T) {
	cfg := config.Default()
	cfg.Storage = config.StorageConfig{Driver: "sqlite"}
	if err := validate(cfg); err == nil {
		t.Fatal("sqlite without a path should be rejected")
	}

	cfg = config.Default()
	cfg.Notifier.RetryBase = "fast"
	if err := validate(cfg); err == nil || !strings.Contains(err.Error(), "notifier.retry_base") {
		t.Fatalf("err = %v", err)
	}

	cfg = config.Default()
	sc, err := mapSchedulerConfig(cfg)
	if err != nil || sc.PollInterval != 10*time.Second || sc.StopTimeout != time.Second {
		t.Fatalf("scheduler = %+v, %v", sc, err)
	}
}
