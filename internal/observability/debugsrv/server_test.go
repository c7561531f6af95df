package debugsrv

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logx "voxassist/pkg/logx"
)

func waitForHTTP(ctx context.Context, url string) (string, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return "", err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			b, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			return string(b), nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func TestHandlerRoutesAndAuth(t *testing.T) {
	s := New(Config{Enabled: true, Token: "s3cret"}, logx.Nop(), Route{
		Path: "/debug/tasks",
		Fn:   func() any { return []string{"water the plants"} },
	})
	h := s.Handler()

	tests := []struct {
		name   string
		target string
		header string
		code   int
		body   string
	}{
		{"no token", "/healthz", "", http.StatusUnauthorized, "unauthorized"},
		{"query token", "/healthz?token=s3cret", "", http.StatusOK, "ok"},
		{"bearer", "/debug/tasks", "Bearer s3cret", http.StatusOK, `"water the plants"`},
		{"wrong bearer", "/debug/tasks", "Bearer nope", http.StatusUnauthorized, ""},
		{"pprof index", "/debug/pprof/?token=s3cret", "", http.StatusOK, "goroutine"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d", rec.Code, tt.code)
			}
			if !strings.Contains(rec.Body.String(), tt.body) {
				t.Fatalf("body %q missing %q", rec.Body.String(), tt.body)
			}
		})
	}
}

func TestReconfigureStartsAndStops(t *testing.T) {
	s := New(Config{}, logx.Nop(), Route{Path: "/debug/scheduler", Fn: func() any { return map[string]int{"pending": 2} }})
	t.Cleanup(func() { s.Stop(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"})
	var addr string
	for addr == "" && ctx.Err() == nil {
		time.Sleep(10 * time.Millisecond)
		addr = s.Addr()
	}
	if addr == "" {
		t.Fatal("server never bound")
	}
	body, err := waitForHTTP(ctx, "http://"+addr+"/debug/scheduler")
	if err != nil {
		t.Fatalf("debug endpoint not reachable: %v", err)
	}
	if !strings.Contains(body, `"pending": 2`) {
		t.Fatalf("body = %q", body)
	}

	s.Reconfigure(ctx, Config{Enabled: false})
	if s.Addr() != "" {
		t.Fatal("expected server to stop")
	}
}

func TestLoopbackCheck(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:1":    true,
		"[::1]:6060":     true,
		":6060":          false,
		"0.0.0.0:6060":   false,
		"garbage":        false,
	} {
		if got := isLoopbackAddr(addr); got != want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
