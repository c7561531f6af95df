// Package debugsrv runs an optional local HTTP server with pprof profiles
// and JSON views of the assistant's task state.
package debugsrv

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	rtsup "voxassist/internal/runtime/supervisor"
	logx "voxassist/pkg/logx"
)

const DefaultAddr = "127.0.0.1:6060"

// Config controls the debug server. A non-loopback Addr requires Token.
type Config struct {
	Enabled bool
	Addr    string
	Token   string
}

// Route is an extra JSON endpoint. Fn is called per request.
type Route struct {
	Path string
	Fn   func() any
}

type Service struct {
	mu     sync.Mutex
	log    logx.Logger
	cfg    Config
	routes []Route

	srv  *http.Server
	addr string
	sup  *rtsup.Supervisor
}

func New(cfg Config, log logx.Logger, routes ...Route) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log, routes: routes}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Addr is the bound address while serving, or "".
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Reconfigure applies cfg, starting, stopping or restarting the server as needed.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	running := s.sup != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		if running {
			s.Stop(ctx)
		}
	case !running:
		s.Start(ctx)
	case prev.Addr != cfg.Addr || prev.Token != cfg.Token:
		s.Stop(ctx)
		s.Start(ctx)
	}
}

// Start is idempotent. The server is restarted with backoff if it fails.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.sup != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	// The debug server is optional; its failures never cancel the app.
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	sup := s.sup
	s.mu.Unlock()

	sup.GoRestart("http.serve", s.serveOnce,
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup, srv := s.sup, s.srv
	s.sup, s.srv, s.addr = nil, nil, ""
	s.mu.Unlock()
	if sup == nil {
		return
	}
	sup.Cancel()
	if srv != nil {
		_ = srv.Shutdown(ctx)
	}
	_ = sup.Wait(ctx)
	s.log.Info("debug server stopped")
}

func (s *Service) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	if cfg.Token == "" && !isLoopbackAddr(addr) {
		s.log.Error("debug server refused to start: non-loopback addr requires a token", logx.String("addr", addr))
		return errors.New("debug server refused to start: insecure bind")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	s.mu.Lock()
	s.srv = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("debug server started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", cfg.Token != ""))
	err = srv.Serve(ln)

	s.mu.Lock()
	if s.srv == srv {
		s.srv, s.addr = nil, ""
	}
	s.mu.Unlock()

	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("debug server exited unexpectedly")
	}
	return err
}

// Handler builds the mux for the current config.
func (s *Service) Handler() http.Handler {
	s.mu.Lock()
	token := strings.TrimSpace(s.cfg.Token)
	routes := s.routes
	s.mu.Unlock()

	wrap := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(token, h) }

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", wrap(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	mux.HandleFunc("/debug/pprof/", wrap(hpprof.Index))
	mux.HandleFunc("/debug/pprof/cmdline", wrap(hpprof.Cmdline))
	mux.HandleFunc("/debug/pprof/profile", wrap(hpprof.Profile))
	mux.HandleFunc("/debug/pprof/symbol", wrap(hpprof.Symbol))
	mux.HandleFunc("/debug/pprof/trace", wrap(hpprof.Trace))
	for _, rt := range routes {
		fn := rt.Fn
		mux.HandleFunc(rt.Path, wrap(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if err := enc.Encode(fn()); err != nil {
				s.log.Debug("debug route encode failed", logx.Err(err))
			}
		}))
	}
	return mux
}

// withAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if got == "" {
			got = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		}
		if got != token {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil || strings.TrimSpace(h) == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
