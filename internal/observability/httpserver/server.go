// Package httpserver serves the health text, the JSON health report,
// Prometheus metrics and, when enabled, pprof.
package httpserver

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"matchbot/internal/eventbus"
	rtsup "matchbot/internal/runtime/supervisor"
	logx "matchbot/pkg/logx"
)

const (
	DefaultAddr = ":8080"
	healthText  = "✅ Match reminder bot is running"
)

// Config controls the server.
//
// Security:
//   - pprof is only mounted when Pprof is true.
//   - On a non-loopback Addr pprof also needs a Token, or it stays unmounted.
type Config struct {
	Enabled bool
	Addr    string
	Metrics bool
	Pprof   bool
	Token   string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Deps are the read-only views the handlers report on.
type Deps struct {
	Supervisor *rtsup.Supervisor
	Latest     *eventbus.Latest
	Gatherer   prometheus.Gatherer
	Started    time.Time
}

type Service struct {
	mu   sync.Mutex
	log  logx.Logger
	cfg  Config
	deps Deps

	srv      *http.Server
	sup      *rtsup.Supervisor
	stopDone chan struct{}
}

func New(cfg Config, deps Deps, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if deps.Started.IsZero() {
		deps.Started = time.Now()
	}
	return &Service{cfg: cfg, deps: deps, log: log.With(logx.String("comp", "http"))}
}

// Reconfigure applies cfg and starts, stops or restarts the server as needed.
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
	case prev != cfg:
		s.Stop(ctx)
		s.Start(ctx)
	}
}

func (s *Service) Start(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.stopDone != nil {
			done := s.stopDone
			s.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return
			}
			continue
		}
		if s.sup != nil || !s.cfg.Enabled {
			s.mu.Unlock()
			return
		}
		s.sup = rtsup.NewSupervisor(ctx,
			rtsup.WithLogger(s.log),
			rtsup.WithCancelOnError(false),
		)
		sup := s.sup
		s.mu.Unlock()

		sup.GoRestart("http.serve", s.serveOnce,
			rtsup.WithPublishFirstError(true),
			rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		)
		return
	}
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.sup == nil {
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
	srv, sup := s.srv, s.sup
	s.mu.Unlock()

	go func() {
		defer close(done)
		if srv != nil {
			_ = srv.Shutdown(ctx)
			_ = srv.Close()
		}
		sup.Cancel()
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.srv, s.sup, s.stopDone = nil, nil, nil
		s.mu.Unlock()
		s.log.Info("http server stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

func (s *Service) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cur := s.cfg
	s.mu.Unlock()
	if !cur.Enabled {
		return context.Canceled
	}

	addr := strings.TrimSpace(cur.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error("http listen failed", logx.String("addr", addr), logx.Err(err))
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}
	defer func() { _ = ln.Close() }()

	srv := &http.Server{
		Handler:      s.router(cur, addr),
		ReadTimeout:  cur.ReadTimeout,
		WriteTimeout: cur.WriteTimeout,
		IdleTimeout:  cur.IdleTimeout,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("http server started",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("metrics", cur.Metrics),
		logx.Bool("pprof", cur.Pprof),
	)
	err = srv.Serve(ln)

	s.mu.Lock()
	if s.srv == srv {
		s.srv = nil
	}
	stopping := s.stopDone != nil
	s.mu.Unlock()

	if stopping || ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("http server exited unexpectedly")
	}
	return err
}

// Handler returns the router for the current config.
func (s *Service) Handler() http.Handler {
	s.mu.Lock()
	cur := s.cfg
	s.mu.Unlock()
	addr := cur.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	return s.router(cur, addr)
}

func (s *Service) router(cur Config, addr string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(healthText))
	})
	r.Get("/healthz", s.healthz)

	if cur.Metrics && s.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	if cur.Pprof {
		if cur.Token == "" && !isLoopbackAddr(addr) {
			s.log.Warn("pprof not mounted: non-loopback addr requires a token", logx.String("addr", addr))
		} else {
			r.Route("/debug/pprof", func(r chi.Router) {
				r.Use(bearerAuth(cur.Token))
				r.Get("/", hpprof.Index)
				r.Get("/cmdline", hpprof.Cmdline)
				r.Get("/profile", hpprof.Profile)
				r.Get("/symbol", hpprof.Symbol)
				r.Post("/symbol", hpprof.Symbol)
				r.Get("/trace", hpprof.Trace)
				r.Get("/{profile}", hpprof.Index)
			})
		}
	}
	return r
}

// Health is the /healthz body.
type Health struct {
	Status     string                    `json:"status"`
	Uptime     string                    `json:"uptime"`
	Supervisor *rtsup.SupervisorSnapshot `json:"supervisor,omitempty"`
	LastPass   *eventbus.Event           `json:"last_pass,omitempty"`
	LastFailed *eventbus.Event           `json:"last_failed_pass,omitempty"`
}

// SetSupervisor sets the supervisor whose first error marks the process
// degraded.
func (s *Service) SetSupervisor(sup *rtsup.Supervisor) {
	s.mu.Lock()
	s.deps.Supervisor = sup
	s.mu.Unlock()
}

func (s *Service) health() Health {
	s.mu.Lock()
	deps := s.deps
	s.mu.Unlock()

	h := Health{Status: "ok", Uptime: time.Since(deps.Started).Truncate(time.Second).String()}
	if sup := deps.Supervisor; sup != nil {
		snap := sup.Snapshot()
		h.Supervisor = &snap
		if snap.FirstError != "" {
			h.Status = "degraded"
		}
	}
	if l := deps.Latest; l != nil {
		if e, ok := l.Get(eventbus.TypeReminderPass); ok {
			h.LastPass = &e
		}
		if e, ok := l.Get(eventbus.TypeReminderFailed); ok {
			h.LastFailed = &e
			if h.LastPass == nil || e.Time.After(h.LastPass.Time) {
				h.Status = "degraded"
			}
		}
	}
	return h
}

func (s *Service) healthz(w http.ResponseWriter, _ *http.Request) {
	h := s.health()
	code := http.StatusOK
	if h.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(h)
}

// bearerAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
func bearerAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.URL.Query().Get("token")
			if got == "" {
				if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
					got = strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
				}
			}
			if got != tok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
