package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"matchbot/internal/eventbus"
	logx "matchbot/pkg/logx"
)

func get(t *testing.T, h http.Handler, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRootAndMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "matchbot_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s := New(Config{Enabled: true, Metrics: true}, Deps{Gatherer: reg}, logx.Nop())
	h := s.Handler()

	if rec := get(t, h, "/", nil); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "running") {
		t.Fatalf("GET / = %d %q", rec.Code, rec.Body.String())
	}
	rec := get(t, h, "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "matchbot_test_total 1") {
		t.Fatalf("GET /metrics = %d, body missing counter", rec.Code)
	}
}

func TestMetricsDisabled(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true}, Deps{Gatherer: prometheus.NewRegistry()}, logx.Nop())
	if rec := get(t, s.Handler(), "/metrics", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("GET /metrics = %d, want 404", rec.Code)
	}
}

func TestHealthzReflectsLastPass(t *testing.T) {
	t.Parallel()

	latest := eventbus.NewLatest()
	s := New(Config{Enabled: true}, Deps{Latest: latest}, logx.Nop())
	h := s.Handler()

	now := time.Now()
	latest.Record(eventbus.Event{Type: eventbus.TypeReminderPass, Time: now})
	rec := get(t, h, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d, want 200", rec.Code)
	}
	var body Health
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.LastPass == nil {
		t.Fatalf("health = %+v, want ok with last pass", body)
	}

	latest.Record(eventbus.Event{Type: eventbus.TypeReminderFailed, Time: now.Add(time.Minute)})
	if rec := get(t, h, "/healthz", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("GET /healthz after failed pass = %d, want 503", rec.Code)
	}
}

func TestPprofAuth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		cfg    Config
		target string
		header http.Header
		want   int
	}{
		{"disabled", Config{Addr: "127.0.0.1:0"}, "/debug/pprof/", nil, http.StatusNotFound},
		{"loopback no token", Config{Addr: "127.0.0.1:0", Pprof: true}, "/debug/pprof/cmdline", nil, http.StatusOK},
		{"public no token", Config{Addr: ":8080", Pprof: true}, "/debug/pprof/cmdline", nil, http.StatusNotFound},
		{"missing token", Config{Addr: ":8080", Pprof: true, Token: "s3cret"}, "/debug/pprof/cmdline", nil, http.StatusUnauthorized},
		{"bearer", Config{Addr: ":8080", Pprof: true, Token: "s3cret"}, "/debug/pprof/cmdline",
			http.Header{"Authorization": {"Bearer s3cret"}}, http.StatusOK},
		{"query", Config{Addr: ":8080", Pprof: true, Token: "s3cret"}, "/debug/pprof/cmdline?token=s3cret", nil, http.StatusOK},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.cfg.Enabled = true
			s := New(tt.cfg, Deps{}, logx.Nop())
			if rec := get(t, s.Handler(), tt.target, tt.header); rec.Code != tt.want {
				t.Fatalf("GET %s = %d, want %d", tt.target, rec.Code, tt.want)
			}
		})
	}
}

func TestStartServesAndStops(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, Deps{}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer stopCancel()
	s.Stop(stopCtx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || s.srv != nil {
		t.Fatal("server handles not cleared after Stop")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"127.0.0.1:8080": true,
		"localhost:6060": true,
		"[::1]:9000":     true,
		":8080":          false,
		"0.0.0.0:8080":   false,
		"10.0.0.5:8080":  false,
		"garbage":        false,
	}
	for addr, want := range tests {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
