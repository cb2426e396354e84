package provider

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	logx "matchbot/pkg/logx"
)

const (
	DefaultBaseURL     = "https://api.football-data.org/v4"
	DefaultMinInterval = 6 * time.Second
	DefaultMaxAttempts = 3
	DefaultBackoffUnit = time.Second
	DefaultJitterMin   = time.Second
	DefaultJitterMax   = 3 * time.Second

	authHeader = "X-Auth-Token"
)

type Config struct {
	Token          string
	BaseURL        string
	MinInterval    time.Duration
	MaxAttempts    int
	BackoffUnit    time.Duration
	JitterMin      time.Duration
	JitterMax      time.Duration
	RequestTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.MinInterval < 0 {
		c.MinInterval = 0
	} else if c.MinInterval == 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffUnit <= 0 {
		c.BackoffUnit = DefaultBackoffUnit
	}
	if c.JitterMin <= 0 && c.JitterMax <= 0 {
		c.JitterMin, c.JitterMax = DefaultJitterMin, DefaultJitterMax
	}
	if c.JitterMax < c.JitterMin {
		c.JitterMax = c.JitterMin
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	return c
}

// Response is the subset of an HTTP response the gateway looks at.
type Response struct {
	Status int
	Body   []byte
}

// Transport performs a single GET. A returned error means no HTTP status was
// obtained (dial, TLS, timeout...).
type Transport interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
}

// Observer receives per-attempt telemetry. Implementations must be cheap.
type Observer interface {
	ObserveAttempt(resource string, status int, d time.Duration)
	ObserveRetry(resource, reason string)
}

type nopObserver struct{}

func (nopObserver) ObserveAttempt(string, int, time.Duration) {}
func (nopObserver) ObserveRetry(string, string)               {}

// Gateway is the only path to the provider. All calls share one Pacer so the
// upstream quota (10 req/min on the free tier) holds process-wide.
type Gateway struct {
	cfg    Config
	log    logx.Logger
	pacer  *Pacer
	tr     Transport
	obs    Observer
	jitter func(lo, hi time.Duration) time.Duration
}

type Option func(*Gateway)

func WithTransport(tr Transport) Option { return func(g *Gateway) { g.tr = tr } }

func WithObserver(o Observer) Option { return func(g *Gateway) { g.obs = o } }

// WithClock replaces the time source and sleep used for pacing and backoff.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gateway) {
		if now != nil {
			g.pacer.now = now
		}
		if sleep != nil {
			g.pacer.sleep = sleep
		}
	}
}

// WithJitter replaces the uniform jitter source used after a 429.
func WithJitter(fn func(lo, hi time.Duration) time.Duration) Option {
	return func(g *Gateway) { g.jitter = fn }
}

func New(cfg Config, log logx.Logger, opts ...Option) *Gateway {
	cfg = cfg.withDefaults()
	g := &Gateway{
		cfg:    cfg,
		log:    log.With(logx.String("comp", "provider")),
		pacer:  NewPacer(cfg.MinInterval),
		obs:    nopObserver{},
		jitter: uniformJitter,
	}
	for _, o := range opts {
		if o != nil {
			o(g)
		}
	}
	if g.tr == nil {
		g.tr = NewFastHTTPTransport(cfg.RequestTimeout)
	}
	return g
}

// Pacer exposes the shared admission control (health reporting, tests).
func (g *Gateway) Pacer() *Pacer { return g.pacer }

// Fetch GETs resource (path relative to the base URL) and returns the raw body
// of a 200 response.
func (g *Gateway) Fetch(ctx context.Context, resource string, params url.Values) ([]byte, error) {
	resource = strings.TrimLeft(resource, "/")
	target := g.cfg.BaseURL + "/" + resource
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	headers := map[string]string{authHeader: g.cfg.Token}

	release, err := g.pacer.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var last error
	for attempt := 0; attempt < g.cfg.MaxAttempts; attempt++ {
		start, err := g.pacer.Pace(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := g.tr.Get(ctx, target, headers)
		g.obs.ObserveAttempt(resource, resp.Status, g.pacer.now().Sub(start))

		var backoff time.Duration
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			last = err
			backoff = g.backoff(attempt)
			g.log.Warn("provider request failed",
				logx.String("resource", resource),
				logx.Int("attempt", attempt+1),
				logx.Err(err),
			)
			g.obs.ObserveRetry(resource, "network")
		case resp.Status == 200:
			return resp.Body, nil
		case resp.Status == 429:
			last = errRateLimited
			backoff = g.backoff(attempt) + g.jitter(g.cfg.JitterMin, g.cfg.JitterMax)
			g.log.Warn("provider rate limited",
				logx.String("resource", resource),
				logx.Int("attempt", attempt+1),
				logx.Duration("backoff", backoff),
			)
			g.obs.ObserveRetry(resource, "rate_limited")
		default:
			return nil, &StatusError{Resource: resource, Code: resp.Status, Body: truncateBody(resp.Body)}
		}

		if attempt+1 >= g.cfg.MaxAttempts {
			break
		}
		if err := g.pacer.sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}

	g.log.Error("provider unavailable",
		logx.String("resource", resource),
		logx.Int("attempts", g.cfg.MaxAttempts),
		logx.Err(last),
	)
	return nil, &UnavailableError{Resource: resource, Attempts: g.cfg.MaxAttempts, Last: last}
}

func (g *Gateway) backoff(attempt int) time.Duration {
	return (time.Duration(1) << attempt) * g.cfg.BackoffUnit
}

func uniformJitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

func truncateBody(b []byte) string {
	const maxBody = 256
	s := strings.TrimSpace(string(b))
	if len(s) > maxBody {
		return s[:maxBody] + "…"
	}
	return s
}

// IsUnavailable is a convenience for errors.Is(err, ErrUnavailable).
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }
