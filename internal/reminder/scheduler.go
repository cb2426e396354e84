// Package reminder runs the periodic pass that sends fixture reminders.
//
// Every pass lists all subscriptions, groups them by (fixture, kickoff
// snapshot) and evaluates three stages per group in order: the one-hour
// reminder, the lineup message (only in the pass where the one-hour stage
// fires) and the fifteen-minute reminder. A stage's flag is set for each
// recipient it was attempted for, whether or not delivery succeeded, so no
// stage is ever sent twice. Stages whose window passed while the process was
// down are skipped for good.
package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"matchbot/internal/eventbus"
	"matchbot/internal/fixtures"
	"matchbot/internal/storage"
	kit "matchbot/internal/transport"
	logx "matchbot/pkg/logx"
)

type Scheduler struct {
	store Store
	src   MatchSource
	sink  Sink
	log   logx.Logger
	bus   eventbus.Bus
	obs   Observer
	now   func() time.Time
	onErr func(ctx context.Context, r PassResult, err error)

	mu      sync.Mutex
	cfg     Config
	c       *cron.Cron
	last    *PassResult
	ctx     context.Context
	stopped bool
}

type Option func(*Scheduler)

func WithBus(b eventbus.Bus) Option  { return func(s *Scheduler) { s.bus = b } }
func WithObserver(o Observer) Option { return func(s *Scheduler) { s.obs = o } }

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithFailureHook is called after a pass aborts on a store error.
func WithFailureHook(fn func(ctx context.Context, r PassResult, err error)) Option {
	return func(s *Scheduler) { s.onErr = fn }
}

func New(cfg Config, store Store, src MatchSource, sink Sink, log logx.Logger, opts ...Option) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Scheduler{
		cfg:   cfg.withDefaults(),
		store: store,
		src:   src,
		sink:  sink,
		log:   log.With(logx.String("comp", "reminder")),
		now:   time.Now,
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	return s
}

// Start schedules the pass every Interval. Overlapping runs are skipped and
// missed ticks are not caught up.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.ctx = ctx
	s.stopped = false
	return s.startLocked()
}

func (s *Scheduler) startLocked() error {
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	spec := "@every " + s.cfg.Interval.String()
	if _, err := c.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("schedule reminder pass %q: %w", spec, err)
	}
	c.Start()
	s.c = c
	s.log.Info("reminder scheduler started", logx.Duration("interval", s.cfg.Interval))
	return nil
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	_, _ = s.RunPass(ctx, s.now())
}

// Stop stops scheduling and waits for a running pass until ctx is done. A
// reschedule already in progress in Apply will not restart the job.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.stopped = true
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("reminder pass still running at shutdown")
	}
}

// Apply swaps windows and interval. A changed interval reschedules the job
// after any running pass finishes.
func (s *Scheduler) Apply(cfg Config) error {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	c := s.c
	if c == nil || old.Interval == cfg.Interval {
		s.mu.Unlock()
		return nil
	}
	s.c = nil
	s.mu.Unlock()

	<-c.Stop().Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || s.stopped {
		return nil
	}
	return s.startLocked()
}

func (s *Scheduler) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// LastPass returns the most recent pass summary.
func (s *Scheduler) LastPass() (PassResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return PassResult{}, false
	}
	return *s.last, true
}

type groupKey struct {
	fixtureID int64
	kickoff   int64
}

type group struct {
	key     groupKey
	kickoff time.Time
	home    string
	away    string
	league  string
	members []storage.Subscription
}

func groupSubscriptions(subs []storage.Subscription) []*group {
	idx := make(map[groupKey]*group)
	var out []*group
	for _, sub := range subs {
		k := groupKey{fixtureID: sub.FixtureID, kickoff: sub.Kickoff.Unix()}
		g, ok := idx[k]
		if !ok {
			g = &group{key: k, kickoff: sub.Kickoff, home: sub.Home, away: sub.Away, league: sub.League}
			idx[k] = g
			out = append(out, g)
		}
		g.members = append(g.members, sub)
	}
	return out
}

// RunPass evaluates every subscription once against now. The pass is not
// cancelled with ctx; once started it runs to completion. Delivery failures
// are counted and logged; a store error aborts the pass and is returned.
func (s *Scheduler) RunPass(ctx context.Context, now time.Time) (PassResult, error) {
	ctx = context.WithoutCancel(ctx)
	cfg := s.config()
	started := time.Now()

	id := uuid.NewString()
	p := &pass{
		s:   s,
		cfg: cfg,
		now: now,
		log: s.log.With(logx.String("pass_id", id)),
		res: PassResult{PassID: id, At: now, Sent: map[string]int{}},
	}

	err := p.run(ctx)
	p.res.Duration = time.Since(started)
	if err != nil {
		p.res.Error = err.Error()
	}

	s.mu.Lock()
	last := p.res
	s.last = &last
	s.mu.Unlock()

	if s.obs != nil {
		s.obs.ObservePass(p.res)
	}
	if err != nil {
		p.log.Error("reminder pass aborted", logx.Err(err))
		eventbus.Publish(s.bus, eventbus.TypeReminderFailed, p.res)
		if s.onErr != nil {
			s.onErr(ctx, p.res, err)
		}
		return p.res, err
	}
	eventbus.Publish(s.bus, eventbus.TypeReminderPass, p.res)
	if total := sum(p.res.Sent); total > 0 || p.res.Failures > 0 {
		p.log.Info("reminder pass done",
			logx.Int("subscriptions", p.res.Subscriptions),
			logx.Int("groups", p.res.Groups),
			logx.Int("sent", total),
			logx.Int("failures", p.res.Failures),
			logx.Duration("took", p.res.Duration),
		)
	}
	return p.res, nil
}

func sum(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}

type pass struct {
	s   *Scheduler
	cfg Config
	now time.Time
	log logx.Logger
	res PassResult
}

var sendOpts = &kit.SendOptions{ParseMode: kit.ParseHTML, DisablePreview: true}

func (p *pass) run(ctx context.Context) error {
	subs, err := p.s.store.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	p.res.Subscriptions = len(subs)

	groups := groupSubscriptions(subs)
	p.res.Groups = len(groups)
	for _, g := range groups {
		if err := p.evaluate(ctx, g); err != nil {
			return err
		}
	}
	return nil
}

func (p *pass) evaluate(ctx context.Context, g *group) error {
	until := g.kickoff.Sub(p.now)
	links := fixtures.GenerateLinks(g.key.fixtureID, g.home, g.away, g.league)

	oneHourFired := false
	if pending := missing(g.members, func(f storage.Flags) bool { return f.OneHour }); len(pending) > 0 && p.cfg.OneHour.Contains(until) {
		text := fixtures.OneHourMessage(g.home, g.away, g.kickoff).String()
		for _, sub := range pending {
			p.deliver(ctx, StageOneHour, sub, text)
			if err := p.mark(ctx, sub, storage.Flags{OneHour: true}); err != nil {
				return err
			}
		}
		oneHourFired = true
	}

	if oneHourFired {
		if err := p.lineups(ctx, g, links); err != nil {
			return err
		}
	}

	if pending := missing(g.members, func(f storage.Flags) bool { return f.FifteenMin }); len(pending) > 0 && p.cfg.FifteenMin.Contains(until) {
		text := fixtures.FifteenMinMessage(g.home, g.away, g.kickoff, links).String()
		for _, sub := range pending {
			p.deliver(ctx, StageFifteenMin, sub, text)
			if err := p.mark(ctx, sub, storage.Flags{FifteenMin: true}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *pass) lineups(ctx context.Context, g *group, links []fixtures.Link) error {
	pending := missing(g.members, func(f storage.Flags) bool { return f.Lineup })
	if len(pending) == 0 {
		return nil
	}

	m, err := p.s.src.Match(ctx, g.key.fixtureID)
	if err != nil {
		p.log.Warn("lineups unavailable, sending links", logx.Int64("fixture_id", g.key.fixtureID), logx.Err(err))
	}
	if err == nil && m.HasLineups() {
		lineup := fixtures.LineupsMessage(m).String()
		linkText := fixtures.LinksMessage(links).String()
		for _, sub := range pending {
			if p.deliver(ctx, StageLineup, sub, lineup) {
				p.deliver(ctx, StageLineup, sub, linkText)
			}
			if err := p.mark(ctx, sub, storage.Flags{Lineup: true}); err != nil {
				return err
			}
		}
		return nil
	}

	text := fixtures.LineupFallbackMessage(g.home, g.away, links).String()
	for _, sub := range pending {
		p.deliver(ctx, StageFallback, sub, text)
		if err := p.mark(ctx, sub, storage.Flags{Lineup: true}); err != nil {
			return err
		}
	}
	return nil
}

// deliver sends one message; failures are logged and counted, never returned.
func (p *pass) deliver(ctx context.Context, stage string, sub storage.Subscription, text string) bool {
	err := p.s.sink.Send(ctx, sub.UserID, text, sendOpts)
	if p.s.obs != nil {
		p.s.obs.ObserveStage(stage, err == nil)
	}
	if err != nil {
		p.res.Failures++
		p.log.Warn("reminder delivery failed",
			logx.String("stage", stage),
			logx.Int64("user_id", sub.UserID),
			logx.Int64("fixture_id", sub.FixtureID),
			logx.Err(err),
		)
		return false
	}
	p.res.Sent[stage]++
	return true
}

func (p *pass) mark(ctx context.Context, sub storage.Subscription, f storage.Flags) error {
	if err := p.s.store.MarkFlags(ctx, sub.UserID, sub.FixtureID, f); err != nil {
		return fmt.Errorf("mark flags %d/%d: %w", sub.UserID, sub.FixtureID, err)
	}
	return nil
}

func missing(subs []storage.Subscription, done func(storage.Flags) bool) []storage.Subscription {
	var out []storage.Subscription
	for _, s := range subs {
		if !done(s.Flags) {
			out = append(out, s)
		}
	}
	return out
}

// cronLogger routes cron's internal logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
