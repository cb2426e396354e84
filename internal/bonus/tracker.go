// Package bonus credits the welcome bonus a while after a user's first /start.
package bonus

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"matchbot/internal/eventbus"
	kit "matchbot/internal/transport"
	logx "matchbot/pkg/logx"
	"matchbot/pkg/tgui"
)

const (
	DefaultAmount   int64 = 30000
	DefaultMinDelay       = 60 * time.Second
	DefaultMaxDelay       = 120 * time.Second

	grantTimeout = 15 * time.Second
)

type Store interface {
	GrantBonus(ctx context.Context, userID, amount int64) (bool, error)
}

type Sink interface {
	Send(ctx context.Context, userID int64, text string, opt *kit.SendOptions) error
}

type Config struct {
	Amount   int64
	MinDelay time.Duration
	MaxDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Amount <= 0 {
		c.Amount = DefaultAmount
	}
	if c.MinDelay <= 0 {
		c.MinDelay = DefaultMinDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = c.MinDelay
	}
	return c
}

// Granted is published on the event bus after a successful credit.
type Granted struct {
	UserID int64 `json:"user_id"`
	Amount int64 `json:"amount"`
}

// Tracker owns one pending timer per user.
type Tracker struct {
	cfg   Config
	store Store
	sink  Sink
	bus   eventbus.Bus
	log   logx.Logger

	mu      sync.Mutex
	pending map[int64]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

func New(cfg Config, store Store, sink Sink, bus eventbus.Bus, log logx.Logger) *Tracker {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Tracker{
		cfg:     cfg.withDefaults(),
		store:   store,
		sink:    sink,
		bus:     bus,
		log:     log.With(logx.String("comp", "bonus")),
		pending: make(map[int64]*time.Timer),
	}
}

func (t *Tracker) delay() time.Duration {
	span := t.cfg.MaxDelay - t.cfg.MinDelay
	if span <= 0 {
		return t.cfg.MinDelay
	}
	return t.cfg.MinDelay + rand.N(span+1)
}

// Schedule arms the bonus for userID. It reports false when one is already
// pending or the tracker is stopped.
func (t *Tracker) Schedule(userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	if _, ok := t.pending[userID]; ok {
		return false
	}
	d := t.delay()
	t.wg.Add(1)
	t.pending[userID] = time.AfterFunc(d, func() {
		defer t.wg.Done()
		t.fire(userID)
	})
	t.log.Debug("bonus scheduled", logx.Int64("user_id", userID), logx.Duration("delay", d))
	return true
}

func (t *Tracker) fire(userID int64) {
	t.mu.Lock()
	if _, ok := t.pending[userID]; !ok || t.stopped {
		t.mu.Unlock()
		return
	}
	delete(t.pending, userID)
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), grantTimeout)
	defer cancel()

	granted, err := t.store.GrantBonus(ctx, userID, t.cfg.Amount)
	if err != nil {
		t.log.Error("grant bonus failed", logx.Int64("user_id", userID), logx.Err(err))
		return
	}
	if !granted {
		return
	}
	t.log.Info("bonus granted", logx.Int64("user_id", userID), logx.Int64("amount", t.cfg.Amount))
	eventbus.Publish(t.bus, eventbus.TypeBonusGranted, Granted{UserID: userID, Amount: t.cfg.Amount})

	if t.sink == nil {
		return
	}
	if err := t.sink.Send(ctx, userID, Message(t.cfg.Amount).String(), &kit.SendOptions{ParseMode: kit.ParseHTML}); err != nil {
		t.log.Warn("bonus notice not delivered", logx.Int64("user_id", userID), logx.Err(err))
	}
}

// Message is the notice sent once the bonus is credited.
func Message(amount int64) tgui.H {
	return tgui.New().
		Title("🎁", "Welcome bonus").
		Blank().
		Line(fmt.Sprintf("%d coins were added to your balance.", amount)).
		Text()
}

// Pending returns the number of armed timers.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Cancel disarms the bonus for userID.
func (t *Tracker) Cancel(userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	tm, ok := t.pending[userID]
	if !ok {
		return false
	}
	delete(t.pending, userID)
	if tm.Stop() {
		t.wg.Done()
	}
	return true
}

// Stop cancels every pending bonus and waits for grants already running.
func (t *Tracker) Stop(ctx context.Context) {
	t.mu.Lock()
	t.stopped = true
	n := len(t.pending)
	for id, tm := range t.pending {
		if tm.Stop() {
			t.wg.Done()
		}
		delete(t.pending, id)
	}
	t.mu.Unlock()
	if n > 0 {
		t.log.Info("pending bonuses cancelled", logx.Int("count", n))
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
