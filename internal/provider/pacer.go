package provider

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Pacer is the process-wide admission control for provider calls: a single
// slot (at most one call in flight) plus a minimum spacing between call starts.
//
// Waiters are admitted in arrival order. The slot is held across retries of
// the same call, so queued callers only proceed once a call has a terminal
// outcome.
type Pacer struct {
	interval time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	qmu   sync.Mutex
	busy  bool
	queue []chan struct{}

	mu   sync.Mutex
	last time.Time
}

func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{
		interval: interval,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Acquire blocks until the admission slot is handed to the caller. The
// returned release func is idempotent.
func (p *Pacer) Acquire(ctx context.Context) (release func(), err error) {
	p.qmu.Lock()
	if !p.busy && len(p.queue) == 0 {
		p.busy = true
		p.qmu.Unlock()
		return p.releaser(), nil
	}
	turn := make(chan struct{})
	p.queue = append(p.queue, turn)
	p.qmu.Unlock()

	select {
	case <-turn:
		return p.releaser(), nil
	case <-ctx.Done():
		p.qmu.Lock()
		if i := slices.Index(p.queue, turn); i >= 0 {
			p.queue = slices.Delete(p.queue, i, i+1)
			p.qmu.Unlock()
			return nil, ctx.Err()
		}
		p.qmu.Unlock()
		// The slot was handed over as ctx ended; pass it on.
		p.handOff()
		return nil, ctx.Err()
	}
}

func (p *Pacer) releaser() func() {
	var once sync.Once
	return func() { once.Do(p.handOff) }
}

// handOff gives the slot to the oldest waiter, or frees it.
func (p *Pacer) handOff() {
	p.qmu.Lock()
	defer p.qmu.Unlock()
	if len(p.queue) == 0 {
		p.busy = false
		return
	}
	next := p.queue[0]
	p.queue = p.queue[1:]
	close(next)
}

// Pace waits out whatever remains of the minimum interval since the previous
// call start, then records the current time as the new call start.
// Callers must hold the admission slot.
func (p *Pacer) Pace(ctx context.Context) (time.Time, error) {
	p.mu.Lock()
	last := p.last
	p.mu.Unlock()

	if !last.IsZero() {
		if wait := p.interval - p.now().Sub(last); wait > 0 {
			if err := p.sleep(ctx, wait); err != nil {
				return time.Time{}, err
			}
		}
	}

	start := p.now()
	p.mu.Lock()
	p.last = start
	p.mu.Unlock()
	return start, nil
}

// LastCallAt is the start time of the most recent call attempt.
func (p *Pacer) LastCallAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Waiting is the number of callers queued for the slot.
func (p *Pacer) Waiting() int {
	p.qmu.Lock()
	defer p.qmu.Unlock()
	return len(p.queue)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
