// Package eventbus is an in-process fan-out of small events between the
// reminder scheduler, notifier, config reloader and the health views.
package eventbus

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const (
	TypeReminderPass   = "reminder.pass"
	TypeReminderFailed = "reminder.failed"
	TypeBonusGranted   = "bonus.granted"
	TypeNotifySent     = "notifier.sent"
	TypeNotifyFailed   = "notifier.failed"
	TypeNotifyDropped  = "notifier.dropped"
	TypeConfigReloaded = "config.reloaded"
)

const defaultBuffer = 8

type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// Bus never blocks a publisher. A subscriber whose buffer is full misses the
// event, and the miss is counted in Dropped.
type Bus interface {
	Publish(e Event)
	// Subscribe returns events of the given types, or of every type when none
	// are given. unsubscribe closes the channel and is idempotent.
	Subscribe(buffer int, types ...string) (ch <-chan Event, unsubscribe func())
	Dropped() uint64
}

func New() Bus {
	return &fanout{subs: map[uint64]*subscription{}}
}

type subscription struct {
	ch    chan Event
	types []string
}

func (s *subscription) wants(typ string) bool {
	return len(s.types) == 0 || slices.Contains(s.types, typ)
}

type fanout struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscription
	nextID  atomic.Uint64
	dropped atomic.Uint64
}

func (b *fanout) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Held for the whole send so unsubscribe cannot close a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !s.wants(e.Type) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *fanout) Subscribe(buffer int, types ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	s := &subscription{ch: make(chan Event, buffer), types: slices.Clone(types)}
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(s.ch)
		})
	}
}

func (b *fanout) Dropped() uint64 { return b.dropped.Load() }

// Publish sends an event stamped now. A nil bus is ignored.
func Publish(b Bus, typ string, data any) {
	if b != nil {
		b.Publish(Event{Type: typ, Time: time.Now(), Data: data})
	}
}
