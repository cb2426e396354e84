package eventbus

import (
	"context"
	"sync"
)

// Latest remembers the most recent event of each type. Health endpoints and
// status commands read from it instead of reaching into components.
type Latest struct {
	mu   sync.RWMutex
	last map[string]Event
}

func NewLatest() *Latest {
	return &Latest{last: map[string]Event{}}
}

// Run records bus events of the given types (all when empty) until ctx is
// done.
func (l *Latest) Run(ctx context.Context, b Bus, types ...string) {
	ch, unsub := b.Subscribe(64, types...)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			l.Record(e)
		}
	}
}

func (l *Latest) Record(e Event) {
	l.mu.Lock()
	l.last[e.Type] = e
	l.mu.Unlock()
}

func (l *Latest) Get(typ string) (Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.last[typ]
	return e, ok
}
