package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestGetOrPopulateTTL(t *testing.T) {
	t.Parallel()

	clk := &clock{t: time.Date(2024, 8, 16, 18, 0, 0, 0, time.UTC)}
	c := New[string](NewMemoryStore[string](), 600*time.Second, WithClock[string](clk.now))

	var loads atomic.Int32
	load := func(context.Context) (string, error) {
		loads.Add(1)
		return "payload", nil
	}
	ctx := context.Background()

	steps := []struct {
		advance   time.Duration
		wantLoads int32
	}{
		{0, 1},
		{100 * time.Second, 1},
		{499 * time.Second, 1},
		{1 * time.Second, 2}, // exactly TTL since fetch
		{10 * time.Second, 2},
	}
	for i, s := range steps {
		clk.advance(s.advance)
		v, err := c.GetOrPopulate(ctx, "42", load)
		if err != nil || v != "payload" {
			t.Fatalf("step %d: GetOrPopulate() = %q, %v", i, v, err)
		}
		if got := loads.Load(); got != s.wantLoads {
			t.Fatalf("step %d: loads = %d, want %d", i, got, s.wantLoads)
		}
	}
}

func TestGetOrPopulateDoesNotCacheFailures(t *testing.T) {
	t.Parallel()

	c := New[int](NewMemoryStore[int](), time.Minute)
	boom := errors.New("upstream down")
	var loads atomic.Int32

	for i := 0; i < 2; i++ {
		_, err := c.GetOrPopulate(context.Background(), "k", func(context.Context) (int, error) {
			loads.Add(1)
			return 0, boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("GetOrPopulate() error = %v, want %v", err, boom)
		}
	}
	if got := loads.Load(); got != 2 {
		t.Fatalf("loads = %d, want 2", got)
	}
	if _, ok, _ := c.Peek(context.Background(), "k"); ok {
		t.Fatal("failure was cached")
	}
}

func TestGetOrPopulateCoalescesMisses(t *testing.T) {
	t.Parallel()

	c := New[int](NewMemoryStore[int](), time.Minute)
	var loads atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrPopulate(context.Background(), "k", func(context.Context) (int, error) {
				loads.Add(1)
				<-release
				return 7, nil
			})
			if err != nil || v != 7 {
				t.Errorf("GetOrPopulate() = %d, %v", v, err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := loads.Load(); got != 1 {
		t.Fatalf("loads = %d, want 1", got)
	}
}

func TestGetOrPopulateSharedLoadOutlivesFirstCaller(t *testing.T) {
	t.Parallel()

	c := New[int](NewMemoryStore[int](), time.Minute)
	started := make(chan struct{})
	load := func(ctx context.Context) (int, error) {
		close(started)
		select {
		case <-time.After(200 * time.Millisecond):
			return 9, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	shortCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	shortErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrPopulate(shortCtx, "fixture", load)
		shortErr <- err
	}()
	<-started

	v, err := c.GetOrPopulate(context.Background(), "fixture", func(context.Context) (int, error) {
		t.Errorf("second load ran, want it to join the first")
		return 0, nil
	})
	if err != nil || v != 9 {
		t.Fatalf("GetOrPopulate() = %d, %v, want 9, nil", v, err)
	}
	if err := <-shortErr; !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("short caller error = %v, want %v", err, context.DeadlineExceeded)
	}

	// The result was cached even though its initiator gave up.
	e, ok, err := c.Peek(context.Background(), "fixture")
	if err != nil || !ok || e.Value != 9 {
		t.Fatalf("Peek() = %+v, %v, %v", e, ok, err)
	}
}

func TestStale(t *testing.T) {
	t.Parallel()

	c := New[int](NewMemoryStore[int](), 10*time.Minute)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e := Entry[int]{FetchedAt: at}

	tests := []struct {
		age  time.Duration
		want bool
	}{
		{0, false},
		{9*time.Minute + 59*time.Second, false},
		{10 * time.Minute, true},
		{time.Hour, true},
	}
	for _, tt := range tests {
		if got := c.Stale(e, at.Add(tt.age)); got != tt.want {
			t.Fatalf("Stale(age=%v) = %v, want %v", tt.age, got, tt.want)
		}
	}
}
