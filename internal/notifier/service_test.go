package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"matchbot/internal/eventbus"
	kit "matchbot/internal/transport"
	logx "matchbot/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []kit.ChatTarget
	texts []string
	err   func(chatID int64) error
	block bool
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	if f.block {
		<-ctx.Done()
		return kit.MessageRef{}, ctx.Err()
	}
	if f.err != nil {
		if err := f.err(to.ChatID); err != nil {
			return kit.MessageRef{}, err
		}
	}
	f.mu.Lock()
	f.sent = append(f.sent, to)
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

var errBlocked = errors.New("telegram: Forbidden: bot was blocked by the user (403)")

func TestSendClassifiesFailures(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{err: func(id int64) error {
		switch id {
		case 2:
			return errBlocked
		case 3:
			return errors.New("telegram: Too Many Requests: retry after 5 (429)")
		}
		return nil
	}}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()
	s := New(Config{RatePerSec: 100}, fs, logx.Nop(), bus)
	ctx := context.Background()

	tests := []struct {
		user     int64
		wantErr  bool
		wantGone bool
	}{
		{1, false, false},
		{2, true, true},
		{3, true, false},
	}
	for _, tt := range tests {
		err := s.Send(ctx, tt.user, "hi", nil)
		if (err != nil) != tt.wantErr {
			t.Fatalf("Send(%d) error = %v, wantErr %v", tt.user, err, tt.wantErr)
		}
		if IsGone(err) != tt.wantGone {
			t.Fatalf("IsGone(Send(%d)) = %v, want %v", tt.user, IsGone(err), tt.wantGone)
		}
	}
	if got := len(s.History()); got != 1 {
		t.Fatalf("history = %d, want 1", got)
	}
	if e := <-events; e.Type != eventbus.TypeNotifySent {
		t.Fatalf("first event = %q, want %q", e.Type, eventbus.TypeNotifySent)
	}
}

func TestSendTimeout(t *testing.T) {
	t.Parallel()

	s := New(Config{SendTimeout: 30 * time.Millisecond}, &fakeSender{block: true}, logx.Nop(), nil)
	start := time.Now()
	err := s.Send(context.Background(), 1, "hi", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Send() error = %v, want deadline exceeded", err)
	}
	if d := time.Since(start); d > time.Second {
		t.Fatalf("Send() took %v, want bounded by timeout", d)
	}
}

func TestNotifyDedupAndDrain(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	s := New(Config{DedupWindow: time.Minute}, fs, logx.Nop(), nil)
	ctx := context.Background()
	s.Start(ctx)

	n := Notification{Channel: "ops", Target: kit.ChatTarget{ChatID: 9}, Text: "pass failed"}
	for i := 0; i < 3; i++ {
		if err := s.Notify(ctx, n); err != nil {
			t.Fatalf("Notify() error = %v", err)
		}
	}
	n.Text = "other"
	if err := s.Notify(ctx, n); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	s.Stop(stopCtx)

	if got := fs.count(); got != 2 {
		t.Fatalf("sent = %d, want 2", got)
	}
	if err := s.Notify(ctx, n); !errors.Is(err, ErrStopped) {
		t.Fatalf("Notify() after Stop error = %v, want ErrStopped", err)
	}
}

func TestRetryDelayCapped(t *testing.T) {
	t.Parallel()

	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 8; attempt++ {
		if d := retryDelay(cfg, attempt); d <= 0 || d > time.Second {
			t.Fatalf("retryDelay(%d) = %v, want (0, 1s]", attempt, d)
		}
	}
}
