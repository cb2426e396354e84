package logx

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	kit "matchbot/internal/transport"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	to   []kit.ChatTarget
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	f.to = append(f.to, to)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"Error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, zerolog.InfoLevel); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatRecord(t *testing.T) {
	t.Parallel()

	got := formatRecord([]byte(`{"level":"warn","message":"send <failed>","time":"x","chat":42,"comp":"notifier"}` + "\n"))
	want := "🟠 <b>WARN</b> send &lt;failed&gt;\n<code>chat</code> 42\n<code>comp</code> notifier"
	if got != want {
		t.Fatalf("formatRecord() = %q, want %q", got, want)
	}

	if got := formatRecord([]byte("not json <x>")); got != "not json &lt;x&gt;" {
		t.Fatalf("formatRecord(raw) = %q", got)
	}

	long := formatRecord([]byte(`{"level":"error","message":"m","stack":"` + strings.Repeat("s", 5000) + `"}`))
	if len(long) > opsMessageLimit+8 {
		t.Fatalf("formatRecord(long) len = %d, want <= %d", len(long), opsMessageLimit+8)
	}
}

func TestTelegramSinkFiltersByLevel(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	svc, log := New(Config{
		Level:    "debug",
		Telegram: TelegramConfig{Enabled: true, MinLevel: "warn", RatePerSec: 100},
	}, fs)
	svc.SetTelegramTarget(-100123, 7)

	log.Info("quiet")
	log.Warn("loud", String("k", "v"))

	deadline := time.Now().Add(2 * time.Second)
	for fs.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(fs.sent))
	}
	if !strings.Contains(fs.sent[0], "loud") {
		t.Fatalf("sent[0] = %q, want it to contain the message", fs.sent[0])
	}
	if fs.to[0] != (kit.ChatTarget{ChatID: -100123, ThreadID: 7}) {
		t.Fatalf("to = %+v", fs.to[0])
	}
}

func TestTelegramSinkWithoutTarget(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	svc, log := New(Config{Telegram: TelegramConfig{Enabled: true}}, fs)
	log.Error("nowhere to go")
	if err := svc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if n := fs.count(); n != 0 {
		t.Fatalf("sent = %d, want 0", n)
	}
}

func TestLoggerZeroValue(t *testing.T) {
	t.Parallel()

	var l Logger
	if !l.IsZero() {
		t.Fatalf("IsZero() = false, want true")
	}
	l.Info("dropped")
	if Nop().IsZero() {
		t.Fatalf("Nop().IsZero() = true, want false")
	}
	if l.With(String("a", "b")).IsZero() {
		t.Fatalf("With().IsZero() = true, want false")
	}
}
