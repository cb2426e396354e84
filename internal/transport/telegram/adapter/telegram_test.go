package adapter

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()

	short := "hello"
	if got := splitTelegramText(short, 10, ""); len(got) != 1 || got[0] != short {
		t.Fatalf("split(short) = %q, want [%q]", got, short)
	}

	lines := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		lines = append(lines, strings.Repeat("x", 9))
	}
	long := strings.Join(lines, "\n")
	chunks := splitTelegramText(long, 40, "")
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want >= 2", len(chunks))
	}
	for i, c := range chunks {
		if n := len([]rune(c)); n > 40 {
			t.Fatalf("chunk %d len = %d, want <= 40", i, n)
		}
		if strings.HasPrefix(c, "\n") {
			t.Fatalf("chunk %d starts with newline", i)
		}
	}
	if got := strings.Join(chunks, "\n"); got != long {
		t.Fatalf("rejoined text differs from input")
	}
}

func TestSplitTelegramTextAvoidsTagSplit(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("a", 38) + "<b>bold</b>"
	chunks := splitTelegramText(s, 40, "HTML")
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if chunks[0] != strings.Repeat("a", 38) {
		t.Fatalf("first chunk = %q", chunks[0])
	}
	if !strings.HasPrefix(chunks[1], "<b>") {
		t.Fatalf("second chunk = %q, want it to start with the tag", chunks[1])
	}
}

func TestIsRecipientGone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"blocked", tele.ErrBlockedByUser, true},
		{"wrapped chat not found", fmt.Errorf("send: %w", tele.ErrChatNotFound), true},
		{"plain text", errors.New("telegram: Forbidden: bot was blocked by the user (403)"), true},
		{"timeout", errors.New("context deadline exceeded"), false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsRecipientGone(tt.err); got != tt.want {
				t.Fatalf("IsRecipientGone(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
