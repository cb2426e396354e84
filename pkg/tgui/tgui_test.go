package tgui

import (
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestEscAndLink(t *testing.T) {
	t.Parallel()

	if got := Esc("<b>&"); got != "&lt;b&gt;&amp;" {
		t.Fatalf("Esc() = %q", got)
	}
	got := Link("A&B", `https://x.test/?a=1&b="2"`)
	want := H(`<a href="https://x.test/?a=1&amp;b=&#34;2&#34;">A&amp;B</a>`)
	if got != want {
		t.Fatalf("Link() = %q, want %q", got, want)
	}
}

func TestParseData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in            string
		action, value string
	}{
		{"league:PL", "league", "PL"},
		{" sub:123 ", "sub", "123"},
		{"mine", "mine", ""},
		{"all:2", "all", "2"},
	}
	for _, tt := range tests {
		a, v := ParseData(tt.in)
		if a != tt.action || v != tt.value {
			t.Fatalf("ParseData(%q) = %q, %q, want %q, %q", tt.in, a, v, tt.action, tt.value)
		}
	}
	if d := DataID("match", 537785); d != "match:537785" {
		t.Fatalf("DataID() = %q", d)
	}
	if err := ValidData(strings.Repeat("x", 65)); err != ErrCallbackDataTooLong {
		t.Fatalf("ValidData(65) = %v, want %v", err, ErrCallbackDataTooLong)
	}
}

func TestPaginate(t *testing.T) {
	t.Parallel()

	items := []int{1, 2, 3, 4, 5, 6, 7}
	tests := []struct {
		page      int
		wantItems int
		wantPage  int
		prev      bool
		next      bool
	}{
		{0, 3, 0, false, true},
		{1, 3, 1, true, true},
		{2, 1, 2, true, false},
		{9, 1, 2, true, false},
		{-1, 3, 0, false, true},
	}
	for _, tt := range tests {
		p := Paginate(items, tt.page, 3)
		if len(p.Items) != tt.wantItems || p.Page != tt.wantPage || p.HasPrev != tt.prev || p.HasNext != tt.next {
			t.Fatalf("Paginate(page=%d) = %+v", tt.page, p)
		}
	}
	if got := Paginate([]int(nil), 0, 3).Label(); got != "Page 1/1" {
		t.Fatalf("Label() = %q, want Page 1/1", got)
	}
}

func TestBuilder(t *testing.T) {
	t.Parallel()

	kb := NewInline().Grid(2, []tele.Btn{Btn("a", "a"), Btn("b", "b"), Btn("c", "c")})
	if kb.Rows() != 2 {
		t.Fatalf("Rows() = %d, want 2", kb.Rows())
	}
	m := New().Title("⚽", "A < B").KV("Venue", "Old Trafford").KV("Empty", "").Then("links").Inline(kb).Build()
	want := "⚽ <b>A &lt; B</b>\n<b>Venue</b>: Old Trafford"
	if m.Text != want {
		t.Fatalf("Text = %q, want %q", m.Text, want)
	}
	if len(m.More) != 1 || m.Opt.ParseMode != "HTML" || m.Opt.ReplyMarkupAdapter == nil {
		t.Fatalf("message = %+v", m)
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 4, "hel…"},
		{"héllo wörld", 6, "héllo…"},
		{"ab", 1, "…"},
		{"a", 1, "a"},
		{"", 3, ""},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncRunes(tt.in, tt.n); got != tt.want {
			t.Fatalf("TruncRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
