package tgui

import (
	"context"
	"strings"

	kit "matchbot/internal/transport"

	tele "gopkg.in/telebot.v4"
)

// Message is a rendered UI payload: text + send options.
type Message struct {
	Text string
	Opt  *kit.SendOptions

	// More are additional messages sent after the first one. They never
	// carry the keyboard.
	More []string
}

// Send sends the Message via the provided sender.
func (m Message) Send(ctx context.Context, s kit.Sender, to kit.ChatTarget) (kit.MessageRef, error) {
	if m.Opt == nil {
		m.Opt = &kit.SendOptions{}
	}
	ref, err := s.SendText(ctx, to, m.Text, m.Opt)
	if err != nil {
		return ref, err
	}
	return ref, m.sendMore(ctx, s, to)
}

// Edit replaces the message at ref. More parts are sent as new messages.
func (m Message) Edit(ctx context.Context, ad kit.Adapter, ref kit.MessageRef) error {
	if m.Opt == nil {
		m.Opt = &kit.SendOptions{}
	}
	if err := ad.EditText(ctx, ref, m.Text, m.Opt); err != nil {
		return err
	}
	return m.sendMore(ctx, ad, kit.ChatTarget{ChatID: ref.ChatID, ThreadID: ref.ThreadID})
}

func (m Message) sendMore(ctx context.Context, s kit.Sender, to kit.ChatTarget) error {
	if len(m.More) == 0 {
		return nil
	}
	opt := *m.Opt
	opt.ReplyMarkupAdapter = nil
	for _, t := range m.More {
		if strings.TrimSpace(t) == "" {
			continue
		}
		if _, err := s.SendText(ctx, to, t, &opt); err != nil {
			return err
		}
	}
	return nil
}

// Builder assembles an HTML message line by line.
// Default: ParseMode=HTML, DisablePreview=true.
type Builder struct {
	disablePreview bool
	rm             *tele.ReplyMarkup
	lines          []string
	more           []string
}

func New() *Builder {
	return &Builder{disablePreview: true}
}

// Inline attaches an inline keyboard.
func (b *Builder) Inline(kb *Inline) *Builder {
	if kb == nil {
		b.rm = nil
		return b
	}
	b.rm = kb.Markup()
	return b
}

// Title adds a bold title line. Emoji is optional.
func (b *Builder) Title(emoji, title string) *Builder {
	e := strings.TrimSpace(emoji)
	t := strings.TrimSpace(title)
	if t == "" {
		return b
	}
	if e != "" {
		b.lines = append(b.lines, Esc(e).String()+" "+B(t).String())
	} else {
		b.lines = append(b.lines, B(t).String())
	}
	return b
}

// Line adds a single escaped line.
func (b *Builder) Line(s string) *Builder {
	if strings.TrimSpace(s) == "" {
		b.lines = append(b.lines, "")
		return b
	}
	b.lines = append(b.lines, Esc(s).String())
	return b
}

// H adds a line of already-safe HTML.
func (b *Builder) H(h H) *Builder {
	b.lines = append(b.lines, h.String())
	return b
}

func (b *Builder) Blank() *Builder { return b.Line("") }

// KV adds a "key: value" row with a bold key.
func (b *Builder) KV(key, value string) *Builder {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" || value == "" {
		return b
	}
	b.lines = append(b.lines, B(key).String()+": "+Esc(value).String())
	return b
}

// Then queues a follow-up message.
func (b *Builder) Then(h H) *Builder {
	if strings.TrimSpace(h.String()) != "" {
		b.more = append(b.more, h.String())
	}
	return b
}

// Text returns the main message body as HTML.
func (b *Builder) Text() H {
	return H(strings.Trim(strings.Join(b.lines, "\n"), "\n"))
}

// Build produces a ready-to-send Message.
func (b *Builder) Build() Message {
	opt := &kit.SendOptions{ParseMode: kit.ParseHTML, DisablePreview: b.disablePreview}
	if b.rm != nil {
		opt.ReplyMarkupAdapter = b.rm
	}
	more := append([]string(nil), b.more...)
	return Message{Text: b.Text().String(), Opt: opt, More: more}
}
