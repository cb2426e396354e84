// Package transport is the chat-platform contract the bot is written against.
// The Telegram binding lives in transport/telegram/adapter.
package transport

import "context"

// ParseHTML selects Telegram's HTML formatting.
const ParseHTML = "HTML"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

// Update carries exactly one of Message or Callback, matching Kind.
type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// Target is the chat an update came from; zero when the payload is missing.
func (u Update) Target() ChatTarget {
	switch {
	case u.Message != nil:
		return ChatTarget{ChatID: u.Message.ChatID, ThreadID: u.Message.ThreadID}
	case u.Callback != nil:
		return ChatTarget{ChatID: u.Callback.ChatID, ThreadID: u.Callback.ThreadID}
	}
	return ChatTarget{}
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int
	FromID       int64
	FromUsername string
	FromName     string
	Text         string
	IsPrivate    bool
}

// Callback is an inline button press on message MessageID.
type Callback struct {
	ID           string
	FromID       int64
	FromUsername string
	ChatID       int64
	ThreadID     int
	MessageID    int
	Data         string
}

// ChatTarget addresses a chat, or a forum topic when ThreadID is set.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// ReplyMarkupAdapter is passed through untouched; the Telegram adapter
	// expects *telebot.ReplyMarkup.
	ReplyMarkupAdapter any
}

// Sender delivers text. The notifier and the log sink only need this half.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

type Adapter interface {
	Sender

	// Start feeds out until ctx ends or Stop is called. It must not block on
	// a slow consumer.
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters with a platform command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
