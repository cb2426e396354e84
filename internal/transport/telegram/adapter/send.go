package adapter

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "matchbot/internal/transport"
)

// textLimit stays under Telegram's 4096 character cap.
const textLimit = 4000

func sendOptions(opt *kit.SendOptions, threadID int, withMarkup bool) *tele.SendOptions {
	so := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              threadID,
	}
	if withMarkup {
		if rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup); ok {
			so.ReplyMarkup = rm
		}
	}
	return so
}

// SendText sends text, split into several messages when it is too long.
// Markup is attached to the first part; the first part's ref is returned.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	var first kit.MessageRef
	err := a.sendParts(ctx, to, splitTelegramText(text, textLimit, opt.ParseMode), opt, func(id int) {
		first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: id}
	})
	return first, err
}

func (a *Adapter) sendParts(ctx context.Context, to kit.ChatTarget, parts []string, opt *kit.SendOptions, onFirst func(id int)) error {
	chat := &tele.Chat{ID: to.ChatID}
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := a.bot.Send(chat, part, sendOptions(opt, to.ThreadID, i == 0 && onFirst != nil))
		if err != nil {
			return err
		}
		if i == 0 && onFirst != nil {
			onFirst(msg.ID)
		}
	}
	return nil
}

// EditText replaces the message text. Overflow is sent as new messages in the
// same thread.
func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	parts := splitTelegramText(text, textLimit, opt.ParseMode)
	msg := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	_, err := a.bot.Edit(msg, parts[0], sendOptions(opt, 0, true))
	if err != nil && !errors.Is(err, tele.ErrSameMessageContent) {
		return err
	}
	if len(parts) == 1 {
		return nil
	}
	return a.sendParts(ctx, kit.ChatTarget{ChatID: ref.ChatID, ThreadID: ref.ThreadID}, parts[1:], opt, nil)
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

// splitTelegramText cuts s into parts of at most limit runes. Cuts prefer a
// newline in the last two thirds of the window and, for HTML, avoid landing
// inside a tag. Newlines at the cut are dropped.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	html := strings.EqualFold(parseMode, kit.ParseHTML)

	var parts []string
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			end = cutPoint(rs, start, end, limit, html)
		}
		parts = append(parts, strings.TrimRight(string(rs[start:end]), "\n"))
		for start = end; start < len(rs) && rs[start] == '\n'; start++ {
		}
	}
	return parts
}

func cutPoint(rs []rune, start, end, limit int, html bool) int {
	for i := end - 1; i-start >= limit/3; i-- {
		if rs[i] == '\n' {
			end = i + 1
			break
		}
	}
	if !html {
		return end
	}
	open, closed := -1, -1
	for i := start; i < end; i++ {
		switch rs[i] {
		case '<':
			open = i
		case '>':
			closed = i
		}
	}
	if open > closed && open > start+1 {
		return open
	}
	return end
}

// IsRecipientGone reports whether err means the recipient can no longer be
// messaged: blocked bot, deleted chat or deactivated account.
func IsRecipientGone(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range []error{
		tele.ErrBlockedByUser,
		tele.ErrUserIsDeactivated,
		tele.ErrChatNotFound,
		tele.ErrNotStartedByUser,
		tele.ErrKickedFromGroup,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"bot was blocked", "chat not found", "user is deactivated"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
