package notifier

import (
	"errors"
	"fmt"
	"time"

	kit "matchbot/internal/transport"
)

var (
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

// Config controls sending.
type Config struct {
	// RatePerSec caps all outbound sends. Default 25.
	RatePerSec int
	// SendTimeout bounds a single send. Default 10s.
	SendTimeout time.Duration

	// Queued notification pipeline.
	Workers       int
	QueueSize     int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	DedupWindow   time.Duration
}

// Notification is an operator-facing message handled by the queue.
type Notification struct {
	Channel string // dedup namespace, e.g. "reminder.failed"
	Target  kit.ChatTarget
	Text    string
	Options *kit.SendOptions
}

type HistoryItem struct {
	At     time.Time
	UserID int64
	Text   string
}

// DeliveryError is returned by Send when the platform rejected a message.
type DeliveryError struct {
	UserID int64
	// Gone reports that the recipient can no longer be reached
	// (blocked the bot, deleted the account, chat not found).
	Gone bool
	Err  error
}

func (e *DeliveryError) Error() string {
	if e.Gone {
		return fmt.Sprintf("deliver to %d: recipient gone: %v", e.UserID, e.Err)
	}
	return fmt.Sprintf("deliver to %d: %v", e.UserID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// IsGone reports whether err is a DeliveryError for an unreachable recipient.
func IsGone(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Gone
}

// Event is published on the bus for deliveries.
type Event struct {
	Channel string    `json:"channel"`
	ChatID  int64     `json:"chat_id"`
	At      time.Time `json:"at"`
	Error   string    `json:"error,omitempty"`
}

// Observer receives per-send accounting.
type Observer interface {
	ObserveDelivery(ok, gone bool)
}
