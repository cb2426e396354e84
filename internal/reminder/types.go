package reminder

import (
	"context"
	"time"

	"matchbot/internal/provider"
	"matchbot/internal/storage"
	kit "matchbot/internal/transport"
)

// Store is the subscription persistence the pass reads and writes back to.
type Store interface {
	ListAll(ctx context.Context) ([]storage.Subscription, error)
	MarkFlags(ctx context.Context, userID, fixtureID int64, f storage.Flags) error
}

// MatchSource returns the fixture payload or an error when unavailable.
type MatchSource interface {
	Match(ctx context.Context, id int64) (provider.Match, error)
}

// Sink delivers one message to one user. It is never retried by the pass.
type Sink interface {
	Send(ctx context.Context, userID int64, text string, opt *kit.SendOptions) error
}

// Window is a range of time-before-kickoff, inclusive on both ends.
type Window struct {
	Min time.Duration
	Max time.Duration
}

func (w Window) Contains(untilKickoff time.Duration) bool {
	return untilKickoff >= w.Min && untilKickoff <= w.Max
}

// MinutesWindow builds a Window from fractional minutes.
func MinutesWindow(lo, hi float64) Window {
	return Window{
		Min: time.Duration(lo * float64(time.Minute)),
		Max: time.Duration(hi * float64(time.Minute)),
	}
}

var (
	DefaultOneHour    = MinutesWindow(55, 65)
	DefaultFifteenMin = MinutesWindow(10, 20)
	DefaultInterval   = time.Minute
)

type Config struct {
	Interval   time.Duration
	OneHour    Window
	FifteenMin Window
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.OneHour == (Window{}) {
		c.OneHour = DefaultOneHour
	}
	if c.FifteenMin == (Window{}) {
		c.FifteenMin = DefaultFifteenMin
	}
	return c
}

// Stage names, used in logs and metrics.
const (
	StageOneHour    = "one_hour"
	StageLineup     = "lineup"
	StageFallback   = "lineup_fallback"
	StageFifteenMin = "fifteen_min"
)

// PassResult summarizes one evaluation pass.
type PassResult struct {
	PassID        string         `json:"pass_id"`
	At            time.Time      `json:"at"`
	Duration      time.Duration  `json:"duration"`
	Subscriptions int            `json:"subscriptions"`
	Groups        int            `json:"groups"`
	Sent          map[string]int `json:"sent,omitempty"`
	Failures      int            `json:"failures"`
	Error         string         `json:"error,omitempty"`
}

// Observer receives pass and delivery accounting.
type Observer interface {
	ObservePass(r PassResult)
	ObserveStage(stage string, ok bool)
}
