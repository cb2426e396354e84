package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Config configures storage.
//
// Driver values:
//   - "sqlite" (default): SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means 5s
}

// Flags records which reminder stages were already handled for a
// subscription. Flags only ever go from false to true.
type Flags struct {
	OneHour    bool `json:"one_hour"`
	FifteenMin bool `json:"fifteen_min"`
	Lineup     bool `json:"lineup"`
}

// Merge returns f with every true field of o set.
func (f Flags) Merge(o Flags) Flags {
	return Flags{
		OneHour:    f.OneHour || o.OneHour,
		FifteenMin: f.FifteenMin || o.FifteenMin,
		Lineup:     f.Lineup || o.Lineup,
	}
}

func (f Flags) All() bool { return f.OneHour && f.FifteenMin && f.Lineup }

// Subscription is a user's interest in one fixture. Kickoff and the team
// names are a snapshot taken when the user subscribed.
type Subscription struct {
	UserID    int64
	FixtureID int64
	Kickoff   time.Time
	Home      string
	Away      string
	League    string
	Flags     Flags
	CreatedAt time.Time
}

type User struct {
	ID           int64
	Username     string
	FirstName    string
	Balance      int64
	BonusGranted bool
	CreatedAt    time.Time
}

// SubscriptionStore is the persistence contract for reminders.
type SubscriptionStore interface {
	Upsert(ctx context.Context, s Subscription) error
	Remove(ctx context.Context, userID, fixtureID int64) (bool, error)
	Get(ctx context.Context, userID, fixtureID int64) (Subscription, error)
	ListAll(ctx context.Context) ([]Subscription, error)
	ListByUser(ctx context.Context, userID int64) ([]Subscription, error)
	MarkFlags(ctx context.Context, userID, fixtureID int64, f Flags) error
}

type UserStore interface {
	EnsureUser(ctx context.Context, u User) (created bool, err error)
	User(ctx context.Context, id int64) (User, error)
	GrantBonus(ctx context.Context, userID, amount int64) (granted bool, err error)
	CountUsers(ctx context.Context) (int, error)
}

// Store is everything the bot persists.
type Store interface {
	SubscriptionStore
	UserStore
	Close() error
}
