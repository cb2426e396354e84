package fixtures

import (
	"context"
	"errors"
	"fmt"
	"time"

	"matchbot/internal/provider"
	"matchbot/internal/storage"
)

// ErrStarted is returned when subscribing to a fixture that already kicked off.
var ErrStarted = errors.New("fixture already started")

// Service combines fixture lookups with the user's subscriptions.
type Service struct {
	src   *Source
	store storage.SubscriptionStore
	now   func() time.Time
}

func NewService(src *Source, store storage.SubscriptionStore) *Service {
	return &Service{src: src, store: store, now: time.Now}
}

func (s *Service) Source() *Source { return s.src }

// Subscribe snapshots kickoff and names from the cached fixture and stores
// the subscription.
func (s *Service) Subscribe(ctx context.Context, userID, fixtureID int64) (provider.Match, error) {
	m, err := s.src.Match(ctx, fixtureID)
	if err != nil {
		return provider.Match{}, err
	}
	if !m.UTCDate.After(s.now()) {
		return m, ErrStarted
	}
	sub := storage.Subscription{
		UserID:    userID,
		FixtureID: fixtureID,
		Kickoff:   m.UTCDate.UTC(),
		Home:      m.HomeTeam.DisplayName(),
		Away:      m.AwayTeam.DisplayName(),
		League:    m.Competition.Code,
	}
	if err := s.store.Upsert(ctx, sub); err != nil {
		return m, fmt.Errorf("subscribe %d/%d: %w", userID, fixtureID, err)
	}
	return m, nil
}

func (s *Service) Unsubscribe(ctx context.Context, userID, fixtureID int64) (bool, error) {
	return s.store.Remove(ctx, userID, fixtureID)
}

// Snapshot returns the stored subscription, or storage.ErrNotFound.
func (s *Service) Snapshot(ctx context.Context, userID, fixtureID int64) (storage.Subscription, error) {
	return s.store.Get(ctx, userID, fixtureID)
}

func (s *Service) IsSubscribed(ctx context.Context, userID, fixtureID int64) (bool, error) {
	_, err := s.store.Get(ctx, userID, fixtureID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Mine lists the user's subscriptions whose kickoff has not passed yet.
func (s *Service) Mine(ctx context.Context, userID int64) ([]storage.Subscription, error) {
	subs, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := subs[:0]
	for _, sub := range subs {
		if sub.Kickoff.After(now) {
			out = append(out, sub)
		}
	}
	return out, nil
}
