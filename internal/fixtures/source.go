// Package fixtures is the cached, typed view of fixture data the rest of the
// bot works with: lookups, league listings, subscriptions, deep links and
// message formatting.
package fixtures

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"matchbot/internal/cache"
	"matchbot/internal/provider"
	logx "matchbot/pkg/logx"
)

// ErrUnavailable means fixture data could not be obtained right now.
var ErrUnavailable = errors.New("fixture data unavailable")

// API is the subset of the provider gateway used here.
type API interface {
	Match(ctx context.Context, id int64) (provider.Match, error)
	Matches(ctx context.Context, q provider.MatchQuery) ([]provider.Match, error)
}

// MaxListed caps fixtures shown per league listing.
const MaxListed = 10

// Source reads fixtures through the cache.
type Source struct {
	api       API
	matches   *cache.Cache[provider.Match]
	listings  *cache.Cache[[]provider.Match]
	daysAhead int
	log       logx.Logger
	now       func() time.Time
}

type SourceOption func(*Source)

func WithDaysAhead(n int) SourceOption {
	return func(s *Source) {
		if n > 0 {
			s.daysAhead = n
		}
	}
}

func WithNow(now func() time.Time) SourceOption {
	return func(s *Source) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSource(api API, matches *cache.Cache[provider.Match], listings *cache.Cache[[]provider.Match], log logx.Logger, opts ...SourceOption) *Source {
	s := &Source{
		api:       api,
		matches:   matches,
		listings:  listings,
		daysAhead: 7,
		log:       log.With(logx.String("comp", "fixtures")),
		now:       time.Now,
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	return s
}

// Match returns the fixture payload, or an error matching ErrUnavailable.
func (s *Source) Match(ctx context.Context, id int64) (provider.Match, error) {
	m, err := s.matches.GetOrPopulate(ctx, "match:"+strconv.FormatInt(id, 10), func(ctx context.Context) (provider.Match, error) {
		return s.api.Match(ctx, id)
	})
	if err != nil {
		s.log.Debug("match lookup failed", logx.Int64("fixture_id", id), logx.Err(err))
		return provider.Match{}, fmt.Errorf("%w: match %d: %v", ErrUnavailable, id, err)
	}
	return m, nil
}

// Upcoming lists a league's fixtures from today through DaysAhead, sorted by
// kickoff and capped at MaxListed.
func (s *Source) Upcoming(ctx context.Context, league string) ([]provider.Match, error) {
	l, ok := provider.LeagueByCode(league)
	if !ok {
		return nil, fmt.Errorf("unknown league %q", league)
	}
	from := s.now().UTC().Truncate(24 * time.Hour)
	to := from.AddDate(0, 0, s.daysAhead)
	key := "league:" + l.Code + ":" + from.Format("2006-01-02")

	list, err := s.listings.GetOrPopulate(ctx, key, func(ctx context.Context) ([]provider.Match, error) {
		return s.api.Matches(ctx, provider.MatchQuery{Competitions: []string{l.Code}, From: from, To: to})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: league %s: %v", ErrUnavailable, l.Code, err)
	}
	out := append([]provider.Match(nil), list...)
	sortByKickoff(out)
	if len(out) > MaxListed {
		out = out[:MaxListed]
	}
	return out, nil
}

// All lists upcoming fixtures across every supported league. Leagues are
// fetched concurrently; the gateway still serializes the provider calls.
// Leagues that fail are skipped unless all of them fail.
func (s *Source) All(ctx context.Context) ([]provider.Match, error) {
	results := make([][]provider.Match, len(provider.Leagues))
	failed := make([]error, len(provider.Leagues))

	g, gctx := errgroup.WithContext(ctx)
	for i, l := range provider.Leagues {
		g.Go(func() error {
			ms, err := s.Upcoming(gctx, l.Code)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				failed[i] = err
				return nil
			}
			results[i] = ms
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []provider.Match
	var errs []error
	for i := range results {
		out = append(out, results[i]...)
		if failed[i] != nil {
			errs = append(errs, failed[i])
		}
	}
	if len(errs) == len(provider.Leagues) {
		return nil, errors.Join(errs...)
	}
	for _, err := range errs {
		s.log.Warn("league listing skipped", logx.Err(err))
	}
	sortByKickoff(out)
	return out, nil
}

func sortByKickoff(ms []provider.Match) {
	sort.SliceStable(ms, func(i, j int) bool {
		if !ms[i].UTCDate.Equal(ms[j].UTCDate) {
			return ms[i].UTCDate.Before(ms[j].UTCDate)
		}
		return ms[i].ID < ms[j].ID
	})
}
