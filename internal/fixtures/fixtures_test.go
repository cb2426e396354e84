package fixtures

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"matchbot/internal/cache"
	"matchbot/internal/provider"
	"matchbot/internal/storage"
	logx "matchbot/pkg/logx"
)

type fakeAPI struct {
	mu         sync.Mutex
	matchCalls int
	listCalls  map[string]int
	match      func(id int64) (provider.Match, error)
	list       func(league string) ([]provider.Match, error)
}

func (f *fakeAPI) Match(_ context.Context, id int64) (provider.Match, error) {
	f.mu.Lock()
	f.matchCalls++
	f.mu.Unlock()
	return f.match(id)
}

func (f *fakeAPI) Matches(_ context.Context, q provider.MatchQuery) ([]provider.Match, error) {
	league := strings.Join(q.Competitions, ",")
	f.mu.Lock()
	if f.listCalls == nil {
		f.listCalls = map[string]int{}
	}
	f.listCalls[league]++
	f.mu.Unlock()
	return f.list(league)
}

var now = time.Date(2024, 8, 16, 12, 0, 0, 0, time.UTC)

func newSource(api API) *Source {
	return NewSource(api,
		cache.New[provider.Match](cache.NewMemoryStore[provider.Match](), 10*time.Minute),
		cache.New[[]provider.Match](cache.NewMemoryStore[[]provider.Match](), 10*time.Minute),
		logx.Nop(),
		WithNow(func() time.Time { return now }),
	)
}

func fixture(id int64, kickoff time.Time, league string) provider.Match {
	return provider.Match{
		ID:          id,
		UTCDate:     kickoff,
		Status:      provider.StatusTimed,
		Competition: provider.Competition{Code: league},
		HomeTeam:    provider.Team{Name: "Home " + league},
		AwayTeam:    provider.Team{Name: "Away " + league},
	}
}

func TestSourceMatchCachesAndMapsErrors(t *testing.T) {
	t.Parallel()

	boom := &provider.UnavailableError{Resource: "matches/2", Attempts: 3}
	api := &fakeAPI{match: func(id int64) (provider.Match, error) {
		if id == 2 {
			return provider.Match{}, boom
		}
		return fixture(id, now.Add(time.Hour), "PL"), nil
	}}
	src := newSource(api)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := src.Match(ctx, 1); err != nil {
			t.Fatalf("Match(1) error = %v", err)
		}
	}
	if api.matchCalls != 1 {
		t.Fatalf("provider calls = %d, want 1", api.matchCalls)
	}

	_, err := src.Match(ctx, 2)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Match(2) error = %v, want ErrUnavailable", err)
	}
	_, _ = src.Match(ctx, 2)
	if api.matchCalls != 3 {
		t.Fatalf("provider calls = %d, want 3 (failures are not cached)", api.matchCalls)
	}
}

func TestUpcomingSortsAndCaps(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{list: func(league string) ([]provider.Match, error) {
		var out []provider.Match
		for i := 15; i > 0; i-- {
			out = append(out, fixture(int64(i), now.Add(time.Duration(i)*time.Hour), league))
		}
		return out, nil
	}}
	src := newSource(api)

	got, err := src.Upcoming(context.Background(), "pl")
	if err != nil {
		t.Fatalf("Upcoming() error = %v", err)
	}
	if len(got) != MaxListed {
		t.Fatalf("len = %d, want %d", len(got), MaxListed)
	}
	if got[0].ID != 1 || got[9].ID != 10 {
		t.Fatalf("order = %d..%d, want 1..10", got[0].ID, got[9].ID)
	}
	if _, err := src.Upcoming(context.Background(), "PL"); err != nil {
		t.Fatalf("Upcoming() again error = %v", err)
	}
	if api.listCalls["PL"] != 1 {
		t.Fatalf("list calls = %d, want 1", api.listCalls["PL"])
	}
	if _, err := src.Upcoming(context.Background(), "XX"); err == nil {
		t.Fatal("Upcoming(XX) error = nil, want unknown league")
	}
}

func TestAllSkipsFailingLeagues(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{list: func(league string) ([]provider.Match, error) {
		if league == "SA" {
			return nil, &provider.StatusError{Resource: "matches", Code: 403}
		}
		return []provider.Match{fixture(int64(len(league)), now.Add(time.Hour), league)}, nil
	}}
	got, err := newSource(api).All(context.Background())
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(got) != len(provider.Leagues)-1 {
		t.Fatalf("len = %d, want %d", len(got), len(provider.Leagues)-1)
	}

	down := &fakeAPI{list: func(string) ([]provider.Match, error) { return nil, errors.New("down") }}
	if _, err := newSource(down).All(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("All() error = %v, want ErrUnavailable", err)
	}
}

func TestServiceSubscribeSnapshots(t *testing.T) {
	t.Parallel()

	st, err := storage.OpenSQLite(storage.Config{Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	kickoff := now.Add(3 * time.Hour)
	api := &fakeAPI{match: func(id int64) (provider.Match, error) {
		if id == 9 {
			return fixture(9, now.Add(-time.Hour), "PD"), nil
		}
		return fixture(id, kickoff, "BL1"), nil
	}}
	svc := NewService(newSource(api), st)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	if _, err := svc.Subscribe(ctx, 1, 5); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	sub, err := st.Get(ctx, 1, 5)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !sub.Kickoff.Equal(kickoff) || sub.League != "BL1" || sub.Home != "Home BL1" {
		t.Fatalf("subscription = %+v", sub)
	}
	if ok, _ := svc.IsSubscribed(ctx, 1, 5); !ok {
		t.Fatal("IsSubscribed() = false, want true")
	}
	if _, err := svc.Subscribe(ctx, 1, 9); !errors.Is(err, ErrStarted) {
		t.Fatalf("Subscribe(started) error = %v, want ErrStarted", err)
	}

	mine, err := svc.Mine(ctx, 1)
	if err != nil || len(mine) != 1 {
		t.Fatalf("Mine() = %v, %v, want 1 subscription", mine, err)
	}
	if removed, err := svc.Unsubscribe(ctx, 1, 5); err != nil || !removed {
		t.Fatalf("Unsubscribe() = %v, %v", removed, err)
	}
	if ok, _ := svc.IsSubscribed(ctx, 1, 5); ok {
		t.Fatal("IsSubscribed() = true after unsubscribe")
	}
}

func TestGenerateLinks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		league string
		want   []string
	}{
		{"PL", []string{"📺 ESPN", "📰 BBC Sport", "⚡ Sky Sports", "⚽ FlashScore", "📊 SofaScore"}},
		{"PD", []string{"📺 ESPN", "⚡ Sky Sports", "📘 MARCA", "📙 AS", "⚽ FlashScore", "📊 SofaScore"}},
		{"BL1", []string{"📺 ESPN", "⚡ Sky Sports", "📘 Kicker", "📙 Bild", "⚽ FlashScore", "📊 SofaScore"}},
		{"XX", []string{"📺 ESPN", "⚡ Sky Sports", "⚽ FlashScore", "📊 SofaScore"}},
	}
	for _, tt := range tests {
		links := GenerateLinks(7, "Man City", "Real Madrid", tt.league)
		if len(links) != len(tt.want) {
			t.Fatalf("%s: links = %d, want %d", tt.league, len(links), len(tt.want))
		}
		for i := range links {
			if links[i].Name != tt.want[i] {
				t.Fatalf("%s: link %d = %q, want %q", tt.league, i, links[i].Name, tt.want[i])
			}
		}
	}

	sky := GenerateLinks(7, "Man City", "Real Madrid", "PL")[2].URL
	if sky != "https://www.skysports.com/football/man-city-vs-real-madrid/7" {
		t.Fatalf("sky url = %q", sky)
	}
	if got := len(GenerateLinks(7, "", "", "")); got != 3 {
		t.Fatalf("links without names = %d, want 3", got)
	}
}

func TestLineupsMessage(t *testing.T) {
	t.Parallel()

	seven := 7
	m := fixture(1, now, "PL")
	m.HomeTeam.Name = "Arsenal & Co"
	m.HomeTeam.Formation = "4-3-3"
	m.HomeTeam.Coach = &provider.Coach{Name: "Arteta"}
	for i := 0; i < 13; i++ {
		m.HomeTeam.Lineup = append(m.HomeTeam.Lineup, provider.Player{Name: "P", Position: "Midfield", ShirtNumber: &seven})
	}
	m.HomeTeam.Lineup[0].Position = "Goalkeeper"

	got := LineupsMessage(m).String()
	if !strings.Contains(got, "<b>Arsenal &amp; Co</b> (4-3-3) – Coach: Arteta") {
		t.Fatalf("missing team header in %q", got)
	}
	if n := strings.Count(got, "– P ("); n != lineupSize {
		t.Fatalf("players = %d, want %d", n, lineupSize)
	}
	if !strings.Contains(got, "🥅 7 – P (Goalkeeper)") {
		t.Fatalf("missing goalkeeper line in %q", got)
	}
	if !strings.Contains(got, "❌ Lineup not announced") {
		t.Fatalf("away side should be marked as not announced")
	}
}

func TestReminderMessagesCarryLinks(t *testing.T) {
	t.Parallel()

	links := GenerateLinks(3, "A", "B", "SA")
	kick := time.Date(2024, 8, 16, 19, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		msg  string
		want int
	}{
		{"fifteen", FifteenMinMessage("A", "B", kick, links).String(), LinksInFifteen},
		{"fallback", LineupFallbackMessage("A", "B", links).String(), LinksInFallback},
		{"links", LinksMessage(links).String(), LinksInLineup},
		{"one hour", OneHourMessage("A", "B", kick).String(), 0},
	}
	for _, tt := range tests {
		if got := strings.Count(tt.msg, "<a href="); got != tt.want {
			t.Fatalf("%s: links = %d, want %d", tt.name, got, tt.want)
		}
	}
	if !strings.Contains(OneHourMessage("A", "B", kick).String(), "16.08.2024 19:00 UTC") {
		t.Fatal("one hour message lacks kickoff")
	}
}

func TestStatusLabel(t *testing.T) {
	t.Parallel()

	if got := StatusLabel(provider.StatusInPlay); got != "🔴 In play" {
		t.Fatalf("StatusLabel(IN_PLAY) = %q", got)
	}
	if got := StatusLabel("AWARDED"); got != "AWARDED" {
		t.Fatalf("StatusLabel(AWARDED) = %q", got)
	}
}
