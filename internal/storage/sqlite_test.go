package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	logx "matchbot/pkg/logx"
)

func openTest(t *testing.T) *SQLite {
	t.Helper()
	st, err := OpenSQLite(Config{Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestUpsertKeepsSnapshotAndFlags(t *testing.T) {
	t.Parallel()

	st := openTest(t)
	ctx := context.Background()
	kickoff := time.Date(2024, 8, 16, 19, 0, 0, 0, time.UTC)

	sub := Subscription{UserID: 1, FixtureID: 100, Kickoff: kickoff, Home: "Man Utd", Away: "Fulham", League: "PL"}
	if err := st.Upsert(ctx, sub); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := st.MarkFlags(ctx, 1, 100, Flags{OneHour: true}); err != nil {
		t.Fatalf("MarkFlags() error = %v", err)
	}

	again := sub
	again.Kickoff = kickoff.Add(2 * time.Hour)
	again.Home = "Manchester United"
	again.Away = "Fulham FC"
	again.League = "Premier League"
	if err := st.Upsert(ctx, again); err != nil {
		t.Fatalf("Upsert() again error = %v", err)
	}

	got, err := st.Get(ctx, 1, 100)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Kickoff.Equal(kickoff) {
		t.Fatalf("Kickoff = %v, want %v", got.Kickoff, kickoff)
	}
	if got.Home != "Manchester United" || got.Away != "Fulham FC" || got.League != "Premier League" {
		t.Fatalf("names = %q/%q/%q, want all refreshed", got.Home, got.Away, got.League)
	}
	if !got.Flags.OneHour || got.Flags.Lineup || got.Flags.FifteenMin {
		t.Fatalf("Flags = %+v, want only OneHour", got.Flags)
	}
}

func TestMarkFlagsNeverClears(t *testing.T) {
	t.Parallel()

	st := openTest(t)
	ctx := context.Background()
	if err := st.Upsert(ctx, Subscription{UserID: 2, FixtureID: 5, Kickoff: time.Now()}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	steps := []struct {
		mark Flags
		want Flags
	}{
		{Flags{Lineup: true}, Flags{Lineup: true}},
		{Flags{}, Flags{Lineup: true}},
		{Flags{OneHour: true, Lineup: false}, Flags{OneHour: true, Lineup: true}},
		{Flags{FifteenMin: true}, Flags{OneHour: true, FifteenMin: true, Lineup: true}},
	}
	for i, s := range steps {
		if err := st.MarkFlags(ctx, 2, 5, s.mark); err != nil {
			t.Fatalf("step %d: MarkFlags() error = %v", i, err)
		}
		got, err := st.Get(ctx, 2, 5)
		if err != nil {
			t.Fatalf("step %d: Get() error = %v", i, err)
		}
		if got.Flags != s.want {
			t.Fatalf("step %d: Flags = %+v, want %+v", i, got.Flags, s.want)
		}
	}
}

func TestRemoveAndList(t *testing.T) {
	t.Parallel()

	st := openTest(t)
	ctx := context.Background()
	base := time.Date(2024, 8, 17, 12, 0, 0, 0, time.UTC)
	for _, s := range []Subscription{
		{UserID: 1, FixtureID: 10, Kickoff: base},
		{UserID: 1, FixtureID: 11, Kickoff: base.Add(time.Hour)},
		{UserID: 2, FixtureID: 10, Kickoff: base},
	} {
		if err := st.Upsert(ctx, s); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	all, err := st.ListAll(ctx)
	if err != nil || len(all) != 3 {
		t.Fatalf("ListAll() = %d, %v, want 3", len(all), err)
	}

	removed, err := st.Remove(ctx, 1, 10)
	if err != nil || !removed {
		t.Fatalf("Remove() = %v, %v, want true", removed, err)
	}
	if removed, _ := st.Remove(ctx, 1, 10); removed {
		t.Fatal("second Remove() = true, want false")
	}
	if _, err := st.Get(ctx, 1, 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}

	mine, err := st.ListByUser(ctx, 1)
	if err != nil || len(mine) != 1 || mine[0].FixtureID != 11 {
		t.Fatalf("ListByUser() = %+v, %v", mine, err)
	}
}

func TestGrantBonusOnce(t *testing.T) {
	t.Parallel()

	st := openTest(t)
	ctx := context.Background()
	created, err := st.EnsureUser(ctx, User{ID: 7, Username: "ana"})
	if err != nil || !created {
		t.Fatalf("EnsureUser() = %v, %v, want created", created, err)
	}
	if created, _ := st.EnsureUser(ctx, User{ID: 7, Username: "ana_b"}); created {
		t.Fatal("EnsureUser() second call created = true")
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := st.GrantBonus(ctx, 7, 30000)
			if err != nil {
				t.Errorf("GrantBonus() error = %v", err)
				return
			}
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if granted != 1 {
		t.Fatalf("granted = %d, want 1", granted)
	}

	u, err := st.User(ctx, 7)
	if err != nil {
		t.Fatalf("User() error = %v", err)
	}
	if u.Balance != 30000 || !u.BonusGranted || u.Username != "ana_b" {
		t.Fatalf("user = %+v", u)
	}
	if ok, _ := st.GrantBonus(ctx, 999, 1); ok {
		t.Fatal("GrantBonus(unknown) = true, want false")
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{Driver: "sqlite"}, logx.Nop()); err == nil {
		t.Fatal("Open() error = nil, want missing path error")
	}
	if _, err := Open(Config{Driver: "bolt", Path: "x"}, logx.Nop()); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("Open(bolt) error = %v, want %v", err, ErrUnknownDriver)
	}
}
