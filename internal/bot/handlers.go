package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"matchbot/internal/fixtures"
	"matchbot/internal/provider"
	"matchbot/internal/storage"
	logx "matchbot/pkg/logx"
	"matchbot/pkg/tgui"
)

type Fixtures interface {
	Match(ctx context.Context, id int64) (provider.Match, error)
	Upcoming(ctx context.Context, league string) ([]provider.Match, error)
	All(ctx context.Context) ([]provider.Match, error)
}

type Subscriptions interface {
	Subscribe(ctx context.Context, userID, fixtureID int64) (provider.Match, error)
	Unsubscribe(ctx context.Context, userID, fixtureID int64) (bool, error)
	IsSubscribed(ctx context.Context, userID, fixtureID int64) (bool, error)
	Snapshot(ctx context.Context, userID, fixtureID int64) (storage.Subscription, error)
	Mine(ctx context.Context, userID int64) ([]storage.Subscription, error)
}

type Users interface {
	EnsureUser(ctx context.Context, u storage.User) (bool, error)
}

type Bonus interface {
	Schedule(userID int64) bool
}

type StatusSource interface {
	Status(ctx context.Context) Status
}

// Deps wires the handlers. Bonus and Status may be nil.
type Deps struct {
	Fixtures    Fixtures
	Subs        Subscriptions
	Users       Users
	Bonus       Bonus
	BonusAmount int64
	Status      StatusSource
	DaysAhead   int
}

type handlers struct {
	Deps
}

// Register installs every command and callback on r.
func Register(r *Router, d Deps) {
	if d.DaysAhead <= 0 {
		d.DaysAhead = 7
	}
	h := &handlers{Deps: d}

	r.Command(Command{Name: "start", Description: "Choose a league", Handle: h.start})
	r.Command(Command{Name: "mine", Description: "My reminders", Handle: h.mine})
	r.Command(Command{Name: "all", Description: "All upcoming matches", Timeout: 2 * time.Minute, Handle: h.all})
	r.Command(Command{Name: "status", Access: AccessOwnerOnly, Handle: h.status})

	r.Callback(Callback{Action: actLeagues, Handle: h.leagues})
	r.Callback(Callback{Action: actLeague, Handle: h.league})
	r.Callback(Callback{Action: actMatch, Handle: h.match})
	r.Callback(Callback{Action: actSub, Handle: h.subscribe})
	r.Callback(Callback{Action: actUnsub, Handle: h.unsubscribe})
	r.Callback(Callback{Action: actLineups, Handle: h.lineups})
	r.Callback(Callback{Action: actMine, Handle: h.mine})
	r.Callback(Callback{Action: actAll, Timeout: 2 * time.Minute, Handle: h.all})
	r.Callback(Callback{Action: actNoop, Handle: func(context.Context, *Request) error { return nil }})

	r.Fallback(h.pickLeague)
	r.OnError(func(ctx context.Context, req *Request) error {
		_ = req.Answer(ctx, "⚠️ Something went wrong")
		return req.Reply(ctx, tgui.New().Line("⚠️ Something went wrong. Please try again.").Inline(leaguesKeyboard()).Build())
	})
}

func (h *handlers) start(ctx context.Context, req *Request) error {
	created, err := h.Users.EnsureUser(ctx, storage.User{ID: req.FromID, Username: req.Username, FirstName: req.FirstName})
	if err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	bonus := false
	if created && h.Bonus != nil {
		bonus = h.Bonus.Schedule(req.FromID)
	}

	name := req.FirstName
	if name == "" {
		name = "there"
	}
	b := tgui.New().
		Line("👋 Hello, " + name + "!").
		Blank().
		Line("⚽ Follow fixtures of the top 5 European leagues, check lineups and get reminders 1 hour and 15 minutes before kickoff.")
	if bonus {
		b.Blank().Line(fmt.Sprintf("🎁 A welcome bonus of %d will be added to your balance in 1-2 minutes!", h.BonusAmount))
	}
	b.Blank().Line("Choose a league below:")
	return req.Reply(ctx, b.Inline(leaguesKeyboard()).Build())
}

func (h *handlers) pickLeague(ctx context.Context, req *Request) error {
	return req.Reply(ctx, tgui.New().Line("Choose a league:").Inline(leaguesKeyboard()).Build())
}

func (h *handlers) leagues(ctx context.Context, req *Request) error {
	return req.Show(ctx, tgui.New().Line("Choose a league:").Inline(leaguesKeyboard()).Build())
}

func (h *handlers) unavailable(ctx context.Context, req *Request, id int64) error {
	var links []fixtures.Link
	if s, err := h.Subs.Snapshot(ctx, req.FromID, id); err == nil {
		links = fixtures.GenerateLinks(id, s.Home, s.Away, s.League)
	} else {
		links = fixtures.GenerateLinks(id, "", "", "")
	}
	kb := tgui.NewInline().Row(backToLeagues())
	return req.Show(ctx, tgui.New().H(fixtures.UnavailableMessage(links)).Inline(kb).Build())
}

func (h *handlers) league(ctx context.Context, req *Request) error {
	l, ok := provider.LeagueByCode(req.Payload)
	if !ok {
		return req.Show(ctx, tgui.New().Line("❌ Unknown league.").Inline(leaguesKeyboard()).Build())
	}
	_ = req.Show(ctx, tgui.New().Line("⏳ "+l.Name+": loading matches...").Build())

	ms, err := h.Fixtures.Upcoming(ctx, l.Code)
	if errors.Is(err, fixtures.ErrUnavailable) {
		req.Logger.Warn("league listing unavailable", logx.String("league", l.Code), logx.Err(err))
		return req.Show(ctx, tgui.New().Line("⚠️ Match data is unavailable right now. Please try again later.").Inline(leaguesKeyboard()).Build())
	}
	if err != nil {
		return err
	}
	if len(ms) == 0 {
		msg := tgui.New().Line(fmt.Sprintf("⚽ %s\nNo matches in the next %d days.", l.Name, h.DaysAhead))
		return req.Show(ctx, msg.Inline(leaguesKeyboard()).Build())
	}
	msg := tgui.New().
		Title("🏆", fmt.Sprintf("%s: matches in the next %d days", l.Name, h.DaysAhead)).
		Blank().
		Line("Tap a match for details, lineups and reminders.")
	return req.Show(ctx, msg.Inline(matchesKeyboard(ms).Row(backToLeagues())).Build())
}

func (h *handlers) all(ctx context.Context, req *Request) error {
	page, _ := strconv.Atoi(req.Payload)
	if req.IsCallback() {
		_ = req.Answer(ctx, "⏳ Loading...")
	}
	ms, err := h.Fixtures.All(ctx)
	if errors.Is(err, fixtures.ErrUnavailable) {
		return req.Show(ctx, tgui.New().Line("⚠️ Match data is unavailable right now. Please try again later.").Inline(leaguesKeyboard()).Build())
	}
	if err != nil {
		return err
	}
	if len(ms) == 0 {
		return req.Show(ctx, tgui.New().Line(fmt.Sprintf("No matches in the next %d days.", h.DaysAhead)).Inline(leaguesKeyboard()).Build())
	}
	p := tgui.Paginate(ms, page, pageSize)
	msg := tgui.New().
		Title("📋", fmt.Sprintf("All matches in the next %d days", h.DaysAhead)).
		Line(fmt.Sprintf("%d matches, %s", p.Total, p.Label()))
	return req.Show(ctx, msg.Inline(pageKeyboard(p)).Build())
}

func parseID(payload string) (int64, bool) {
	id, err := strconv.ParseInt(payload, 10, 64)
	return id, err == nil && id > 0
}

func (h *handlers) card(ctx context.Context, req *Request, m provider.Match) error {
	subscribed, err := h.Subs.IsSubscribed(ctx, req.FromID, m.ID)
	if err != nil {
		return err
	}
	return req.Show(ctx, tgui.New().H(fixtures.MatchCard(m, subscribed)).Inline(matchKeyboard(m, subscribed)).Build())
}

func (h *handlers) match(ctx context.Context, req *Request) error {
	id, ok := parseID(req.Payload)
	if !ok {
		return req.Answer(ctx, "❌ Invalid match")
	}
	m, err := h.Fixtures.Match(ctx, id)
	if errors.Is(err, fixtures.ErrUnavailable) {
		return h.unavailable(ctx, req, id)
	}
	if err != nil {
		return err
	}
	return h.card(ctx, req, m)
}

func (h *handlers) subscribe(ctx context.Context, req *Request) error {
	id, ok := parseID(req.Payload)
	if !ok {
		return req.Answer(ctx, "❌ Invalid match")
	}
	m, err := h.Subs.Subscribe(ctx, req.FromID, id)
	switch {
	case errors.Is(err, fixtures.ErrStarted):
		return req.Answer(ctx, "⏱ This match has already started")
	case errors.Is(err, fixtures.ErrUnavailable):
		return req.Answer(ctx, "❌ Could not load match data, try again later")
	case err != nil:
		return err
	}
	req.Logger.Info("subscribed", logx.Int64("fixture_id", id))
	_ = req.Answer(ctx, "✅ Reminder set")
	return h.card(ctx, req, m)
}

func (h *handlers) unsubscribe(ctx context.Context, req *Request) error {
	id, ok := parseID(req.Payload)
	if !ok {
		return req.Answer(ctx, "❌ Invalid match")
	}
	if _, err := h.Subs.Unsubscribe(ctx, req.FromID, id); err != nil {
		return err
	}
	_ = req.Answer(ctx, "🔕 Reminder cancelled")
	m, err := h.Fixtures.Match(ctx, id)
	if err != nil {
		// The toast already confirmed; keep the old card.
		return nil
	}
	return h.card(ctx, req, m)
}

func (h *handlers) lineups(ctx context.Context, req *Request) error {
	id, ok := parseID(req.Payload)
	if !ok {
		return req.Answer(ctx, "❌ Invalid match")
	}
	m, err := h.Fixtures.Match(ctx, id)
	if errors.Is(err, fixtures.ErrUnavailable) {
		return h.unavailable(ctx, req, id)
	}
	if err != nil {
		return err
	}
	links := fixtures.GenerateLinks(m.ID, m.HomeTeam.DisplayName(), m.AwayTeam.DisplayName(), m.Competition.Code)
	b := tgui.New()
	if m.HasLineups() {
		b.H(fixtures.LineupsMessage(m))
	} else {
		b.Line("❌ Lineups for this match have not been announced yet.")
	}
	b.Blank().H(fixtures.LinksMessage(links))

	subscribed, err := h.Subs.IsSubscribed(ctx, req.FromID, m.ID)
	if err != nil {
		return err
	}
	return req.Show(ctx, b.Inline(matchKeyboard(m, subscribed)).Build())
}

func (h *handlers) mine(ctx context.Context, req *Request) error {
	subs, err := h.Subs.Mine(ctx, req.FromID)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return req.Show(ctx, tgui.New().Line("🔕 You have no active reminders.").Blank().Line("Choose a league:").Inline(leaguesKeyboard()).Build())
	}
	b := tgui.New().Title("🔔", "My reminders").Blank()
	for _, s := range subs {
		b.Line("• " + s.Home + " – " + s.Away + " (" + fixtures.Kickoff(s.Kickoff) + ")")
	}
	return req.Show(ctx, b.Inline(mineKeyboard(subs)).Build())
}

func (h *handlers) status(ctx context.Context, req *Request) error {
	if h.Status == nil {
		return req.Reply(ctx, tgui.New().Line("Status is not available.").Build())
	}
	return req.Reply(ctx, tgui.New().H(statusMessage(h.Status.Status(ctx))).Build())
}
