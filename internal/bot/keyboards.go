package bot

import (
	tele "gopkg.in/telebot.v4"

	"matchbot/internal/fixtures"
	"matchbot/internal/provider"
	"matchbot/internal/storage"
	"matchbot/pkg/tgui"
)

// Callback actions.
const (
	actLeagues = "leagues"
	actLeague  = "league"
	actMatch   = "match"
	actSub     = "sub"
	actUnsub   = "unsub"
	actLineups = "lineups"
	actMine    = "mine"
	actAll     = "all"
	actNoop    = "noop"
)

const pageSize = fixtures.MaxListed

func leaguesKeyboard() *tgui.Inline {
	btns := make([]tele.Btn, 0, len(provider.Leagues))
	for _, l := range provider.Leagues {
		btns = append(btns, tgui.Btn(l.Name, tgui.Data(actLeague, l.Code)))
	}
	return tgui.NewInline().
		Grid(2, btns).
		Row(tgui.Btn("📋 All matches", tgui.Data(actAll, "0"))).
		Row(tgui.Btn("🔔 My reminders", actMine))
}

func backToLeagues() tele.Btn { return tgui.Btn("⬅️ Leagues", actLeagues) }

func matchesKeyboard(ms []provider.Match) *tgui.Inline {
	kb := tgui.NewInline()
	for _, m := range ms {
		kb.Row(tgui.Btn(fixtures.ButtonLabel(m), tgui.DataID(actMatch, m.ID)))
	}
	return kb
}

func pageKeyboard(p tgui.Page[provider.Match]) *tgui.Inline {
	kb := matchesKeyboard(p.Items)
	nav := make([]tele.Btn, 0, 3)
	if p.HasPrev {
		nav = append(nav, tgui.Btn("◀️", tgui.DataID(actAll, int64(p.Page-1))))
	}
	if p.Pages > 1 {
		nav = append(nav, tgui.Btn(p.Label(), actNoop))
	}
	if p.HasNext {
		nav = append(nav, tgui.Btn("▶️", tgui.DataID(actAll, int64(p.Page+1))))
	}
	return kb.Row(nav...).Row(backToLeagues())
}

func matchKeyboard(m provider.Match, subscribed bool) *tgui.Inline {
	kb := tgui.NewInline()
	if subscribed {
		kb.Row(tgui.Btn("🔕 Cancel reminder", tgui.DataID(actUnsub, m.ID)))
	} else if !m.Status.Live() && m.Status != provider.StatusFinished {
		kb.Row(tgui.Btn("🔔 Remind me", tgui.DataID(actSub, m.ID)))
	}
	if m.HasLineups() {
		kb.Row(tgui.Btn("📋 Lineups", tgui.DataID(actLineups, m.ID)))
	}
	back := backToLeagues()
	if _, ok := provider.LeagueByCode(m.Competition.Code); ok {
		back = tgui.Btn("⬅️ Back", tgui.Data(actLeague, m.Competition.Code))
	}
	return kb.Row(back)
}

func mineKeyboard(subs []storage.Subscription) *tgui.Inline {
	kb := tgui.NewInline()
	for _, s := range subs {
		kb.Row(tgui.Btn(s.Home+" – "+s.Away, tgui.DataID(actMatch, s.FixtureID)))
	}
	return kb.Row(backToLeagues())
}
