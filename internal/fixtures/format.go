package fixtures

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"matchbot/internal/provider"
	"matchbot/pkg/tgui"
)

const (
	kickoffLayout = "02.01.2006 15:04"
	lineupSize    = 11
	rule          = "━━━━━━━━━━━━━━━━━━━━"

	// Link counts per message kind.
	LinksInLineup   = 5
	LinksInFallback = 4
	LinksInFifteen  = 5
)

var statusLabels = map[provider.Status]string{
	provider.StatusScheduled: "🕒 Scheduled",
	provider.StatusTimed:     "🕒 Scheduled",
	provider.StatusLive:      "🔴 Live",
	provider.StatusInPlay:    "🔴 In play",
	provider.StatusPaused:    "⏸ Half-time",
	provider.StatusFinished:  "✅ Finished",
	provider.StatusPostponed: "⏳ Postponed",
	provider.StatusSuspended: "⚠️ Suspended",
	provider.StatusCancelled: "❌ Cancelled",
}

func StatusLabel(s provider.Status) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	if s == "" {
		return "Unknown"
	}
	return string(s)
}

// Kickoff formats a kickoff time in UTC.
func Kickoff(t time.Time) string {
	return t.UTC().Format(kickoffLayout) + " UTC"
}

func positionIcon(pos string) string {
	switch {
	case strings.Contains(pos, "Goalkeeper"):
		return "🥅"
	case strings.Contains(pos, "Defence"), strings.Contains(pos, "Defender"), strings.Contains(pos, "Back"):
		return "🛡️"
	case strings.Contains(pos, "Midfield"):
		return "⚡"
	default:
		return "🎯"
	}
}

// LineupsMessage renders both starting elevens. Callers check HasLineups first.
func LineupsMessage(m provider.Match) tgui.H {
	home, away := m.HomeTeam.DisplayName(), m.AwayTeam.DisplayName()
	b := tgui.New().Title("⚽", home+" vs "+away).Blank()
	b.KV("🏟️ Venue", m.Venue)
	if m.Attendance != nil && *m.Attendance > 0 {
		b.KV("👥 Attendance", strconv.Itoa(*m.Attendance))
	}
	writeTeam(b, "🏠", m.HomeTeam)
	writeTeam(b, "🛣️", m.AwayTeam)
	return b.Text()
}

func writeTeam(b *tgui.Builder, icon string, t provider.Team) {
	head := tgui.Esc(icon+" ") + tgui.B(t.DisplayName())
	if t.Formation != "" {
		head += tgui.Esc(" (" + t.Formation + ")")
	}
	if t.Coach != nil && strings.TrimSpace(t.Coach.Name) != "" {
		head += tgui.Esc(" – Coach: " + t.Coach.Name)
	}
	b.Blank().H(head).Line(rule)
	if len(t.Lineup) == 0 {
		b.Line("❌ Lineup not announced")
		return
	}
	for i, p := range t.Lineup {
		if i == lineupSize {
			break
		}
		shirt := ""
		if p.ShirtNumber != nil {
			shirt = strconv.Itoa(*p.ShirtNumber)
		}
		line := fmt.Sprintf("%s %s – %s", positionIcon(p.Position), shirt, p.Name)
		if p.Position != "" {
			line += " (" + p.Position + ")"
		}
		b.Line(line)
	}
}

func linkLines(b *tgui.Builder, links []Link) {
	for _, l := range links {
		b.H("• " + tgui.Link(l.Name, l.URL))
	}
}

// LinksMessage lists the first LinksInLineup links.
func LinksMessage(links []Link) tgui.H {
	b := tgui.New().Title("🔗", "Check the lineups on trusted sites:").Blank()
	linkLines(b, First(links, LinksInLineup))
	return b.Text()
}

// OneHourMessage is the one-hour-before reminder.
func OneHourMessage(home, away string, kickoff time.Time) tgui.H {
	return tgui.New().
		Title("⏰", "1 hour to go!").
		Blank().
		Line(home + " – " + away).
		Line("🕒 " + Kickoff(kickoff)).
		Blank().
		Line("📋 Lineups are expected soon.").
		Text()
}

// LineupFallbackMessage is sent when lineups are not available from the
// provider.
func LineupFallbackMessage(home, away string, links []Link) tgui.H {
	b := tgui.New().
		Title("📋", home+" – "+away).
		Blank().
		Line("❌ Lineups are not available from the data provider yet.").
		Line("🔗 Check them on these trusted sites:").
		Blank()
	linkLines(b, First(links, LinksInFallback))
	return b.Text()
}

// UnavailableMessage is shown when the provider cannot be reached.
func UnavailableMessage(links []Link) tgui.H {
	b := tgui.New().
		Line("⚠️ Match data is unavailable right now.").
		Line("🔗 You can follow the match on these sites:").
		Blank()
	linkLines(b, First(links, LinksInFallback))
	return b.Text()
}

// FifteenMinMessage is the fifteen-minutes-before reminder.
func FifteenMinMessage(home, away string, kickoff time.Time, links []Link) tgui.H {
	b := tgui.New().
		Title("⏳", "15 minutes to go!").
		Blank().
		Line(home + " – " + away).
		Line("🕒 " + Kickoff(kickoff)).
		Blank().
		Line("🔗 Live lineups and stats:").
		Blank()
	linkLines(b, First(links, LinksInFifteen))
	return b.Text()
}

// MatchCard is the fixture detail shown in the bot.
func MatchCard(m provider.Match, subscribed bool) tgui.H {
	b := tgui.New().
		Title("⚽", m.HomeTeam.DisplayName()+" – "+m.AwayTeam.DisplayName()).
		Blank()
	if l, ok := provider.LeagueByCode(m.Competition.Code); ok {
		b.KV("🏆 League", l.Name)
	} else {
		b.KV("🏆 League", m.Competition.Name)
	}
	b.KV("🕒 Kickoff", Kickoff(m.UTCDate))
	b.KV("📊 Status", StatusLabel(m.Status))
	b.KV("🏟️ Venue", m.Venue)
	if m.Status == provider.StatusFinished || m.Status.Live() {
		if s := score(m.Score.FullTime); s != "" {
			b.KV("🔢 Score", s)
		}
	}
	b.Blank()
	if subscribed {
		b.Line("🔔 You will get reminders for this match.")
	} else {
		b.Line("🔕 Tap subscribe to get reminders 1 hour and 15 minutes before kickoff.")
	}
	return b.Text()
}

func score(p provider.ScorePair) string {
	if p.Home == nil || p.Away == nil {
		return ""
	}
	return fmt.Sprintf("%d – %d", *p.Home, *p.Away)
}

// ButtonLabel is the short fixture label used in listing keyboards.
func ButtonLabel(m provider.Match) string {
	return fmt.Sprintf("%s – %s (%s)",
		m.HomeTeam.DisplayName(), m.AwayTeam.DisplayName(), m.UTCDate.UTC().Format("02.01 15:04"))
}
