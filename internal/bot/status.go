package bot

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"matchbot/internal/fixtures"
	"matchbot/internal/reminder"
	"matchbot/pkg/tgui"
)

// Status is the operator view rendered by /status.
type Status struct {
	Uptime           time.Duration
	LastProviderCall time.Time
	ProviderWaiting  int64
	// CachedMatches is -1 when the backend cannot count entries.
	CachedMatches  int
	PendingBonuses int
	Users          int
	DroppedEvents  uint64
	LastPass       *reminder.PassResult
}

func statusMessage(s Status) tgui.H {
	b := tgui.New().Title("🛠", "Bot status").Blank()
	b.KV("Uptime", s.Uptime.Truncate(time.Second).String())
	if s.LastProviderCall.IsZero() {
		b.KV("Last provider call", "never")
	} else {
		b.KV("Last provider call", fixtures.Kickoff(s.LastProviderCall))
	}
	b.KV("Waiting for provider", strconv.FormatInt(s.ProviderWaiting, 10))
	if s.CachedMatches >= 0 {
		b.KV("Cached matches", strconv.Itoa(s.CachedMatches))
	}
	b.KV("Pending bonuses", strconv.Itoa(s.PendingBonuses))
	b.KV("Users", strconv.Itoa(s.Users))
	if s.DroppedEvents > 0 {
		b.KV("Dropped events", strconv.FormatUint(s.DroppedEvents, 10))
	}

	b.Blank()
	if s.LastPass == nil {
		return b.Line("No reminder pass yet.").Text()
	}
	p := s.LastPass
	b.H(tgui.B("Last reminder pass"))
	b.KV("At", fixtures.Kickoff(p.At))
	b.KV("Took", p.Duration.Round(time.Millisecond).String())
	b.KV("Subscriptions", fmt.Sprintf("%d in %d groups", p.Subscriptions, p.Groups))
	stages := make([]string, 0, len(p.Sent))
	for st := range p.Sent {
		stages = append(stages, st)
	}
	sort.Strings(stages)
	for _, st := range stages {
		b.KV("Sent "+st, strconv.Itoa(p.Sent[st]))
	}
	b.KV("Failures", strconv.Itoa(p.Failures))
	b.KV("Error", p.Error)
	return b.Text()
}
