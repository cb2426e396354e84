package provider

import (
	"strings"
	"time"
)

// Status is a fixture lifecycle state as reported by football-data.org.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusTimed     Status = "TIMED"
	StatusLive      Status = "LIVE"
	StatusInPlay    Status = "IN_PLAY"
	StatusPaused    Status = "PAUSED"
	StatusFinished  Status = "FINISHED"
	StatusPostponed Status = "POSTPONED"
	StatusSuspended Status = "SUSPENDED"
	StatusCancelled Status = "CANCELLED"
)

// DefaultListStatuses is the status filter used for fixture listings.
var DefaultListStatuses = []Status{StatusScheduled, StatusLive, StatusInPlay, StatusPaused, StatusFinished}

func (s Status) Live() bool { return s == StatusLive || s == StatusInPlay || s == StatusPaused }

// Match is a single fixture from /matches or /matches/{id}.
type Match struct {
	ID          int64       `json:"id"`
	UTCDate     time.Time   `json:"utcDate"`
	Status      Status      `json:"status"`
	Matchday    int         `json:"matchday,omitempty"`
	Venue       string      `json:"venue,omitempty"`
	Attendance  *int        `json:"attendance,omitempty"`
	Competition Competition `json:"competition"`
	HomeTeam    Team        `json:"homeTeam"`
	AwayTeam    Team        `json:"awayTeam"`
	Score       Score       `json:"score"`
}

type Competition struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

type Team struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	ShortName string   `json:"shortName,omitempty"`
	TLA       string   `json:"tla,omitempty"`
	Formation string   `json:"formation,omitempty"`
	Coach     *Coach   `json:"coach,omitempty"`
	Lineup    []Player `json:"lineup,omitempty"`
	Bench     []Player `json:"bench,omitempty"`
}

type Coach struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Player struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Position    string `json:"position,omitempty"`
	ShirtNumber *int   `json:"shirtNumber,omitempty"`
}

type Score struct {
	Winner   string    `json:"winner,omitempty"`
	FullTime ScorePair `json:"fullTime"`
}

type ScorePair struct {
	Home *int `json:"home"`
	Away *int `json:"away"`
}

// HasLineups reports whether either side has announced a lineup.
func (m Match) HasLineups() bool {
	return len(m.HomeTeam.Lineup) > 0 || len(m.AwayTeam.Lineup) > 0
}

// DisplayName returns a non-empty name for t.
func (t Team) DisplayName() string {
	if n := strings.TrimSpace(t.Name); n != "" {
		return n
	}
	if n := strings.TrimSpace(t.ShortName); n != "" {
		return n
	}
	return "Unknown"
}

type matchesResponse struct {
	Matches []Match `json:"matches"`
}

// League is one of the supported competitions.
type League struct {
	Code    string
	Name    string
	Country string
}

// Leagues lists the supported competitions in display order.
var Leagues = []League{
	{Code: "PL", Name: "🏴󠁧󠁢󠁥󠁮󠁧󠁿 Premier League", Country: "England"},
	{Code: "PD", Name: "🇪🇸 La Liga", Country: "Spain"},
	{Code: "SA", Name: "🇮🇹 Serie A", Country: "Italy"},
	{Code: "BL1", Name: "🇩🇪 Bundesliga", Country: "Germany"},
	{Code: "FL1", Name: "🇫🇷 Ligue 1", Country: "France"},
}

// LeagueByCode looks up a supported competition.
func LeagueByCode(code string) (League, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, l := range Leagues {
		if l.Code == code {
			return l, true
		}
	}
	return League{}, false
}
