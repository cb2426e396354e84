package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// MatchQuery filters GET /matches.
type MatchQuery struct {
	Competitions []string
	From, To     time.Time
	// Statuses defaults to DefaultListStatuses when empty.
	Statuses []Status
}

func (q MatchQuery) values() url.Values {
	v := url.Values{}
	if len(q.Competitions) > 0 {
		v.Set("competitions", strings.Join(q.Competitions, ","))
	}
	if !q.From.IsZero() {
		v.Set("dateFrom", q.From.UTC().Format(dateLayout))
	}
	if !q.To.IsZero() {
		v.Set("dateTo", q.To.UTC().Format(dateLayout))
	}
	statuses := q.Statuses
	if len(statuses) == 0 {
		statuses = DefaultListStatuses
	}
	parts := make([]string, 0, len(statuses))
	for _, s := range statuses {
		parts = append(parts, string(s))
	}
	v.Set("status", strings.Join(parts, ","))
	return v
}

// Match fetches one fixture including lineups when published.
func (g *Gateway) Match(ctx context.Context, id int64) (Match, error) {
	body, err := g.Fetch(ctx, "matches/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		return Match{}, err
	}
	var m Match
	if err := json.Unmarshal(body, &m); err != nil {
		return Match{}, fmt.Errorf("decode match %d: %w", id, err)
	}
	return m, nil
}

// Matches lists fixtures matching q.
func (g *Gateway) Matches(ctx context.Context, q MatchQuery) ([]Match, error) {
	body, err := g.Fetch(ctx, "matches", q.values())
	if err != nil {
		return nil, err
	}
	var r matchesResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode matches: %w", err)
	}
	return r.Matches, nil
}
