package fixtures

import (
	"fmt"
	"strings"
)

// Link is an external page about a fixture.
type Link struct {
	Name string
	URL  string
}

// GenerateLinks returns deep links for a fixture in display order:
// ESPN, league-specific outlets, Sky Sports, FlashScore and SofaScore.
// Sky Sports needs both team names and is left out without them.
func GenerateLinks(id int64, home, away, league string) []Link {
	links := []Link{{"📺 ESPN", fmt.Sprintf("https://www.espn.com/soccer/match/_/gameId/%d", id)}}
	if league == "PL" {
		links = append(links, Link{"📰 BBC Sport", fmt.Sprintf("https://www.bbc.com/sport/football/%d", id)})
	}
	if slug(home) != "" && slug(away) != "" {
		links = append(links, Link{"⚡ Sky Sports", fmt.Sprintf("https://www.skysports.com/football/%s-vs-%s/%d", slug(home), slug(away), id)})
	}
	switch league {
	case "PD":
		links = append(links,
			Link{"📘 MARCA", fmt.Sprintf("https://www.marca.com/futbol/primera-division/%d.html", id)},
			Link{"📙 AS", fmt.Sprintf("https://as.com/futbol/primera/%d.html", id)},
		)
	case "SA":
		links = append(links,
			Link{"📗 La Gazzetta", fmt.Sprintf("https://www.gazzetta.it/calcio/serie-a/match-%d.shtml", id)},
			Link{"📕 Corriere", fmt.Sprintf("https://www.corriere.it/calcio/serie-a/%d.shtml", id)},
		)
	case "BL1":
		links = append(links,
			Link{"📘 Kicker", fmt.Sprintf("https://www.kicker.de/%d/aufstellung", id)},
			Link{"📙 Bild", fmt.Sprintf("https://www.bild.de/sport/fussball/bundesliga/%d.html", id)},
		)
	case "FL1":
		links = append(links,
			Link{"📗 L'Equipe", fmt.Sprintf("https://www.lequipe.fr/Football/match/%d", id)},
			Link{"📕 RMC Sport", fmt.Sprintf("https://rmcsport.bfmtv.com/football/match-%d.html", id)},
		)
	}
	return append(links,
		Link{"⚽ FlashScore", fmt.Sprintf("https://www.flashscore.com/match/%d/#/lineups", id)},
		Link{"📊 SofaScore", fmt.Sprintf("https://www.sofascore.com/football/match/%d", id)},
	)
}

// First returns at most n links.
func First(links []Link, n int) []Link {
	if n < len(links) {
		return links[:n]
	}
	return links
}

func slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}
