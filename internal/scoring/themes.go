package scoring

import (
	"sort"
	"strings"
)

// DefaultThemeLimit caps how many detected themes are returned.
const DefaultThemeLimit = 3

const (
	themeKeywordPoints = 20
	themeTickerPoints  = 15

	// Headlines quoted as a theme's trigger events.
	maxTriggerEvents = 3
)

// themeDefinitions maps each trackable theme to its trigger keywords and
// representative tickers. Checked in slice order so ties resolve the
// same way every run.
var themeDefinitions = []struct {
	id       string
	display  string
	keywords []string
	tickers  []string
}{
	{
		id:       "ai-server",
		display:  "AI Server Supply Chain",
		keywords: []string{"ai server", "gpu", "data center", "hbm", "cowos", "nvidia", "amd gpu"},
		tickers:  []string{"NVDA", "AMD", "TSM", "AVGO", "MU", "SMCI"},
	},
	{
		id:       "ai-software",
		display:  "AI Software & Applications",
		keywords: []string{"ai software", "chatgpt", "copilot", "generative ai", "llm", "openai"},
		tickers:  []string{"MSFT", "GOOGL", "META", "CRM", "ADBE", "NOW"},
	},
	{
		id:       "semiconductor",
		display:  "Semiconductors",
		keywords: []string{"semiconductor", "chip", "wafer", "foundry", "tsmc", "asml"},
		tickers:  []string{"TSM", "ASML", "AMAT", "LRCX", "KLAC", "INTC"},
	},
	{
		id:       "ev",
		display:  "Electric Vehicles",
		keywords: []string{"electric vehicle", "ev", "tesla", "battery", "charging"},
		tickers:  []string{"TSLA", "RIVN", "LCID", "NIO", "LI", "XPEV"},
	},
	{
		id:       "cloud",
		display:  "Cloud Computing",
		keywords: []string{"cloud", "aws", "azure", "gcp", "saas", "iaas"},
		tickers:  []string{"AMZN", "MSFT", "GOOGL", "CRM", "NOW", "SNOW"},
	},
	{
		id:       "biotech",
		display:  "Biotech & Pharma",
		keywords: []string{"biotech", "pharma", "drug", "fda", "clinical trial", "obesity"},
		tickers:  []string{"LLY", "NVO", "AMGN", "GILD", "BIIB", "MRNA"},
	},
	{
		id:       "fintech",
		display:  "Fintech & Payments",
		keywords: []string{"fintech", "payment", "crypto", "bitcoin", "blockchain"},
		tickers:  []string{"V", "MA", "PYPL", "SQ", "COIN", "HOOD"},
	},
}

// DetectThemes scans scored events for theme keywords and ticker
// activity. Each matched keyword contributes 20 points and each active
// representative ticker 15; themes scoring zero are dropped. Returns up
// to limit themes, best first. Pass a non-positive limit for the
// default.
func DetectThemes(events []ScoredEvent, limit int) []Theme {
	if limit <= 0 {
		limit = DefaultThemeLimit
	}

	texts := make([]string, len(events))
	tickerCounts := make(map[string]int)
	for i, e := range events {
		texts[i] = strings.ToLower(e.Event.Title + " " + e.Event.Summary)
		for _, t := range e.Event.Tickers {
			tickerCounts[t]++
		}
	}
	combined := strings.Join(texts, " ")

	var themes []Theme
	for _, def := range themeDefinitions {
		var matched []string
		var eventIDs []string
		seen := make(map[string]bool)

		for _, kw := range def.keywords {
			if !strings.Contains(combined, kw) {
				continue
			}
			matched = append(matched, kw)
			for i, text := range texts {
				if len(eventIDs) >= maxTriggerEvents {
					break
				}
				id := events[i].Event.ID
				if strings.Contains(text, kw) && !seen[id] {
					seen[id] = true
					eventIDs = append(eventIDs, id)
				}
			}
		}

		var active []string
		for _, t := range def.tickers {
			if tickerCounts[t] > 0 {
				active = append(active, t)
			}
		}

		score := float64(len(matched)*themeKeywordPoints + len(active)*themeTickerPoints)
		if score == 0 {
			continue
		}

		relevant := active
		if len(relevant) == 0 {
			relevant = def.tickers[:3]
		}
		themes = append(themes, Theme{
			ID:              def.id,
			DisplayName:     def.display,
			Score:           score,
			MatchedKeywords: matched,
			Tickers:         relevant,
			EventIDs:        eventIDs,
		})
	}

	sort.SliceStable(themes, func(i, j int) bool {
		return themes[i].Score > themes[j].Score
	})

	if len(themes) > limit {
		themes = themes[:limit]
	}
	return themes
}

// ClassifyText scores free text against every tracked theme and returns
// the best-matching theme id with its keyword-hit count. Used to check
// that a trend piece actually discusses the theme its title claims.
func ClassifyText(text string) (string, int) {
	lower := strings.ToLower(text)
	bestID := ""
	bestHits := 0
	for _, def := range themeDefinitions {
		hits := 0
		for _, kw := range def.keywords {
			hits += strings.Count(lower, kw)
		}
		if hits > bestHits {
			bestHits = hits
			bestID = def.id
		}
	}
	return bestID, bestHits
}

// ThemeKeywordHits counts occurrences of a specific theme's keywords in
// the given text. Returns zero for unknown theme ids.
func ThemeKeywordHits(themeID, text string) int {
	lower := strings.ToLower(text)
	for _, def := range themeDefinitions {
		if def.id != themeID {
			continue
		}
		hits := 0
		for _, kw := range def.keywords {
			hits += strings.Count(lower, kw)
		}
		return hits
	}
	return 0
}

// SelectTheme returns the strongest detected theme, or the standing AI
// infrastructure fallback when nothing triggered so the trend piece
// always has a subject.
func SelectTheme(themes []Theme) Theme {
	if len(themes) == 0 {
		return Theme{
			ID:          "ai-server",
			DisplayName: "AI Server Supply Chain",
			Score:       0,
			Tickers:     []string{"NVDA", "AMD", "TSM"},
		}
	}
	return themes[0]
}
