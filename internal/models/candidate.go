package models

import "time"

// EventCategory buckets a news event for scoring boosts and theme
// detection.
type EventCategory string

const (
	CategoryEarnings EventCategory = "earnings"
	CategoryMacro    EventCategory = "macro"
	CategoryPolicy   EventCategory = "policy"
	CategoryMA       EventCategory = "ma"
	CategoryProduct  EventCategory = "product"
	CategoryLegal    EventCategory = "legal"
	CategoryOther    EventCategory = "other"
)

// NewsSource is one reporting outlet for an event.
type NewsSource struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	Wire        bool      `json:"wire,omitempty"` // PR-wire / press-release distribution
}

// EventCandidate is a deduplicated market event under consideration for
// the daily brief. Category and PriceMovePct are filled in by scoring.
type EventCandidate struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Summary      string        `json:"summary,omitempty"` // body text of the first report
	Tickers      []string      `json:"tickers"`
	Category     EventCategory `json:"category,omitempty"`
	PublishedAt  time.Time     `json:"published_at"`
	Sources      []NewsSource  `json:"sources"`
	PriceMovePct float64       `json:"price_move_pct"` // signed day move of the most affected ticker
}

// PrimaryTicker returns the first ticker, or empty. Used as the stable
// secondary sort key.
func (e *EventCandidate) PrimaryTicker() string {
	if len(e.Tickers) == 0 {
		return ""
	}
	return e.Tickers[0]
}

// StockCandidate is a ticker under consideration for the deep dive.
type StockCandidate struct {
	Ticker        string  `json:"ticker"`
	PriceMovePct  float64 `json:"price_move_pct"`
	NewsCount     int     `json:"news_count"`
	HasEstimates  bool    `json:"has_estimates"`
	HasFinancials bool    `json:"has_financials"`
}

// ThemeCandidate is a detected cross-stock theme.
type ThemeCandidate struct {
	Slug     string   `json:"slug"`
	Title    string   `json:"title"`
	Tickers  []string `json:"tickers"`
	EventIDs []string `json:"event_ids,omitempty"`
}
