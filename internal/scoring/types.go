// Package scoring provides pure ranking and selection functions for the
// daily pipeline: which events the brief covers, which ticker the deep
// dive covers, and which theme the trend piece covers. All functions are
// stateless, perform no I/O, and produce a total order — identical inputs
// always yield identical output ordering.
package scoring

import "github.com/ternarybob/aestimo/internal/models"

// ImpactLevel labels the combined ticker-weight and price-move impact of
// an event.
type ImpactLevel string

const (
	ImpactHigh   ImpactLevel = "high"
	ImpactMedium ImpactLevel = "medium"
	ImpactLow    ImpactLevel = "low"
)

// Component weights for the total event score.
const (
	recencyWeight = 0.3
	impactWeight  = 0.5
	sourceWeight  = 0.2

	// Earnings and macro events get a boost during scoring.
	categoryBoost = 1.1
)

// Default selection bounds for the daily brief.
const (
	DefaultMinEvents = 5
	DefaultMaxEvents = 8

	// At most this many selected events may share a ticker.
	maxEventsPerTicker = 2
)

// EventScore breaks an event's total score into its components.
type EventScore struct {
	Recency      float64     `json:"recency"`
	Impact       float64     `json:"impact"`
	Source       float64     `json:"source"`
	Total        float64     `json:"total"`
	RecencyHours float64     `json:"recency_hours"`
	Level        ImpactLevel `json:"level"`
}

// ScoredEvent pairs an event candidate with its score. Event carries the
// category and price move assigned during scoring.
type ScoredEvent struct {
	Event models.EventCandidate `json:"event"`
	Score EventScore            `json:"score"`
}

// StockScore breaks a deep-dive candidate's total score into components.
// Completeness is 1.0 when both estimates and financials are available,
// 0.5 when one is, 0 when neither.
type StockScore struct {
	Price        float64 `json:"price"`
	News         float64 `json:"news"`
	Data         float64 `json:"data"`
	Total        float64 `json:"total"`
	Completeness float64 `json:"completeness"`
}

// ScoredStock pairs a stock candidate with its score and a short
// human-readable reason for the ranking.
type ScoredStock struct {
	Candidate models.StockCandidate `json:"candidate"`
	Score     StockScore            `json:"score"`
	Reason    string                `json:"reason"`
}

// Theme is a detected cross-stock theme with its supporting evidence.
type Theme struct {
	ID              string   `json:"id"`
	DisplayName     string   `json:"display_name"`
	Score           float64  `json:"score"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
	Tickers         []string `json:"tickers"`
	EventIDs        []string `json:"event_ids,omitempty"`
}

// Candidate converts a detected theme into the model used by the
// evidence builder.
func (t Theme) Candidate() models.ThemeCandidate {
	return models.ThemeCandidate{
		Slug:     t.ID,
		Title:    t.DisplayName,
		Tickers:  t.Tickers,
		EventIDs: t.EventIDs,
	}
}
