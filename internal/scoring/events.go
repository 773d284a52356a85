package scoring

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/aestimo/internal/models"
)

// Keyword buckets for event classification, checked in order; the first
// bucket with a matching keyword wins.
var eventTypeBuckets = []struct {
	category models.EventCategory
	keywords []string
}{
	{models.CategoryEarnings, []string{
		"earnings", "revenue", "profit", "loss", "eps", "beat", "miss",
		"quarterly", "q1", "q2", "q3", "q4", "guidance", "outlook",
	}},
	{models.CategoryMacro, []string{
		"fed", "fomc", "rate", "inflation", "cpi", "ppi", "gdp", "jobs",
		"employment", "unemployment", "treasury", "yield", "bond",
	}},
	{models.CategoryPolicy, []string{
		"regulation", "policy", "law", "congress", "senate", "house",
		"tariff", "sanction", "antitrust", "sec", "ftc",
	}},
	{models.CategoryMA, []string{
		"merger", "acquisition", "acquire", "takeover", "buyout", "deal",
		"bid", "offer", "purchase",
	}},
	{models.CategoryProduct, []string{
		"launch", "announce", "unveil", "release", "new product", "innovation",
	}},
	{models.CategoryLegal, []string{
		"lawsuit", "sue", "court", "settlement", "fine", "penalty",
	}},
}

// Mega-cap tickers whose events carry extra weight.
var highImpactTickers = map[string]bool{
	"AAPL": true, "MSFT": true, "GOOGL": true, "GOOG": true, "AMZN": true,
	"NVDA": true, "META": true, "TSLA": true, "BRK.A": true, "BRK.B": true,
	"JPM": true, "JNJ": true, "V": true, "UNH": true, "HD": true, "PG": true,
	"MA": true, "DIS": true, "NFLX": true, "AMD": true, "INTC": true,
	"CRM": true, "ADBE": true, "PYPL": true,
}

// ClassifyEvent buckets an event by keywords in its headline and body.
func ClassifyEvent(title, summary string) models.EventCategory {
	combined := strings.ToLower(title + " " + summary)
	for _, bucket := range eventTypeBuckets {
		for _, kw := range bucket.keywords {
			if strings.Contains(combined, kw) {
				return bucket.category
			}
		}
	}
	return models.CategoryOther
}

// RecencyScore returns a 0-100 score and the age in hours for an event
// published at the given time, measured against asOf. The score decays
// piecewise from 100 inside the first hour to zero at 88 hours. A zero
// publish time scores neutral 50 at an assumed 24 hours.
func RecencyScore(publishedAt, asOf time.Time) (score, hours float64) {
	if publishedAt.IsZero() {
		return 50, 24
	}

	hours = asOf.Sub(publishedAt).Hours()
	switch {
	case hours <= 1:
		score = 100
	case hours <= 6:
		score = 90 - (hours-1)*2
	case hours <= 12:
		score = 80 - (hours-6)*2
	case hours <= 24:
		score = 68 - (hours-12)*2
	case hours <= 48:
		score = 44 - (hours - 24)
	default:
		score = math.Max(0, 20-(hours-48)*0.5)
	}
	return score, hours
}

// ImpactScore combines ticker importance with the largest price move
// among the event's tickers. Ticker weight is 30 per mega cap and 10
// otherwise, capped at 50; price tiers add up to 50 more.
func ImpactScore(tickers []string, priceChanges map[string]float64) (float64, ImpactLevel) {
	tickerScore := 0.0
	for _, t := range tickers {
		if highImpactTickers[t] {
			tickerScore += 30
		} else {
			tickerScore += 10
		}
	}
	if tickerScore > 50 {
		tickerScore = 50
	}

	priceScore := 0.0
	for _, t := range tickers {
		change, ok := priceChanges[t]
		if !ok {
			continue
		}
		priceScore = math.Max(priceScore, priceMoveTier(math.Abs(change)))
	}

	total := tickerScore + priceScore
	level := ImpactLow
	switch {
	case total >= 70:
		level = ImpactHigh
	case total >= 40:
		level = ImpactMedium
	}
	return total, level
}

func priceMoveTier(absChange float64) float64 {
	switch {
	case absChange >= 10:
		return 50
	case absChange >= 5:
		return 40
	case absChange >= 3:
		return 30
	case absChange >= 2:
		return 20
	case absChange >= 1:
		return 10
	default:
		return 0
	}
}

// SourceScore rewards multi-source coverage: 30 for five or more
// reporting outlets, 20 for three, 10 for two, 0 for a single source.
func SourceScore(sourceCount int) float64 {
	switch {
	case sourceCount >= 5:
		return 30
	case sourceCount >= 3:
		return 20
	case sourceCount >= 2:
		return 10
	default:
		return 0
	}
}

// ScoreEvents scores every candidate and returns them in total order:
// score descending, then primary ticker, then event ID. The returned
// events carry the category assigned during classification and the
// signed move of the most affected ticker.
func ScoreEvents(events []models.EventCandidate, priceChanges map[string]float64, asOf time.Time) []ScoredEvent {
	scored := make([]ScoredEvent, 0, len(events))
	for _, event := range events {
		event.Category = ClassifyEvent(event.Title, event.Summary)
		event.PriceMovePct = largestMove(event.Tickers, priceChanges)

		recency, hours := RecencyScore(event.PublishedAt, asOf)
		impact, level := ImpactScore(event.Tickers, priceChanges)
		source := SourceScore(len(event.Sources))

		total := recency*recencyWeight + impact*impactWeight + source*sourceWeight
		if event.Category == models.CategoryEarnings || event.Category == models.CategoryMacro {
			total *= categoryBoost
		}
		total = math.Min(100, total)

		scored = append(scored, ScoredEvent{
			Event: event,
			Score: EventScore{
				Recency:      recency,
				Impact:       impact,
				Source:       source,
				Total:        total,
				RecencyHours: hours,
				Level:        level,
			},
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score.Total != scored[j].Score.Total {
			return scored[i].Score.Total > scored[j].Score.Total
		}
		ti, tj := scored[i].Event.PrimaryTicker(), scored[j].Event.PrimaryTicker()
		if ti != tj {
			return ti < tj
		}
		return scored[i].Event.ID < scored[j].Event.ID
	})
	return scored
}

// largestMove returns the signed change of the ticker with the biggest
// absolute move, or 0 when no price data covers the event.
func largestMove(tickers []string, priceChanges map[string]float64) float64 {
	move := 0.0
	for _, t := range tickers {
		change, ok := priceChanges[t]
		if !ok {
			continue
		}
		if math.Abs(change) > math.Abs(move) {
			move = change
		}
	}
	return move
}

// SelectTopEvents picks the brief's events from an already-sorted scored
// list. At most maxCount events are selected and no ticker appears in
// more than two of them; when diversity leaves fewer than minCount, the
// remaining highest-scored events backfill regardless of ticker overlap.
// Pass non-positive bounds for the defaults.
func SelectTopEvents(scored []ScoredEvent, minCount, maxCount int) []ScoredEvent {
	if minCount <= 0 {
		minCount = DefaultMinEvents
	}
	if maxCount <= 0 {
		maxCount = DefaultMaxEvents
	}

	var selected []ScoredEvent
	taken := make(map[int]bool, len(scored))
	tickerCount := make(map[string]int)

	for i, event := range scored {
		if len(selected) >= maxCount {
			break
		}
		crowded := false
		for _, t := range event.Event.Tickers {
			if tickerCount[t] >= maxEventsPerTicker {
				crowded = true
				break
			}
		}
		if crowded {
			continue
		}
		selected = append(selected, event)
		taken[i] = true
		for _, t := range event.Event.Tickers {
			tickerCount[t]++
		}
	}

	if len(selected) < minCount {
		for i, event := range scored {
			if taken[i] {
				continue
			}
			selected = append(selected, event)
			if len(selected) >= minCount {
				break
			}
		}
	}

	return selected
}
