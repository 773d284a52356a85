package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/ternarybob/aestimo/internal/models"
)

// DefaultHotStockLimit caps the ranked candidate list for the deep dive.
const DefaultHotStockLimit = 10

// Candidates with at least this completeness are preferred for the deep
// dive; thin data makes a poor long-form article.
const deepDiveCompleteness = 0.8

// ScoreStock scores one deep-dive candidate: up to 40 points for the
// price move, 30 for news volume, and 30 for data completeness.
func ScoreStock(c models.StockCandidate) StockScore {
	price := priceShockTier(math.Abs(c.PriceMovePct))
	news := newsVolumeTier(c.NewsCount)
	data, completeness := dataTier(c.HasEstimates, c.HasFinancials)

	return StockScore{
		Price:        price,
		News:         news,
		Data:         data,
		Total:        price + news + data,
		Completeness: completeness,
	}
}

func priceShockTier(absChange float64) float64 {
	switch {
	case absChange >= 10:
		return 40
	case absChange >= 5:
		return 30
	case absChange >= 3:
		return 20
	case absChange >= 2:
		return 10
	default:
		return 5
	}
}

func newsVolumeTier(count int) float64 {
	switch {
	case count >= 5:
		return 30
	case count >= 3:
		return 20
	case count >= 1:
		return 10
	default:
		return 0
	}
}

func dataTier(hasEstimates, hasFinancials bool) (score, completeness float64) {
	switch {
	case hasEstimates && hasFinancials:
		return 30, 1.0
	case hasEstimates || hasFinancials:
		return 15, 0.5
	default:
		return 0, 0
	}
}

// RankHotStocks scores candidates whose tickers are in the universe and
// returns up to limit of them in total order: score descending, then
// ticker. Pass a non-positive limit for the default.
func RankHotStocks(candidates []models.StockCandidate, universe map[string]bool, limit int) []ScoredStock {
	if limit <= 0 {
		limit = DefaultHotStockLimit
	}

	var ranked []ScoredStock
	for _, c := range candidates {
		if !universe[c.Ticker] {
			continue
		}
		ranked = append(ranked, ScoredStock{
			Candidate: c,
			Score:     ScoreStock(c),
			Reason:    hotStockReason(c),
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score.Total != ranked[j].Score.Total {
			return ranked[i].Score.Total > ranked[j].Score.Total
		}
		return ranked[i].Candidate.Ticker < ranked[j].Candidate.Ticker
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// SelectDeepDive picks today's deep-dive ticker from a ranked list,
// preferring the best candidate with full-enough data over the best
// overall. Returns false when the list is empty.
func SelectDeepDive(ranked []ScoredStock) (ScoredStock, bool) {
	if len(ranked) == 0 {
		return ScoredStock{}, false
	}
	for _, s := range ranked {
		if s.Score.Completeness >= deepDiveCompleteness {
			return s, true
		}
	}
	return ranked[0], true
}

func hotStockReason(c models.StockCandidate) string {
	switch {
	case math.Abs(c.PriceMovePct) >= 5:
		return fmt.Sprintf("price moved %+.1f%%", c.PriceMovePct)
	case c.NewsCount >= 3:
		return fmt.Sprintf("heavy news flow (%d stories)", c.NewsCount)
	default:
		return "rising market attention"
	}
}
