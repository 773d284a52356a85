package valuation

import (
	"math"

	"github.com/ternarybob/aestimo/internal/models"
)

// closingPrices extracts usable closes from price history, preferring
// the adjusted close when present. Non-positive bars are skipped.
func closingPrices(bars []models.PriceBar) []float64 {
	closes := make([]float64, 0, len(bars))
	for _, bar := range bars {
		c := bar.Close
		if bar.AdjClose > 0 {
			c = bar.AdjClose
		}
		if c > 0 {
			closes = append(closes, c)
		}
	}
	return closes
}

// logReturns computes daily log returns from consecutive closes.
func logReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}
	return returns
}

// stddev computes the sample standard deviation.
func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values) - 1)

	return math.Sqrt(variance)
}

// dcfValue discounts a growing per-share cash flow over the horizon and
// adds a terminal value at the configured exit multiple.
func dcfValue(cash, growth, discount float64, years int, terminalMultiple float64) float64 {
	pv := 0.0
	flow := cash
	for t := 1; t <= years; t++ {
		flow *= 1 + growth
		pv += flow / math.Pow(1+discount, float64(t))
	}
	terminal := flow * terminalMultiple / math.Pow(1+discount, float64(years))
	return pv + terminal
}
