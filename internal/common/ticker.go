// Package common provides shared utilities across the application.
package common

import "strings"

// Market data and filing providers all take plain US symbols ("NVDA"),
// but tickers arrive from news feeds and config in several shapes:
// exchange-qualified ("NASDAQ:NVDA"), suffixed ("NVDA.US"), or lowercase.
// NormalizeTicker reduces them all to the plain uppercase symbol.

// knownExchanges are prefixes stripped during normalization.
var knownExchanges = map[string]bool{
	"NYSE":   true,
	"NASDAQ": true,
	"AMEX":   true,
	"ARCA":   true,
	"BATS":   true,
	"OTC":    true,
}

// NormalizeTicker converts any supported ticker shape to the plain
// uppercase symbol. Returns empty string for unusable input.
func NormalizeTicker(raw string) string {
	ticker := strings.ToUpper(strings.TrimSpace(raw))
	if ticker == "" {
		return ""
	}

	// Exchange-qualified prefix: "NASDAQ:NVDA"
	if idx := strings.Index(ticker, ":"); idx > 0 {
		if knownExchanges[ticker[:idx]] {
			ticker = ticker[idx+1:]
		}
	}

	// Country suffix: "NVDA.US"
	ticker = strings.TrimSuffix(ticker, ".US")

	if !ValidTicker(ticker) {
		return ""
	}
	return ticker
}

// ValidTicker reports whether s looks like a US equity symbol: 1-6
// letters with an optional class suffix ("BRK.B").
func ValidTicker(s string) bool {
	if s == "" {
		return false
	}
	base, class, hasClass := strings.Cut(s, ".")
	if len(base) < 1 || len(base) > 6 {
		return false
	}
	for _, r := range base {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	if hasClass {
		if len(class) != 1 || class[0] < 'A' || class[0] > 'Z' {
			return false
		}
	}
	return true
}

// NormalizeTickers maps NormalizeTicker over a slice, dropping unusable
// entries and duplicates while preserving order.
func NormalizeTickers(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		t := NormalizeTicker(r)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
