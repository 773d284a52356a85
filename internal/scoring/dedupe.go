package scoring

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/ternarybob/aestimo/internal/models"
)

// DefaultSimilarityThreshold is the minimum title similarity for two news
// items to be merged into one event.
const DefaultSimilarityThreshold = 0.7

// Words ignored when comparing titles.
var noiseWords = map[string]bool{
	"the": true, "a": true, "an": true, "in": true, "on": true, "at": true,
	"to": true, "for": true, "of": true, "and": true, "or": true,
}

// Press-release distribution services. Items from these sites are flagged
// so downstream checks can discount single-sourced PR coverage.
var wireSites = []string{
	"prnewswire", "businesswire", "globenewswire", "accesswire",
}

// NormalizeTitle lowercases a headline, strips punctuation, collapses
// whitespace, and drops noise words, yielding the comparison key for
// fuzzy matching.
func NormalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	kept := words[:0]
	for _, w := range words {
		if !noiseWords[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// TitleSimilarity returns the similarity ratio of two headlines in
// [0, 1], computed over their normalized forms as twice the matched
// character count divided by the total length.
func TitleSimilarity(title1, title2 string) float64 {
	norm1 := NormalizeTitle(title1)
	norm2 := NormalizeTitle(title2)
	m := difflib.NewMatcher(strings.Split(norm1, ""), strings.Split(norm2, ""))
	return m.Ratio()
}

// DeduplicateNews collapses raw news items into event candidates. A first
// pass drops exact URL duplicates; a second pass merges items whose
// titles are at least threshold similar, consolidating sources and
// tickers onto the first-seen item. Pass threshold <= 0 for the default.
// Output order is first-seen order, so identical input yields identical
// output.
func DeduplicateNews(items []models.NewsItem, threshold float64) []models.EventCandidate {
	if len(items) == 0 {
		return nil
	}
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}

	seenURLs := make(map[string]bool, len(items))
	unique := make([]models.NewsItem, 0, len(items))
	for _, item := range items {
		if seenURLs[item.URL] {
			continue
		}
		seenURLs[item.URL] = true
		unique = append(unique, item)
	}

	var events []models.EventCandidate
	for _, item := range unique {
		merged := false
		for i := range events {
			if TitleSimilarity(item.Title, events[i].Title) < threshold {
				continue
			}
			mergeInto(&events[i], item)
			merged = true
			break
		}
		if merged {
			continue
		}

		events = append(events, models.EventCandidate{
			ID:          eventID(item.Title),
			Title:       item.Title,
			Summary:     item.Text,
			Tickers:     append([]string(nil), item.Tickers...),
			PublishedAt: item.PublishedAt,
			Sources:     []models.NewsSource{newsSource(item)},
		})
	}

	return events
}

// FilterByUniverse keeps only events that mention at least one ticker in
// the universe, trimming each kept event's ticker list to the universe.
func FilterByUniverse(events []models.EventCandidate, universe map[string]bool) []models.EventCandidate {
	var filtered []models.EventCandidate
	for _, event := range events {
		var matching []string
		for _, t := range event.Tickers {
			if universe[t] {
				matching = append(matching, t)
			}
		}
		if len(matching) == 0 {
			continue
		}
		event.Tickers = matching
		filtered = append(filtered, event)
	}
	return filtered
}

// mergeInto folds a duplicate news item into an existing event, keeping
// source URLs and tickers unique.
func mergeInto(event *models.EventCandidate, item models.NewsItem) {
	for _, s := range event.Sources {
		if s.URL == item.URL {
			return
		}
	}
	event.Sources = append(event.Sources, newsSource(item))

	for _, t := range item.Tickers {
		known := false
		for _, existing := range event.Tickers {
			if existing == t {
				known = true
				break
			}
		}
		if !known {
			event.Tickers = append(event.Tickers, t)
		}
	}
}

func newsSource(item models.NewsItem) models.NewsSource {
	return models.NewsSource{
		Name:        item.Site,
		URL:         item.URL,
		PublishedAt: item.PublishedAt,
		Wire:        isWireSite(item.Site),
	}
}

func isWireSite(site string) bool {
	lower := strings.ToLower(site)
	for _, w := range wireSites {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// eventID derives a stable identifier from the normalized headline.
func eventID(title string) string {
	sum := sha256.Sum256([]byte(NormalizeTitle(title)))
	return hex.EncodeToString(sum[:])[:12]
}
