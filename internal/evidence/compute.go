package evidence

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/scoring"
)

const (
	eventSummaryLimit = 500 // runes of body text kept per selected event
	quickHitCount     = 12
	maxWatchItems     = 5
)

// QuickHit is one short market note for the brief's quick-hits list.
type QuickHit struct {
	Summary   string  `json:"summary"`
	Ticker    string  `json:"ticker,omitempty"`
	ChangePct float64 `json:"change_pct,omitempty"`
}

// ThemeEvidence bundles a detected theme with its trigger events.
type ThemeEvidence struct {
	Theme  scoring.Theme           `json:"theme"`
	Events []models.EventCandidate `json:"events"`
}

// computeFunc derives one fact from facts already in the pack.
type computeFunc func(pack *models.EvidencePack, spec *models.ArticleSpec, req *models.KeyRequirement, asOf time.Time) (*models.Fact, error)

// computeFuncs maps computed field names to their derivations. Each
// function reads fixed upstream keys, so specs must declare those keys
// before the computed one.
var computeFuncs = map[string]computeFunc{
	"price_changes":   computePriceChanges,
	"selected_events": computeSelectedEvents,
	"watch_items":     computeWatchItems,
	"quick_hits":      computeQuickHits,
	"theme_events":    computeThemeEvents,
	"current_price":   computeCurrentPrice,
	"company_name":    computeCompanyName,
	"sector":          computeSector,
	"ntm_eps":         computeNTMEPS,
	"forward_pe":      computeForwardPE,
	"fcf_per_share":   computeFCFPerShare,
}

// computeKey derives one fact from the pack. Compute functions are
// pure; all I/O happened during the fetch phase.
func (b *Builder) computeKey(pack *models.EvidencePack, spec *models.ArticleSpec, req *models.KeyRequirement, asOf time.Time) *models.Fact {
	field := req.Field
	if field == "" {
		field = req.Key
	}
	fn, ok := computeFuncs[field]
	if !ok {
		b.logger.Warn().Str("key", req.Key).Str("field", field).Msg("Unknown computed field")
		return models.NewMissingFact(req.Key, asOf)
	}

	fact, err := fn(pack, spec, req, asOf)
	if err != nil {
		if req.Policy == models.DegradeStaticDefault && req.StaticDefault != nil {
			b.logger.Warn().Err(err).Str("key", req.Key).Msg("Computation failed, substituting static default")
			return models.NewFact(req.Key, req.StaticDefault, models.SourceStaticConfig, asOf)
		}
		b.logger.Warn().Err(err).Str("key", req.Key).Msg("Computation failed, marking missing")
		return models.NewMissingFact(req.Key, asOf)
	}
	return fact
}

// decodeFact unmarshals a fact value into out. Values fetched this run
// are typed structs while values substituted from the cache come back
// as generic JSON; Fact.Decode normalizes both the same way.
func decodeFact(pack *models.EvidencePack, key string, out interface{}) error {
	fact := pack.Get(key)
	if fact == nil || fact.Missing {
		return fmt.Errorf("input fact %s unavailable", key)
	}
	if err := fact.Decode(out); err != nil {
		return fmt.Errorf("failed to decode fact %s: %w", key, err)
	}
	return nil
}

func computePriceChanges(pack *models.EvidencePack, _ *models.ArticleSpec, req *models.KeyRequirement, asOf time.Time) (*models.Fact, error) {
	var movers []models.StockCandidate
	if err := decodeFact(pack, "movers", &movers); err != nil {
		return nil, err
	}
	changes := make(map[string]float64, len(movers))
	for _, m := range movers {
		changes[m.Ticker] = m.PriceMovePct
	}
	return models.NewComputedFact(req.Key, changes, asOf,
		"price_move_pct by ticker from the day's movers", "movers"), nil
}

// computeSelectedEvents runs the brief's event chain: merge filing
// disclosures into the news flow, deduplicate, score, select. The deep
// dive reuses it over ticker-scoped news, where price_changes and
// material_filings are simply not declared.
func computeSelectedEvents(pack *models.EvidencePack, _ *models.ArticleSpec, req *models.KeyRequirement, asOf time.Time) (*models.Fact, error) {
	var news []models.NewsItem
	if err := decodeFact(pack, "news", &news); err != nil {
		return nil, err
	}
	inputs := []string{"news"}

	priceChanges := make(map[string]float64)
	if decodeFact(pack, "price_changes", &priceChanges) == nil {
		inputs = append(inputs, "price_changes")
	}
	var filings []models.Filing
	if decodeFact(pack, "material_filings", &filings) == nil && len(filings) > 0 {
		news = append(news, filingNewsItems(filings)...)
		inputs = append(inputs, "material_filings")
	}

	events := scoring.DeduplicateNews(news, 0)
	scored := scoring.ScoreEvents(events, priceChanges, asOf)
	selected := scoring.SelectTopEvents(scored, 0, 0)
	if len(selected) == 0 {
		return nil, fmt.Errorf("no events survived selection")
	}
	for i := range selected {
		selected[i].Event.Summary = truncate(selected[i].Event.Summary, eventSummaryLimit)
	}
	return models.NewComputedFact(req.Key, selected, asOf,
		"select_top(score(dedupe(news + filing events)))", inputs...), nil
}

// computeWatchItems ports the brief's watch heuristics: earnings events
// queue a follow-through item, macro events queue the Fed and data
// docket, and a quiet tape falls back to the standing list.
func computeWatchItems(pack *models.EvidencePack, _ *models.ArticleSpec, req *models.KeyRequirement, asOf time.Time) (*models.Fact, error) {
	var selected []scoring.ScoredEvent
	if err := decodeFact(pack, "selected_events", &selected); err != nil {
		return nil, err
	}

	var earningsTickers []string
	hasMacro := false
	for _, ev := range selected {
		switch ev.Event.Category {
		case models.CategoryEarnings:
			earningsTickers = append(earningsTickers, ev.Event.Tickers...)
		case models.CategoryMacro:
			hasMacro = true
		}
	}

	var items []string
	if len(earningsTickers) > 0 {
		if len(earningsTickers) > 3 {
			earningsTickers = earningsTickers[:3]
		}
		items = append(items, fmt.Sprintf("Follow-through in %s after earnings", strings.Join(earningsTickers, ", ")))
	}
	if hasMacro {
		items = append(items, "Fed speakers and fresh economic data")
	}
	if len(items) == 0 {
		items = []string{
			"After-hours earnings releases",
			"Asia market open reaction",
			"Upcoming economic data prints",
		}
	}
	if len(items) > maxWatchItems {
		items = items[:maxWatchItems]
	}
	return models.NewComputedFact(req.Key, items, asOf,
		"watch heuristics over selected events", "selected_events"), nil
}

// computeQuickHits fills the brief's short-notes list with the scored
// events that did not make the top selection, in score order.
func computeQuickHits(pack *models.EvidencePack, _ *models.ArticleSpec, req *models.KeyRequirement, asOf time.Time) (*models.Fact, error) {
	var news []models.NewsItem
	if err := decodeFact(pack, "news", &news); err != nil {
		return nil, err
	}
	var selected []scoring.ScoredEvent
	if err := decodeFact(pack, "selected_events", &selected); err != nil {
		return nil, err
	}
	inputs := []string{"news", "selected_events"}

	priceChanges := make(map[string]float64)
	if decodeFact(pack, "price_changes", &priceChanges) == nil {
		inputs = append(inputs, "price_changes")
	}

	taken := make(map[string]bool, len(selected))
	for _, ev := range selected {
		taken[ev.Event.ID] = true
	}

	scored := scoring.ScoreEvents(scoring.DeduplicateNews(news, 0), priceChanges, asOf)
	hits := make([]QuickHit, 0, quickHitCount)
	for _, ev := range scored {
		if taken[ev.Event.ID] {
			continue
		}
		hit := QuickHit{Summary: ev.Event.Title, Ticker: ev.Event.PrimaryTicker()}
		hit.ChangePct = priceChanges[hit.Ticker]
		hits = append(hits, hit)
		if len(hits) == quickHitCount {
			break
		}
	}
	return models.NewComputedFact(req.Key, hits, asOf,
		"scored events below the top selection", inputs...), nil
}

// computeThemeEvents re-derives the theme's trigger events from the
// pack's own news so the evidence stays self-contained.
func computeThemeEvents(pack *models.EvidencePack, spec *models.ArticleSpec, req *models.KeyRequirement, asOf time.Time) (*models.Fact, error) {
	var news []models.NewsItem
	if err := decodeFact(pack, "news", &news); err != nil {
		return nil, err
	}

	events := scoring.DeduplicateNews(news, 0)
	wrapped := make([]scoring.ScoredEvent, len(events))
	for i, ev := range events {
		wrapped[i] = scoring.ScoredEvent{Event: ev}
	}

	// Limit high enough that every defined theme is a candidate.
	for _, theme := range scoring.DetectThemes(wrapped, 100) {
		if theme.ID != spec.Entity {
			continue
		}
		byID := make(map[string]models.EventCandidate, len(events))
		for _, ev := range events {
			byID[ev.ID] = ev
		}
		trigger := make([]models.EventCandidate, 0, len(theme.EventIDs))
		for _, id := range theme.EventIDs {
			if ev, ok := byID[id]; ok {
				ev.Summary = truncate(ev.Summary, eventSummaryLimit)
				trigger = append(trigger, ev)
			}
		}
		return models.NewComputedFact(req.Key, ThemeEvidence{Theme: theme, Events: trigger}, asOf,
			"trigger events for the theme from deduplicated news", "news"), nil
	}
	return nil, fmt.Errorf("theme %s not detected in today's news", spec.Entity)
}

func computeCurrentPrice(pack *models.EvidencePack, _ *models.ArticleSpec, req *models.KeyRequirement, asOf time.Time) (*models.Fact, error) {
	var quote models.Quote
	if err := decodeFact(pack, "quote", &quote); err != nil {
		return nil, err
	}
	if quote.Price <= 0 {
		return nil, fmt.Errorf("quote carries no usable price")
	}
	return models.NewComputedFact(req.Key, quote.Price, asOf, "quote.price", "quote"), nil
}

func computeCompanyName(pack *models.EvidencePack, _ *models.ArticleSpec, req *models.KeyRequirement, asOf time.Time) (*models.Fact, error) {
	var profile models.CompanyProfile
	if err := decodeFact(pack, "profile", &profile); err != nil {
		return nil, err
	}
	if profile.Name == "" {
		return nil, fmt.Errorf("profile carries no company name")
	}
	return models.NewComputedFact(req.Key, profile.Name, asOf, "profile.name", "profile"), nil
}

func computeSector(pack *models.EvidencePack, _ *models.ArticleSpec, req *models.KeyRequirement, asOf time.Time) (*models.Fact, error) {
	var profile models.CompanyProfile
	if err := decodeFact(pack, "profile", &profile); err != nil {
		return nil, err
	}
	if profile.Sector == "" {
		return nil, fmt.Errorf("profile carries no sector")
	}
	return models.NewComputedFact(req.Key, profile.Sector, asOf, "profile.sector", "profile"), nil
}

func computeNTMEPS(pack *models.EvidencePack, _ *models.ArticleSpec, req *models.KeyRequirement, asOf time.Time) (*models.Fact, error) {
	var estimates models.AnalystEstimates
	if err := decodeFact(pack, "estimates", &estimates); err != nil {
		return nil, err
	}
	// Negative forward EPS is real data; only an absent estimate fails.
	if estimates.NTMEPS == 0 {
		return nil, fmt.Errorf("estimates carry no forward EPS")
	}
	return models.NewComputedFact(req.Key, estimates.NTMEPS, asOf, "estimates.ntm_eps", "estimates"), nil
}

func computeForwardPE(pack *models.EvidencePack, _ *models.ArticleSpec, req *models.KeyRequirement, asOf time.Time) (*models.Fact, error) {
	var ratios models.Ratios
	if err := decodeFact(pack, "ratios", &ratios); err != nil {
		return nil, err
	}
	if ratios.ForwardPE <= 0 {
		return nil, fmt.Errorf("ratios carry no forward P/E")
	}
	return models.NewComputedFact(req.Key, ratios.ForwardPE, asOf, "ratios.forward_pe", "ratios"), nil
}

func computeFCFPerShare(pack *models.EvidencePack, _ *models.ArticleSpec, req *models.KeyRequirement, asOf time.Time) (*models.Fact, error) {
	var ratios models.Ratios
	if err := decodeFact(pack, "ratios", &ratios); err != nil {
		return nil, err
	}
	if ratios.FCFPerShare == 0 {
		return nil, fmt.Errorf("ratios carry no FCF per share")
	}
	return models.NewComputedFact(req.Key, ratios.FCFPerShare, asOf, "ratios.fcf_per_share", "ratios"), nil
}

// filingNewsItems lifts 8-K filings into news items so filing-disclosed
// events run through the same dedupe and scoring as press coverage.
func filingNewsItems(filings []models.Filing) []models.NewsItem {
	items := make([]models.NewsItem, 0, len(filings))
	for _, f := range filings {
		desc := f.Description
		if desc == "" {
			desc = "material event disclosed"
		}
		items = append(items, models.NewsItem{
			Title:       fmt.Sprintf("%s 8-K: %s", f.Ticker, desc),
			URL:         f.DocumentURL,
			Site:        "sec.gov",
			Tickers:     []string{f.Ticker},
			PublishedAt: f.FiledAt,
		})
	}
	return items
}

// truncate keeps the first limit runes of s.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
