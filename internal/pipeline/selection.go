package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/scoring"
)

const (
	selectionNewsLimit = 100
	hotStockLimit      = 10
)

// Selector binds the day's entities into article specs: the deep-dive
// ticker from the ranked movers, the trend theme from the news flow.
// Selection reads the market once; the evidence builder re-fetches
// everything it cites so packs never depend on selection state.
type Selector struct {
	market interfaces.MarketDataAdapter
	logger arbor.ILogger
}

// NewSelector wires a selector against the market data adapter.
func NewSelector(market interfaces.MarketDataAdapter, logger arbor.ILogger) *Selector {
	return &Selector{market: market, logger: logger}
}

// Bound is one article spec with its entity resolved for the day.
type Bound struct {
	Spec   *models.ArticleSpec
	Reason string // why this entity was selected, for the run log
}

// Bind resolves entities for every requested article kind. A kind whose
// selection fails is simply absent from the result; the pipeline records
// the miss per article instead of failing the run.
func (s *Selector) Bind(ctx context.Context, specs map[models.ArticleKind]*models.ArticleSpec, opts models.RunOptions) (map[models.ArticleKind]Bound, error) {
	news, err := s.market.GetStockNews(ctx, nil, selectionNewsLimit)
	if err != nil {
		return nil, fmt.Errorf("selection news fetch failed: %w", err)
	}
	movers, err := s.market.GetMovers(ctx)
	if err != nil {
		return nil, fmt.Errorf("selection movers fetch failed: %w", err)
	}

	priceChanges := make(map[string]float64, len(movers))
	for _, m := range movers {
		priceChanges[m.Ticker] = m.PriceMovePct
	}

	events := scoring.DeduplicateNews(news, 0)
	scored := scoring.ScoreEvents(events, priceChanges, opts.Date)

	bound := make(map[models.ArticleKind]Bound, len(specs))

	if spec, ok := specs[models.ArticleDailyBrief]; ok && opts.WantsArticle(models.ArticleDailyBrief) {
		bound[models.ArticleDailyBrief] = Bound{
			Spec:   spec.Clone(),
			Reason: fmt.Sprintf("%d events scored from %d headlines", len(scored), len(news)),
		}
	}

	if spec, ok := specs[models.ArticleDeepDive]; ok && opts.WantsArticle(models.ArticleDeepDive) {
		if b, ok := s.bindDeepDive(spec, specs, movers, events); ok {
			bound[models.ArticleDeepDive] = b
		}
	}

	if spec, ok := specs[models.ArticleThemeTrend]; ok && opts.WantsArticle(models.ArticleThemeTrend) {
		bound[models.ArticleThemeTrend] = s.bindTheme(spec, scored)
	}

	return bound, nil
}

// bindDeepDive ranks the day's movers within the watch universe and
// binds the winner. News counts come from the deduplicated events so a
// many-outlet story counts once.
func (s *Selector) bindDeepDive(spec *models.ArticleSpec, specs map[models.ArticleKind]*models.ArticleSpec, movers []models.StockCandidate, events []models.EventCandidate) (Bound, bool) {
	newsCounts := make(map[string]int)
	for _, ev := range events {
		for _, t := range ev.Tickers {
			newsCounts[common.NormalizeTicker(t)]++
		}
	}

	candidates := make([]models.StockCandidate, len(movers))
	for i, m := range movers {
		c := m
		if c.NewsCount == 0 {
			c.NewsCount = newsCounts[c.Ticker]
		}
		candidates[i] = c
	}

	ranked := scoring.RankHotStocks(candidates, watchUniverse(specs), hotStockLimit)
	pick, ok := scoring.SelectDeepDive(ranked)
	if !ok {
		if s.logger != nil {
			s.logger.Warn().Msg("No deep-dive candidate in today's movers")
		}
		return Bound{}, false
	}

	c := spec.Clone()
	c.Entity = pick.Candidate.Ticker
	c.EntityTickers = []string{pick.Candidate.Ticker}

	return Bound{
		Spec:   c,
		Reason: pick.Reason,
	}, true
}

// bindTheme detects the day's strongest theme. SelectTheme falls back to
// the standing AI infrastructure theme, so this never fails.
func (s *Selector) bindTheme(spec *models.ArticleSpec, scored []scoring.ScoredEvent) Bound {
	theme := scoring.SelectTheme(scoring.DetectThemes(scored, scoring.DefaultThemeLimit))

	c := spec.Clone()
	c.Entity = theme.ID
	c.EntityTickers = append([]string(nil), theme.Tickers...)
	c.SetStatic("theme_name", theme.DisplayName)

	reason := fmt.Sprintf("theme %s scored %.0f", theme.ID, theme.Score)
	if theme.Score == 0 {
		reason = "no theme triggered, standing fallback"
	}

	return Bound{Spec: c, Reason: reason}
}

// watchUniverse is the daily brief's ticker list as a set. The brief's
// entity_tickers double as the deep-dive universe so one config field
// governs both.
func watchUniverse(specs map[models.ArticleKind]*models.ArticleSpec) map[string]bool {
	universe := make(map[string]bool)
	tickers := defaultUniverse
	if brief, ok := specs[models.ArticleDailyBrief]; ok && len(brief.EntityTickers) > 0 {
		tickers = brief.EntityTickers
	}
	for _, t := range tickers {
		universe[common.NormalizeTicker(t)] = true
	}
	return universe
}

// publishOrder is the delivery sequence: secondary articles go out
// first so the newsletter-bearing brief can link to live posts.
var publishOrder = []models.ArticleKind{
	models.ArticleDeepDive,
	models.ArticleThemeTrend,
	models.ArticleDailyBrief,
}

// asOfFor normalizes the run date, defaulting to the last trading day
// when invoked on a weekend.
func asOfFor(date time.Time) time.Time {
	if date.IsZero() {
		date = time.Now()
	}
	return common.LastTradingDay(date, nil)
}
