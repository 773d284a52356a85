package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/models"
)

// defaultUniverse is the watch list the daily brief sweeps for filing
// disclosures and the deep dive selects from. Overridden per deployment
// via the daily-brief spec's entity_tickers.
var defaultUniverse = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA", "AMD",
	"AVGO", "TSM", "CRM", "ADBE", "NFLX", "INTC", "MU", "QCOM",
	"JPM", "V", "MA", "UNH",
}

// DefaultSpecs returns the built-in article definitions. Deployments
// override any of them by dropping a TOML file with the same kind into
// the specs directory.
func DefaultSpecs() map[models.ArticleKind]*models.ArticleSpec {
	return map[models.ArticleKind]*models.ArticleSpec{
		models.ArticleDailyBrief: dailyBriefSpec(),
		models.ArticleDeepDive:   deepDiveSpec(),
		models.ArticleThemeTrend: themeTrendSpec(),
	}
}

func dailyBriefSpec() *models.ArticleSpec {
	return &models.ArticleSpec{
		Kind:            models.ArticleDailyBrief,
		EntityTickers:   append([]string(nil), defaultUniverse...),
		SendsNewsletter: true,
		Requirements: []models.KeyRequirement{
			{Key: "news", Adapter: "fmp", Field: "news", Policy: models.DegradeRetry},
			{Key: "movers", Adapter: "fmp", Field: "movers", Policy: models.DegradeRetry},
			{Key: "market_snapshot", Adapter: "fmp", Field: "market_snapshot", Policy: models.DegradeStaleCache, MaxStaleDays: 1},
			{Key: "sector_performance", Adapter: "fmp", Field: "sector_performance", Policy: models.DegradeStaleCache, MaxStaleDays: 1, Optional: true},
			{Key: "material_filings", Adapter: "edgar", Field: "market_material_events", Policy: models.DegradeMarkMissing, Optional: true},
			{Key: "price_changes", Adapter: "computed", Policy: models.DegradeMarkMissing},
			{Key: "selected_events", Adapter: "computed", Policy: models.DegradeMarkMissing},
			{Key: "quick_hits", Adapter: "computed", Policy: models.DegradeMarkMissing},
			{Key: "watch_items", Adapter: "computed", Policy: models.DegradeMarkMissing},
		},
		RequiredSections: []string{"Market Snapshot", "Top Stories", "Quick Reads", "Quick Hits", "What to Watch", "Disclaimer"},
		Cardinality: models.Cardinality{
			Events:      5,
			QuickReads:  3,
			QuickHits:   10,
			SourceLinks: 6,
		},
	}
}

func deepDiveSpec() *models.ArticleSpec {
	return &models.ArticleSpec{
		Kind: models.ArticleDeepDive,
		Requirements: []models.KeyRequirement{
			{Key: "quote", Adapter: "fmp", Field: "quote", Policy: models.DegradeRetry},
			{Key: "profile", Adapter: "fmp", Field: "profile", Policy: models.DegradeStaleCache, MaxStaleDays: 5},
			{Key: "estimates", Adapter: "fmp", Field: "estimates", Policy: models.DegradeStaleCache, MaxStaleDays: 5},
			{Key: "ratios", Adapter: "fmp", Field: "ratios", Policy: models.DegradeStaleCache, MaxStaleDays: 5},
			{Key: "price_history", Adapter: "fmp", Field: "price_history", Policy: models.DegradeRetry},
			{Key: "quarterly_financials", Adapter: "fmp", Field: "quarterly_financials", Policy: models.DegradeStaleCache, MaxStaleDays: 5},
			{Key: "news", Adapter: "fmp", Field: "news", Policy: models.DegradeMarkMissing, Optional: true},
			{Key: "peer_ratios", Adapter: "fmp", Field: "peer_ratios", Policy: models.DegradeMarkMissing, Optional: true},
			{Key: "recent_filings", Adapter: "edgar", Field: "recent_filings", Policy: models.DegradeMarkMissing, Optional: true},
			{Key: "guidance", Adapter: "transcripts", Field: "guidance", Policy: models.DegradeMarkMissing, Optional: true},
			{Key: "current_price", Adapter: "computed", Policy: models.DegradeMarkMissing},
			{Key: "company_name", Adapter: "computed", Policy: models.DegradeMarkMissing},
			{Key: "sector", Adapter: "computed", Policy: models.DegradeMarkMissing},
			{Key: "ntm_eps", Adapter: "computed", Policy: models.DegradeMarkMissing},
			{Key: "forward_pe", Adapter: "computed", Policy: models.DegradeMarkMissing},
			{Key: "fcf_per_share", Adapter: "computed", Policy: models.DegradeMarkMissing, Optional: true},
		},
		RequiredSections: []string{"Snapshot", "Recent Results", "Valuation Scenarios", "Catalysts", "Risks", "Disclaimer"},
		Cardinality: models.Cardinality{
			Quarters:        6,
			Catalysts:       3,
			Competitors:     3,
			SourceLinks:     6,
			SensitivityRows: 5,
			SensitivityCols: 5,
		},
	}
}

func themeTrendSpec() *models.ArticleSpec {
	return &models.ArticleSpec{
		Kind: models.ArticleThemeTrend,
		Requirements: []models.KeyRequirement{
			{Key: "news", Adapter: "fmp", Field: "news", Policy: models.DegradeRetry},
			{Key: "quotes", Adapter: "fmp", Field: "quotes", Policy: models.DegradeStaleCache, MaxStaleDays: 1},
			{Key: "profiles", Adapter: "fmp", Field: "profiles", Policy: models.DegradeMarkMissing, Optional: true},
			{Key: "theme_name", Adapter: "static", Policy: models.DegradeStaticDefault},
			{Key: "theme_events", Adapter: "computed", Policy: models.DegradeMarkMissing},
		},
		RequiredSections: []string{"Theme Overview", "Representative Stocks", "Risks", "Disclaimer"},
		Cardinality: models.Cardinality{
			RepStocks:   8,
			SourceLinks: 6,
		},
	}
}

// LoadSpecs merges per-deployment TOML overrides over the built-in
// defaults. A file overrides the whole spec for its kind; unknown kinds
// are rejected so a typo cannot silently drop an article.
func LoadSpecs(dir string, logger arbor.ILogger) (map[models.ArticleKind]*models.ArticleSpec, error) {
	specs := DefaultSpecs()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if logger != nil {
				logger.Debug().Str("dir", dir).Msg("No spec overrides, using built-in article specs")
			}
			return specs, nil
		}
		return nil, fmt.Errorf("failed to read specs dir %s: %w", dir, err)
	}

	validate := validator.New()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read spec %s: %w", path, err)
		}

		var spec models.ArticleSpec
		if err := toml.Unmarshal(data, &spec); err != nil {
			return nil, fmt.Errorf("failed to parse spec %s: %w", path, err)
		}
		if err := validate.Struct(&spec); err != nil {
			return nil, fmt.Errorf("spec %s is invalid: %w", path, err)
		}
		if _, ok := specs[spec.Kind]; !ok {
			return nil, fmt.Errorf("spec %s declares unknown article kind %q", path, spec.Kind)
		}

		specs[spec.Kind] = &spec
		if logger != nil {
			logger.Info().Str("kind", string(spec.Kind)).Str("file", entry.Name()).Msg("Article spec override loaded")
		}
	}

	return specs, nil
}
