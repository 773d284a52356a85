package evidence

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

const (
	marketNewsLimit  = 100 // headlines scanned for the daily brief
	entityNewsLimit  = 30  // per-ticker or per-theme headlines
	priceHistoryDays = 180 // calendar days of bars for volatility and charts
	quarterlyLimit   = 8   // reported quarters for the deep dive
	filingsLimit     = 8
	maxPeerRatios    = 5

	// 8-K sweep bounds for the brief's filing-sourced events.
	materialEventTickers    = 10
	materialEventsPerTicker = 3
)

// fetch dispatches one requirement to its adapter. Values are the
// adapters' normalized models, stored structured; scalar extracts are
// layered on as computed facts so derivations stay traceable.
func (b *Builder) fetch(ctx context.Context, spec *models.ArticleSpec, req *models.KeyRequirement, asOf time.Time) (interface{}, models.FactSource, error) {
	switch req.Adapter {
	case AdapterMarketData:
		value, err := b.fetchMarketData(ctx, spec, req, asOf)
		return value, models.SourceMarketData, err
	case AdapterFilings:
		value, err := b.fetchFilings(ctx, spec, req)
		return value, models.SourceFiling, err
	case AdapterTranscripts:
		value, err := b.fetchTranscript(ctx, spec, req)
		return value, models.SourceTranscript, err
	}
	return nil, "", fmt.Errorf("unknown adapter %q for key %s", req.Adapter, req.Key)
}

func (b *Builder) fetchMarketData(ctx context.Context, spec *models.ArticleSpec, req *models.KeyRequirement, asOf time.Time) (interface{}, error) {
	switch req.Field {
	case "quote":
		return b.market.GetQuote(ctx, spec.Entity)
	case "profile":
		return b.market.GetProfile(ctx, spec.Entity)
	case "estimates":
		return b.market.GetEstimates(ctx, spec.Entity)
	case "ratios":
		return b.market.GetRatios(ctx, spec.Entity)
	case "price_history":
		from := asOf.AddDate(0, 0, -priceHistoryDays)
		return b.market.GetPriceHistory(ctx, spec.Entity, from, asOf)
	case "quarterly_financials":
		return b.market.GetQuarterlyFinancials(ctx, spec.Entity, quarterlyLimit)
	case "news":
		return b.market.GetStockNews(ctx, newsTickers(spec), newsLimit(spec))
	case "market_snapshot":
		return b.market.GetMarketSnapshot(ctx)
	case "sector_performance":
		return b.market.GetSectorPerformance(ctx)
	case "movers":
		return b.market.GetMovers(ctx)
	case "peers":
		return b.market.GetPeers(ctx, spec.Entity)
	case "peer_ratios":
		return b.fetchPeerRatios(ctx, spec.Entity)
	case "quotes":
		return b.fetchBatchQuotes(ctx, spec.EntityTickers)
	case "profiles":
		return b.fetchBatchProfiles(ctx, spec.EntityTickers)
	}
	return nil, fmt.Errorf("unknown market data field %q for key %s", req.Field, req.Key)
}

func (b *Builder) fetchFilings(ctx context.Context, spec *models.ArticleSpec, req *models.KeyRequirement) (interface{}, error) {
	switch req.Field {
	case "recent_filings":
		return b.filings.RecentFilings(ctx, spec.Entity, filingsLimit)
	case "material_events":
		return b.filings.MaterialEvents(ctx, spec.Entity, materialEventsPerTicker)
	case "market_material_events":
		return b.fetchMarketMaterialEvents(ctx, spec.EntityTickers)
	}
	return nil, fmt.Errorf("unknown filings field %q for key %s", req.Field, req.Key)
}

func (b *Builder) fetchTranscript(ctx context.Context, spec *models.ArticleSpec, req *models.KeyRequirement) (interface{}, error) {
	switch req.Field {
	case "guidance":
		return b.transcripts.GuidanceExcerpts(ctx, spec.Entity)
	case "latest_transcript":
		text, quarter, err := b.transcripts.LatestTranscript(ctx, spec.Entity)
		if err != nil {
			return nil, err
		}
		return &models.TranscriptDoc{Ticker: spec.Entity, Quarter: quarter, Text: text}, nil
	}
	return nil, fmt.Errorf("unknown transcript field %q for key %s", req.Field, req.Key)
}

// newsTickers scopes the news fetch: the daily brief reads the whole
// market, a deep dive its ticker, a theme its constituent list.
func newsTickers(spec *models.ArticleSpec) []string {
	if spec.Kind == models.ArticleDailyBrief {
		return nil
	}
	if len(spec.EntityTickers) > 0 {
		return spec.EntityTickers
	}
	if spec.Entity != "" {
		return []string{spec.Entity}
	}
	return nil
}

func newsLimit(spec *models.ArticleSpec) int {
	if spec.Kind == models.ArticleDailyBrief {
		return marketNewsLimit
	}
	return entityNewsLimit
}

// fetchPeerRatios assembles the peer multiple set for the deep dive:
// up to maxPeerRatios peers, skipping any whose ratios are unavailable.
func (b *Builder) fetchPeerRatios(ctx context.Context, ticker string) (interface{}, error) {
	peers, err := b.market.GetPeers(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if len(peers) > maxPeerRatios {
		peers = peers[:maxPeerRatios]
	}

	ratios := make([]models.Ratios, 0, len(peers))
	for _, peer := range peers {
		r, err := b.market.GetRatios(ctx, peer)
		if err != nil {
			b.logger.Warn().Err(err).Str("peer", peer).Msg("Peer ratios unavailable")
			continue
		}
		ratios = append(ratios, *r)
	}
	if len(ratios) == 0 {
		return nil, interfaces.NewFetchError(interfaces.FailureNotFound, AdapterMarketData, "peer_ratios",
			fmt.Errorf("no peer ratios available for %s", ticker))
	}
	return ratios, nil
}

// fetchBatchQuotes collects quotes for an entity's constituent tickers,
// tolerating individual misses as long as one quote survives.
func (b *Builder) fetchBatchQuotes(ctx context.Context, tickers []string) (interface{}, error) {
	quotes := make([]models.Quote, 0, len(tickers))
	for _, ticker := range tickers {
		q, err := b.market.GetQuote(ctx, ticker)
		if err != nil {
			b.logger.Warn().Err(err).Str("ticker", ticker).Msg("Constituent quote unavailable")
			continue
		}
		quotes = append(quotes, *q)
	}
	if len(quotes) == 0 {
		return nil, interfaces.NewFetchError(interfaces.FailureNotFound, AdapterMarketData, "quotes",
			fmt.Errorf("no quotes for %d constituent tickers", len(tickers)))
	}
	return quotes, nil
}

func (b *Builder) fetchBatchProfiles(ctx context.Context, tickers []string) (interface{}, error) {
	profiles := make([]models.CompanyProfile, 0, len(tickers))
	for _, ticker := range tickers {
		p, err := b.market.GetProfile(ctx, ticker)
		if err != nil {
			b.logger.Warn().Err(err).Str("ticker", ticker).Msg("Constituent profile unavailable")
			continue
		}
		profiles = append(profiles, *p)
	}
	if len(profiles) == 0 {
		return nil, interfaces.NewFetchError(interfaces.FailureNotFound, AdapterMarketData, "profiles",
			fmt.Errorf("no profiles for %d constituent tickers", len(tickers)))
	}
	return profiles, nil
}

// fetchMarketMaterialEvents sweeps fresh 8-K material events across the
// watch universe so filing-only disclosures can compete for the brief's
// top list before any outlet picks them up. Per-ticker misses are
// tolerated; an empty sweep with no hard failure is a valid empty fact.
func (b *Builder) fetchMarketMaterialEvents(ctx context.Context, tickers []string) (interface{}, error) {
	if len(tickers) > materialEventTickers {
		tickers = tickers[:materialEventTickers]
	}

	filings := make([]models.Filing, 0, len(tickers))
	var lastErr error
	for _, ticker := range tickers {
		events, err := b.filings.MaterialEvents(ctx, ticker, materialEventsPerTicker)
		if err != nil {
			if fe, ok := interfaces.AsFetchError(err); !ok || fe.Kind != interfaces.FailureNotFound {
				b.logger.Warn().Err(err).Str("ticker", ticker).Msg("Material events unavailable")
				lastErr = err
			}
			continue
		}
		filings = append(filings, events...)
	}
	if len(filings) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return filings, nil
}
