package evidence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/scoring"
)

var testAsOf = time.Date(2026, 2, 10, 16, 0, 0, 0, time.UTC)

// fakeMarket stubs the market data adapter with per-field functions.
// Unstubbed fields fail with not_found and every call is counted.
type fakeMarket struct {
	mu    sync.Mutex
	calls map[string]int

	quote      func(ctx context.Context, ticker string) (*models.Quote, error)
	profile    func(ticker string) (*models.CompanyProfile, error)
	estimates  func(ticker string) (*models.AnalystEstimates, error)
	ratios     func(ticker string) (*models.Ratios, error)
	history    func(ticker string, from, to time.Time) ([]models.PriceBar, error)
	financials func(ticker string, limit int) ([]models.QuarterlyFinancials, error)
	news       func(tickers []string, limit int) ([]models.NewsItem, error)
	sectors    func() ([]models.SectorPerformance, error)
	movers     func() ([]models.StockCandidate, error)
	snapshot   func() (*models.MarketSnapshot, error)
	peers      func(ticker string) ([]string, error)
}

var _ interfaces.MarketDataAdapter = (*fakeMarket)(nil)

func notStubbed(field string) error {
	return interfaces.NewFetchError(interfaces.FailureNotFound, "fmp", field, errors.New("not stubbed"))
}

func (f *fakeMarket) record(field string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[field]++
}

func (f *fakeMarket) count(field string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[field]
}

func (f *fakeMarket) GetQuote(ctx context.Context, ticker string) (*models.Quote, error) {
	f.record("quote")
	if f.quote == nil {
		return nil, notStubbed("quote")
	}
	return f.quote(ctx, ticker)
}

func (f *fakeMarket) GetProfile(_ context.Context, ticker string) (*models.CompanyProfile, error) {
	f.record("profile")
	if f.profile == nil {
		return nil, notStubbed("profile")
	}
	return f.profile(ticker)
}

func (f *fakeMarket) GetEstimates(_ context.Context, ticker string) (*models.AnalystEstimates, error) {
	f.record("estimates")
	if f.estimates == nil {
		return nil, notStubbed("estimates")
	}
	return f.estimates(ticker)
}

func (f *fakeMarket) GetRatios(_ context.Context, ticker string) (*models.Ratios, error) {
	f.record("ratios")
	if f.ratios == nil {
		return nil, notStubbed("ratios")
	}
	return f.ratios(ticker)
}

func (f *fakeMarket) GetPriceHistory(_ context.Context, ticker string, from, to time.Time) ([]models.PriceBar, error) {
	f.record("price_history")
	if f.history == nil {
		return nil, notStubbed("price_history")
	}
	return f.history(ticker, from, to)
}

func (f *fakeMarket) GetQuarterlyFinancials(_ context.Context, ticker string, limit int) ([]models.QuarterlyFinancials, error) {
	f.record("quarterly_financials")
	if f.financials == nil {
		return nil, notStubbed("quarterly_financials")
	}
	return f.financials(ticker, limit)
}

func (f *fakeMarket) GetStockNews(_ context.Context, tickers []string, limit int) ([]models.NewsItem, error) {
	f.record("news")
	if f.news == nil {
		return nil, notStubbed("news")
	}
	return f.news(tickers, limit)
}

func (f *fakeMarket) GetSectorPerformance(_ context.Context) ([]models.SectorPerformance, error) {
	f.record("sector_performance")
	if f.sectors == nil {
		return nil, notStubbed("sector_performance")
	}
	return f.sectors()
}

func (f *fakeMarket) GetMovers(_ context.Context) ([]models.StockCandidate, error) {
	f.record("movers")
	if f.movers == nil {
		return nil, notStubbed("movers")
	}
	return f.movers()
}

func (f *fakeMarket) GetMarketSnapshot(_ context.Context) (*models.MarketSnapshot, error) {
	f.record("market_snapshot")
	if f.snapshot == nil {
		return nil, notStubbed("market_snapshot")
	}
	return f.snapshot()
}

func (f *fakeMarket) GetPeers(_ context.Context, ticker string) ([]string, error) {
	f.record("peers")
	if f.peers == nil {
		return nil, notStubbed("peers")
	}
	return f.peers(ticker)
}

// fakeFilings stubs the SEC adapter.
type fakeFilings struct {
	recent   func(ticker string, limit int) ([]models.Filing, error)
	material func(ticker string, limit int) ([]models.Filing, error)
}

var _ interfaces.FilingsAdapter = (*fakeFilings)(nil)

func (f *fakeFilings) RecentFilings(_ context.Context, ticker string, limit int) ([]models.Filing, error) {
	if f.recent == nil {
		return nil, notStubbed("recent_filings")
	}
	return f.recent(ticker, limit)
}

func (f *fakeFilings) FilingText(_ context.Context, _ *models.Filing) (string, error) {
	return "", notStubbed("filing_text")
}

func (f *fakeFilings) MaterialEvents(_ context.Context, ticker string, limit int) ([]models.Filing, error) {
	if f.material == nil {
		return nil, notStubbed("material_events")
	}
	return f.material(ticker, limit)
}

// fakeTranscripts stubs the transcript adapter.
type fakeTranscripts struct {
	guidance func(ticker string) ([]models.TranscriptExcerpt, error)
}

var _ interfaces.TranscriptAdapter = (*fakeTranscripts)(nil)

func (f *fakeTranscripts) LatestTranscript(_ context.Context, _ string) (string, string, error) {
	return "", "", notStubbed("latest_transcript")
}

func (f *fakeTranscripts) GuidanceExcerpts(_ context.Context, ticker string) ([]models.TranscriptExcerpt, error) {
	if f.guidance == nil {
		return nil, notStubbed("guidance")
	}
	return f.guidance(ticker)
}

func cacheKey(entity, field string) string { return entity + "|" + field }

// fakeCache is a map-backed fact cache.
type fakeCache struct {
	mu     sync.Mutex
	fresh  map[string]*models.Fact
	latest map[string]*models.Fact
	puts   map[string]*models.Fact
}

var _ interfaces.FactCache = (*fakeCache)(nil)

func (c *fakeCache) GetFresh(_ context.Context, entity, field, _ string, _ time.Duration) (*models.Fact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.fresh[cacheKey(entity, field)]; ok {
		return f, nil
	}
	return nil, interfaces.ErrCacheMiss
}

func (c *fakeCache) GetLatest(_ context.Context, entity, field string, _ int) (*models.Fact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.latest[cacheKey(entity, field)]; ok {
		return f, nil
	}
	return nil, interfaces.ErrCacheMiss
}

func (c *fakeCache) Put(_ context.Context, entity, field, _ string, fact *models.Fact) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.puts == nil {
		c.puts = make(map[string]*models.Fact)
	}
	c.puts[cacheKey(entity, field)] = fact
	return nil
}

func (c *fakeCache) Purge(_ context.Context, _ time.Time) (int, error) { return 0, nil }

// fakeStore records saved packs and serves preloaded latest versions.
type fakeStore struct {
	mu     sync.Mutex
	saved  []*models.EvidencePack
	latest map[string]*models.EvidencePack
}

var _ interfaces.ArtifactStore = (*fakeStore)(nil)

func (s *fakeStore) SavePack(_ context.Context, pack *models.EvidencePack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, pack)
	return nil
}

func (s *fakeStore) GetPack(_ context.Context, _, _ string, _ int) (*models.EvidencePack, error) {
	return nil, interfaces.ErrArtifactNotFound
}

func (s *fakeStore) LatestPack(_ context.Context, date, slug string) (*models.EvidencePack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.latest[date+"|"+slug]; ok {
		return p, nil
	}
	return nil, interfaces.ErrArtifactNotFound
}

func (s *fakeStore) SaveReport(_ context.Context, _, _ string, _ *models.QAReport) error { return nil }

func (s *fakeStore) GetReport(_ context.Context, _, _ string) (*models.QAReport, error) {
	return nil, interfaces.ErrArtifactNotFound
}

func (s *fakeStore) SaveDraft(_ context.Context, _, _ string, _ *models.Draft) error { return nil }

func (s *fakeStore) SaveAsset(_ context.Context, _, _, _ string, _ []byte) (string, error) {
	return "", nil
}

func (s *fakeStore) GetAsset(_ context.Context, _ string) ([]byte, error) {
	return nil, interfaces.ErrArtifactNotFound
}

func (s *fakeStore) ListByDate(_ context.Context, _ string) ([]interfaces.ArtifactRef, error) {
	return nil, nil
}

func testFetchConfig() *common.FetchConfig {
	return &common.FetchConfig{
		MaxAttempts:    3,
		BackoffBase:    "1ms",
		BackoffMax:     "4ms",
		MaxConcurrent:  4,
		CacheTTL:       "5m",
		MaxStaleDays:   3,
		AdapterTimeout: "250ms",
	}
}

func newTestBuilder(market *fakeMarket, filings *fakeFilings, transcripts *fakeTranscripts, cache *fakeCache, store *fakeStore) *Builder {
	if cache == nil {
		cache = &fakeCache{}
	}
	if store == nil {
		store = &fakeStore{}
	}
	return NewBuilder(testFetchConfig(), market, filings, transcripts, cache, store, arbor.NewLogger())
}

func briefNews() []models.NewsItem {
	mk := func(hoursAgo float64, title, site, url string, tickers ...string) models.NewsItem {
		return models.NewsItem{
			Title:       title,
			URL:         url,
			Site:        site,
			Tickers:     tickers,
			PublishedAt: testAsOf.Add(-time.Duration(hoursAgo * float64(time.Hour))),
			Text:        "Body text for " + title,
		}
	}
	return []models.NewsItem{
		mk(1, "Nvidia beats earnings estimates on data center strength", "news-a", "https://a.example/nv1", "NVDA"),
		mk(2, "Microsoft announces new cloud region", "news-b", "https://b.example/ms1", "MSFT"),
		mk(3, "Fed officials signal rate path remains data dependent", "news-c", "https://c.example/fed1"),
		mk(4, "Apple unveils new device lineup", "news-d", "https://d.example/ap1", "AAPL"),
		mk(5, "Tesla faces lawsuit over autopilot claims", "news-e", "https://e.example/ts1", "TSLA"),
		mk(6, "Amazon acquires robotics startup", "news-f", "https://f.example/am1", "AMZN"),
		mk(7, "Chipmaker guidance lifts semiconductor stocks", "news-g", "https://g.example/ch1", "AMD"),
	}
}

func briefSpec() *models.ArticleSpec {
	return &models.ArticleSpec{
		Kind:          models.ArticleDailyBrief,
		Entity:        "market",
		EntityTickers: []string{"NVDA", "MSFT"},
		Requirements: []models.KeyRequirement{
			{Key: "market_snapshot", Adapter: AdapterMarketData, Field: "market_snapshot", Policy: models.DegradeRetry},
			{Key: "news", Adapter: AdapterMarketData, Field: "news", Policy: models.DegradeRetry},
			{Key: "movers", Adapter: AdapterMarketData, Field: "movers", Policy: models.DegradeStaleCache},
			{Key: "material_filings", Adapter: AdapterFilings, Field: "market_material_events", Policy: models.DegradeMarkMissing, Optional: true},
			{Key: "price_changes", Adapter: AdapterComputed, Policy: models.DegradeMarkMissing},
			{Key: "selected_events", Adapter: AdapterComputed, Policy: models.DegradeMarkMissing},
			{Key: "watch_items", Adapter: AdapterComputed, Policy: models.DegradeMarkMissing},
		},
	}
}

func briefMarket() *fakeMarket {
	return &fakeMarket{
		snapshot: func() (*models.MarketSnapshot, error) {
			return &models.MarketSnapshot{
				AsOf: testAsOf,
				Quotes: []models.Quote{
					{Ticker: "SPY", Price: 612.4, PreviousClose: 608.1, ChangePct: 0.71},
					{Ticker: "QQQ", Price: 544.2, PreviousClose: 540.0, ChangePct: 0.78},
				},
			}, nil
		},
		news: func(tickers []string, limit int) ([]models.NewsItem, error) {
			return briefNews(), nil
		},
		movers: func() ([]models.StockCandidate, error) {
			return []models.StockCandidate{
				{Ticker: "NVDA", PriceMovePct: 6.2},
				{Ticker: "TSLA", PriceMovePct: -4.8},
			}, nil
		},
	}
}

func TestBuildDailyBriefPack(t *testing.T) {
	market := briefMarket()
	filings := &fakeFilings{
		material: func(ticker string, limit int) ([]models.Filing, error) {
			if ticker != "NVDA" {
				return nil, notStubbed("material_events")
			}
			return []models.Filing{{
				Ticker:      "NVDA",
				Form:        "8-K",
				Description: "Results of Operations and Financial Condition",
				DocumentURL: "https://sec.example/nvda-8k",
				FiledAt:     testAsOf.Add(-2 * time.Hour),
			}}, nil
		},
	}
	cache := &fakeCache{}
	store := &fakeStore{}
	builder := newTestBuilder(market, filings, &fakeTranscripts{}, cache, store)

	pack, err := builder.Build(context.Background(), briefSpec(), testAsOf)
	require.NoError(t, err)

	assert.Equal(t, "daily-brief-20260210", pack.ArticleID)
	assert.Equal(t, "2026-02-10", pack.AsOfDate)
	assert.Equal(t, 1, pack.Version)
	assert.True(t, pack.Sealed())
	assert.NotEmpty(t, pack.ContentHash)
	assert.Empty(t, pack.MissingKeys())

	// Fetched values round-trip through the pack.
	var snapshot models.MarketSnapshot
	require.NoError(t, decodeFact(pack, "market_snapshot", &snapshot))
	assert.Len(t, snapshot.Quotes, 2)

	// The selection chain ran and recorded its derivation, including the
	// filing sweep that contributed the 8-K event.
	selected := pack.Get("selected_events")
	require.NotNil(t, selected)
	assert.Equal(t, models.SourceComputed, selected.Source)
	require.NotNil(t, selected.Derivation)
	assert.Contains(t, selected.Derivation.InputKeys, "news")
	assert.Contains(t, selected.Derivation.InputKeys, "price_changes")
	assert.Contains(t, selected.Derivation.InputKeys, "material_filings")

	var events []scoring.ScoredEvent
	require.NoError(t, decodeFact(pack, "selected_events", &events))
	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i-1].Score.Total, events[i].Score.Total)
	}

	var watch []string
	require.NoError(t, decodeFact(pack, "watch_items", &watch))
	assert.NotEmpty(t, watch)

	// Fresh fetches were cached and the sealed pack persisted.
	assert.NotNil(t, cache.puts[cacheKey("market", "movers")])
	assert.NotNil(t, cache.puts[cacheKey("market", "news")])
	require.Len(t, store.saved, 1)
	assert.Equal(t, pack.ContentHash, store.saved[0].ContentHash)
}

func TestBuildRetriesTransientFailures(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	market := &fakeMarket{
		quote: func(_ context.Context, ticker string) (*models.Quote, error) {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts < 3 {
				return nil, interfaces.NewFetchError(interfaces.FailureRateLimited, "fmp", "quote", errors.New("429"))
			}
			return &models.Quote{Ticker: ticker, Price: 185.5, PreviousClose: 180.0, ChangePct: 3.06}, nil
		},
	}
	builder := newTestBuilder(market, &fakeFilings{}, &fakeTranscripts{}, nil, nil)

	spec := &models.ArticleSpec{
		Kind:   models.ArticleDeepDive,
		Entity: "NVDA",
		Requirements: []models.KeyRequirement{
			{Key: "quote", Adapter: AdapterMarketData, Field: "quote", Policy: models.DegradeRetry},
		},
	}
	pack, err := builder.Build(context.Background(), spec, testAsOf)
	require.NoError(t, err)

	assert.Equal(t, 3, market.count("quote"))
	assert.True(t, pack.Has("quote"))
	var quote models.Quote
	require.NoError(t, decodeFact(pack, "quote", &quote))
	assert.InDelta(t, 185.5, quote.Price, 1e-9)
}

func TestBuildDoesNotRetryPermanentFailures(t *testing.T) {
	market := &fakeMarket{} // every field fails with not_found
	builder := newTestBuilder(market, &fakeFilings{}, &fakeTranscripts{}, nil, nil)

	spec := &models.ArticleSpec{
		Kind:   models.ArticleDeepDive,
		Entity: "NVDA",
		Requirements: []models.KeyRequirement{
			{Key: "quote", Adapter: AdapterMarketData, Field: "quote", Policy: models.DegradeRetry},
		},
	}
	pack, err := builder.Build(context.Background(), spec, testAsOf)
	require.NoError(t, err)

	assert.Equal(t, 1, market.count("quote"), "not_found must not burn retry attempts")
	assert.False(t, pack.Has("quote"))
	assert.Equal(t, []string{"quote"}, pack.MissingKeys())
}

func TestBuildDegradesToStaleCache(t *testing.T) {
	staleValue := []models.StockCandidate{{Ticker: "NVDA", PriceMovePct: 3.1}}
	cache := &fakeCache{
		latest: map[string]*models.Fact{
			cacheKey("market", "movers"): models.NewFact("movers", staleValue, models.SourceMarketData, testAsOf.AddDate(0, 0, -1)),
		},
	}
	market := briefMarket()
	market.movers = nil // live fetch fails
	builder := newTestBuilder(market, &fakeFilings{}, &fakeTranscripts{}, cache, nil)

	pack, err := builder.Build(context.Background(), briefSpec(), testAsOf)
	require.NoError(t, err)

	movers := pack.Get("movers")
	require.NotNil(t, movers)
	assert.True(t, movers.Stale)
	assert.False(t, movers.Missing)
	assert.Equal(t, "movers", movers.Key)
	assert.Equal(t, models.SourceMarketData, movers.Source)

	// The substituted value still feeds the computed chain.
	changes := make(map[string]float64)
	require.NoError(t, decodeFact(pack, "price_changes", &changes))
	assert.InDelta(t, 3.1, changes["NVDA"], 1e-9)
}

func TestBuildDegradesToStaticDefault(t *testing.T) {
	market := &fakeMarket{} // sector fetch fails
	builder := newTestBuilder(market, &fakeFilings{}, &fakeTranscripts{}, nil, nil)

	spec := &models.ArticleSpec{
		Kind:   models.ArticleDailyBrief,
		Entity: "market",
		Requirements: []models.KeyRequirement{
			{Key: "sector_performance", Adapter: AdapterMarketData, Field: "sector_performance", Policy: models.DegradeStaticDefault, StaticDefault: "unchanged on the day"},
		},
	}
	pack, err := builder.Build(context.Background(), spec, testAsOf)
	require.NoError(t, err)

	fact := pack.Get("sector_performance")
	require.NotNil(t, fact)
	assert.Equal(t, models.SourceStaticConfig, fact.Source)
	assert.Equal(t, "unchanged on the day", fact.Value)
	assert.False(t, fact.Missing)
}

func TestBuildSealsWithMissingKeys(t *testing.T) {
	market := briefMarket()
	market.news = nil // news fails, taking the computed chain down with it
	builder := newTestBuilder(market, &fakeFilings{}, &fakeTranscripts{}, nil, nil)

	pack, err := builder.Build(context.Background(), briefSpec(), testAsOf)
	require.NoError(t, err)

	assert.True(t, pack.Sealed())
	missing := pack.MissingKeys()
	assert.Contains(t, missing, "news")
	assert.Contains(t, missing, "selected_events")
	assert.Contains(t, missing, "watch_items")
	// Movers still resolved, so price changes still computed.
	assert.True(t, pack.Has("price_changes"))
}

func TestBuildUsesFreshCache(t *testing.T) {
	cached := models.NewFact("quote", &models.Quote{Ticker: "NVDA", Price: 190.0}, models.SourceMarketData, testAsOf)
	cache := &fakeCache{
		fresh: map[string]*models.Fact{cacheKey("NVDA", "quote"): cached},
	}
	market := &fakeMarket{}
	builder := newTestBuilder(market, &fakeFilings{}, &fakeTranscripts{}, cache, nil)

	spec := &models.ArticleSpec{
		Kind:   models.ArticleDeepDive,
		Entity: "NVDA",
		Requirements: []models.KeyRequirement{
			{Key: "quote", Adapter: AdapterMarketData, Field: "quote", Policy: models.DegradeRetry},
		},
	}
	pack, err := builder.Build(context.Background(), spec, testAsOf)
	require.NoError(t, err)

	assert.Equal(t, 0, market.count("quote"), "fresh cache hit must skip the adapter")
	assert.True(t, pack.Has("quote"))
}

func TestBuildBumpsVersionOnRerun(t *testing.T) {
	store := &fakeStore{
		latest: map[string]*models.EvidencePack{
			"2026-02-10|daily-brief-20260210": {Version: 2},
		},
	}
	builder := newTestBuilder(briefMarket(), &fakeFilings{}, &fakeTranscripts{}, nil, store)

	pack, err := builder.Build(context.Background(), briefSpec(), testAsOf)
	require.NoError(t, err)
	assert.Equal(t, 3, pack.Version)
}

func TestBuildHonorsPerKeyTimeout(t *testing.T) {
	market := &fakeMarket{
		quote: func(ctx context.Context, ticker string) (*models.Quote, error) {
			select {
			case <-time.After(2 * time.Second):
				return &models.Quote{Ticker: ticker, Price: 100}, nil
			case <-ctx.Done():
				return nil, interfaces.NewFetchError(interfaces.FailureTimeout, "fmp", "quote", ctx.Err())
			}
		},
	}
	config := testFetchConfig()
	config.AdapterTimeout = "20ms"
	builder := NewBuilder(config, market, &fakeFilings{}, &fakeTranscripts{}, &fakeCache{}, &fakeStore{}, arbor.NewLogger())

	spec := &models.ArticleSpec{
		Kind:   models.ArticleDeepDive,
		Entity: "NVDA",
		Requirements: []models.KeyRequirement{
			{Key: "quote", Adapter: AdapterMarketData, Field: "quote", Policy: models.DegradeMarkMissing},
		},
	}
	start := time.Now()
	pack, err := builder.Build(context.Background(), spec, testAsOf)
	require.NoError(t, err)

	assert.False(t, pack.Has("quote"))
	assert.Less(t, time.Since(start), time.Second, "a stalled adapter must not stall the build")
}

func TestBuildComputesScalarExtracts(t *testing.T) {
	market := &fakeMarket{
		quote: func(_ context.Context, ticker string) (*models.Quote, error) {
			return &models.Quote{Ticker: ticker, Price: 185.5, PreviousClose: 180.0, ChangePct: 3.06}, nil
		},
		profile: func(ticker string) (*models.CompanyProfile, error) {
			return &models.CompanyProfile{Ticker: ticker, Name: "NVIDIA Corporation", Sector: "Technology"}, nil
		},
		estimates: func(ticker string) (*models.AnalystEstimates, error) {
			return &models.AnalystEstimates{Ticker: ticker, NTMEPS: 6.4, NumAnalysts: 42}, nil
		},
		ratios: func(ticker string) (*models.Ratios, error) {
			return &models.Ratios{Ticker: ticker, ForwardPE: 29.0, FCFPerShare: 4.1}, nil
		},
	}
	builder := newTestBuilder(market, &fakeFilings{}, &fakeTranscripts{}, nil, nil)

	spec := &models.ArticleSpec{
		Kind:          models.ArticleDeepDive,
		Entity:        "NVDA",
		EntityTickers: []string{"NVDA"},
		Requirements: []models.KeyRequirement{
			{Key: "quote", Adapter: AdapterMarketData, Field: "quote", Policy: models.DegradeRetry},
			{Key: "profile", Adapter: AdapterMarketData, Field: "profile", Policy: models.DegradeStaleCache},
			{Key: "estimates", Adapter: AdapterMarketData, Field: "estimates", Policy: models.DegradeMarkMissing},
			{Key: "ratios", Adapter: AdapterMarketData, Field: "ratios", Policy: models.DegradeMarkMissing},
			{Key: "current_price", Adapter: AdapterComputed, Policy: models.DegradeMarkMissing},
			{Key: "company_name", Adapter: AdapterComputed, Policy: models.DegradeMarkMissing},
			{Key: "sector", Adapter: AdapterComputed, Policy: models.DegradeMarkMissing},
			{Key: "ntm_eps", Adapter: AdapterComputed, Policy: models.DegradeMarkMissing},
			{Key: "forward_pe", Adapter: AdapterComputed, Policy: models.DegradeMarkMissing},
			{Key: "fcf_per_share", Adapter: AdapterComputed, Policy: models.DegradeMarkMissing},
		},
	}
	pack, err := builder.Build(context.Background(), spec, testAsOf)
	require.NoError(t, err)
	assert.Equal(t, "deep-dive-20260210-nvda", pack.ArticleID)
	assert.Empty(t, pack.MissingKeys())

	price, ok := pack.Float("current_price")
	require.True(t, ok)
	assert.InDelta(t, 185.5, price, 1e-9)

	eps := pack.Get("ntm_eps")
	require.NotNil(t, eps)
	assert.Equal(t, models.SourceComputed, eps.Source)
	require.NotNil(t, eps.Derivation)
	assert.Equal(t, []string{"estimates"}, eps.Derivation.InputKeys)
	assert.Equal(t, "estimates.ntm_eps", eps.Derivation.Formula)

	sector, ok := pack.Get("sector").String()
	require.True(t, ok)
	assert.Equal(t, "Technology", sector)

	name, ok := pack.Get("company_name").String()
	require.True(t, ok)
	assert.Equal(t, "NVIDIA Corporation", name)
}

func TestBuildThemePack(t *testing.T) {
	market := &fakeMarket{
		news: func(tickers []string, limit int) ([]models.NewsItem, error) {
			assert.Equal(t, []string{"NVDA", "AMD"}, tickers)
			return []models.NewsItem{
				{
					Title:       "AI server demand accelerates as GPU orders climb",
					URL:         "https://a.example/ai1",
					Site:        "news-a",
					Tickers:     []string{"NVDA"},
					PublishedAt: testAsOf.Add(-2 * time.Hour),
				},
				{
					Title:       "Data center buildout lifts accelerator suppliers",
					URL:         "https://b.example/ai2",
					Site:        "news-b",
					Tickers:     []string{"AMD"},
					PublishedAt: testAsOf.Add(-4 * time.Hour),
				},
			}, nil
		},
		quote: func(_ context.Context, ticker string) (*models.Quote, error) {
			if ticker == "AMD" {
				return nil, notStubbed("quote")
			}
			return &models.Quote{Ticker: ticker, Price: 185.5}, nil
		},
	}
	builder := newTestBuilder(market, &fakeFilings{}, &fakeTranscripts{}, nil, nil)

	spec := &models.ArticleSpec{
		Kind:          models.ArticleThemeTrend,
		Entity:        "ai-server",
		EntityTickers: []string{"NVDA", "AMD"},
		Requirements: []models.KeyRequirement{
			{Key: "theme_name", Adapter: AdapterStatic, Policy: models.DegradeMarkMissing},
			{Key: "news", Adapter: AdapterMarketData, Field: "news", Policy: models.DegradeRetry},
			{Key: "constituent_quotes", Adapter: AdapterMarketData, Field: "quotes", Policy: models.DegradeMarkMissing},
			{Key: "theme_events", Adapter: AdapterComputed, Policy: models.DegradeMarkMissing},
		},
	}
	require.True(t, spec.SetStatic("theme_name", "AI Server Supply Chain"))

	pack, err := builder.Build(context.Background(), spec, testAsOf)
	require.NoError(t, err)
	assert.Equal(t, "theme-trend-20260210-ai-server", pack.ArticleID)

	name, ok := pack.Get("theme_name").String()
	require.True(t, ok)
	assert.Equal(t, "AI Server Supply Chain", name)
	assert.Equal(t, models.SourceStaticConfig, pack.Get("theme_name").Source)

	var quotes []models.Quote
	require.NoError(t, decodeFact(pack, "constituent_quotes", &quotes))
	require.Len(t, quotes, 1, "AMD quote failure must not sink the batch")
	assert.Equal(t, "NVDA", quotes[0].Ticker)

	var theme ThemeEvidence
	require.NoError(t, decodeFact(pack, "theme_events", &theme))
	assert.Equal(t, "ai-server", theme.Theme.ID)
	assert.NotEmpty(t, theme.Events)
}

func TestBuildRejectsEmptySpec(t *testing.T) {
	builder := newTestBuilder(&fakeMarket{}, &fakeFilings{}, &fakeTranscripts{}, nil, nil)
	_, err := builder.Build(context.Background(), &models.ArticleSpec{Kind: models.ArticleDailyBrief}, testAsOf)
	assert.Error(t, err)
}
