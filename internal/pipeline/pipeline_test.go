package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/charts"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/evidence"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/publish"
	"github.com/ternarybob/aestimo/internal/qa"
	"github.com/ternarybob/aestimo/internal/services/pdfgen"
	"github.com/ternarybob/aestimo/internal/valuation"
)

var testDate = time.Date(2026, 2, 10, 16, 0, 0, 0, time.UTC) // a Tuesday

// fakeMarket stubs the market data adapter. Unstubbed fields fail with
// not_found so degradation policies exercise their real paths.
type fakeMarket struct {
	news      []models.NewsItem
	movers    []models.StockCandidate
	quote     *models.Quote
	profile   *models.CompanyProfile
	estimates *models.AnalystEstimates
	ratios    *models.Ratios
	snapshot  *models.MarketSnapshot

	newsErr error
}

func notFound(field string) error {
	return interfaces.NewFetchError(interfaces.FailureNotFound, "fmp", field, errors.New("unstubbed"))
}

func (f *fakeMarket) GetQuote(_ context.Context, _ string) (*models.Quote, error) {
	if f.quote == nil {
		return nil, notFound("quote")
	}
	return f.quote, nil
}

func (f *fakeMarket) GetProfile(_ context.Context, _ string) (*models.CompanyProfile, error) {
	if f.profile == nil {
		return nil, notFound("profile")
	}
	return f.profile, nil
}

func (f *fakeMarket) GetEstimates(_ context.Context, _ string) (*models.AnalystEstimates, error) {
	if f.estimates == nil {
		return nil, notFound("estimates")
	}
	return f.estimates, nil
}

func (f *fakeMarket) GetRatios(_ context.Context, _ string) (*models.Ratios, error) {
	if f.ratios == nil {
		return nil, notFound("ratios")
	}
	return f.ratios, nil
}

func (f *fakeMarket) GetPriceHistory(_ context.Context, _ string, _, _ time.Time) ([]models.PriceBar, error) {
	return nil, notFound("price_history")
}

func (f *fakeMarket) GetQuarterlyFinancials(_ context.Context, _ string, _ int) ([]models.QuarterlyFinancials, error) {
	return nil, notFound("quarterly_financials")
}

func (f *fakeMarket) GetStockNews(_ context.Context, _ []string, _ int) ([]models.NewsItem, error) {
	if f.newsErr != nil {
		return nil, f.newsErr
	}
	return f.news, nil
}

func (f *fakeMarket) GetSectorPerformance(_ context.Context) ([]models.SectorPerformance, error) {
	return nil, notFound("sector_performance")
}

func (f *fakeMarket) GetMovers(_ context.Context) ([]models.StockCandidate, error) {
	return f.movers, nil
}

func (f *fakeMarket) GetMarketSnapshot(_ context.Context) (*models.MarketSnapshot, error) {
	if f.snapshot == nil {
		return nil, notFound("market_snapshot")
	}
	return f.snapshot, nil
}

func (f *fakeMarket) GetPeers(_ context.Context, _ string) ([]string, error) {
	return nil, notFound("peers")
}

type fakeFilings struct{}

func (fakeFilings) RecentFilings(_ context.Context, _ string, _ int) ([]models.Filing, error) {
	return nil, interfaces.NewFetchError(interfaces.FailureNotFound, "edgar", "recent_filings", errors.New("unstubbed"))
}

func (fakeFilings) FilingText(_ context.Context, _ *models.Filing) (string, error) {
	return "", errors.New("unstubbed")
}

func (fakeFilings) MaterialEvents(_ context.Context, _ string, _ int) ([]models.Filing, error) {
	return nil, interfaces.NewFetchError(interfaces.FailureNotFound, "edgar", "material_events", errors.New("unstubbed"))
}

type fakeTranscripts struct{}

func (fakeTranscripts) LatestTranscript(_ context.Context, _ string) (string, string, error) {
	return "", "", errors.New("unstubbed")
}

func (fakeTranscripts) GuidanceExcerpts(_ context.Context, _ string) ([]models.TranscriptExcerpt, error) {
	return nil, interfaces.NewFetchError(interfaces.FailureNotFound, "transcripts", "guidance", errors.New("unstubbed"))
}

type fakeCache struct{}

func (fakeCache) GetFresh(_ context.Context, _, _, _ string, _ time.Duration) (*models.Fact, error) {
	return nil, interfaces.ErrCacheMiss
}

func (fakeCache) GetLatest(_ context.Context, _, _ string, _ int) (*models.Fact, error) {
	return nil, interfaces.ErrCacheMiss
}

func (fakeCache) Put(_ context.Context, _, _, _ string, _ *models.Fact) error { return nil }

func (fakeCache) Purge(_ context.Context, _ time.Time) (int, error) { return 0, nil }

// fakeStore is an in-memory artifact store.
type fakeStore struct {
	mu      sync.Mutex
	packs   map[string]*models.EvidencePack
	reports map[string]*models.QAReport
	drafts  map[string]*models.Draft
	assets  map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		packs:   make(map[string]*models.EvidencePack),
		reports: make(map[string]*models.QAReport),
		drafts:  make(map[string]*models.Draft),
		assets:  make(map[string][]byte),
	}
}

func (s *fakeStore) SavePack(_ context.Context, pack *models.EvidencePack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packs[pack.AsOfDate+"|"+pack.ArticleID] = pack
	return nil
}

func (s *fakeStore) GetPack(_ context.Context, date, slug string, _ int) (*models.EvidencePack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.packs[date+"|"+slug]; ok {
		return p, nil
	}
	return nil, interfaces.ErrArtifactNotFound
}

func (s *fakeStore) LatestPack(_ context.Context, date, slug string) (*models.EvidencePack, error) {
	return s.GetPack(context.Background(), date, slug, 0)
}

func (s *fakeStore) SaveReport(_ context.Context, date, slug string, report *models.QAReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[date+"|"+slug] = report
	return nil
}

func (s *fakeStore) GetReport(_ context.Context, date, slug string) (*models.QAReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.reports[date+"|"+slug]; ok {
		return r, nil
	}
	return nil, interfaces.ErrArtifactNotFound
}

func (s *fakeStore) SaveDraft(_ context.Context, date, slug string, draft *models.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[date+"|"+slug] = draft
	return nil
}

func (s *fakeStore) SaveAsset(_ context.Context, date, slug, kind string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := date + "|" + slug + "|" + kind
	s.assets[key] = data
	return key, nil
}

func (s *fakeStore) GetAsset(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.assets[key]; ok {
		return d, nil
	}
	return nil, interfaces.ErrArtifactNotFound
}

func (s *fakeStore) ListByDate(_ context.Context, _ string) ([]interfaces.ArtifactRef, error) {
	return nil, nil
}

// fakeLedger mirrors the badger store's compare-and-swap semantics.
type fakeLedger struct {
	mu      sync.Mutex
	entries map[string]*models.LedgerEntry
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: make(map[string]*models.LedgerEntry)}
}

func (l *fakeLedger) Get(_ context.Context, date, slug string) (*models.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[models.LedgerKey(date, slug)]; ok {
		c := *e
		return &c, nil
	}
	return nil, interfaces.ErrLedgerNotFound
}

func (l *fakeLedger) Create(_ context.Context, entry *models.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[entry.Key]; ok {
		return interfaces.ErrLedgerConflict
	}
	c := *entry
	l.entries[entry.Key] = &c
	return nil
}

func (l *fakeLedger) Transition(_ context.Context, date, slug string, expected, next models.RunStatus, mutate func(*models.LedgerEntry)) (*models.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[models.LedgerKey(date, slug)]
	if !ok {
		return nil, interfaces.ErrLedgerNotFound
	}
	if e.Status != expected {
		return nil, interfaces.ErrLedgerConflict
	}
	e.Status = next
	if mutate != nil {
		mutate(e)
	}
	e.UpdatedAt = time.Now().UTC()
	c := *e
	return &c, nil
}

func (l *fakeLedger) MarkEmailSent(_ context.Context, date, slug string) (*models.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[models.LedgerKey(date, slug)]
	if !ok {
		return nil, interfaces.ErrLedgerNotFound
	}
	if e.EmailSent {
		return nil, interfaces.ErrLedgerConflict
	}
	e.EmailSent = true
	e.Status = models.RunStatusEmailSent
	c := *e
	return &c, nil
}

func (l *fakeLedger) ListByDate(_ context.Context, date string) ([]*models.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.LedgerEntry
	for _, e := range l.entries {
		if e.Date == date {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

// fakeTarget counts every remote call so tests can assert simulate mode
// never touches the platform.
type fakeTarget struct {
	mu      sync.Mutex
	calls   int
	posts   map[string]*interfaces.RemotePost
	created int
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{posts: make(map[string]*interfaces.RemotePost)}
}

func (t *fakeTarget) GetPostBySlug(_ context.Context, slug string) (*interfaces.RemotePost, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if p, ok := t.posts[slug]; ok {
		c := *p
		return &c, nil
	}
	return nil, nil
}

func (t *fakeTarget) CreatePost(_ context.Context, input *interfaces.PostInput) (*interfaces.RemotePost, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	t.created++
	p := &interfaces.RemotePost{ID: "post-" + input.Slug, Slug: input.Slug, Status: "published", UpdatedAt: time.Now()}
	t.posts[input.Slug] = p
	c := *p
	return &c, nil
}

func (t *fakeTarget) UpdatePost(_ context.Context, id string, input *interfaces.PostInput, _ time.Time) (*interfaces.RemotePost, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	p := &interfaces.RemotePost{ID: id, Slug: input.Slug, Status: "published", UpdatedAt: time.Now()}
	t.posts[input.Slug] = p
	c := *p
	return &c, nil
}

func (t *fakeTarget) UploadImage(_ context.Context, filename string, _ []byte) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	return "https://cdn.example/" + filename, nil
}

func (t *fakeTarget) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// fakeRenderer produces a fixed draft, or fails.
type fakeRenderer struct {
	body string
	err  error
}

func (r *fakeRenderer) RenderDraft(_ context.Context, spec *models.ArticleSpec, pack *models.EvidencePack, _ *models.ValuationSet) (*models.Draft, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &models.Draft{
		ArticleID: pack.ArticleID,
		Title:     "Test article for " + spec.Entity,
		Body:      r.body,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// fakeAlerts records everything sent.
type fakeAlerts struct {
	mu    sync.Mutex
	sent  []*interfaces.Alert
	fails int
}

func (a *fakeAlerts) Send(_ context.Context, alert *interfaces.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, alert)
	return nil
}

func (a *fakeAlerts) bySeverity(sev interfaces.AlertSeverity) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, al := range a.sent {
		if al.Severity == sev {
			n++
		}
	}
	return n
}

type testEnv struct {
	service *Service
	market  *fakeMarket
	store   *fakeStore
	ledger  *fakeLedger
	target  *fakeTarget
	alerts  *fakeAlerts
	outDir  string
}

func newTestEnv(t *testing.T, market *fakeMarket, renderer interfaces.ArticleRenderer) *testEnv {
	t.Helper()
	logger := arbor.NewLogger()
	store := newFakeStore()
	ledger := newFakeLedger()
	target := newFakeTarget()
	alertSink := &fakeAlerts{}
	outDir := t.TempDir()

	fetchCfg := &common.FetchConfig{
		MaxAttempts:    1,
		BackoffBase:    "1ms",
		BackoffMax:     "2ms",
		MaxConcurrent:  4,
		CacheTTL:       "5m",
		MaxStaleDays:   3,
		AdapterTimeout: "250ms",
	}
	builder := evidence.NewBuilder(fetchCfg, market, fakeFilings{}, fakeTranscripts{}, fakeCache{}, store, logger)
	engine := valuation.New(common.ValuationConfig{
		SensitivitySpread: 0.20,
		SensitivitySteps:  5,
		BearMultipleRatio: 0.8,
		BullMultipleRatio: 1.2,
		DefaultMultiple:   20,
	})
	gate := qa.NewGate(common.QAConfig{}, "Not investment advice.", logger)
	coordinator := publish.NewCoordinator(target, ledger, common.PublishConfig{EmailSegment: "all"}, logger)

	svc := NewService(Deps{
		Specs:       DefaultSpecs(),
		Selector:    NewSelector(market, logger),
		Builder:     builder,
		Engine:      engine,
		Renderer:    renderer,
		Gate:        gate,
		Charts:      charts.NewService(common.ChartsConfig{Enabled: false}, logger),
		PDF:         pdfgen.NewService(logger),
		Artifacts:   store,
		Ledger:      ledger,
		Coordinator: coordinator,
		Target:      target,
		Alerts:      alertSink,
		OutputDir:   outDir,
		Logger:      logger,
	})

	return &testEnv{
		service: svc,
		market:  market,
		store:   store,
		ledger:  ledger,
		target:  target,
		alerts:  alertSink,
		outDir:  outDir,
	}
}

func selectionMarket() *fakeMarket {
	mkNews := func(hoursAgo float64, title, url string, tickers ...string) models.NewsItem {
		return models.NewsItem{
			Title:       title,
			URL:         url,
			Site:        "news.example",
			Tickers:     tickers,
			PublishedAt: testDate.Add(-time.Duration(hoursAgo * float64(time.Hour))),
		}
	}
	return &fakeMarket{
		news: []models.NewsItem{
			mkNews(1, "Nvidia data center revenue tops GPU demand forecasts", "https://n.example/1", "NVDA"),
			mkNews(2, "AI server supply chain strains as HBM orders surge", "https://n.example/2", "MU"),
			mkNews(3, "Microsoft expands Azure AI capacity", "https://n.example/3", "MSFT"),
			mkNews(4, "Chipmakers rally on foundry demand", "https://n.example/4", "TSM"),
		},
		movers: []models.StockCandidate{
			{Ticker: "NVDA", PriceMovePct: 6.4, NewsCount: 3, HasEstimates: true, HasFinancials: true},
			{Ticker: "MU", PriceMovePct: 4.1, NewsCount: 1},
		},
		quote:     &models.Quote{Ticker: "NVDA", Price: 187.42, PreviousClose: 176.15},
		profile:   &models.CompanyProfile{Ticker: "NVDA", Name: "NVIDIA Corporation", Sector: "Technology"},
		estimates: &models.AnalystEstimates{Ticker: "NVDA", NTMEPS: 5.10},
		ratios:    &models.Ratios{Ticker: "NVDA", ForwardPE: 32.0},
	}
}

func TestRunSimulateNeverTouchesTarget(t *testing.T) {
	env := newTestEnv(t, selectionMarket(), &fakeRenderer{body: "# Draft\n\nShort body."})

	summary, err := env.service.Run(context.Background(), models.RunOptions{
		Date:     testDate,
		Simulate: true,
		Only:     []models.ArticleKind{models.ArticleDeepDive},
	})
	require.NoError(t, err)
	require.Len(t, summary.Articles, 1)

	outcome := summary.Articles[0]
	assert.Equal(t, models.ArticleDeepDive, outcome.Kind)
	assert.Equal(t, "NVDA", outcome.Entity)
	assert.False(t, outcome.Published)
	assert.Equal(t, 0, env.target.callCount())

	// The sparse fake draft fails QA, which simulate mode reports as
	// withheld without blocking artifact export.
	assert.True(t, outcome.Withheld)
	assert.Equal(t, models.QAStatusFail, outcome.QAStatus)

	date := testDate.Format("2006-01-02")
	_, err = env.store.GetReport(context.Background(), date, outcome.Slug)
	assert.NoError(t, err)

	files, err := os.ReadDir(filepath.Join(env.outDir, date))
	require.NoError(t, err)
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name())
	}
	assert.Contains(t, names, outcome.Slug+".md")
	assert.Contains(t, names, outcome.Slug+".html")
	assert.Contains(t, names, outcome.Slug+".qa.md")
}

func TestRunWithholdsOnRendererFailure(t *testing.T) {
	env := newTestEnv(t, selectionMarket(), &fakeRenderer{err: errors.New("model unavailable")})

	summary, err := env.service.Run(context.Background(), models.RunOptions{
		Date: testDate,
		Only: []models.ArticleKind{models.ArticleDeepDive},
	})
	require.NoError(t, err)
	require.Len(t, summary.Articles, 1)

	outcome := summary.Articles[0]
	assert.True(t, outcome.Withheld)
	assert.Contains(t, outcome.Error, "rendering failed")
	assert.Equal(t, 0, env.target.callCount())

	// One withheld-article alert plus the end-of-run error summary.
	assert.Equal(t, 2, env.alerts.bySeverity(interfaces.AlertError))
}

func TestRunIsolatesArticleFailures(t *testing.T) {
	env := newTestEnv(t, selectionMarket(), &fakeRenderer{body: "# Draft\n\nShort body."})

	summary, err := env.service.Run(context.Background(), models.RunOptions{
		Date:     testDate,
		Simulate: true,
	})
	require.NoError(t, err)

	// All three articles got an outcome despite every one failing QA.
	require.Len(t, summary.Articles, 3)
	kinds := make(map[models.ArticleKind]bool)
	for _, a := range summary.Articles {
		kinds[a.Kind] = true
	}
	assert.True(t, kinds[models.ArticleDailyBrief])
	assert.True(t, kinds[models.ArticleDeepDive])
	assert.True(t, kinds[models.ArticleThemeTrend])
}

func TestRunFailsWhenSelectionCannotFetch(t *testing.T) {
	market := selectionMarket()
	market.newsErr = errors.New("provider down")
	env := newTestEnv(t, market, &fakeRenderer{body: "x"})

	_, err := env.service.Run(context.Background(), models.RunOptions{Date: testDate})
	require.Error(t, err)
	assert.Equal(t, 1, env.alerts.bySeverity(interfaces.AlertError))
}

func TestRunCreatesLedgerEntries(t *testing.T) {
	env := newTestEnv(t, selectionMarket(), &fakeRenderer{body: "# Draft\n\nShort body."})

	_, err := env.service.Run(context.Background(), models.RunOptions{
		Date:     testDate,
		Simulate: true,
		Only:     []models.ArticleKind{models.ArticleDeepDive},
	})
	require.NoError(t, err)

	date := testDate.Format("2006-01-02")
	entries, err := env.ledger.ListByDate(context.Background(), date)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.RunStatusGenerated, entries[0].Status)
}

func TestEmbedUnderSection(t *testing.T) {
	body := "# Title\n\n## Valuation Scenarios\n\nSome prose.\n\n## Risks\n\nMore prose.\n"
	out := embedUnderSection(body, "Valuation Scenarios", "| table |")

	idx := strings.Index(out, "## Valuation Scenarios")
	require.GreaterOrEqual(t, idx, 0)
	rest := out[idx:]
	assert.Less(t, strings.Index(rest, "| table |"), strings.Index(rest, "Some prose."))

	// Missing section appends.
	out = embedUnderSection("no sections here", "Valuation Scenarios", "| table |")
	assert.True(t, strings.HasSuffix(out, "| table |\n"))
}

func TestArticleTags(t *testing.T) {
	spec := &models.ArticleSpec{Kind: models.ArticleDeepDive, Entity: "NVDA"}
	assert.Equal(t, []string{"deep-dive", "NVDA"}, articleTags(spec))

	brief := &models.ArticleSpec{Kind: models.ArticleDailyBrief}
	assert.Equal(t, []string{"daily-brief"}, articleTags(brief))
}

func TestAsOfForWeekend(t *testing.T) {
	saturday := time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Weekday(5), asOfFor(saturday).Weekday()) // Friday
	assert.Equal(t, testDate.Weekday(), asOfFor(testDate).Weekday())
}
