package fmp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/arbor"
)

const adapterName = "fmp"

// etfSymbols are the index ETFs in the daily brief's market snapshot.
var etfSymbols = []string{"SPY", "QQQ", "DIA"}

// Adapter normalizes FMP responses into internal models and maps
// provider failures onto typed fetch errors.
type Adapter struct {
	client *Client
	logger arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.MarketDataAdapter = (*Adapter)(nil)

// NewAdapter creates a market data adapter from provider config.
func NewAdapter(config *common.FMPConfig, logger arbor.ILogger) *Adapter {
	opts := []ClientOption{WithLogger(logger)}
	if config.BaseURL != "" {
		opts = append(opts, WithBaseURL(config.BaseURL))
	}
	if config.RequestsPerSec > 0 {
		opts = append(opts, WithRateLimit(config.RequestsPerSec))
	}
	if timeout := common.Duration(config.Timeout, DefaultTimeout); timeout > 0 {
		opts = append(opts, WithHTTPClient(&http.Client{Timeout: timeout}))
	}

	return &Adapter{
		client: NewClient(config.APIKey, opts...),
		logger: logger,
	}
}

// NewAdapterWithClient wires an existing client, used by tests.
func NewAdapterWithClient(client *Client, logger arbor.ILogger) *Adapter {
	return &Adapter{client: client, logger: logger}
}

// toFetchError classifies a client failure for the evidence builder.
func toFetchError(field string, err error) *interfaces.FetchError {
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		fe := interfaces.NewFetchError(interfaces.FailureRateLimited, adapterName, field, err)
		fe.RetryAfter = rateErr.RetryAfter
		return fe
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusNotFound:
			return interfaces.NewFetchError(interfaces.FailureNotFound, adapterName, field, err)
		case apiErr.StatusCode >= 500:
			return interfaces.NewFetchError(interfaces.FailureTimeout, adapterName, field, err)
		default:
			return interfaces.NewFetchError(interfaces.FailureNotFound, adapterName, field, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return interfaces.NewFetchError(interfaces.FailureTimeout, adapterName, field, err)
	}

	return interfaces.NewFetchError(interfaces.FailureTimeout, adapterName, field, err)
}

// notFound builds the typed failure for an empty provider response.
func notFound(field, ticker string) *interfaces.FetchError {
	return interfaces.NewFetchError(interfaces.FailureNotFound, adapterName, field,
		fmt.Errorf("no data for %s", ticker))
}

// changePct computes the day move locally instead of trusting the
// API's changesPercentage, which disagrees across endpoints.
func changePct(price, previousClose float64) float64 {
	if previousClose == 0 {
		return 0
	}
	return math.Round((price-previousClose)/previousClose*10000) / 100
}

func quoteFromData(data *QuoteData, asOf time.Time) *models.Quote {
	prev := data.PreviousClose
	if prev == 0 && data.Change != 0 {
		prev = data.Price - data.Change
	}
	if data.Timestamp > 0 {
		asOf = time.Unix(data.Timestamp, 0).UTC()
	}
	return &models.Quote{
		Ticker:        data.Symbol,
		Price:         data.Price,
		PreviousClose: prev,
		ChangePct:     changePct(data.Price, prev),
		Volume:        data.Volume,
		MarketCap:     data.MarketCap,
		AsOf:          asOf,
	}
}

// GetQuote returns the current quote for a ticker.
func (a *Adapter) GetQuote(ctx context.Context, ticker string) (*models.Quote, error) {
	data, err := a.client.GetQuote(ctx, ticker)
	if err != nil {
		return nil, toFetchError("quote", err)
	}
	if data == nil {
		return nil, notFound("quote", ticker)
	}
	return quoteFromData(data, time.Now().UTC()), nil
}

// GetProfile returns the company profile for a ticker.
func (a *Adapter) GetProfile(ctx context.Context, ticker string) (*models.CompanyProfile, error) {
	data, err := a.client.GetProfile(ctx, ticker)
	if err != nil {
		return nil, toFetchError("profile", err)
	}
	if data == nil {
		return nil, notFound("profile", ticker)
	}
	return &models.CompanyProfile{
		Ticker:      data.Symbol,
		Name:        data.CompanyName,
		Sector:      data.Sector,
		Industry:    data.Industry,
		Description: data.Description,
		CIK:         data.CIK,
		Website:     data.Website,
	}, nil
}

// GetEstimates returns consensus forward estimates. The nearest future
// fiscal year with EPS coverage is treated as next-twelve-months.
func (a *Adapter) GetEstimates(ctx context.Context, ticker string) (*models.AnalystEstimates, error) {
	estimates, err := a.client.GetAnalystEstimates(ctx, ticker, WithPeriod("annual"), WithLimit(4))
	if err != nil {
		return nil, toFetchError("estimates", err)
	}

	for _, est := range estimates {
		if est.EPSAvg == 0 {
			continue
		}
		asOf := time.Now().UTC()
		if t, err := time.Parse("2006-01-02", est.Date); err == nil {
			asOf = t
		}
		return &models.AnalystEstimates{
			Ticker:      ticker,
			NTMEPS:      est.EPSAvg,
			NTMRevenue:  est.RevenueAvg,
			NumAnalysts: est.NumAnalystsEPS,
			AsOf:        asOf,
		}, nil
	}
	return nil, notFound("estimates", ticker)
}

// GetRatios returns valuation ratios. The forward multiple comes from
// the quote's P/E, the trailing set from ratios-ttm and key-metrics-ttm.
func (a *Adapter) GetRatios(ctx context.Context, ticker string) (*models.Ratios, error) {
	ratios, err := a.client.GetRatiosTTM(ctx, ticker)
	if err != nil {
		return nil, toFetchError("ratios", err)
	}
	if ratios == nil {
		return nil, notFound("ratios", ticker)
	}

	result := &models.Ratios{
		Ticker:     ticker,
		TrailingPE: ratios.PERatioTTM,
		EVEBITDA:   ratios.EVOverEBITDATTM,
		PriceToFCF: ratios.PriceToFreeCashTTM,
		AsOf:       time.Now().UTC(),
	}

	// Per-share metrics live on a different endpoint; their absence
	// only degrades the FCF valuation path.
	if metrics, err := a.client.GetKeyMetricsTTM(ctx, ticker); err == nil && metrics != nil {
		result.FCFPerShare = metrics.FreeCashFlowPerShareTTM
	} else if err != nil {
		a.logger.Warn().Err(err).Str("ticker", ticker).Msg("Key metrics unavailable")
	}

	if quote, err := a.client.GetQuote(ctx, ticker); err == nil && quote != nil {
		result.ForwardPE = quote.PE
	} else if err != nil {
		a.logger.Warn().Err(err).Str("ticker", ticker).Msg("Quote unavailable for forward multiple")
	}

	return result, nil
}

// GetPriceHistory returns daily bars oldest first.
func (a *Adapter) GetPriceHistory(ctx context.Context, ticker string, from, to time.Time) ([]models.PriceBar, error) {
	resp, err := a.client.GetHistoricalPrices(ctx, ticker, WithDateRange(from, to))
	if err != nil {
		return nil, toFetchError("price_history", err)
	}
	if resp == nil || len(resp.Historical) == 0 {
		return nil, notFound("price_history", ticker)
	}

	bars := make([]models.PriceBar, 0, len(resp.Historical))
	for _, h := range resp.Historical {
		bars = append(bars, models.PriceBar{
			Date:     h.Date,
			Open:     h.Open,
			High:     h.High,
			Low:      h.Low,
			Close:    h.Close,
			AdjClose: h.AdjClose,
			Volume:   h.Volume,
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })
	return bars, nil
}

// GetQuarterlyFinancials returns up to limit reported quarters, newest
// first, with free cash flow joined from the cash flow statement.
func (a *Adapter) GetQuarterlyFinancials(ctx context.Context, ticker string, limit int) ([]models.QuarterlyFinancials, error) {
	if limit <= 0 {
		limit = 4
	}

	income, err := a.client.GetIncomeStatements(ctx, ticker, WithPeriod("quarter"), WithLimit(limit))
	if err != nil {
		return nil, toFetchError("financials", err)
	}
	if len(income) == 0 {
		return nil, notFound("financials", ticker)
	}

	fcfByDate := map[string]float64{}
	if cashFlows, err := a.client.GetCashFlowStatements(ctx, ticker, WithPeriod("quarter"), WithLimit(limit)); err == nil {
		for _, cf := range cashFlows {
			fcfByDate[cf.Date] = cf.FreeCashFlow
		}
	} else {
		a.logger.Warn().Err(err).Str("ticker", ticker).Msg("Cash flow statements unavailable")
	}

	quarters := make([]models.QuarterlyFinancials, 0, len(income))
	for _, stmt := range income {
		quarters = append(quarters, models.QuarterlyFinancials{
			Ticker:   ticker,
			Period:   fmt.Sprintf("%s-%s", stmt.CalendarYear, stmt.Period),
			Revenue:  stmt.Revenue,
			EPS:      stmt.EPSDiluted,
			FCF:      fcfByDate[stmt.Date],
			Margin:   stmt.OperatingRatio,
			ReportAt: stmt.Date,
		})
	}
	return quarters, nil
}

// GetStockNews returns recent news items, market-wide when tickers is
// empty.
func (a *Adapter) GetStockNews(ctx context.Context, tickers []string, limit int) ([]models.NewsItem, error) {
	if limit <= 0 {
		limit = 50
	}

	data, err := a.client.GetStockNews(ctx, tickers, WithLimit(limit))
	if err != nil {
		return nil, toFetchError("news", err)
	}

	items := make([]models.NewsItem, 0, len(data))
	for _, n := range data {
		items = append(items, models.NewsItem{
			Title:       n.Title,
			URL:         n.URL,
			Site:        n.Site,
			Tickers:     splitTickers(n.Symbol),
			PublishedAt: parseNewsTime(n.PublishedDate),
			Text:        n.Text,
		})
	}
	return items, nil
}

// GetSectorPerformance returns the day's sector moves.
func (a *Adapter) GetSectorPerformance(ctx context.Context) ([]models.SectorPerformance, error) {
	data, err := a.client.GetSectorPerformance(ctx)
	if err != nil {
		return nil, toFetchError("sectors", err)
	}
	if len(data) == 0 {
		return nil, notFound("sectors", "market")
	}

	sectors := make([]models.SectorPerformance, 0, len(data))
	for _, s := range data {
		sectors = append(sectors, models.SectorPerformance{
			Sector:    s.Sector,
			ChangePct: s.AverageChange,
		})
	}
	return sectors, nil
}

// GetMovers returns the day's biggest risers and decliners as deep-dive
// candidates. One missing side is tolerated; the call fails only when
// both are empty.
func (a *Adapter) GetMovers(ctx context.Context) ([]models.StockCandidate, error) {
	var movers []MoverData

	if gainers, err := a.client.GetBiggestGainers(ctx); err == nil {
		movers = append(movers, gainers...)
	} else {
		a.logger.Warn().Err(err).Msg("gainers unavailable")
	}
	if losers, err := a.client.GetBiggestLosers(ctx); err == nil {
		movers = append(movers, losers...)
	} else {
		a.logger.Warn().Err(err).Msg("losers unavailable")
	}
	if len(movers) == 0 {
		return nil, notFound("movers", "market")
	}

	candidates := make([]models.StockCandidate, 0, len(movers))
	for _, m := range movers {
		prev := m.Price - m.Change
		candidates = append(candidates, models.StockCandidate{
			Ticker:       m.Symbol,
			PriceMovePct: changePct(m.Price, prev),
		})
	}
	return candidates, nil
}

// GetMarketSnapshot assembles the cross-asset table for the daily
// brief: index ETFs, the 10Y yield, bitcoin, gold and WTI. Individual
// legs may be missing; the snapshot fails only when everything does.
func (a *Adapter) GetMarketSnapshot(ctx context.Context) (*models.MarketSnapshot, error) {
	now := time.Now().UTC()
	snapshot := &models.MarketSnapshot{AsOf: now}

	if quotes, err := a.client.GetBatchQuotes(ctx, etfSymbols); err == nil {
		for i := range quotes {
			snapshot.Quotes = append(snapshot.Quotes, *quoteFromData(&quotes[i], now))
		}
	} else {
		a.logger.Warn().Err(err).Msg("ETF quotes unavailable")
	}

	if quotes, err := a.client.GetCryptoQuotes(ctx); err == nil {
		for i := range quotes {
			if quotes[i].Symbol == "BTCUSD" {
				snapshot.Quotes = append(snapshot.Quotes, *quoteFromData(&quotes[i], now))
				break
			}
		}
	} else {
		a.logger.Warn().Err(err).Msg("Crypto quotes unavailable")
	}

	if quotes, err := a.client.GetCommodityQuotes(ctx); err == nil {
		for i := range quotes {
			switch quotes[i].Symbol {
			case "GCUSD", "CLUSD":
				snapshot.Quotes = append(snapshot.Quotes, *quoteFromData(&quotes[i], now))
			}
		}
	} else {
		a.logger.Warn().Err(err).Msg("Commodity quotes unavailable")
	}

	if rates, err := a.client.GetTreasuryRates(ctx); err == nil && len(rates) > 0 {
		snapshot.Quotes = append(snapshot.Quotes, models.Quote{
			Ticker: "US10Y",
			Price:  rates[0].Year10,
			AsOf:   now,
		})
	} else if err != nil {
		a.logger.Warn().Err(err).Msg("Treasury rates unavailable")
	}

	if len(snapshot.Quotes) == 0 {
		return nil, notFound("market_snapshot", "market")
	}
	return snapshot, nil
}

// GetPeers returns peer tickers for the multiple comparison, capped at
// ten and excluding the subject itself.
func (a *Adapter) GetPeers(ctx context.Context, ticker string) ([]string, error) {
	peers, err := a.client.GetStockPeers(ctx, ticker)
	if err != nil {
		return nil, toFetchError("peers", err)
	}

	symbols := make([]string, 0, len(peers))
	for _, p := range peers {
		if p.Symbol == "" || strings.EqualFold(p.Symbol, ticker) {
			continue
		}
		symbols = append(symbols, p.Symbol)
		if len(symbols) == 10 {
			break
		}
	}
	if len(symbols) == 0 {
		return nil, notFound("peers", ticker)
	}
	return symbols, nil
}

func splitTickers(symbolCSV string) []string {
	if symbolCSV == "" {
		return nil
	}
	parts := strings.Split(symbolCSV, ",")
	tickers := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tickers = append(tickers, t)
		}
	}
	return tickers
}

func parseNewsTime(value string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}
