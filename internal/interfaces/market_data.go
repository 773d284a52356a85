package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/aestimo/internal/models"
)

// MarketDataAdapter retrieves quotes, fundamentals and news from the
// market data provider. Every method returns either normalized values or
// a *FetchError; callers never see provider-specific failures.
type MarketDataAdapter interface {
	// GetQuote returns the current quote for a ticker. The change percent
	// is computed locally from price and previous close.
	GetQuote(ctx context.Context, ticker string) (*models.Quote, error)

	// GetProfile returns the company profile for a ticker.
	GetProfile(ctx context.Context, ticker string) (*models.CompanyProfile, error)

	// GetEstimates returns consensus forward estimates for a ticker.
	GetEstimates(ctx context.Context, ticker string) (*models.AnalystEstimates, error)

	// GetRatios returns valuation ratios for a ticker.
	GetRatios(ctx context.Context, ticker string) (*models.Ratios, error)

	// GetPriceHistory returns daily bars from `from` to the as-of date,
	// oldest first.
	GetPriceHistory(ctx context.Context, ticker string, from, to time.Time) ([]models.PriceBar, error)

	// GetQuarterlyFinancials returns up to `limit` reported quarters,
	// newest first.
	GetQuarterlyFinancials(ctx context.Context, ticker string, limit int) ([]models.QuarterlyFinancials, error)

	// GetStockNews returns recent news items for the tickers, or for the
	// whole market when tickers is empty.
	GetStockNews(ctx context.Context, tickers []string, limit int) ([]models.NewsItem, error)

	// GetSectorPerformance returns the day's sector moves.
	GetSectorPerformance(ctx context.Context) ([]models.SectorPerformance, error)

	// GetMovers returns the day's biggest risers and decliners.
	GetMovers(ctx context.Context) ([]models.StockCandidate, error)

	// GetMarketSnapshot returns the cross-asset table for the daily brief.
	GetMarketSnapshot(ctx context.Context) (*models.MarketSnapshot, error)

	// GetPeers returns peer tickers for the multiple comparison.
	GetPeers(ctx context.Context, ticker string) ([]string, error)
}
