package interfaces

import (
	"context"

	"github.com/ternarybob/aestimo/internal/models"
)

// FilingsAdapter retrieves SEC filings for a ticker.
type FilingsAdapter interface {
	// RecentFilings returns the most recent filings, newest first.
	RecentFilings(ctx context.Context, ticker string, limit int) ([]models.Filing, error)

	// FilingText fetches and normalizes a filing document to markdown.
	// HTML documents are converted; PDF exhibits are text-extracted.
	FilingText(ctx context.Context, filing *models.Filing) (string, error)

	// MaterialEvents returns recent 8-K filings whose items indicate a
	// market-moving event.
	MaterialEvents(ctx context.Context, ticker string, limit int) ([]models.Filing, error)
}
