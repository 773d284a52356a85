package interfaces

import (
	"context"

	"github.com/ternarybob/aestimo/internal/models"
)

// ChartService renders valuation visuals for an article. Rendering is
// best-effort: when it fails the caller falls back to the markdown table
// so the QA asset rule can still pass.
type ChartService interface {
	// RenderScenarioChart renders the Bear/Base/Bull target bars for all
	// computed horizons as a PNG.
	RenderScenarioChart(ctx context.Context, valuation *models.ValuationSet) ([]byte, error)

	// FallbackTable renders the same data as a markdown table for use
	// when chart rendering is unavailable.
	FallbackTable(valuation *models.ValuationSet) string
}
