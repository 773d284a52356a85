package interfaces

import (
	"context"

	"github.com/ternarybob/aestimo/internal/models"
)

// PipelineService runs the daily batch: scoring, evidence builds,
// valuation, rendering, QA and publication, with per-article fault
// isolation.
type PipelineService interface {
	// Run executes one full pipeline pass for the options' date.
	Run(ctx context.Context, opts models.RunOptions) (*models.RunSummary, error)
}
