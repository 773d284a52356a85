package interfaces

import (
	"context"

	"github.com/ternarybob/aestimo/internal/models"
)

// ArticleRenderer turns an evidence pack and valuation output into a
// structured draft. The renderer is an external collaborator boundary:
// its output shape is all the core relies on, and the QA gate re-checks
// every number it emits against the sealed pack.
type ArticleRenderer interface {
	// RenderDraft produces a draft for the article. The prompt is
	// assembled only from pack facts and valuation output; the model
	// never sees a number the pack cannot account for.
	RenderDraft(ctx context.Context, spec *models.ArticleSpec, pack *models.EvidencePack, valuation *models.ValuationSet) (*models.Draft, error)
}
