package interfaces

import (
	"context"

	"github.com/ternarybob/aestimo/internal/models"
)

// TranscriptAdapter retrieves earnings call transcripts.
type TranscriptAdapter interface {
	// LatestTranscript returns the full text of the most recent call.
	LatestTranscript(ctx context.Context, ticker string) (string, string, error) // text, quarter

	// GuidanceExcerpts returns the guidance-bearing passages from the
	// most recent call, extracted deterministically by keyword window.
	GuidanceExcerpts(ctx context.Context, ticker string) ([]models.TranscriptExcerpt, error)
}
