package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/aestimo/internal/models"
)

// ErrArtifactNotFound is returned when no artifact matches the request.
var ErrArtifactNotFound = errors.New("artifact not found")

// ArtifactRef identifies one stored artifact.
type ArtifactRef struct {
	Date    string `json:"date"`
	Slug    string `json:"slug"`
	Kind    string `json:"kind"` // evidence-pack, qa-report, draft, chart, pdf, html
	Version int    `json:"version"`
}

// ArtifactStore persists everything a run produces, keyed by (date,
// slug, version). Evidence packs are retained indefinitely for audit;
// nothing is ever overwritten in place.
type ArtifactStore interface {
	// SavePack stores a sealed evidence pack under its version.
	SavePack(ctx context.Context, pack *models.EvidencePack) error

	// GetPack loads a specific pack version.
	GetPack(ctx context.Context, date, slug string, version int) (*models.EvidencePack, error)

	// LatestPack loads the highest version for (date, slug), or
	// ErrArtifactNotFound.
	LatestPack(ctx context.Context, date, slug string) (*models.EvidencePack, error)

	// SaveReport stores a QA report alongside its pack.
	SaveReport(ctx context.Context, date, slug string, report *models.QAReport) error

	// GetReport loads the QA report for (date, slug).
	GetReport(ctx context.Context, date, slug string) (*models.QAReport, error)

	// SaveDraft stores the renderer's draft for audit.
	SaveDraft(ctx context.Context, date, slug string, draft *models.Draft) error

	// SaveAsset stores a binary artifact (chart PNG, PDF, rendered HTML)
	// and returns its storage key.
	SaveAsset(ctx context.Context, date, slug, kind string, data []byte) (string, error)

	// GetAsset loads a binary artifact by its storage key.
	GetAsset(ctx context.Context, key string) ([]byte, error)

	// ListByDate returns refs for everything stored for a date.
	ListByDate(ctx context.Context, date string) ([]ArtifactRef, error)
}
