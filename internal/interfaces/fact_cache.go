package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/aestimo/internal/models"
)

// ErrCacheMiss is returned when no cached fact satisfies the request.
var ErrCacheMiss = errors.New("fact cache miss")

// FactCache stores adapter responses keyed by (ticker, field, as-of
// date) so repeated runs within a day reuse fetches, and so the builder
// can substitute a prior-day value under the use-stale-cache policy.
type FactCache interface {
	// GetFresh returns the cached fact for the exact as-of date, or
	// ErrCacheMiss if absent or older than maxAge.
	GetFresh(ctx context.Context, entity, field, asOfDate string, maxAge time.Duration) (*models.Fact, error)

	// GetLatest returns the newest cached fact for (entity, field)
	// regardless of date, up to maxStaleDays back. The returned fact is
	// not marked stale; that is the builder's call.
	GetLatest(ctx context.Context, entity, field string, maxStaleDays int) (*models.Fact, error)

	// Put stores a fact under (entity, field, asOfDate).
	Put(ctx context.Context, entity, field, asOfDate string, fact *models.Fact) error

	// Purge removes entries older than the retention window.
	Purge(ctx context.Context, olderThan time.Time) (int, error)
}
