package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/aestimo/internal/models"
)

// ErrLedgerNotFound is returned when no entry exists for a key.
var ErrLedgerNotFound = errors.New("ledger entry not found")

// ErrLedgerConflict is returned when a conditional transition finds the
// entry in a state other than the expected one. Callers resolve it by
// re-reading and retrying, never by force-overwriting.
var ErrLedgerConflict = errors.New("ledger transition conflict")

// RunLedger is the keyed store of per-article publication state. It is
// the only mutable shared state across retries of a day's run, so every
// write is compare-and-swap: the transition applies only when the
// current status matches the expected one.
type RunLedger interface {
	// Get loads the entry for (date, slug), or ErrLedgerNotFound.
	Get(ctx context.Context, date, slug string) (*models.LedgerEntry, error)

	// Create inserts a fresh entry in the generated state. Returns
	// ErrLedgerConflict if an entry already exists for the key.
	Create(ctx context.Context, entry *models.LedgerEntry) error

	// Transition advances (date, slug) from expected to next and applies
	// mutate to the entry inside the same conditional write. Returns
	// ErrLedgerConflict when the stored status differs from expected.
	Transition(ctx context.Context, date, slug string, expected, next models.RunStatus, mutate func(*models.LedgerEntry)) (*models.LedgerEntry, error)

	// MarkEmailSent flips the email flag for (date, slug) exactly once.
	// Returns ErrLedgerConflict if the flag is already set, so the
	// newsletter can never fire twice in one day.
	MarkEmailSent(ctx context.Context, date, slug string) (*models.LedgerEntry, error)

	// ListByDate returns all entries for a date.
	ListByDate(ctx context.Context, date string) ([]*models.LedgerEntry, error)
}
