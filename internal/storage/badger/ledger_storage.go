package badger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// LedgerStorage implements the RunLedger interface for Badger. The
// ledger is the only shared mutable state across retries, so every write
// goes through the mutex and re-checks the stored status before
// applying: compare-and-swap, never blind overwrite.
type LedgerStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// Compile-time interface assertion
var _ interfaces.RunLedger = (*LedgerStorage)(nil)

// NewLedgerStorage creates a new LedgerStorage instance
func NewLedgerStorage(db *BadgerDB, logger arbor.ILogger) *LedgerStorage {
	return &LedgerStorage{
		db:     db,
		logger: logger,
	}
}

// Get loads the entry for (date, slug)
func (s *LedgerStorage) Get(ctx context.Context, date, slug string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := s.db.Store().Get(models.LedgerKey(date, slug), &entry)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrLedgerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return &entry, nil
}

// Create inserts a fresh entry. Fails with ErrLedgerConflict when the
// key already exists so duplicate runs re-read instead of resetting.
func (s *LedgerStorage) Create(ctx context.Context, entry *models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Store().Insert(entry.Key, entry)
	if err == badgerhold.ErrKeyExists {
		return interfaces.ErrLedgerConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}

	s.logger.Debug().
		Str("key", entry.Key).
		Str("status", string(entry.Status)).
		Msg("Ledger entry created")

	return nil
}

// Transition advances (date, slug) from expected to next under the
// conditional-write rule. mutate runs on the loaded entry inside the
// critical section so callers can set post IDs or hashes atomically with
// the status change.
func (s *LedgerStorage) Transition(ctx context.Context, date, slug string, expected, next models.RunStatus, mutate func(*models.LedgerEntry)) (*models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.LedgerKey(date, slug)

	var entry models.LedgerEntry
	err := s.db.Store().Get(key, &entry)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrLedgerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}

	if entry.Status != expected {
		s.logger.Debug().
			Str("key", key).
			Str("expected", string(expected)).
			Str("actual", string(entry.Status)).
			Msg("Ledger transition conflict")
		return nil, interfaces.ErrLedgerConflict
	}
	if !entry.Status.CanAdvanceTo(next) {
		return nil, fmt.Errorf("illegal ledger transition %s -> %s for %s", entry.Status, next, key)
	}

	entry.Status = next
	entry.UpdatedAt = time.Now().UTC()
	if mutate != nil {
		mutate(&entry)
	}

	if err := s.db.Store().Update(key, &entry); err != nil {
		return nil, fmt.Errorf("failed to update ledger entry: %w", err)
	}

	s.logger.Debug().
		Str("key", key).
		Str("from", string(expected)).
		Str("to", string(next)).
		Msg("Ledger transition applied")

	return &entry, nil
}

// MarkEmailSent flips the email flag exactly once per key. A second call
// the same day returns ErrLedgerConflict, which is how the newsletter
// stays single-shot across pipeline retries.
func (s *LedgerStorage) MarkEmailSent(ctx context.Context, date, slug string) (*models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.LedgerKey(date, slug)

	var entry models.LedgerEntry
	err := s.db.Store().Get(key, &entry)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrLedgerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}

	if entry.EmailSent {
		return nil, interfaces.ErrLedgerConflict
	}

	entry.EmailSent = true
	if entry.Status.CanAdvanceTo(models.RunStatusEmailSent) {
		entry.Status = models.RunStatusEmailSent
	}
	entry.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Update(key, &entry); err != nil {
		return nil, fmt.Errorf("failed to update ledger entry: %w", err)
	}

	s.logger.Info().
		Str("key", key).
		Msg("Newsletter send recorded in ledger")

	return &entry, nil
}

// ListByDate returns all entries for a date
func (s *LedgerStorage) ListByDate(ctx context.Context, date string) ([]*models.LedgerEntry, error) {
	var entries []*models.LedgerEntry
	err := s.db.Store().Find(&entries, badgerhold.Where("Date").Eq(date))
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}
