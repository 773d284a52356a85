package models

import (
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of one article for one day.
// Transitions only move forward: generated -> qa_passed -> published ->
// email_sent. The ledger enforces compare-and-swap semantics on every
// transition so retried runs stay safe without external locking.
type RunStatus string

const (
	RunStatusGenerated RunStatus = "generated"
	RunStatusQAPassed  RunStatus = "qa_passed"
	RunStatusPublished RunStatus = "published"
	RunStatusEmailSent RunStatus = "email_sent"
)

// rank orders statuses for forward-only transition checks.
func (s RunStatus) rank() int {
	switch s {
	case RunStatusGenerated:
		return 1
	case RunStatusQAPassed:
		return 2
	case RunStatusPublished:
		return 3
	case RunStatusEmailSent:
		return 4
	}
	return 0
}

// CanAdvanceTo reports whether moving from s to next is a legal forward
// transition.
func (s RunStatus) CanAdvanceTo(next RunStatus) bool {
	return next.rank() > s.rank()
}

// LedgerEntry is the run ledger record for one (date, article slug) key.
// It is the only mutable shared state across retries of a day's run.
type LedgerEntry struct {
	Key            string    `json:"key" badgerhold:"key"` // date|slug
	Date           string    `json:"date"`                 // YYYY-MM-DD
	ArticleSlug    string    `json:"article_slug"`
	Status         RunStatus `json:"status"`
	ExternalPostID string    `json:"external_post_id,omitempty"`
	ContentHash    string    `json:"content_hash,omitempty"`
	EmailSent      bool      `json:"email_sent"`
	RunID          string    `json:"run_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// LedgerKey builds the composite key for a (date, slug) pair.
func LedgerKey(date, slug string) string {
	return fmt.Sprintf("%s|%s", date, slug)
}

// NewLedgerEntry creates a fresh entry in the generated state.
func NewLedgerEntry(date, slug, runID string, now time.Time) *LedgerEntry {
	return &LedgerEntry{
		Key:         LedgerKey(date, slug),
		Date:        date,
		ArticleSlug: slug,
		Status:      RunStatusGenerated,
		RunID:       runID,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}
}
