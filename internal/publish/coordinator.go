package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// conflictRetries bounds ledger compare-and-swap retries. Conflicts mean
// a concurrent run is working the same key, so one re-read is usually
// enough to discover its outcome.
const conflictRetries = 3

// Article is one QA-passed article ready for delivery.
type Article struct {
	Date         string
	Slug         string
	Title        string
	Markdown     string
	Tags         []string
	FeatureImage string
	ContentHash  string

	// SendNewsletter requests email delivery. The coordinator still
	// suppresses it when the ledger or the platform says it already went
	// out.
	SendNewsletter bool

	Report *models.QAReport
}

// Coordinator publishes articles idempotently: create-or-update by slug,
// with every state change recorded in the run ledger before and after
// the remote call. Re-running a day updates content and never re-sends
// the newsletter.
type Coordinator struct {
	target       interfaces.PublishTarget
	ledger       interfaces.RunLedger
	emailSegment string
	logger       arbor.ILogger
}

// NewCoordinator wires a coordinator against a publish target and the
// run ledger.
func NewCoordinator(target interfaces.PublishTarget, ledger interfaces.RunLedger, cfg common.PublishConfig, logger arbor.ILogger) *Coordinator {
	return &Coordinator{
		target:       target,
		ledger:       ledger,
		emailSegment: cfg.EmailSegment,
		logger:       logger,
	}
}

// Publish delivers one article. The ledger entry must already exist in
// at least the qa_passed state; publication is refused outright when the
// QA report did not pass.
func (c *Coordinator) Publish(ctx context.Context, article *Article) (*models.PublishResult, error) {
	if article.Report == nil || !article.Report.Passed() {
		return nil, fmt.Errorf("refusing to publish %s: qa did not pass", article.Slug)
	}

	entry, err := c.ledger.Get(ctx, article.Date, article.Slug)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger entry for %s: %w", article.Slug, err)
	}
	if entry.Status == models.RunStatusGenerated {
		return nil, fmt.Errorf("refusing to publish %s: ledger status is %s", article.Slug, entry.Status)
	}

	html, err := RenderHTML(article.Markdown)
	if err != nil {
		return nil, err
	}

	remote, err := c.target.GetPostBySlug(ctx, article.Slug)
	if err != nil {
		return nil, fmt.Errorf("failed to look up post %s: %w", article.Slug, err)
	}

	// Email goes out at most once per (date, slug): the ledger flag covers
	// our own retries, the remote flag covers posts emailed outside this
	// pipeline.
	sendNewsletter := article.SendNewsletter && !entry.EmailSent
	if remote != nil && remote.EmailSent {
		if sendNewsletter {
			c.logger.Warn().
				Str("slug", article.Slug).
				Msg("Post already delivered by email, suppressing newsletter")
		}
		sendNewsletter = false
	}

	input := &interfaces.PostInput{
		Title:          article.Title,
		Slug:           article.Slug,
		HTML:           html,
		Tags:           article.Tags,
		FeatureImage:   article.FeatureImage,
		SendNewsletter: sendNewsletter,
		EmailSegment:   c.emailSegment,
	}

	created := false
	if remote == nil {
		remote, err = c.target.CreatePost(ctx, input)
		created = true
	} else {
		remote, err = c.target.UpdatePost(ctx, remote.ID, input, remote.UpdatedAt)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to publish %s: %w", article.Slug, err)
	}

	if entry.Status == models.RunStatusQAPassed {
		entry, err = c.advance(ctx, article, remote.ID)
		if err != nil {
			return nil, err
		}
	}

	emailSent := false
	if sendNewsletter {
		if _, err := c.ledger.MarkEmailSent(ctx, article.Date, article.Slug); err != nil {
			if !errors.Is(err, interfaces.ErrLedgerConflict) {
				return nil, fmt.Errorf("failed to record newsletter send for %s: %w", article.Slug, err)
			}
			// Lost a race with another run that also asked for delivery.
			c.logger.Warn().
				Str("slug", article.Slug).
				Msg("Newsletter flag already set by a concurrent run")
		}
		emailSent = true
	}

	c.logger.Info().
		Str("slug", article.Slug).
		Str("post_id", remote.ID).
		Bool("created", created).
		Bool("email", emailSent).
		Msg("Article published")

	return &models.PublishResult{
		Slug:           article.Slug,
		ExternalPostID: remote.ID,
		Created:        created,
		EmailSent:      emailSent,
		URL:            remote.URL,
	}, nil
}

// advance moves the ledger entry from qa_passed to published. On
// conflict it re-reads: a concurrent run that already advanced the entry
// counts as success, anything else propagates.
func (c *Coordinator) advance(ctx context.Context, article *Article, postID string) (*models.LedgerEntry, error) {
	var lastErr error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		entry, err := c.ledger.Transition(ctx, article.Date, article.Slug,
			models.RunStatusQAPassed, models.RunStatusPublished,
			func(e *models.LedgerEntry) {
				e.ExternalPostID = postID
				e.ContentHash = article.ContentHash
			})
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, interfaces.ErrLedgerConflict) {
			return nil, fmt.Errorf("failed to advance ledger for %s: %w", article.Slug, err)
		}
		lastErr = err

		current, getErr := c.ledger.Get(ctx, article.Date, article.Slug)
		if getErr != nil {
			return nil, fmt.Errorf("failed to re-read ledger for %s: %w", article.Slug, getErr)
		}
		if current.Status == models.RunStatusPublished || current.Status == models.RunStatusEmailSent {
			return current, nil
		}
	}
	return nil, fmt.Errorf("ledger transition for %s kept conflicting: %w", article.Slug, lastErr)
}
