package publish

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/arbor"
)

// fakeTarget is an in-memory publish target keyed by slug.
type fakeTarget struct {
	posts   map[string]*interfaces.RemotePost
	creates int
	updates int

	// newsletter requests seen, per slug
	newsletterCalls map[string]int
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		posts:           make(map[string]*interfaces.RemotePost),
		newsletterCalls: make(map[string]int),
	}
}

func (f *fakeTarget) GetPostBySlug(ctx context.Context, slug string) (*interfaces.RemotePost, error) {
	if post, ok := f.posts[slug]; ok {
		copied := *post
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeTarget) CreatePost(ctx context.Context, input *interfaces.PostInput) (*interfaces.RemotePost, error) {
	f.creates++
	if input.SendNewsletter {
		f.newsletterCalls[input.Slug]++
	}
	post := &interfaces.RemotePost{
		ID:        fmt.Sprintf("post-%d", f.creates),
		Slug:      input.Slug,
		URL:       "https://blog/" + input.Slug,
		Status:    "published",
		UpdatedAt: time.Now().UTC(),
		EmailSent: input.SendNewsletter,
	}
	f.posts[input.Slug] = post
	copied := *post
	return &copied, nil
}

func (f *fakeTarget) UpdatePost(ctx context.Context, id string, input *interfaces.PostInput, updatedAt time.Time) (*interfaces.RemotePost, error) {
	f.updates++
	if input.SendNewsletter {
		f.newsletterCalls[input.Slug]++
	}
	post, ok := f.posts[input.Slug]
	if !ok {
		return nil, fmt.Errorf("no post %s", input.Slug)
	}
	post.UpdatedAt = time.Now().UTC()
	if input.SendNewsletter {
		post.EmailSent = true
	}
	copied := *post
	return &copied, nil
}

func (f *fakeTarget) UploadImage(ctx context.Context, filename string, data []byte) (string, error) {
	return "https://blog/content/images/" + filename, nil
}

// fakeLedger is an in-memory run ledger with the same compare-and-swap
// semantics as the badger implementation.
type fakeLedger struct {
	entries map[string]*models.LedgerEntry
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: make(map[string]*models.LedgerEntry)}
}

func (f *fakeLedger) Get(ctx context.Context, date, slug string) (*models.LedgerEntry, error) {
	entry, ok := f.entries[models.LedgerKey(date, slug)]
	if !ok {
		return nil, interfaces.ErrLedgerNotFound
	}
	copied := *entry
	return &copied, nil
}

func (f *fakeLedger) Create(ctx context.Context, entry *models.LedgerEntry) error {
	if _, ok := f.entries[entry.Key]; ok {
		return interfaces.ErrLedgerConflict
	}
	copied := *entry
	f.entries[entry.Key] = &copied
	return nil
}

func (f *fakeLedger) Transition(ctx context.Context, date, slug string, expected, next models.RunStatus, mutate func(*models.LedgerEntry)) (*models.LedgerEntry, error) {
	entry, ok := f.entries[models.LedgerKey(date, slug)]
	if !ok {
		return nil, interfaces.ErrLedgerNotFound
	}
	if entry.Status != expected {
		return nil, interfaces.ErrLedgerConflict
	}
	entry.Status = next
	if mutate != nil {
		mutate(entry)
	}
	entry.UpdatedAt = time.Now().UTC()
	copied := *entry
	return &copied, nil
}

func (f *fakeLedger) MarkEmailSent(ctx context.Context, date, slug string) (*models.LedgerEntry, error) {
	entry, ok := f.entries[models.LedgerKey(date, slug)]
	if !ok {
		return nil, interfaces.ErrLedgerNotFound
	}
	if entry.EmailSent {
		return nil, interfaces.ErrLedgerConflict
	}
	entry.EmailSent = true
	if entry.Status.CanAdvanceTo(models.RunStatusEmailSent) {
		entry.Status = models.RunStatusEmailSent
	}
	copied := *entry
	return &copied, nil
}

func (f *fakeLedger) ListByDate(ctx context.Context, date string) ([]*models.LedgerEntry, error) {
	var out []*models.LedgerEntry
	for _, entry := range f.entries {
		if entry.Date == date {
			copied := *entry
			out = append(out, &copied)
		}
	}
	return out, nil
}

func passingReport() *models.QAReport {
	return models.NewQAReport("daily-brief-20260828", "2026-08-28")
}

func failingReport() *models.QAReport {
	report := passingReport()
	report.AddError(models.QAPlaceholderText, "TBD found")
	return report
}

func testArticle() *Article {
	return &Article{
		Date:           "2026-08-28",
		Slug:           "daily-brief-20260828",
		Title:          "Daily Brief",
		Markdown:       "## What Moved\n\nMarkets were quiet.\n",
		Tags:           []string{"daily-brief"},
		ContentHash:    "abc123",
		SendNewsletter: true,
		Report:         passingReport(),
	}
}

func testCoordinator(target interfaces.PublishTarget, ledger interfaces.RunLedger) *Coordinator {
	return NewCoordinator(target, ledger, common.PublishConfig{EmailSegment: "all"}, arbor.NewLogger())
}

func seedLedger(t *testing.T, ledger *fakeLedger, status models.RunStatus) {
	t.Helper()
	entry := models.NewLedgerEntry("2026-08-28", "daily-brief-20260828", "run-1", time.Now())
	entry.Status = status
	require.NoError(t, ledger.Create(context.Background(), entry))
}

func TestPublishRefusesFailedQA(t *testing.T) {
	target := newFakeTarget()
	ledger := newFakeLedger()
	seedLedger(t, ledger, models.RunStatusQAPassed)

	article := testArticle()
	article.Report = failingReport()

	_, err := testCoordinator(target, ledger).Publish(context.Background(), article)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "qa did not pass")
	assert.Zero(t, target.creates)
}

func TestPublishRefusesGeneratedState(t *testing.T) {
	target := newFakeTarget()
	ledger := newFakeLedger()
	seedLedger(t, ledger, models.RunStatusGenerated)

	_, err := testCoordinator(target, ledger).Publish(context.Background(), testArticle())

	require.Error(t, err)
	assert.Zero(t, target.creates)
}

func TestPublishCreatesAndSendsNewsletter(t *testing.T) {
	target := newFakeTarget()
	ledger := newFakeLedger()
	seedLedger(t, ledger, models.RunStatusQAPassed)

	result, err := testCoordinator(target, ledger).Publish(context.Background(), testArticle())
	require.NoError(t, err)

	assert.True(t, result.Created)
	assert.True(t, result.EmailSent)
	assert.Equal(t, 1, target.creates)
	assert.Equal(t, 1, target.newsletterCalls["daily-brief-20260828"])

	entry, err := ledger.Get(context.Background(), "2026-08-28", "daily-brief-20260828")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusEmailSent, entry.Status)
	assert.True(t, entry.EmailSent)
	assert.Equal(t, result.ExternalPostID, entry.ExternalPostID)
	assert.Equal(t, "abc123", entry.ContentHash)
}

func TestRepublishUpdatesWithoutResendingEmail(t *testing.T) {
	target := newFakeTarget()
	ledger := newFakeLedger()
	seedLedger(t, ledger, models.RunStatusQAPassed)
	coordinator := testCoordinator(target, ledger)

	first, err := coordinator.Publish(context.Background(), testArticle())
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := coordinator.Publish(context.Background(), testArticle())
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.False(t, second.EmailSent)
	assert.Equal(t, 1, target.creates)
	assert.Equal(t, 1, target.updates)
	assert.Equal(t, 1, target.newsletterCalls["daily-brief-20260828"], "newsletter must go out exactly once")
	assert.Equal(t, first.ExternalPostID, second.ExternalPostID)
}

func TestPublishSuppressesEmailWhenRemoteAlreadySent(t *testing.T) {
	target := newFakeTarget()
	target.posts["daily-brief-20260828"] = &interfaces.RemotePost{
		ID:        "post-9",
		Slug:      "daily-brief-20260828",
		URL:       "https://blog/daily-brief-20260828",
		Status:    "published",
		UpdatedAt: time.Now().UTC(),
		EmailSent: true,
	}
	ledger := newFakeLedger()
	seedLedger(t, ledger, models.RunStatusQAPassed)

	result, err := testCoordinator(target, ledger).Publish(context.Background(), testArticle())
	require.NoError(t, err)

	assert.False(t, result.Created)
	assert.False(t, result.EmailSent)
	assert.Zero(t, target.newsletterCalls["daily-brief-20260828"])
}

func TestPublishNoNewsletterForSecondaryArticles(t *testing.T) {
	target := newFakeTarget()
	ledger := newFakeLedger()
	entry := models.NewLedgerEntry("2026-08-28", "deep-dive-20260828-nvda", "run-1", time.Now())
	entry.Status = models.RunStatusQAPassed
	require.NoError(t, ledger.Create(context.Background(), entry))

	article := testArticle()
	article.Slug = "deep-dive-20260828-nvda"
	article.SendNewsletter = false
	article.Report = models.NewQAReport("deep-dive-20260828-nvda", "2026-08-28")

	result, err := testCoordinator(target, ledger).Publish(context.Background(), article)
	require.NoError(t, err)

	assert.False(t, result.EmailSent)
	assert.Zero(t, target.newsletterCalls["deep-dive-20260828-nvda"])

	stored, err := ledger.Get(context.Background(), "2026-08-28", "deep-dive-20260828-nvda")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPublished, stored.Status)
	assert.False(t, stored.EmailSent)
}
