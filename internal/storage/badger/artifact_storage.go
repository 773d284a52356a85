package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// packRecord is the stored form of a sealed evidence pack. The pack
// itself is kept as canonical JSON so reloads hash identically.
type packRecord struct {
	Key      string    `badgerhold:"key"`
	Date     string    `badgerholdIndex:"Date"`
	Slug     string
	Version  int
	Hash     string
	PackJSON []byte
	StoredAt time.Time
}

// reportRecord stores one QA report, exactly one per (date, slug).
type reportRecord struct {
	Key        string `badgerhold:"key"`
	Date       string `badgerholdIndex:"Date"`
	Slug       string
	ReportJSON []byte
	StoredAt   time.Time
}

// draftRecord stores the renderer output for audit.
type draftRecord struct {
	Key       string `badgerhold:"key"`
	Date      string `badgerholdIndex:"Date"`
	Slug      string
	DraftJSON []byte
	StoredAt  time.Time
}

// assetRecord stores binary artifacts: chart PNGs, PDFs, rendered HTML.
type assetRecord struct {
	Key      string `badgerhold:"key"`
	Date     string `badgerholdIndex:"Date"`
	Slug     string
	Kind     string
	Data     []byte
	StoredAt time.Time
}

// ArtifactStorage implements the ArtifactStore interface for Badger.
// Nothing is ever overwritten: packs are versioned, and reports and
// drafts replace only within the same (date, slug) run key.
type ArtifactStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.ArtifactStore = (*ArtifactStorage)(nil)

// NewArtifactStorage creates a new ArtifactStorage instance
func NewArtifactStorage(db *BadgerDB, logger arbor.ILogger) *ArtifactStorage {
	return &ArtifactStorage{
		db:     db,
		logger: logger,
	}
}

func packKey(date, slug string, version int) string {
	return fmt.Sprintf("pack|%s|%s|%d", date, slug, version)
}

// SavePack stores a sealed evidence pack under its version
func (s *ArtifactStorage) SavePack(ctx context.Context, pack *models.EvidencePack) error {
	if !pack.Sealed() {
		return fmt.Errorf("refusing to store unsealed evidence pack %s", pack.ArticleID)
	}

	data, err := json.Marshal(pack)
	if err != nil {
		return fmt.Errorf("failed to marshal evidence pack: %w", err)
	}

	record := &packRecord{
		Key:      packKey(pack.AsOfDate, pack.ArticleID, pack.Version),
		Date:     pack.AsOfDate,
		Slug:     pack.ArticleID,
		Version:  pack.Version,
		Hash:     pack.ContentHash,
		PackJSON: data,
		StoredAt: time.Now().UTC(),
	}

	err = s.db.Store().Insert(record.Key, record)
	if err == badgerhold.ErrKeyExists {
		// Same version stored twice happens on pipeline retries; the
		// pack is immutable so the existing record is already correct.
		s.logger.Debug().Str("key", record.Key).Msg("Evidence pack version already stored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to store evidence pack: %w", err)
	}

	s.logger.Debug().
		Str("key", record.Key).
		Str("hash", record.Hash).
		Msg("Evidence pack stored")

	return nil
}

// GetPack loads a specific pack version
func (s *ArtifactStorage) GetPack(ctx context.Context, date, slug string, version int) (*models.EvidencePack, error) {
	var record packRecord
	err := s.db.Store().Get(packKey(date, slug, version), &record)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get evidence pack: %w", err)
	}
	return unmarshalPack(record.PackJSON)
}

// LatestPack loads the highest stored version for (date, slug)
func (s *ArtifactStorage) LatestPack(ctx context.Context, date, slug string) (*models.EvidencePack, error) {
	var records []packRecord
	err := s.db.Store().Find(&records,
		badgerhold.Where("Date").Eq(date).Index("Date").And("Slug").Eq(slug).SortBy("Version").Reverse().Limit(1))
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence packs: %w", err)
	}
	if len(records) == 0 {
		return nil, interfaces.ErrArtifactNotFound
	}
	return unmarshalPack(records[0].PackJSON)
}

func unmarshalPack(data []byte) (*models.EvidencePack, error) {
	var pack models.EvidencePack
	if err := json.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("failed to unmarshal evidence pack: %w", err)
	}
	return &pack, nil
}

// SaveReport stores a QA report alongside its pack
func (s *ArtifactStorage) SaveReport(ctx context.Context, date, slug string, report *models.QAReport) error {
	data, err := report.MarshalStable()
	if err != nil {
		return fmt.Errorf("failed to marshal QA report: %w", err)
	}

	record := &reportRecord{
		Key:        fmt.Sprintf("report|%s|%s", date, slug),
		Date:       date,
		Slug:       slug,
		ReportJSON: data,
		StoredAt:   time.Now().UTC(),
	}

	if err := s.db.Store().Upsert(record.Key, record); err != nil {
		return fmt.Errorf("failed to store QA report: %w", err)
	}
	return nil
}

// GetReport loads the QA report for (date, slug)
func (s *ArtifactStorage) GetReport(ctx context.Context, date, slug string) (*models.QAReport, error) {
	var record reportRecord
	err := s.db.Store().Get(fmt.Sprintf("report|%s|%s", date, slug), &record)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get QA report: %w", err)
	}

	var report models.QAReport
	if err := json.Unmarshal(record.ReportJSON, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal QA report: %w", err)
	}
	return &report, nil
}

// SaveDraft stores the renderer's draft for audit
func (s *ArtifactStorage) SaveDraft(ctx context.Context, date, slug string, draft *models.Draft) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}

	record := &draftRecord{
		Key:       fmt.Sprintf("draft|%s|%s", date, slug),
		Date:      date,
		Slug:      slug,
		DraftJSON: data,
		StoredAt:  time.Now().UTC(),
	}

	if err := s.db.Store().Upsert(record.Key, record); err != nil {
		return fmt.Errorf("failed to store draft: %w", err)
	}
	return nil
}

// SaveAsset stores a binary artifact and returns its storage key
func (s *ArtifactStorage) SaveAsset(ctx context.Context, date, slug, kind string, data []byte) (string, error) {
	record := &assetRecord{
		Key:      fmt.Sprintf("asset|%s|%s|%s", date, slug, kind),
		Date:     date,
		Slug:     slug,
		Kind:     kind,
		Data:     data,
		StoredAt: time.Now().UTC(),
	}

	if err := s.db.Store().Upsert(record.Key, record); err != nil {
		return "", fmt.Errorf("failed to store asset: %w", err)
	}
	return record.Key, nil
}

// GetAsset loads a binary artifact by its storage key
func (s *ArtifactStorage) GetAsset(ctx context.Context, key string) ([]byte, error) {
	var record assetRecord
	err := s.db.Store().Get(key, &record)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return record.Data, nil
}

// ListByDate returns refs for everything stored for a date
func (s *ArtifactStorage) ListByDate(ctx context.Context, date string) ([]interfaces.ArtifactRef, error) {
	var refs []interfaces.ArtifactRef

	var packs []packRecord
	if err := s.db.Store().Find(&packs, badgerhold.Where("Date").Eq(date).Index("Date")); err != nil {
		return nil, fmt.Errorf("failed to list packs: %w", err)
	}
	for _, r := range packs {
		refs = append(refs, interfaces.ArtifactRef{Date: r.Date, Slug: r.Slug, Kind: "evidence-pack", Version: r.Version})
	}

	var reports []reportRecord
	if err := s.db.Store().Find(&reports, badgerhold.Where("Date").Eq(date).Index("Date")); err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	for _, r := range reports {
		refs = append(refs, interfaces.ArtifactRef{Date: r.Date, Slug: r.Slug, Kind: "qa-report"})
	}

	var drafts []draftRecord
	if err := s.db.Store().Find(&drafts, badgerhold.Where("Date").Eq(date).Index("Date")); err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	for _, r := range drafts {
		refs = append(refs, interfaces.ArtifactRef{Date: r.Date, Slug: r.Slug, Kind: "draft"})
	}

	var assets []assetRecord
	if err := s.db.Store().Find(&assets, badgerhold.Where("Date").Eq(date).Index("Date")); err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	for _, r := range assets {
		refs = append(refs, interfaces.ArtifactRef{Date: r.Date, Slug: r.Slug, Kind: r.Kind})
	}

	return refs, nil
}
