package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// cacheRecord is one cached adapter response keyed by (entity, field,
// as-of date).
type cacheRecord struct {
	Key      string `badgerhold:"key"`
	Entity   string `badgerholdIndex:"Entity"`
	Field    string
	AsOfDate string // YYYY-MM-DD
	FactJSON []byte
	StoredAt time.Time
}

// FactCacheStorage implements the FactCache interface for Badger.
type FactCacheStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.FactCache = (*FactCacheStorage)(nil)

// NewFactCacheStorage creates a new FactCacheStorage instance
func NewFactCacheStorage(db *BadgerDB, logger arbor.ILogger) *FactCacheStorage {
	return &FactCacheStorage{
		db:     db,
		logger: logger,
	}
}

func cacheKey(entity, field, asOfDate string) string {
	return fmt.Sprintf("cache|%s|%s|%s", entity, field, asOfDate)
}

// GetFresh returns the cached fact for the exact as-of date when it is
// younger than maxAge
func (s *FactCacheStorage) GetFresh(ctx context.Context, entity, field, asOfDate string, maxAge time.Duration) (*models.Fact, error) {
	var record cacheRecord
	err := s.db.Store().Get(cacheKey(entity, field, asOfDate), &record)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache record: %w", err)
	}

	if maxAge > 0 && time.Since(record.StoredAt) > maxAge {
		return nil, interfaces.ErrCacheMiss
	}

	return unmarshalFact(record.FactJSON)
}

// GetLatest returns the newest cached fact for (entity, field) within
// the trading-day staleness window
func (s *FactCacheStorage) GetLatest(ctx context.Context, entity, field string, maxStaleDays int) (*models.Fact, error) {
	var records []cacheRecord
	err := s.db.Store().Find(&records,
		badgerhold.Where("Entity").Eq(entity).Index("Entity").And("Field").Eq(field).SortBy("AsOfDate").Reverse().Limit(1))
	if err != nil {
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}
	if len(records) == 0 {
		return nil, interfaces.ErrCacheMiss
	}

	record := records[0]
	cacheDate, err := time.Parse("2006-01-02", record.AsOfDate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cache date %q: %w", record.AsOfDate, err)
	}
	if !common.CacheAgeAcceptable(cacheDate, time.Now().UTC(), maxStaleDays, nil) {
		return nil, interfaces.ErrCacheMiss
	}

	return unmarshalFact(record.FactJSON)
}

// Put stores a fact under (entity, field, asOfDate)
func (s *FactCacheStorage) Put(ctx context.Context, entity, field, asOfDate string, fact *models.Fact) error {
	data, err := json.Marshal(fact)
	if err != nil {
		return fmt.Errorf("failed to marshal fact: %w", err)
	}

	record := &cacheRecord{
		Key:      cacheKey(entity, field, asOfDate),
		Entity:   entity,
		Field:    field,
		AsOfDate: asOfDate,
		FactJSON: data,
		StoredAt: time.Now().UTC(),
	}

	if err := s.db.Store().Upsert(record.Key, record); err != nil {
		return fmt.Errorf("failed to store cache record: %w", err)
	}
	return nil
}

// Purge removes entries stored before the retention cutoff
func (s *FactCacheStorage) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	var stale []cacheRecord
	err := s.db.Store().Find(&stale, badgerhold.Where("StoredAt").Lt(olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to query stale cache records: %w", err)
	}

	for _, record := range stale {
		if err := s.db.Store().Delete(record.Key, &cacheRecord{}); err != nil {
			return 0, fmt.Errorf("failed to delete cache record %s: %w", record.Key, err)
		}
	}

	if len(stale) > 0 {
		s.logger.Debug().Int("count", len(stale)).Msg("Purged stale cache records")
	}

	return len(stale), nil
}

func unmarshalFact(data []byte) (*models.Fact, error) {
	var fact models.Fact
	if err := json.Unmarshal(data, &fact); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached fact: %w", err)
	}
	return &fact, nil
}
