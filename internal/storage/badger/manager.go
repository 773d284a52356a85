package badger

import (
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db        *BadgerDB
	ledger    interfaces.RunLedger
	artifacts interfaces.ArtifactStore
	factCache interfaces.FactCache
	logger    arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.StorageManager = (*Manager)(nil)

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:        db,
		ledger:    NewLedgerStorage(db, logger),
		artifacts: NewArtifactStorage(db, logger),
		factCache: NewFactCacheStorage(db, logger),
		logger:    logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// NewReadOnlyManager opens an existing database for inspection. Writes
// through the returned stores will fail at the database layer.
func NewReadOnlyManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewReadOnlyBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:        db,
		ledger:    NewLedgerStorage(db, logger),
		artifacts: NewArtifactStorage(db, logger),
		factCache: NewFactCacheStorage(db, logger),
		logger:    logger,
	}, nil
}

// Ledger returns the run ledger store
func (m *Manager) Ledger() interfaces.RunLedger {
	return m.ledger
}

// Artifacts returns the artifact store
func (m *Manager) Artifacts() interfaces.ArtifactStore {
	return m.artifacts
}

// FactCache returns the adapter response cache
func (m *Manager) FactCache() interfaces.FactCache {
	return m.factCache
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
