package interfaces

// StorageManager aggregates the typed stores behind one lifecycle. All
// stores share a single Badger database under the hood.
type StorageManager interface {
	// Ledger returns the run ledger store
	Ledger() RunLedger

	// Artifacts returns the artifact store
	Artifacts() ArtifactStore

	// FactCache returns the adapter response cache
	FactCache() FactCache

	// Close flushes and closes the underlying database
	Close() error
}
