// Package modelstorage provides types for PSQL storage entry scanning.
package modelstorage

type (
	SnapshotStorageEntry struct {
		ID            int64
		SchemaVersion int
		Data          []byte
		CreatedAt     string
	}
	OutboxStorageEntry struct {
		ID        int64
		Record    []byte
		CreatedAt string
	}
)
