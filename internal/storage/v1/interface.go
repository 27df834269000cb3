package storage

import (
	"context"

	"github.com/emporium-dao/emporium/internal/models/modelstorage"
)

type SnapshotStorage interface {
	SaveSnapshot(ctx context.Context, schemaVersion int, data []byte) error
	LoadLatestSnapshot(ctx context.Context) (*modelstorage.SnapshotStorageEntry, error)
}

type OutboxStorage interface {
	AddRecord(ctx context.Context, record []byte) error
	OldestRecords(ctx context.Context, limit int) ([]modelstorage.OutboxStorageEntry, error)
	DeleteRecord(ctx context.Context, id int64) error
}

type Storage interface {
	SnapshotStorage
	OutboxStorage
}
