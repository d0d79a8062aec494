package store

import (
	"context"
)

type Store interface {
	// Syncable records
	ListRecords(ctx context.Context) ([]*Record, error)
	GetRecord(ctx context.Context, itemID string) (*Record, error)
	UpsertRecord(ctx context.Context, record *Record) error

	// Conflicts
	CreateConflict(ctx context.Context, conflict *Conflict) error
	ListConflicts(ctx context.Context, resolved bool, limit, offset int) ([]*Conflict, error)
	ResolveConflict(ctx context.Context, id string, strategy string) error

	// Per-device sync metadata
	GetSyncMetadata(ctx context.Context, deviceID string) (*SyncMetadata, error)
	UpsertSyncMetadata(ctx context.Context, metadata *SyncMetadata) error

	// History
	CreateSyncHistory(ctx context.Context, history *SyncHistory) error
	UpdateSyncHistory(ctx context.Context, history *SyncHistory) error
	GetSyncHistory(ctx context.Context, limit, offset int) ([]*SyncHistory, error)

	// General
	Close() error
}
