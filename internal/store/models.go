package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Record is the sync-state projection of one syncable item: identity,
// content hash and the payload blob that moves between devices.
type Record struct {
	ItemID       string    `db:"item_id"`
	ItemType     string    `db:"item_type"`
	Hash         string    `db:"hash"`
	LastModified int64     `db:"last_modified"`
	Payload      []byte    `db:"payload"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type SyncMetadata struct {
	DeviceID     string    `db:"device_id"`
	DeviceName   string    `db:"device_name"`
	DeviceType   string    `db:"device_type"`
	LastSyncTime int64     `db:"last_sync_time"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type Conflict struct {
	ID                 string          `db:"id"`
	ItemID             string          `db:"item_id"`
	ConflictType       string          `db:"conflict_type"`
	LocalData          json.RawMessage `db:"local_data"`
	RemoteData         json.RawMessage `db:"remote_data"`
	DetectedAt         time.Time       `db:"detected_at"`
	Resolved           bool            `db:"resolved"`
	ResolutionStrategy sql.NullString  `db:"resolution_strategy"`
	ResolvedAt         sql.NullTime    `db:"resolved_at"`
}

type SyncHistory struct {
	ID                string         `db:"id"`
	DeviceID          string         `db:"device_id"`
	StartedAt         time.Time      `db:"started_at"`
	CompletedAt       sql.NullTime   `db:"completed_at"`
	ItemsSynced       int            `db:"items_synced"`
	ConflictsDetected int            `db:"conflicts_detected"`
	Status            string         `db:"status"`
	ErrorMessage      sql.NullString `db:"error_message"`
}
