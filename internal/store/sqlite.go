package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/ireadorg/readsync/internal/config"
	"github.com/ireadorg/readsync/internal/logger"
)

type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS records (
	item_id       TEXT PRIMARY KEY,
	item_type     TEXT NOT NULL,
	hash          TEXT NOT NULL,
	last_modified INTEGER NOT NULL,
	payload       BLOB NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS conflicts (
	id                  TEXT PRIMARY KEY,
	item_id             TEXT NOT NULL,
	conflict_type       TEXT NOT NULL,
	local_data          BLOB,
	remote_data         BLOB,
	detected_at         TIMESTAMP NOT NULL,
	resolved            BOOLEAN NOT NULL DEFAULT 0,
	resolution_strategy TEXT,
	resolved_at         TIMESTAMP
);
CREATE TABLE IF NOT EXISTS sync_metadata (
	device_id      TEXT PRIMARY KEY,
	device_name    TEXT NOT NULL,
	device_type    TEXT NOT NULL,
	last_sync_time INTEGER NOT NULL,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS sync_history (
	id                 TEXT PRIMARY KEY,
	device_id          TEXT NOT NULL,
	started_at         TIMESTAMP NOT NULL,
	completed_at       TIMESTAMP,
	items_synced       INTEGER NOT NULL DEFAULT 0,
	conflicts_detected INTEGER NOT NULL DEFAULT 0,
	status             TEXT NOT NULL,
	error_message      TEXT
);
`

func NewSQLiteStore(cfg config.StorageConfig) (*SQLiteStore, error) {
	path := cfg.FilePath
	if path == "" {
		path = "readsync.db"
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	// SQLite writes serialize on a single connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Log.Info("Opened state store", zap.String("path", path))

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListRecords(ctx context.Context) ([]*Record, error) {
	query := `SELECT item_id, item_type, hash, last_modified, payload, updated_at
			  FROM records ORDER BY item_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ItemID, &r.ItemType, &r.Hash, &r.LastModified, &r.Payload, &r.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, &r)
	}

	return records, rows.Err()
}

func (s *SQLiteStore) GetRecord(ctx context.Context, itemID string) (*Record, error) {
	query := `SELECT item_id, item_type, hash, last_modified, payload, updated_at
			  FROM records WHERE item_id = ?`

	row := s.db.QueryRowContext(ctx, query, itemID)

	var r Record
	err := row.Scan(&r.ItemID, &r.ItemType, &r.Hash, &r.LastModified, &r.Payload, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &r, nil
}

func (s *SQLiteStore) UpsertRecord(ctx context.Context, record *Record) error {
	query := `INSERT INTO records (item_id, item_type, hash, last_modified, payload, updated_at)
			  VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			  ON CONFLICT(item_id) DO UPDATE SET
			  item_type = excluded.item_type,
			  hash = excluded.hash,
			  last_modified = excluded.last_modified,
			  payload = excluded.payload,
			  updated_at = CURRENT_TIMESTAMP`

	_, err := s.db.ExecContext(ctx, query,
		record.ItemID,
		record.ItemType,
		record.Hash,
		record.LastModified,
		record.Payload,
	)

	return err
}

func (s *SQLiteStore) CreateConflict(ctx context.Context, conflict *Conflict) error {
	query := `INSERT INTO conflicts (id, item_id, conflict_type, local_data, remote_data, detected_at, resolved)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		conflict.ID,
		conflict.ItemID,
		conflict.ConflictType,
		[]byte(conflict.LocalData),
		[]byte(conflict.RemoteData),
		conflict.DetectedAt,
		conflict.Resolved,
	)

	return err
}

func (s *SQLiteStore) ListConflicts(ctx context.Context, resolved bool, limit, offset int) ([]*Conflict, error) {
	query := `SELECT id, item_id, conflict_type, local_data, remote_data, detected_at, resolved, resolution_strategy, resolved_at
			  FROM conflicts WHERE resolved = ? ORDER BY detected_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, resolved, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conflicts []*Conflict
	for rows.Next() {
		var c Conflict
		var localData, remoteData []byte
		err := rows.Scan(
			&c.ID,
			&c.ItemID,
			&c.ConflictType,
			&localData,
			&remoteData,
			&c.DetectedAt,
			&c.Resolved,
			&c.ResolutionStrategy,
			&c.ResolvedAt,
		)
		if err != nil {
			return nil, err
		}
		c.LocalData = localData
		c.RemoteData = remoteData
		conflicts = append(conflicts, &c)
	}

	return conflicts, rows.Err()
}

func (s *SQLiteStore) ResolveConflict(ctx context.Context, id string, strategy string) error {
	query := `UPDATE conflicts SET resolved = 1, resolution_strategy = ?, resolved_at = CURRENT_TIMESTAMP WHERE id = ?`

	_, err := s.db.ExecContext(ctx, query, strategy, id)
	return err
}

func (s *SQLiteStore) GetSyncMetadata(ctx context.Context, deviceID string) (*SyncMetadata, error) {
	query := `SELECT device_id, device_name, device_type, last_sync_time, created_at, updated_at
			  FROM sync_metadata WHERE device_id = ?`

	row := s.db.QueryRowContext(ctx, query, deviceID)

	var m SyncMetadata
	err := row.Scan(&m.DeviceID, &m.DeviceName, &m.DeviceType, &m.LastSyncTime, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &m, nil
}

func (s *SQLiteStore) UpsertSyncMetadata(ctx context.Context, metadata *SyncMetadata) error {
	query := `INSERT INTO sync_metadata (device_id, device_name, device_type, last_sync_time, created_at, updated_at)
			  VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
			  ON CONFLICT(device_id) DO UPDATE SET
			  device_name = excluded.device_name,
			  device_type = excluded.device_type,
			  last_sync_time = excluded.last_sync_time,
			  updated_at = CURRENT_TIMESTAMP`

	_, err := s.db.ExecContext(ctx, query,
		metadata.DeviceID,
		metadata.DeviceName,
		metadata.DeviceType,
		metadata.LastSyncTime,
	)

	return err
}

func (s *SQLiteStore) CreateSyncHistory(ctx context.Context, history *SyncHistory) error {
	query := `INSERT INTO sync_history (id, device_id, started_at, completed_at, items_synced, conflicts_detected, status, error_message)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		history.ID,
		history.DeviceID,
		history.StartedAt,
		history.CompletedAt,
		history.ItemsSynced,
		history.ConflictsDetected,
		history.Status,
		history.ErrorMessage,
	)

	return err
}

func (s *SQLiteStore) UpdateSyncHistory(ctx context.Context, history *SyncHistory) error {
	query := `UPDATE sync_history SET completed_at = ?, items_synced = ?, conflicts_detected = ?, status = ?, error_message = ? WHERE id = ?`

	_, err := s.db.ExecContext(ctx, query,
		history.CompletedAt,
		history.ItemsSynced,
		history.ConflictsDetected,
		history.Status,
		history.ErrorMessage,
		history.ID,
	)

	return err
}

func (s *SQLiteStore) GetSyncHistory(ctx context.Context, limit, offset int) ([]*SyncHistory, error) {
	query := `SELECT id, device_id, started_at, completed_at, items_synced, conflicts_detected, status, error_message
			  FROM sync_history ORDER BY started_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*SyncHistory
	for rows.Next() {
		var h SyncHistory
		err := rows.Scan(
			&h.ID,
			&h.DeviceID,
			&h.StartedAt,
			&h.CompletedAt,
			&h.ItemsSynced,
			&h.ConflictsDetected,
			&h.Status,
			&h.ErrorMessage,
		)
		if err != nil {
			return nil, err
		}
		history = append(history, &h)
	}

	return history, rows.Err()
}
