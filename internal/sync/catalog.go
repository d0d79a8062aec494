package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ireadorg/readsync/internal/logger"
	"github.com/ireadorg/readsync/internal/store"
)

// Catalog is the bridge between the sync protocol and the local state store.
// Both the initiating session and the responding side of a peer connection
// read and apply items through it.
type Catalog struct {
	store store.Store
}

func NewCatalog(st store.Store) *Catalog {
	return &Catalog{store: st}
}

// BuildManifest snapshots every syncable record into a fresh manifest.
func (c *Catalog) BuildManifest(ctx context.Context, deviceID string) (SyncManifest, error) {
	records, err := c.store.ListRecords(ctx)
	if err != nil {
		return SyncManifest{}, fmt.Errorf("failed to list records: %w", err)
	}

	manifest := SyncManifest{
		DeviceID:  deviceID,
		Timestamp: time.Now().Unix(),
		Items:     make([]ManifestItem, 0, len(records)),
	}

	for _, r := range records {
		manifest.Items = append(manifest.Items, ManifestItem{
			ItemID:       r.ItemID,
			ItemType:     ItemType(r.ItemType),
			Hash:         r.Hash,
			LastModified: r.LastModified,
		})
	}

	return manifest, nil
}

// LoadItems reads full payloads for the given item IDs. Unknown IDs are an
// error: the manifest that named them was built from this same store.
func (c *Catalog) LoadItems(ctx context.Context, itemIDs []string) ([]SyncItem, error) {
	items := make([]SyncItem, 0, len(itemIDs))
	for _, id := range itemIDs {
		record, err := c.store.GetRecord(ctx, id)
		if err != nil {
			return nil, err
		}
		if record == nil {
			return nil, fmt.Errorf("item %s not found in local store", id)
		}
		items = append(items, SyncItem{
			ManifestItem: ManifestItem{
				ItemID:       record.ItemID,
				ItemType:     ItemType(record.ItemType),
				Hash:         record.Hash,
				LastModified: record.LastModified,
			},
			Payload: record.Payload,
		})
	}
	return items, nil
}

// ApplyItems upserts incoming items. An item whose hash already matches the
// stored record is skipped, so re-applying after an interrupted session is
// harmless. Returns the number of records actually written.
func (c *Catalog) ApplyItems(ctx context.Context, items []SyncItem) (int, error) {
	applied := 0
	for _, item := range items {
		existing, err := c.store.GetRecord(ctx, item.ItemID)
		if err != nil {
			return applied, err
		}
		if existing != nil && existing.Hash == item.Hash {
			logger.Log.Debug("Skipping already-applied item", zap.String("item_id", item.ItemID))
			continue
		}

		record := &store.Record{
			ItemID:       item.ItemID,
			ItemType:     string(item.ItemType),
			Hash:         item.Hash,
			LastModified: item.LastModified,
			Payload:      item.Payload,
		}
		if err := c.store.UpsertRecord(ctx, record); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}
