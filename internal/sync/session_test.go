package sync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ireadorg/readsync/internal/store"
)

// fakeStore keeps everything in maps; good enough to drive a session.
type fakeStore struct {
	mu        sync.Mutex
	records   map[string]*store.Record
	conflicts []*store.Conflict
	metadata  map[string]*store.SyncMetadata
	history   map[string]*store.SyncHistory
	upserts   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:  make(map[string]*store.Record),
		metadata: make(map[string]*store.SyncMetadata),
		history:  make(map[string]*store.SyncHistory),
	}
}

func (f *fakeStore) ListRecords(ctx context.Context) ([]*store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*store.Record, 0, len(f.records))
	for _, r := range f.records {
		copied := *r
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeStore) GetRecord(ctx context.Context, itemID string) (*store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[itemID]
	if !ok {
		return nil, nil
	}
	copied := *r
	return &copied, nil
}

func (f *fakeStore) UpsertRecord(ctx context.Context, record *store.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *record
	f.records[record.ItemID] = &copied
	f.upserts++
	return nil
}

func (f *fakeStore) CreateConflict(ctx context.Context, conflict *store.Conflict) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conflicts = append(f.conflicts, conflict)
	return nil
}

func (f *fakeStore) ListConflicts(ctx context.Context, resolved bool, limit, offset int) ([]*store.Conflict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Conflict
	for _, c := range f.conflicts {
		if c.Resolved == resolved {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) ResolveConflict(ctx context.Context, id string, strategy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conflicts {
		if c.ID == id {
			c.Resolved = true
			return nil
		}
	}
	return errors.New("conflict not found")
}

func (f *fakeStore) GetSyncMetadata(ctx context.Context, deviceID string) (*store.SyncMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metadata[deviceID], nil
}

func (f *fakeStore) UpsertSyncMetadata(ctx context.Context, metadata *store.SyncMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadata[metadata.DeviceID] = metadata
	return nil
}

func (f *fakeStore) CreateSyncHistory(ctx context.Context, history *store.SyncHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *history
	f.history[history.ID] = &copied
	return nil
}

func (f *fakeStore) UpdateSyncHistory(ctx context.Context, history *store.SyncHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *history
	f.history[history.ID] = &copied
	return nil
}

func (f *fakeStore) GetSyncHistory(ctx context.Context, limit, offset int) ([]*store.SyncHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.SyncHistory
	for _, h := range f.history {
		out = append(out, h)
	}
	return out, nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) putItem(t *testing.T, id string, itemType ItemType, payload interface{}, modified int64) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, f.UpsertRecord(context.Background(), &store.Record{
		ItemID:       id,
		ItemType:     string(itemType),
		Hash:         PayloadHash(raw),
		LastModified: modified,
		Payload:      raw,
	}))
}

// fakeTransfer serves a scripted peer: a fixed hello, manifest and item set.
type fakeTransfer struct {
	mu        sync.Mutex
	peerHello Hello
	manifest  SyncManifest
	items     map[string]SyncItem
	pushed    []SyncItem

	blockManifests bool
	closed         bool
}

func (f *fakeTransfer) Handshake(ctx context.Context, hello Hello) (Hello, error) {
	return f.peerHello, nil
}

func (f *fakeTransfer) ExchangeManifests(ctx context.Context, local SyncManifest) (SyncManifest, error) {
	if f.blockManifests {
		<-ctx.Done()
		return SyncManifest{}, ctx.Err()
	}
	return f.manifest, nil
}

func (f *fakeTransfer) FetchItems(ctx context.Context, itemIDs []string) ([]SyncItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []SyncItem
	for _, id := range itemIDs {
		item, ok := f.items[id]
		if !ok {
			return nil, errors.New("unknown item " + id)
		}
		out = append(out, item)
	}
	return out, nil
}

func (f *fakeTransfer) PushItems(ctx context.Context, items []SyncItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, items...)
	return nil
}

func (f *fakeTransfer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransfer) pushedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, item := range f.pushed {
		ids = append(ids, item.ItemID)
	}
	return ids
}

type fakeDialer struct {
	transfer *fakeTransfer
	err      error
}

func (d *fakeDialer) Dial(ctx context.Context, device DeviceInfo) (Transfer, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.transfer, nil
}

func peerDevice() DeviceInfo {
	return DeviceInfo{DeviceID: "peer-1", DeviceName: "tablet", DeviceType: "tablet", Port: 9}
}

func selfDevice() DeviceInfo {
	return DeviceInfo{DeviceID: "self-1", DeviceName: "desktop", DeviceType: "server"}
}

func peerWith(t *testing.T, items map[string]SyncItem) *fakeTransfer {
	t.Helper()
	manifest := SyncManifest{DeviceID: "peer-1", Timestamp: time.Now().Unix()}
	for _, item := range items {
		manifest.Items = append(manifest.Items, item.ManifestItem)
	}
	return &fakeTransfer{
		peerHello: Hello{DeviceID: "peer-1", DeviceName: "tablet", ProtocolVersion: ProtocolVersion},
		manifest:  manifest,
		items:     items,
	}
}

func syncItem(t *testing.T, id string, itemType ItemType, payload interface{}, modified int64) SyncItem {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return SyncItem{
		ManifestItem: ManifestItem{ItemID: id, ItemType: itemType, Hash: PayloadHash(raw), LastModified: modified},
		Payload:      raw,
	}
}

func runSession(fs *fakeStore, transfer *fakeTransfer, strategy Strategy) *Session {
	dialer := &fakeDialer{transfer: transfer}
	s := newSession(selfDevice(), peerDevice(), strategy, NewCatalog(fs), fs, dialer)
	s.run(context.Background(), time.Minute)
	return s
}

func TestSessionPushAndPull(t *testing.T) {
	fs := newFakeStore()
	fs.putItem(t, "local-only", ItemTypeBook, map[string]string{"title": "mine"}, 100)

	remoteItem := syncItem(t, "remote-only", ItemTypeBook, map[string]string{"title": "theirs"}, 200)
	transfer := peerWith(t, map[string]SyncItem{"remote-only": remoteItem})

	s := runSession(fs, transfer, StrategyLatestTimestamp)

	status := s.Status()
	require.Equal(t, StateCompleted, status.State)
	assert.Equal(t, 2, status.TotalItems)
	assert.Equal(t, 2, status.SyncedItems)
	assert.Equal(t, 1.0, status.Progress)
	assert.Nil(t, status.Err)

	// Local-only went out, remote-only came in.
	assert.Equal(t, []string{"local-only"}, transfer.pushedIDs())
	record, err := fs.GetRecord(context.Background(), "remote-only")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, remoteItem.Hash, record.Hash)

	assert.True(t, transfer.closed)

	// Session outcome is persisted.
	h := fs.history[s.ID]
	require.NotNil(t, h)
	assert.Equal(t, "completed", h.Status)
	assert.Equal(t, 2, h.ItemsSynced)
	assert.NotNil(t, fs.metadata["peer-1"])
}

func TestSessionResolvesConflictBothSides(t *testing.T) {
	fs := newFakeStore()
	fs.putItem(t, "p1", ItemTypeProgress, ProgressPayload{BookID: "b", ChapterIndex: 2, UpdatedAt: 100}, 100)

	remoteItem := syncItem(t, "p1", ItemTypeProgress, ProgressPayload{BookID: "b", ChapterIndex: 5, UpdatedAt: 200}, 200)
	transfer := peerWith(t, map[string]SyncItem{"p1": remoteItem})

	s := runSession(fs, transfer, StrategyLatestTimestamp)

	status := s.Status()
	require.Equal(t, StateCompleted, status.State)

	// Remote is newer, so the winner lands locally and is echoed back.
	record, err := fs.GetRecord(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, remoteItem.Hash, record.Hash)
	assert.Equal(t, []string{"p1"}, transfer.pushedIDs())
}

func TestSessionManualConflictSuspends(t *testing.T) {
	fs := newFakeStore()
	fs.putItem(t, "p1", ItemTypeProgress, ProgressPayload{BookID: "b", ChapterIndex: 2}, 100)
	localHash := fs.records["p1"].Hash

	remoteItem := syncItem(t, "p1", ItemTypeProgress, ProgressPayload{BookID: "b", ChapterIndex: 9}, 200)
	transfer := peerWith(t, map[string]SyncItem{"p1": remoteItem})

	s := runSession(fs, transfer, StrategyManual)

	// Suspended, not failed: the session completes and reports the leftover.
	status := s.Status()
	require.Equal(t, StateCompleted, status.State)
	assert.Nil(t, status.Err)
	require.Len(t, status.Unresolved, 1)
	assert.Equal(t, "p1", status.Unresolved[0].ConflictField)

	// Neither side changed and the conflict is on record.
	assert.Equal(t, localHash, fs.records["p1"].Hash)
	assert.Empty(t, transfer.pushedIDs())
	require.Len(t, fs.conflicts, 1)
	assert.False(t, fs.conflicts[0].Resolved)
}

func TestSessionVersionGate(t *testing.T) {
	fs := newFakeStore()
	fs.putItem(t, "local-only", ItemTypeBook, map[string]string{"title": "mine"}, 100)

	transfer := peerWith(t, nil)
	transfer.peerHello.ProtocolVersion = ProtocolVersion + 1

	s := runSession(fs, transfer, StrategyLatestTimestamp)

	status := s.Status()
	require.Equal(t, StateFailed, status.State)
	require.NotNil(t, status.Err)
	assert.Equal(t, CodeIncompatibleVersion, status.Err.Code)

	// No data moved across the mismatch.
	assert.Empty(t, transfer.pushedIDs())
	assert.Equal(t, "failed", fs.history[s.ID].Status)
}

func TestSessionDialFailure(t *testing.T) {
	fs := newFakeStore()
	dialer := &fakeDialer{err: errors.New("connection refused")}
	s := newSession(selfDevice(), peerDevice(), StrategyLatestTimestamp, NewCatalog(fs), fs, dialer)
	s.run(context.Background(), time.Minute)

	status := s.Status()
	require.Equal(t, StateFailed, status.State)
	require.NotNil(t, status.Err)
	assert.Equal(t, CodeConnectionFailed, status.Err.Code)
}

func TestSessionCancelFailsWithCancelled(t *testing.T) {
	fs := newFakeStore()
	transfer := peerWith(t, nil)
	transfer.blockManifests = true

	dialer := &fakeDialer{transfer: transfer}
	s := newSession(selfDevice(), peerDevice(), StrategyLatestTimestamp, NewCatalog(fs), fs, dialer)
	go s.run(context.Background(), time.Minute)

	time.Sleep(20 * time.Millisecond)
	s.Cancel()

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate after cancel")
	}

	status := s.Status()
	require.Equal(t, StateFailed, status.State)
	require.NotNil(t, status.Err)
	assert.Equal(t, CodeCancelled, status.Err.Code)
}

func TestCatalogApplyIsIdempotent(t *testing.T) {
	fs := newFakeStore()
	catalog := NewCatalog(fs)

	item := syncItem(t, "p1", ItemTypeProgress, ProgressPayload{BookID: "b"}, 100)

	applied, err := catalog.ApplyItems(context.Background(), []SyncItem{item})
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	// Same hash again: skipped, no extra write.
	applied, err = catalog.ApplyItems(context.Background(), []SyncItem{item})
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
	assert.Equal(t, 1, fs.upserts)
}

func TestCatalogBuildManifest(t *testing.T) {
	fs := newFakeStore()
	fs.putItem(t, "a", ItemTypeBook, map[string]string{"title": "x"}, 10)
	fs.putItem(t, "b", ItemTypeProgress, ProgressPayload{BookID: "a"}, 20)

	manifest, err := NewCatalog(fs).BuildManifest(context.Background(), "self-1")
	require.NoError(t, err)
	assert.Equal(t, "self-1", manifest.DeviceID)
	assert.Len(t, manifest.Items, 2)
}
