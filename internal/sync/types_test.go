package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceStaleBoundary(t *testing.T) {
	seen := time.Now()
	device := DiscoveredDevice{DiscoveredAt: seen}

	// Exactly five minutes is still fresh; strictly past it is stale.
	assert.False(t, device.IsStaleAt(seen.Add(5*time.Minute)))
	assert.True(t, device.IsStaleAt(seen.Add(5*time.Minute+time.Millisecond)))
	assert.False(t, device.IsStaleAt(seen.Add(time.Second)))
}

func TestParseStrategy(t *testing.T) {
	for _, name := range []string{"latest_timestamp", "local_wins", "remote_wins", "merge", "manual"} {
		got, err := ParseStrategy(name)
		require.NoError(t, err)
		assert.Equal(t, Strategy(name), got)
	}

	got, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyLatestTimestamp, got)

	_, err = ParseStrategy("newest")
	assert.Error(t, err)
}

func TestPayloadHashIsStable(t *testing.T) {
	a := PayloadHash([]byte(`{"book_id":"b"}`))
	b := PayloadHash([]byte(`{"book_id":"b"}`))
	c := PayloadHash([]byte(`{"book_id":"other"}`))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "syncing", StateSyncing.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestConflictTypeFor(t *testing.T) {
	assert.Equal(t, ConflictProgress, conflictTypeFor(ItemTypeProgress))
	assert.Equal(t, ConflictBookmark, conflictTypeFor(ItemTypeBookmark))
	assert.Equal(t, ConflictBookMetadata, conflictTypeFor(ItemTypeBook))
}
