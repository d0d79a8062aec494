package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func item(id string, itemType ItemType, hash string, modified int64) ManifestItem {
	return ManifestItem{ItemID: id, ItemType: itemType, Hash: hash, LastModified: modified}
}

func manifest(device string, items ...ManifestItem) SyncManifest {
	return SyncManifest{DeviceID: device, Timestamp: 1000, Items: items}
}

func TestDiffLocalOnlyIsPushed(t *testing.T) {
	local := manifest("a", item("b1", ItemTypeBook, "h1", 1))
	remote := manifest("b")

	result := Diff(local, remote)
	assert.Len(t, result.ToPush, 1)
	assert.Empty(t, result.ToPull)
	assert.Empty(t, result.Conflicts)
	assert.Equal(t, "b1", result.ToPush[0].ItemID)
}

func TestDiffRemoteOnlyIsPulled(t *testing.T) {
	local := manifest("a")
	remote := manifest("b", item("b1", ItemTypeBook, "h1", 1))

	result := Diff(local, remote)
	assert.Empty(t, result.ToPush)
	assert.Len(t, result.ToPull, 1)
	assert.Empty(t, result.Conflicts)
}

func TestDiffEqualHashIgnored(t *testing.T) {
	local := manifest("a", item("b1", ItemTypeBook, "same", 1))
	remote := manifest("b", item("b1", ItemTypeBook, "same", 99))

	result := Diff(local, remote)
	assert.Empty(t, result.ToPush)
	assert.Empty(t, result.ToPull)
	assert.Empty(t, result.Conflicts)
}

func TestDiffHashMismatchIsConflict(t *testing.T) {
	local := manifest("a", item("p1", ItemTypeProgress, "h-local", 10))
	remote := manifest("b", item("p1", ItemTypeProgress, "h-remote", 20))

	result := Diff(local, remote)
	assert.Len(t, result.Conflicts, 1)

	c := result.Conflicts[0]
	assert.Equal(t, ConflictProgress, c.ConflictType)
	assert.Equal(t, "p1", c.ConflictField)
	assert.Equal(t, "h-local", c.Local.Hash)
	assert.Equal(t, "h-remote", c.Remote.Hash)
}

func TestDiffMixed(t *testing.T) {
	local := manifest("a",
		item("push-me", ItemTypeBook, "h1", 1),
		item("shared", ItemTypeBookmark, "same", 2),
		item("clash", ItemTypeProgress, "x", 3),
	)
	remote := manifest("b",
		item("shared", ItemTypeBookmark, "same", 2),
		item("clash", ItemTypeProgress, "y", 4),
		item("pull-me", ItemTypeBook, "h2", 5),
	)

	result := Diff(local, remote)
	assert.Len(t, result.ToPush, 1)
	assert.Len(t, result.ToPull, 1)
	assert.Len(t, result.Conflicts, 1)
}

// Swapping the manifests must swap push and pull and mirror the conflicts.
func TestDiffSymmetry(t *testing.T) {
	a := manifest("a",
		item("only-a", ItemTypeBook, "h1", 1),
		item("both", ItemTypeProgress, "ha", 2),
	)
	b := manifest("b",
		item("only-b", ItemTypeBook, "h2", 1),
		item("both", ItemTypeProgress, "hb", 3),
	)

	forward := Diff(a, b)
	backward := Diff(b, a)

	assert.Equal(t, len(forward.ToPush), len(backward.ToPull))
	assert.Equal(t, len(forward.ToPull), len(backward.ToPush))
	assert.Equal(t, len(forward.Conflicts), len(backward.Conflicts))
	assert.Equal(t, forward.Conflicts[0].Local, backward.Conflicts[0].Remote)
}

func TestDiffEmptyManifests(t *testing.T) {
	result := Diff(manifest("a"), manifest("b"))
	assert.Empty(t, result.ToPush)
	assert.Empty(t, result.ToPull)
	assert.Empty(t, result.Conflicts)
}
