package sync

type DiffResult struct {
	ToPush    []ManifestItem
	ToPull    []ManifestItem
	Conflicts []DataConflict
}

// Diff computes the push/pull/conflict sets for two device manifests.
// Items present only locally are pushed, items present only remotely are
// pulled, matching hashes are ignored, and differing hashes become
// conflicts. Pure and linear in the combined item count.
func Diff(local, remote SyncManifest) DiffResult {
	remoteByID := make(map[string]ManifestItem, len(remote.Items))
	for _, item := range remote.Items {
		remoteByID[item.ItemID] = item
	}

	var result DiffResult
	localIDs := make(map[string]struct{}, len(local.Items))

	for _, localItem := range local.Items {
		localIDs[localItem.ItemID] = struct{}{}

		remoteItem, ok := remoteByID[localItem.ItemID]
		if !ok {
			result.ToPush = append(result.ToPush, localItem)
			continue
		}
		if remoteItem.Hash == localItem.Hash {
			continue
		}
		result.Conflicts = append(result.Conflicts, DataConflict{
			ConflictType:  conflictTypeFor(localItem.ItemType),
			Local:         localItem,
			Remote:        remoteItem,
			ConflictField: localItem.ItemID,
		})
	}

	for _, remoteItem := range remote.Items {
		if _, ok := localIDs[remoteItem.ItemID]; !ok {
			result.ToPull = append(result.ToPull, remoteItem)
		}
	}

	return result
}
