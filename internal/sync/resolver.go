package sync

import (
	"encoding/json"
	"fmt"
)

// Resolution is the outcome of resolving a single conflict. Winner is nil
// only for the MANUAL strategy, where the decision is suspended rather than
// failed.
type Resolution struct {
	Winner     *ManifestItem
	FromRemote bool
	Payload    json.RawMessage
	Unresolved bool
}

// Resolve applies a strategy to one conflict without mutating its inputs.
func Resolve(conflict DataConflict, strategy Strategy) (Resolution, error) {
	switch strategy {
	case StrategyLatestTimestamp:
		return resolveLatest(conflict), nil

	case StrategyLocalWins:
		winner := conflict.Local
		return Resolution{Winner: &winner, Payload: conflict.LocalPayload}, nil

	case StrategyRemoteWins:
		winner := conflict.Remote
		return Resolution{Winner: &winner, FromRemote: true, Payload: conflict.RemotePayload}, nil

	case StrategyMerge:
		return resolveMerge(conflict)

	case StrategyManual:
		return Resolution{Unresolved: true}, nil

	default:
		return Resolution{}, fmt.Errorf("unknown conflict resolution strategy: %q", strategy)
	}
}

// resolveLatest picks the side with the strictly greater timestamp; ties go
// to local.
func resolveLatest(conflict DataConflict) Resolution {
	if conflict.Remote.LastModified > conflict.Local.LastModified {
		winner := conflict.Remote
		return Resolution{Winner: &winner, FromRemote: true, Payload: conflict.RemotePayload}
	}
	winner := conflict.Local
	return Resolution{Winner: &winner, Payload: conflict.LocalPayload}
}

func resolveMerge(conflict DataConflict) (Resolution, error) {
	switch conflict.ConflictType {
	case ConflictProgress:
		return mergeProgress(conflict)
	case ConflictBookmark:
		return mergeBookmarks(conflict)
	default:
		// Book metadata has no meaningful field union; fall back to the
		// newer side.
		return resolveLatest(conflict), nil
	}
}

// mergeProgress keeps the furthest reading position from either side.
func mergeProgress(conflict DataConflict) (Resolution, error) {
	var local, remote ProgressPayload
	if err := decodePayloads(conflict, &local, &remote); err != nil {
		return Resolution{}, err
	}

	base := resolveLatest(conflict)
	merged := local
	if base.FromRemote {
		merged = remote
	}
	if remote.ChapterIndex > local.ChapterIndex {
		merged.ChapterIndex = remote.ChapterIndex
	} else {
		merged.ChapterIndex = local.ChapterIndex
	}
	if remote.Progress > local.Progress {
		merged.Progress = remote.Progress
	} else {
		merged.Progress = local.Progress
	}

	payload, err := json.Marshal(merged)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to encode merged progress: %w", err)
	}

	winner := *base.Winner
	winner.Hash = PayloadHash(payload)
	return Resolution{Winner: &winner, FromRemote: base.FromRemote, Payload: payload}, nil
}

// mergeBookmarks unions both sides, dropping duplicates that share the same
// chapter and position.
func mergeBookmarks(conflict DataConflict) (Resolution, error) {
	var local, remote BookmarkPayload
	if err := decodePayloads(conflict, &local, &remote); err != nil {
		return Resolution{}, err
	}

	type bookmarkKey struct {
		chapterID string
		position  int64
	}

	merged := BookmarkPayload{BookID: local.BookID, UpdatedAt: local.UpdatedAt}
	if remote.UpdatedAt > merged.UpdatedAt {
		merged.UpdatedAt = remote.UpdatedAt
	}

	seen := make(map[bookmarkKey]struct{}, len(local.Bookmarks)+len(remote.Bookmarks))
	for _, b := range local.Bookmarks {
		seen[bookmarkKey{b.ChapterID, b.Position}] = struct{}{}
		merged.Bookmarks = append(merged.Bookmarks, b)
	}
	for _, b := range remote.Bookmarks {
		key := bookmarkKey{b.ChapterID, b.Position}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		merged.Bookmarks = append(merged.Bookmarks, b)
	}

	payload, err := json.Marshal(merged)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to encode merged bookmarks: %w", err)
	}

	base := resolveLatest(conflict)
	winner := *base.Winner
	winner.Hash = PayloadHash(payload)
	return Resolution{Winner: &winner, FromRemote: base.FromRemote, Payload: payload}, nil
}

func decodePayloads(conflict DataConflict, local, remote interface{}) error {
	if len(conflict.LocalPayload) == 0 || len(conflict.RemotePayload) == 0 {
		return fmt.Errorf("merge requires both payloads for item %s", conflict.ConflictField)
	}
	if err := json.Unmarshal(conflict.LocalPayload, local); err != nil {
		return fmt.Errorf("failed to decode local payload for %s: %w", conflict.ConflictField, err)
	}
	if err := json.Unmarshal(conflict.RemotePayload, remote); err != nil {
		return fmt.Errorf("failed to decode remote payload for %s: %w", conflict.ConflictField, err)
	}
	return nil
}
