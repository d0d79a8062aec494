package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// ProtocolVersion gates peer sessions: both sides must speak the same
// manifest/transfer protocol before any data moves.
const ProtocolVersion = 1

type ItemType string

const (
	ItemTypeBook     ItemType = "BOOK"
	ItemTypeProgress ItemType = "READING_PROGRESS"
	ItemTypeBookmark ItemType = "BOOKMARK"
)

type ManifestItem struct {
	ItemID       string   `json:"item_id"`
	ItemType     ItemType `json:"item_type"`
	Hash         string   `json:"hash"`
	LastModified int64    `json:"last_modified"`
}

// SyncManifest is a snapshot of one device's syncable state, built fresh
// before each session and immutable once built.
type SyncManifest struct {
	DeviceID  string         `json:"device_id"`
	Timestamp int64          `json:"timestamp"`
	Items     []ManifestItem `json:"items"`
}

// SyncItem pairs a manifest entry with its payload for transfer.
type SyncItem struct {
	ManifestItem
	Payload json.RawMessage `json:"payload"`
}

type ConflictType string

const (
	ConflictProgress     ConflictType = "READING_PROGRESS"
	ConflictBookmark     ConflictType = "BOOKMARK"
	ConflictBookMetadata ConflictType = "BOOK_METADATA"
)

func conflictTypeFor(itemType ItemType) ConflictType {
	switch itemType {
	case ItemTypeProgress:
		return ConflictProgress
	case ItemTypeBookmark:
		return ConflictBookmark
	default:
		return ConflictBookMetadata
	}
}

// DataConflict is produced when two manifests disagree on the hash for the
// same item. Payloads are filled in lazily, after the diff and before
// resolution.
type DataConflict struct {
	ConflictType  ConflictType    `json:"conflict_type"`
	Local         ManifestItem    `json:"local"`
	Remote        ManifestItem    `json:"remote"`
	LocalPayload  json.RawMessage `json:"local_payload,omitempty"`
	RemotePayload json.RawMessage `json:"remote_payload,omitempty"`
	ConflictField string          `json:"conflict_field"`
}

type Strategy string

const (
	StrategyLatestTimestamp Strategy = "latest_timestamp"
	StrategyLocalWins       Strategy = "local_wins"
	StrategyRemoteWins      Strategy = "remote_wins"
	StrategyMerge           Strategy = "merge"
	StrategyManual          Strategy = "manual"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyLatestTimestamp, StrategyLocalWins, StrategyRemoteWins, StrategyMerge, StrategyManual:
		return Strategy(s), nil
	case "":
		return StrategyLatestTimestamp, nil
	default:
		return "", fmt.Errorf("unknown conflict resolution strategy: %q", s)
	}
}

type DeviceInfo struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	DeviceType string `json:"device_type"`
	AppVersion string `json:"app_version"`
	IPAddress  string `json:"ip_address"`
	Port       int    `json:"port"`
	LastSeen   int64  `json:"last_seen"`
}

const deviceStaleAfter = 5 * time.Minute

type DiscoveredDevice struct {
	DeviceInfo   DeviceInfo `json:"device_info"`
	IsReachable  bool       `json:"is_reachable"`
	DiscoveredAt time.Time  `json:"discovered_at"`
}

// IsStaleAt reports whether the device has gone unseen for strictly longer
// than five minutes.
func (d DiscoveredDevice) IsStaleAt(now time.Time) bool {
	return now.Sub(d.DiscoveredAt) > deviceStaleAfter
}

func (d DiscoveredDevice) IsStale() bool {
	return d.IsStaleAt(time.Now())
}

// Hello is the first frame of a peer session, exchanged before manifests.
type Hello struct {
	DeviceID        string `json:"device_id"`
	DeviceName      string `json:"device_name"`
	AppVersion      string `json:"app_version"`
	ProtocolVersion int    `json:"protocol_version"`
}

type State int

const (
	StateIdle State = iota
	StateDiscovering
	StateConnecting
	StateSyncing
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StateConnecting:
		return "connecting"
	case StateSyncing:
		return "syncing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is session-scoped and owned by the active session: every
// transition overwrites it wholesale.
type Status struct {
	State        State          `json:"state"`
	DeviceName   string         `json:"device_name,omitempty"`
	Progress     float64        `json:"progress"`
	CurrentItem  string         `json:"current_item,omitempty"`
	CurrentIndex int            `json:"current_index"`
	TotalItems   int            `json:"total_items"`
	SyncedItems  int            `json:"synced_items"`
	Duration     time.Duration  `json:"duration"`
	Err          *SyncError     `json:"error,omitempty"`
	Unresolved   []DataConflict `json:"unresolved,omitempty"`
}

// PayloadHash is the content hash used in manifests and for idempotent
// apply: re-applying a payload whose hash already matches is a no-op.
func PayloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// ProgressPayload is the transferable shape of a reading-progress record.
type ProgressPayload struct {
	BookID          string  `json:"book_id"`
	LastChapterSlug string  `json:"last_chapter_slug"`
	ChapterIndex    int     `json:"chapter_index"`
	Progress        float64 `json:"progress"`
	UpdatedAt       int64   `json:"updated_at"`
}

type BookmarkEntry struct {
	ChapterID string `json:"chapter_id"`
	Position  int64  `json:"position"`
	Note      string `json:"note,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// BookmarkPayload carries all bookmarks of one book as a single syncable
// item.
type BookmarkPayload struct {
	BookID    string          `json:"book_id"`
	Bookmarks []BookmarkEntry `json:"bookmarks"`
	UpdatedAt int64           `json:"updated_at"`
}
