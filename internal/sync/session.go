package sync

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ireadorg/readsync/internal/logger"
	"github.com/ireadorg/readsync/internal/store"
)

// Session drives one sync run against a single peer. States move forward
// only: connecting, syncing, then completed or failed. A cancelled session
// ends failed with the CANCELLED code, never completed.
type Session struct {
	ID        string
	StartedAt time.Time

	self     DeviceInfo
	peer     DeviceInfo
	strategy Strategy
	catalog  *Catalog
	st       store.Store
	dialer   Dialer

	mu      sync.Mutex
	status  Status
	endedAt time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

func newSession(self DeviceInfo, peer DeviceInfo, strategy Strategy, catalog *Catalog, st store.Store, dialer Dialer) *Session {
	return &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		self:      self,
		peer:      peer,
		strategy:  strategy,
		catalog:   catalog,
		st:        st,
		dialer:    dialer,
		status:    Status{State: StateConnecting, DeviceName: peer.DeviceName},
		done:      make(chan struct{}),
	}
}

// Status returns a snapshot of the session's current state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.status
	if !s.endedAt.IsZero() {
		status.Duration = s.endedAt.Sub(s.StartedAt)
	} else {
		status.Duration = time.Since(s.StartedAt)
	}
	return status
}

// Cancel aborts the session. Safe to call from any goroutine and after the
// session has already ended.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) active() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Session) run(parent context.Context, timeout time.Duration) {
	defer close(s.done)

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	history := &store.SyncHistory{
		ID:        s.ID,
		DeviceID:  s.peer.DeviceID,
		StartedAt: s.StartedAt,
		Status:    "running",
	}
	if err := s.st.CreateSyncHistory(ctx, history); err != nil {
		logger.Log.Warn("Failed to record sync history", zap.Error(err))
	}

	syncErr := s.exchange(ctx, history)

	now := time.Now()
	history.CompletedAt = sql.NullTime{Time: now, Valid: true}
	if syncErr != nil {
		history.Status = "failed"
		history.ErrorMessage = sql.NullString{String: syncErr.Error(), Valid: true}
		s.fail(syncErr)
	} else {
		history.Status = "completed"
		if err := s.st.UpsertSyncMetadata(ctx, &store.SyncMetadata{
			DeviceID:     s.peer.DeviceID,
			DeviceName:   s.peer.DeviceName,
			DeviceType:   s.peer.DeviceType,
			LastSyncTime: now.Unix(),
		}); err != nil {
			logger.Log.Warn("Failed to update sync metadata", zap.Error(err))
		}
	}
	if err := s.st.UpdateSyncHistory(context.Background(), history); err != nil {
		logger.Log.Warn("Failed to update sync history", zap.Error(err))
	}
}

// exchange runs the wire protocol: dial, hello, manifests, conflict
// resolution, then the item transfer loop. A nil return means the session
// completed; MANUAL leftovers are reported on the final status, not as a
// failure.
func (s *Session) exchange(ctx context.Context, history *store.SyncHistory) *SyncError {
	logger.Log.Info("Starting sync session",
		zap.String("session_id", s.ID),
		zap.String("peer", s.peer.DeviceName),
		zap.String("strategy", string(s.strategy)),
	)

	transfer, err := s.dialer.Dial(ctx, s.peer)
	if err != nil {
		return s.classify(ctx, err, NewConnectionFailed(err.Error()))
	}
	defer transfer.Close()

	peerHello, err := transfer.Handshake(ctx, Hello{
		DeviceID:        s.self.DeviceID,
		DeviceName:      s.self.DeviceName,
		AppVersion:      s.self.AppVersion,
		ProtocolVersion: ProtocolVersion,
	})
	if err != nil {
		return s.classify(ctx, err, NewConnectionFailed(err.Error()))
	}

	// Version gate: no manifest or item data moves across a mismatched
	// protocol.
	if peerHello.ProtocolVersion != ProtocolVersion {
		return NewIncompatibleVersion(
			strconv.Itoa(ProtocolVersion),
			strconv.Itoa(peerHello.ProtocolVersion),
		)
	}

	local, err := s.catalog.BuildManifest(ctx, s.self.DeviceID)
	if err != nil {
		return s.classify(ctx, err, NewUnknown(err.Error()))
	}

	remote, err := transfer.ExchangeManifests(ctx, local)
	if err != nil {
		return s.classify(ctx, err, NewTransferFailed(err.Error()))
	}

	diff := Diff(local, remote)
	history.ConflictsDetected = len(diff.Conflicts)

	resolved, unresolved, syncErr := s.resolveConflicts(ctx, transfer, diff.Conflicts)
	if syncErr != nil {
		return syncErr
	}

	total := len(diff.ToPush) + len(resolved) + len(diff.ToPull)
	s.setSyncing(total)

	synced := 0
	advance := func(itemID string) {
		synced++
		s.setProgress(itemID, synced, total)
		history.ItemsSynced = synced
	}

	// Push local-only items.
	for _, item := range diff.ToPush {
		if err := ctx.Err(); err != nil {
			return s.classify(ctx, err, NewCancelled())
		}
		items, err := s.catalog.LoadItems(ctx, []string{item.ItemID})
		if err != nil {
			return s.classify(ctx, err, NewTransferFailed(err.Error()))
		}
		if err := transfer.PushItems(ctx, items); err != nil {
			return s.classify(ctx, err, NewTransferFailed(err.Error()))
		}
		advance(item.ItemID)
	}

	// Apply resolved winners on both sides so the devices converge. The
	// peer skips anything whose hash it already holds.
	for _, winner := range resolved {
		if err := ctx.Err(); err != nil {
			return s.classify(ctx, err, NewCancelled())
		}
		if _, err := s.catalog.ApplyItems(ctx, []SyncItem{winner}); err != nil {
			return s.classify(ctx, err, NewTransferFailed(err.Error()))
		}
		if err := transfer.PushItems(ctx, []SyncItem{winner}); err != nil {
			return s.classify(ctx, err, NewTransferFailed(err.Error()))
		}
		advance(winner.ItemID)
	}

	// Pull remote-only items. Payloads come over in one batch; applying
	// stays per item so progress and cancellation track each record.
	if len(diff.ToPull) > 0 {
		pullIDs := make([]string, 0, len(diff.ToPull))
		for _, item := range diff.ToPull {
			pullIDs = append(pullIDs, item.ItemID)
		}
		pulled, err := transfer.FetchItems(ctx, pullIDs)
		if err != nil {
			return s.classify(ctx, err, NewTransferFailed(err.Error()))
		}
		for _, item := range pulled {
			if err := ctx.Err(); err != nil {
				return s.classify(ctx, err, NewCancelled())
			}
			if _, err := s.catalog.ApplyItems(ctx, []SyncItem{item}); err != nil {
				return s.classify(ctx, err, NewTransferFailed(err.Error()))
			}
			advance(item.ItemID)
		}
	}

	s.complete(synced, total, unresolved)

	logger.Log.Info("Sync session completed",
		zap.String("session_id", s.ID),
		zap.Int("items_synced", synced),
		zap.Int("conflicts", len(diff.Conflicts)),
		zap.Int("unresolved", len(unresolved)),
	)
	return nil
}

// resolveConflicts fetches both sides' payloads, applies the configured
// strategy, and splits the outcome into winners to transfer and MANUAL
// leftovers. Leftovers are persisted so a later decision can pick them up.
func (s *Session) resolveConflicts(ctx context.Context, transfer Transfer, conflicts []DataConflict) ([]SyncItem, []DataConflict, *SyncError) {
	if len(conflicts) == 0 {
		return nil, nil, nil
	}

	ids := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		ids = append(ids, c.Local.ItemID)
	}

	localItems, err := s.catalog.LoadItems(ctx, ids)
	if err != nil {
		return nil, nil, s.classify(ctx, err, NewConflictResolutionFailed(err.Error()))
	}
	remoteItems, err := transfer.FetchItems(ctx, ids)
	if err != nil {
		return nil, nil, s.classify(ctx, err, NewTransferFailed(err.Error()))
	}

	localByID := make(map[string]SyncItem, len(localItems))
	for _, item := range localItems {
		localByID[item.ItemID] = item
	}
	remoteByID := make(map[string]SyncItem, len(remoteItems))
	for _, item := range remoteItems {
		remoteByID[item.ItemID] = item
	}

	var winners []SyncItem
	var unresolved []DataConflict

	for _, c := range conflicts {
		c.LocalPayload = localByID[c.Local.ItemID].Payload
		c.RemotePayload = remoteByID[c.Remote.ItemID].Payload

		res, err := Resolve(c, s.strategy)
		if err != nil {
			return nil, nil, NewConflictResolutionFailed(err.Error())
		}

		if res.Unresolved {
			unresolved = append(unresolved, c)
			record := &store.Conflict{
				ID:           uuid.NewString(),
				ItemID:       c.Local.ItemID,
				ConflictType: string(c.ConflictType),
				LocalData:    c.LocalPayload,
				RemoteData:   c.RemotePayload,
				DetectedAt:   time.Now(),
			}
			if err := s.st.CreateConflict(ctx, record); err != nil {
				logger.Log.Warn("Failed to persist unresolved conflict",
					zap.String("item_id", c.Local.ItemID),
					zap.Error(err),
				)
			}
			continue
		}

		winners = append(winners, SyncItem{
			ManifestItem: *res.Winner,
			Payload:      res.Payload,
		})
	}

	return winners, unresolved, nil
}

// classify maps a raw error to the session error set, preferring CANCELLED
// whenever the context is already dead.
func (s *Session) classify(ctx context.Context, err error, fallback *SyncError) *SyncError {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return NewConnectionFailed("session timed out")
		}
		return NewCancelled()
	}
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr
	}
	return fallback
}

func (s *Session) setSyncing(total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.State = StateSyncing
	s.status.TotalItems = total
	if total == 0 {
		s.status.Progress = 1
	}
}

func (s *Session) setProgress(itemID string, synced, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.CurrentItem = itemID
	s.status.CurrentIndex = synced
	s.status.SyncedItems = synced
	if total > 0 {
		s.status.Progress = float64(synced) / float64(total)
	}
}

func (s *Session) complete(synced, total int, unresolved []DataConflict) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.State = StateCompleted
	s.status.SyncedItems = synced
	s.status.TotalItems = total
	s.status.Progress = 1
	s.status.CurrentItem = ""
	s.status.Unresolved = unresolved
	s.endedAt = time.Now()
}

func (s *Session) fail(err *SyncError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.State = StateFailed
	s.status.Err = err
	s.endedAt = time.Now()

	logger.Log.Warn("Sync session failed",
		zap.String("session_id", s.ID),
		zap.String("code", string(err.Code)),
		zap.Error(err),
	)
}
