package sync

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ireadorg/readsync/internal/config"
	"github.com/ireadorg/readsync/internal/logger"
	"github.com/ireadorg/readsync/internal/store"
)

// Manager owns device discovery and the single active sync session. A
// second StartSync while one is running is rejected rather than queued.
type Manager struct {
	cfg       *config.Config
	st        store.Store
	catalog   *Catalog
	dialer    Dialer
	discovery Discovery
	self      DeviceInfo

	mu          sync.Mutex
	session     *Session
	discovering bool
}

func NewManager(cfg *config.Config, st store.Store, dialer Dialer, discovery Discovery, appVersion string) *Manager {
	self := DeviceInfo{
		DeviceID:   uuid.NewString(),
		DeviceName: cfg.Device.Name,
		DeviceType: "server",
		AppVersion: appVersion,
		Port:       cfg.Device.Port,
	}
	if self.DeviceName == "" {
		self.DeviceName = "readsync"
	}

	return &Manager{
		cfg:       cfg,
		st:        st,
		catalog:   NewCatalog(st),
		dialer:    dialer,
		discovery: discovery,
		self:      self,
	}
}

func (m *Manager) Self() DeviceInfo {
	return m.self
}

func (m *Manager) StartDiscovery() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.discovering {
		return nil
	}
	if err := m.discovery.Start(m.self); err != nil {
		return fmt.Errorf("failed to start discovery: %w", err)
	}
	m.discovering = true

	logger.Log.Info("Device discovery started", zap.String("device", m.self.DeviceName))
	return nil
}

func (m *Manager) StopDiscovery() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.discovering {
		return
	}
	m.discovery.Stop()
	m.discovering = false

	logger.Log.Info("Device discovery stopped")
}

// Devices lists discovered peers, dropping any not seen recently.
func (m *Manager) Devices() []DiscoveredDevice {
	all := m.discovery.Devices()
	fresh := make([]DiscoveredDevice, 0, len(all))
	for _, d := range all {
		if !d.IsStale() {
			fresh = append(fresh, d)
		}
	}
	return fresh
}

// StartSync begins a session with the named device. The strategy argument
// overrides the configured default when non-empty. Returns the session ID.
func (m *Manager) StartSync(deviceID, strategyName string) (string, error) {
	if strategyName == "" {
		strategyName = m.cfg.Sync.Strategy
	}
	strategy, err := ParseStrategy(strategyName)
	if err != nil {
		return "", err
	}

	device, ok := m.discovery.Find(deviceID)
	if !ok || device.IsStale() {
		return "", NewDeviceNotFound(deviceID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil && m.session.active() {
		return "", fmt.Errorf("sync is already running")
	}

	session := newSession(m.self, device.DeviceInfo, strategy, m.catalog, m.st, m.dialer)
	m.session = session

	go session.run(context.Background(), m.cfg.Sync.GetSessionTimeout())

	return session.ID, nil
}

// CancelSync aborts the active session, if any.
func (m *Manager) CancelSync() {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()

	if session != nil {
		session.Cancel()
	}
}

// Status reports the current session's status, or the manager-level state
// when no session has run.
func (m *Manager) Status() Status {
	m.mu.Lock()
	session := m.session
	discovering := m.discovering
	m.mu.Unlock()

	if session != nil {
		return session.Status()
	}
	if discovering {
		return Status{State: StateDiscovering}
	}
	return Status{State: StateIdle}
}

func (m *Manager) Syncing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil && m.session.active()
}

func (m *Manager) History(ctx context.Context, limit, offset int) ([]*store.SyncHistory, error) {
	return m.st.GetSyncHistory(ctx, limit, offset)
}

func (m *Manager) Conflicts(ctx context.Context, resolved bool, limit, offset int) ([]*store.Conflict, error) {
	return m.st.ListConflicts(ctx, resolved, limit, offset)
}

// ResolveConflict marks a stored MANUAL conflict as handled with the given
// strategy name.
func (m *Manager) ResolveConflict(ctx context.Context, id, strategyName string) error {
	strategy, err := ParseStrategy(strategyName)
	if err != nil {
		return err
	}
	return m.st.ResolveConflict(ctx, id, string(strategy))
}

func (m *Manager) Close() {
	m.CancelSync()
	m.StopDiscovery()
}

// The methods below serve the responding side of a peer connection: another
// device dialed us, and the transport layer relays its frames here. The
// responder is passive; all session state lives on the initiating device.

// AnswerHello validates the peer's protocol version and returns our hello.
func (m *Manager) AnswerHello(peer Hello) (Hello, error) {
	hello := Hello{
		DeviceID:        m.self.DeviceID,
		DeviceName:      m.self.DeviceName,
		AppVersion:      m.self.AppVersion,
		ProtocolVersion: ProtocolVersion,
	}
	if peer.ProtocolVersion != ProtocolVersion {
		return hello, fmt.Errorf("incompatible protocol version %d, want %d", peer.ProtocolVersion, ProtocolVersion)
	}
	return hello, nil
}

// AnswerManifest builds and returns the local manifest.
func (m *Manager) AnswerManifest(ctx context.Context, remote SyncManifest) (SyncManifest, error) {
	return m.catalog.BuildManifest(ctx, m.self.DeviceID)
}

// AnswerFetch loads full payloads for the peer.
func (m *Manager) AnswerFetch(ctx context.Context, itemIDs []string) ([]SyncItem, error) {
	return m.catalog.LoadItems(ctx, itemIDs)
}

// AnswerApply applies items pushed by the peer.
func (m *Manager) AnswerApply(ctx context.Context, items []SyncItem) (int, error) {
	return m.catalog.ApplyItems(ctx, items)
}
