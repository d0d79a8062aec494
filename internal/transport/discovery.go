package transport

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ireadorg/readsync/internal/logger"
	syncpkg "github.com/ireadorg/readsync/internal/sync"
)

const (
	announceInterval = 30 * time.Second
	maxPacketSize    = 2048
)

// UDPDiscovery announces this device on the local network and collects
// announcements from peers. Announcements are plain JSON DeviceInfo
// datagrams broadcast on the discovery port; the sender's address fills in
// the peer's IP.
type UDPDiscovery struct {
	port int

	mu      sync.Mutex
	devices map[string]syncpkg.DiscoveredDevice
	self    syncpkg.DeviceInfo
	conn    *net.UDPConn
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

func NewUDPDiscovery(port int) *UDPDiscovery {
	return &UDPDiscovery{
		port:    port,
		devices: make(map[string]syncpkg.DiscoveredDevice),
	}
}

func (d *UDPDiscovery) Start(self syncpkg.DeviceInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: d.port})
	if err != nil {
		return fmt.Errorf("failed to listen on discovery port %d: %w", d.port, err)
	}

	d.self = self
	d.conn = conn
	d.stop = make(chan struct{})
	d.running = true

	d.wg.Add(2)
	go d.listen()
	go d.announce()

	return nil
}

func (d *UDPDiscovery) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stop)
	d.conn.Close()
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *UDPDiscovery) Devices() []syncpkg.DiscoveredDevice {
	d.mu.Lock()
	defer d.mu.Unlock()

	devices := make([]syncpkg.DiscoveredDevice, 0, len(d.devices))
	for _, dev := range d.devices {
		devices = append(devices, dev)
	}
	return devices
}

func (d *UDPDiscovery) Find(deviceID string) (*syncpkg.DiscoveredDevice, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	dev, ok := d.devices[deviceID]
	if !ok {
		return nil, false
	}
	return &dev, true
}

func (d *UDPDiscovery) listen() {
	defer d.wg.Done()

	buf := make([]byte, maxPacketSize)
	for {
		n, addr, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-d.stop:
				return
			default:
				logger.Log.Warn("Discovery read failed", zap.Error(err))
				continue
			}
		}

		var info syncpkg.DeviceInfo
		if err := json.Unmarshal(buf[:n], &info); err != nil {
			logger.Log.Debug("Ignoring malformed announcement", zap.String("from", addr.String()))
			continue
		}
		if info.DeviceID == "" || info.DeviceID == d.self.DeviceID {
			continue
		}

		info.IPAddress = addr.IP.String()
		info.LastSeen = time.Now().Unix()

		d.mu.Lock()
		_, known := d.devices[info.DeviceID]
		d.devices[info.DeviceID] = syncpkg.DiscoveredDevice{
			DeviceInfo:   info,
			IsReachable:  true,
			DiscoveredAt: time.Now(),
		}
		d.mu.Unlock()

		if !known {
			logger.Log.Info("Discovered device",
				zap.String("device_id", info.DeviceID),
				zap.String("name", info.DeviceName),
				zap.String("addr", addr.String()),
			)
		}
	}
}

func (d *UDPDiscovery) announce() {
	defer d.wg.Done()

	ticker := time.NewTicker(announceInterval)
	defer ticker.Stop()

	d.broadcast()
	for {
		select {
		case <-ticker.C:
			d.broadcast()
		case <-d.stop:
			return
		}
	}
}

func (d *UDPDiscovery) broadcast() {
	payload, err := json.Marshal(d.self)
	if err != nil {
		logger.Log.Error("Failed to encode announcement", zap.Error(err))
		return
	}

	addr := &net.UDPAddr{IP: net.IPv4bcast, Port: d.port}
	if _, err := d.conn.WriteToUDP(payload, addr); err != nil {
		logger.Log.Warn("Failed to broadcast announcement", zap.Error(err))
	}
}
