package sync

import (
	"context"
)

// Transfer is one established connection to a peer device. Implementations
// live in the transport package; the session only drives the protocol order:
// hello, manifests, then item exchange.
type Transfer interface {
	// Handshake sends our hello and returns the peer's.
	Handshake(ctx context.Context, hello Hello) (Hello, error)

	// ExchangeManifests sends the local manifest and returns the remote one.
	ExchangeManifests(ctx context.Context, local SyncManifest) (SyncManifest, error)

	// FetchItems retrieves full payloads for the given item IDs from the peer.
	FetchItems(ctx context.Context, itemIDs []string) ([]SyncItem, error)

	// PushItems sends full items for the peer to apply.
	PushItems(ctx context.Context, items []SyncItem) error

	Close() error
}

// Dialer opens a Transfer to a discovered device.
type Dialer interface {
	Dial(ctx context.Context, device DeviceInfo) (Transfer, error)
}

// Discovery tracks peer devices announcing themselves on the local network.
type Discovery interface {
	Start(self DeviceInfo) error
	Stop()
	Devices() []DiscoveredDevice
	Find(deviceID string) (*DiscoveredDevice, bool)
}
