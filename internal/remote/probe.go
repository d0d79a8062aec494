package remote

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// ProbeMonitor reports backend reachability by polling the base URL. Each
// tick emits the current state; the gate downstream reduces the stream to
// reconnect edges, so repeated values are fine.
type ProbeMonitor struct {
	url      string
	interval time.Duration
	client   *http.Client

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
}

func NewProbeMonitor(baseURL string, interval time.Duration) *ProbeMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ProbeMonitor{
		url:      baseURL,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (m *ProbeMonitor) Start() (<-chan bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.started = true

	stream := make(chan bool, 1)
	go m.poll(ctx, stream)
	return stream, nil
}

func (m *ProbeMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return
	}
	m.started = false
	m.cancel()
}

func (m *ProbeMonitor) poll(ctx context.Context, stream chan<- bool) {
	defer close(stream)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		state := m.probe(ctx)
		select {
		case stream <- state:
		case <-ctx.Done():
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (m *ProbeMonitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.url, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	// Any HTTP response means the network path is up.
	return true
}
