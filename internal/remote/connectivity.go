package remote

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ireadorg/readsync/internal/logger"
)

// ConnectivityMonitor is the platform reachability signal consumed by the
// gate. Start yields a live boolean stream; Stop ends it.
type ConnectivityMonitor interface {
	Start() (<-chan bool, error)
	Stop()
}

type queueFlusher interface {
	ProcessPendingQueue(ctx context.Context) int
}

// ConnectivityGate watches the connectivity stream and flushes the pending
// queue exactly once per disconnect-to-reconnect transition. Flush errors
// are swallowed: the queue keeps whatever failed and the next edge retries.
type ConnectivityGate struct {
	monitor ConnectivityMonitor
	gateway queueFlusher

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewConnectivityGate(monitor ConnectivityMonitor, gateway queueFlusher) *ConnectivityGate {
	return &ConnectivityGate{monitor: monitor, gateway: gateway}
}

// Start begins observing. Calling it twice is a no-op.
func (g *ConnectivityGate) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.started {
		return nil
	}

	stream, err := g.monitor.Start()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.done = make(chan struct{})
	g.started = true

	go g.observe(ctx, stream)
	return nil
}

func (g *ConnectivityGate) observe(ctx context.Context, stream <-chan bool) {
	defer close(g.done)

	wasConnected := false
	for {
		select {
		case <-ctx.Done():
			return
		case isConnected, ok := <-stream:
			if !ok {
				return
			}
			if isConnected && !wasConnected {
				logger.Log.Info("connectivity restored, flushing pending queue")
				synced := g.gateway.ProcessPendingQueue(ctx)
				logger.Log.Debug("reconnect flush finished", zap.Int("synced", synced))
			}
			wasConnected = isConnected
		}
	}
}

// Stop cancels the observation task. Idempotent.
func (g *ConnectivityGate) Stop() {
	g.mu.Lock()
	if !g.started {
		g.mu.Unlock()
		return
	}
	g.started = false
	cancel := g.cancel
	done := g.done
	g.mu.Unlock()

	cancel()
	g.monitor.Stop()
	<-done
}
