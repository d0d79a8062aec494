package remote

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ireadorg/readsync/internal/logger"
)

type progressSyncer interface {
	SyncProgress(ctx context.Context, progress ReadingProgress) error
}

// Debouncer coalesces bursts of local progress writes: each ScheduleSync
// supersedes any unfired previous call, so only the most recent record
// inside the quiet window is ever sent. The slot is deliberately global to
// the scheduler rather than keyed per book, matching how reader updates
// arrive (one active book at a time).
type Debouncer struct {
	gateway progressSyncer
	quiet   time.Duration

	mu       sync.Mutex
	pending  *ReadingProgress
	timer    *time.Timer
	inflight chan struct{}
}

func NewDebouncer(gateway progressSyncer, quiet time.Duration) *Debouncer {
	if quiet <= 0 {
		quiet = 2 * time.Second
	}
	return &Debouncer{gateway: gateway, quiet: quiet}
}

// ScheduleSync replaces any pending task and arms a fresh quiet-period
// timer for this record.
func (d *Debouncer) ScheduleSync(progress ReadingProgress) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = &progress
	d.timer = time.AfterFunc(d.quiet, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	progress := d.pending
	d.pending = nil
	d.timer = nil
	if progress == nil {
		d.mu.Unlock()
		return
	}
	done := make(chan struct{})
	d.inflight = done
	d.mu.Unlock()

	if err := d.gateway.SyncProgress(context.Background(), *progress); err != nil {
		logger.Log.Warn("debounced progress sync failed",
			zap.String("book_id", progress.BookID),
			zap.Error(err),
		)
	}

	d.mu.Lock()
	if d.inflight == done {
		d.inflight = nil
	}
	d.mu.Unlock()
	close(done)
}

// FlushPending runs a not-yet-fired task immediately, or waits for an
// in-flight one to finish. It never schedules new work.
func (d *Debouncer) FlushPending(ctx context.Context) error {
	d.mu.Lock()
	if d.timer != nil && d.timer.Stop() {
		progress := d.pending
		d.pending = nil
		d.timer = nil
		d.mu.Unlock()
		if progress == nil {
			return nil
		}
		return d.gateway.SyncProgress(ctx, *progress)
	}
	done := d.inflight
	d.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel aborts a pending task with no side effect.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
}
