package remote

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSyncer struct {
	mu     sync.Mutex
	synced []ReadingProgress
	err    error
}

func (r *recordingSyncer) SyncProgress(ctx context.Context, progress ReadingProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.synced = append(r.synced, progress)
	return nil
}

func (r *recordingSyncer) records() []ReadingProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ReadingProgress, len(r.synced))
	copy(out, r.synced)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestDebounceFiresAfterQuietPeriod(t *testing.T) {
	syncer := &recordingSyncer{}
	d := NewDebouncer(syncer, 20*time.Millisecond)

	d.ScheduleSync(ReadingProgress{UserID: "u", BookID: "b", ChapterIndex: 1})

	waitFor(t, func() bool { return len(syncer.records()) == 1 })
}

func TestDebounceLaterCallSupersedesEarlier(t *testing.T) {
	syncer := &recordingSyncer{}
	d := NewDebouncer(syncer, 50*time.Millisecond)

	d.ScheduleSync(ReadingProgress{UserID: "u", BookID: "b", ChapterIndex: 1})
	time.Sleep(10 * time.Millisecond)
	d.ScheduleSync(ReadingProgress{UserID: "u", BookID: "b", ChapterIndex: 2})

	waitFor(t, func() bool { return len(syncer.records()) >= 1 })

	records := syncer.records()
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].ChapterIndex)
}

func TestDebounceCancelDropsPending(t *testing.T) {
	syncer := &recordingSyncer{}
	d := NewDebouncer(syncer, 20*time.Millisecond)

	d.ScheduleSync(ReadingProgress{UserID: "u", BookID: "b"})
	d.Cancel()

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, syncer.records())
}

func TestFlushPendingRunsImmediately(t *testing.T) {
	syncer := &recordingSyncer{}
	d := NewDebouncer(syncer, time.Hour)

	d.ScheduleSync(ReadingProgress{UserID: "u", BookID: "b", ChapterIndex: 7})

	err := d.FlushPending(context.Background())
	require.NoError(t, err)

	records := syncer.records()
	require.Len(t, records, 1)
	assert.Equal(t, 7, records[0].ChapterIndex)
}

func TestFlushPendingNoWork(t *testing.T) {
	d := NewDebouncer(&recordingSyncer{}, time.Hour)
	assert.NoError(t, d.FlushPending(context.Background()))
}
