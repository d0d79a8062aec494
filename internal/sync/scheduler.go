package sync

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ireadorg/readsync/internal/config"
	"github.com/ireadorg/readsync/internal/logger"
)

type pendingFlusher interface {
	FlushPending(ctx context.Context) error
}

type queueProcessor interface {
	ProcessPendingQueue(ctx context.Context) int
	PendingCount() int
}

// Scheduler periodically pushes out deferred remote work: a debounced
// progress write that has not fired yet, then anything sitting in the
// offline queue. Runs are skipped while a peer session is active.
type Scheduler struct {
	cfg       config.SchedulerConfig
	manager   *Manager
	debouncer pendingFlusher
	gateway   queueProcessor
	cron      *cron.Cron
	entryID   cron.EntryID
}

func NewScheduler(cfg config.SchedulerConfig, manager *Manager, debouncer pendingFlusher, gateway queueProcessor) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		manager:   manager,
		debouncer: debouncer,
		gateway:   gateway,
		cron:      cron.New(),
	}
}

func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		logger.Log.Info("Scheduler is disabled")
		return
	}

	logger.Log.Info("Starting scheduler", zap.String("interval", s.cfg.Interval))

	id, err := s.cron.AddFunc(s.cfg.Interval, func() {
		s.flush()
	})

	if err != nil {
		logger.Log.Error("Failed to schedule job", zap.Error(err))
		return
	}

	s.entryID = id
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	logger.Log.Info("Stopped scheduler")
}

func (s *Scheduler) flush() {
	if s.manager.Syncing() {
		logger.Log.Info("Sync session active, skipping scheduled flush")
		return
	}

	ctx := context.Background()

	if err := s.debouncer.FlushPending(ctx); err != nil {
		logger.Log.Warn("Scheduled debounce flush failed", zap.Error(err))
	}

	if s.gateway.PendingCount() > 0 {
		sent := s.gateway.ProcessPendingQueue(ctx)
		logger.Log.Info("Flushed offline queue", zap.Int("sent", sent))
	}
}
