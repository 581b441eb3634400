package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler handles scheduled sync operations
type Scheduler struct {
	cron       *cron.Cron
	schedule   string
	syncEngine SyncEngine
	logger     *logrus.Logger
	metrics    *Metrics
	mu         sync.RWMutex
	running    bool
	entryID    cron.EntryID
	cancel     context.CancelFunc
	ctx        context.Context
	lastSync   *time.Time
	nextSync   *time.Time
}

// NewScheduler creates a new scheduler
func NewScheduler(schedule string, syncEngine SyncEngine, logger *logrus.Logger, metrics *Metrics) *Scheduler {
	// Overlapping runs of the same batch would trigger every sync twice
	c := cron.New(
		cron.WithLogger(cron.VerbosePrintfLogger(logger)),
		cron.WithChain(cron.SkipIfStillRunning(cron.VerbosePrintfLogger(logger))),
	)

	return &Scheduler{
		cron:       c,
		schedule:   schedule,
		syncEngine: syncEngine,
		logger:     logger,
		metrics:    metrics,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	entryID, err := s.cron.AddFunc(s.schedule, s.runSync)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.entryID = entryID
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.cron.Start()
	s.running = true

	nextTime := s.cron.Entry(entryID).Next
	s.nextSync = &nextTime

	s.logger.Infof("Scheduler started with schedule '%s' (entry ID: %d)", s.schedule, entryID)
	s.logger.Infof("Next sync scheduled for: %s", s.nextSync.Format(time.RFC3339))

	return nil
}

// Stop stops the scheduler, cancelling any sync run wait in progress
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.cron.Remove(s.entryID)
	s.running = false
	s.nextSync = nil
	s.mu.Unlock()

	// runSync takes the lock, so wait for it outside
	ctx := s.cron.Stop()
	<-ctx.Done()

	s.logger.Info("Scheduler stopped")
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// GetLastSync returns the time of the last sync operation
func (s *Scheduler) GetLastSync() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// GetNextSync returns the time of the next scheduled sync
func (s *Scheduler) GetNextSync() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.running {
		return nil
	}

	if entry := s.cron.Entry(s.entryID); entry.Valid() {
		nextTime := entry.Next
		return &nextTime
	}

	return s.nextSync
}

// runSync executes a sync operation (called by cron)
func (s *Scheduler) runSync() {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	s.logger.Info("Starting scheduled sync operation")

	startTime := time.Now()
	result, err := s.syncEngine.Sync(ctx)
	duration := time.Since(startTime)

	s.mu.Lock()
	s.lastSync = &startTime
	if entry := s.cron.Entry(s.entryID); entry.Valid() {
		nextTime := entry.Next
		s.nextSync = &nextTime
	}
	s.mu.Unlock()

	if err != nil && result == nil {
		s.logger.Errorf("Scheduled sync failed: %v", err)
		s.metrics.RecordFailedSync(err, duration)
		return
	}

	s.metrics.RecordSync(result, duration)
	if len(result.Errors) > 0 {
		s.logger.Warnf("Scheduled sync completed with %d errors in %v", len(result.Errors), duration)
	} else {
		s.logger.Infof("Scheduled sync completed successfully in %v", duration)
	}
}
