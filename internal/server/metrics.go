package server

import (
	"errors"
	"sync"
	"time"

	syncengine "github.com/gobeyondidentity/census-sync/internal/sync"
)

// Metrics collects and tracks sync run metrics
type Metrics struct {
	mu                    sync.RWMutex
	totalSyncs            int
	successfulSyncs       int
	failedSyncs           int
	totalRunsTriggered    int
	totalRunsCompleted    int
	totalRunsFailed       int
	totalRunsTimedOut     int
	totalRecordsProcessed int64
	lastSyncDuration      time.Duration
	averageSyncDuration   time.Duration
	lastSyncTime          *time.Time
	lastError             error
	uptime                time.Time
}

// MetricsStats represents the current metrics statistics
type MetricsStats struct {
	TotalSyncs            int           `json:"total_syncs"`
	SuccessfulSyncs       int           `json:"successful_syncs"`
	FailedSyncs           int           `json:"failed_syncs"`
	SuccessRate           float64       `json:"success_rate"`
	TotalRunsTriggered    int           `json:"total_runs_triggered"`
	TotalRunsCompleted    int           `json:"total_runs_completed"`
	TotalRunsFailed       int           `json:"total_runs_failed"`
	TotalRunsTimedOut     int           `json:"total_runs_timed_out"`
	TotalRecordsProcessed int64         `json:"total_records_processed"`
	LastSyncDuration      time.Duration `json:"last_sync_duration"`
	AverageSyncDuration   time.Duration `json:"average_sync_duration"`
	LastSyncTime          *time.Time    `json:"last_sync_time"`
	LastError             string        `json:"last_error,omitempty"`
	Uptime                time.Duration `json:"uptime"`
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		uptime: time.Now(),
	}
}

// RecordSync records a batch run of all configured syncs
func (m *Metrics) RecordSync(result *syncengine.SyncResult, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalSyncs++
	if len(result.Errors) == 0 {
		m.successfulSyncs++
		m.lastError = nil
	} else {
		m.failedSyncs++
		m.lastError = result.Errors[0] // Store first error
	}

	m.totalRunsTriggered += result.SyncsTriggered
	m.totalRunsCompleted += result.RunsCompleted
	m.totalRunsFailed += result.RunsFailed
	m.totalRunsTimedOut += result.RunsTimedOut
	m.totalRecordsProcessed += result.RecordsProcessed

	m.recordDuration(duration)
}

// RecordFailedSync records a batch that could not run at all
func (m *Metrics) RecordFailedSync(err error, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalSyncs++
	m.failedSyncs++
	m.lastError = err

	m.recordDuration(duration)
}

// RecordRun records a single sync run triggered outside a batch
func (m *Metrics) RecordRun(result *syncengine.RunResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if result != nil && result.RunID != 0 {
		m.totalRunsTriggered++
	}
	m.recordOutcome(result, err)
}

// RecordWait records the outcome of waiting on a run triggered elsewhere
func (m *Metrics) RecordWait(result *syncengine.RunResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recordOutcome(result, err)
}

// recordOutcome counts how a run finished; callers hold the lock
func (m *Metrics) recordOutcome(result *syncengine.RunResult, err error) {
	switch {
	case err == nil:
		if result != nil && result.Run != nil {
			m.totalRunsCompleted++
			m.totalRecordsProcessed += result.Run.RecordsProcessed
		}
	case errors.Is(err, syncengine.ErrSyncRunFailed), errors.Is(err, syncengine.ErrSyncRunCancelled):
		m.totalRunsFailed++
	case errors.Is(err, syncengine.ErrSyncRunTimeout):
		m.totalRunsTimedOut++
	}

	if err != nil {
		m.lastError = err
	}
}

// recordDuration updates the duration statistics; callers hold the lock
func (m *Metrics) recordDuration(duration time.Duration) {
	m.lastSyncDuration = duration

	totalDuration := time.Duration(int64(m.averageSyncDuration) * int64(m.totalSyncs-1))
	m.averageSyncDuration = (totalDuration + duration) / time.Duration(m.totalSyncs)

	now := time.Now()
	m.lastSyncTime = &now
}

// GetStats returns the current metrics statistics
func (m *Metrics) GetStats() *MetricsStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var successRate float64
	if m.totalSyncs > 0 {
		successRate = float64(m.successfulSyncs) / float64(m.totalSyncs) * 100
	}

	var lastErrorStr string
	if m.lastError != nil {
		lastErrorStr = m.lastError.Error()
	}

	return &MetricsStats{
		TotalSyncs:            m.totalSyncs,
		SuccessfulSyncs:       m.successfulSyncs,
		FailedSyncs:           m.failedSyncs,
		SuccessRate:           successRate,
		TotalRunsTriggered:    m.totalRunsTriggered,
		TotalRunsCompleted:    m.totalRunsCompleted,
		TotalRunsFailed:       m.totalRunsFailed,
		TotalRunsTimedOut:     m.totalRunsTimedOut,
		TotalRecordsProcessed: m.totalRecordsProcessed,
		LastSyncDuration:      m.lastSyncDuration,
		AverageSyncDuration:   m.averageSyncDuration,
		LastSyncTime:          m.lastSyncTime,
		LastError:             lastErrorStr,
		Uptime:                time.Since(m.uptime),
	}
}

// Reset resets all metrics
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalSyncs = 0
	m.successfulSyncs = 0
	m.failedSyncs = 0
	m.totalRunsTriggered = 0
	m.totalRunsCompleted = 0
	m.totalRunsFailed = 0
	m.totalRunsTimedOut = 0
	m.totalRecordsProcessed = 0
	m.lastSyncDuration = 0
	m.averageSyncDuration = 0
	m.lastSyncTime = nil
	m.lastError = nil
	m.uptime = time.Now()
}
