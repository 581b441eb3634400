package census

import "time"

// RunStatus is the status reported by Census for a sync run
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusWorking   RunStatus = "working"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusSkipped   RunStatus = "skipped"
)

// IsTerminal reports whether a run in this status will not change again
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusSkipped:
		return true
	}
	return false
}

// SyncRun represents one execution of a Census sync
type SyncRun struct {
	ID                     int64      `json:"id"`
	SyncID                 int64      `json:"sync_id"`
	Status                 RunStatus  `json:"status"`
	Canceled               bool       `json:"canceled"`
	FullSync               bool       `json:"full_sync"`
	SourceRecordCount      int64      `json:"source_record_count"`
	RecordsProcessed       int64      `json:"records_processed"`
	RecordsUpdated         int64      `json:"records_updated"`
	RecordsFailed          int64      `json:"records_failed"`
	RecordsInvalid         int64      `json:"records_invalid"`
	ErrorCode              string     `json:"error_code,omitempty"`
	ErrorMessage           string     `json:"error_message,omitempty"`
	ErrorDetail            string     `json:"error_detail,omitempty"`
	CreatedAt              *time.Time `json:"created_at,omitempty"`
	UpdatedAt              *time.Time `json:"updated_at,omitempty"`
	CompletedAt            *time.Time `json:"completed_at,omitempty"`
	ScheduledExecutionTime *time.Time `json:"scheduled_execution_time,omitempty"`
}

// EffectiveStatus returns the run status, treating a canceled run as cancelled
// regardless of the status string Census reports for it.
func (r *SyncRun) EffectiveStatus() RunStatus {
	if r.Canceled {
		return RunStatusCancelled
	}
	return r.Status
}

// Sync represents a configured Census sync
type Sync struct {
	ID                int64      `json:"id"`
	Label             string     `json:"label"`
	Paused            bool       `json:"paused"`
	ScheduleFrequency string     `json:"schedule_frequency"`
	Operation         string     `json:"operation"`
	CreatedAt         *time.Time `json:"created_at,omitempty"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

// TriggerResult is the payload returned when a sync run is triggered
type TriggerResult struct {
	SyncRunID int64 `json:"sync_run_id"`
}

// triggerRequest is the optional body of a trigger call
type triggerRequest struct {
	ForceFullSync bool `json:"force_full_sync"`
}

// envelope wraps every Census API response
type envelope[T any] struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}
