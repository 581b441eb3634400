package sync

import "errors"

var (
	// ErrSyncTriggerFailed is returned when Census refuses to start a sync run
	ErrSyncTriggerFailed = errors.New("census sync trigger failed")

	// ErrGetSyncRunInfoFailed is returned when sync run details cannot be retrieved
	ErrGetSyncRunInfoFailed = errors.New("failed to get census sync run info")

	// ErrGetSyncInfoFailed is returned when sync details cannot be retrieved
	ErrGetSyncInfoFailed = errors.New("failed to get census sync info")

	// ErrSyncRunFailed is returned when a sync run finishes in the failed state
	ErrSyncRunFailed = errors.New("census sync run failed")

	// ErrSyncRunCancelled is returned when a sync run is cancelled before finishing
	ErrSyncRunCancelled = errors.New("census sync run cancelled")

	// ErrSyncRunTimeout is returned when a sync run does not finish within the wait limits
	ErrSyncRunTimeout = errors.New("census sync run timed out")

	// ErrNoSyncsConfigured is returned by Sync when sync.sync_ids is empty
	ErrNoSyncsConfigured = errors.New("no sync ids configured")
)
