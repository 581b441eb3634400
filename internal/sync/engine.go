package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gobeyondidentity/census-sync/internal/census"
	"github.com/gobeyondidentity/census-sync/internal/config"
)

// Engine triggers Census sync runs and waits for them to finish
type Engine struct {
	client     CensusClient
	config     *config.Config
	logger     *logrus.Logger
	retryDelay time.Duration
}

// TriggerOptions controls a single trigger-and-wait operation
type TriggerOptions struct {
	ForceFullSync bool
	Wait          WaitOptions
}

// RunResult describes one triggered sync run
type RunResult struct {
	SyncID   int64
	RunID    int64
	Run      *census.SyncRun
	Duration time.Duration
	DryRun   bool
}

// SyncResult contains the results of running every configured sync
type SyncResult struct {
	SyncsTriggered   int
	RunsCompleted    int
	RunsFailed       int
	RunsTimedOut     int
	RecordsProcessed int64
	Runs             []*RunResult
	Errors           []error
}

// Err combines the per-sync errors into one, or returns nil if there were none
func (r *SyncResult) Err() error {
	var merr *multierror.Error
	for _, err := range r.Errors {
		merr = multierror.Append(merr, err)
	}
	return merr.ErrorOrNil()
}

// NewEngine creates a new sync engine
func NewEngine(client CensusClient, cfg *config.Config, logger *logrus.Logger) *Engine {
	return &Engine{
		client:     client,
		config:     cfg,
		logger:     logger,
		retryDelay: time.Duration(cfg.Sync.RetryDelaySeconds) * time.Second,
	}
}

// TriggerSync starts a run of the given sync and returns the new run id.
// In test mode nothing is sent to Census and the returned run id is 0.
func (e *Engine) TriggerSync(ctx context.Context, syncID int64, forceFullSync bool) (int64, error) {
	if e.config.App.TestMode {
		e.logger.Infof("TEST MODE: Would trigger Census sync run for sync with ID %d (full sync: %t)", syncID, forceFullSync)
		return 0, nil
	}

	e.logger.Infof("Triggering Census sync run for sync with ID %d", syncID)

	result, err := e.client.TriggerSyncRun(ctx, syncID, forceFullSync)
	if err != nil {
		return 0, fmt.Errorf("%w: sync %d: %s: %w", ErrSyncTriggerFailed, syncID, census.UserMessage(err), err)
	}

	e.logger.WithFields(logrus.Fields{
		"sync_id": syncID,
		"run_id":  result.SyncRunID,
	}).Infof("Census sync run successfully triggered. You can view the status of this sync run at %s", census.SyncHistoryURL(syncID))

	return result.SyncRunID, nil
}

// GetSyncRunInfo retrieves the details of a sync run. Transient failures,
// including client-side request timeouts, are retried sync.retry_attempts
// times, sync.retry_delay_seconds apart, for as long as ctx is live.
func (e *Engine) GetSyncRunInfo(ctx context.Context, runID int64) (*census.SyncRun, error) {
	var lastErr error
	for attempt := 0; attempt <= e.config.Sync.RetryAttempts; attempt++ {
		if attempt > 0 {
			e.logger.Warnf("Retrying sync run info for run %d in %v (attempt %d/%d): %v",
				runID, e.retryDelay, attempt, e.config.Sync.RetryAttempts, lastErr)
			if err := sleepContext(ctx, e.retryDelay); err != nil {
				return nil, err
			}
		}

		run, err := e.client.GetSyncRun(ctx, runID)
		if err == nil {
			return run, nil
		}

		lastErr = err
		if !census.IsTransient(err) || ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("%w: run %d: %w", ErrGetSyncRunInfoFailed, runID, lastErr)
}

// GetSyncInfo retrieves the configuration of a sync
func (e *Engine) GetSyncInfo(ctx context.Context, syncID int64) (*census.Sync, error) {
	sync, err := e.client.GetSync(ctx, syncID)
	if err != nil {
		return nil, fmt.Errorf("%w: sync %d: %w", ErrGetSyncInfoFailed, syncID, err)
	}
	return sync, nil
}

// TriggerAndWait triggers a sync run and waits for it to reach a terminal status
func (e *Engine) TriggerAndWait(ctx context.Context, syncID int64, opts TriggerOptions) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{SyncID: syncID}

	runID, err := e.TriggerSync(ctx, syncID, opts.ForceFullSync)
	if err != nil {
		return result, err
	}
	result.RunID = runID

	if e.config.App.TestMode {
		result.DryRun = true
		result.Duration = time.Since(start)
		return result, nil
	}

	run, err := e.WaitForCompletion(ctx, runID, opts.Wait)
	result.Run = run
	result.Duration = time.Since(start)
	return result, err
}

// Sync triggers every configured sync and waits for each run to finish.
// Per-sync failures are collected in the result; the returned error is only
// set when nothing could be attempted.
func (e *Engine) Sync(ctx context.Context) (*SyncResult, error) {
	syncIDs := e.config.Sync.SyncIDs
	if len(syncIDs) == 0 {
		return nil, ErrNoSyncsConfigured
	}

	e.logger.Infof("Starting sync runs for %d syncs...", len(syncIDs))

	opts := TriggerOptions{
		ForceFullSync: e.config.Sync.ForceFullSync,
		Wait:          e.DefaultWaitOptions(),
	}

	runs := make([]*RunResult, len(syncIDs))
	errs := make([]error, len(syncIDs))

	var g errgroup.Group
	g.SetLimit(max(e.config.Sync.Concurrency, 1))
	for i, syncID := range syncIDs {
		g.Go(func() error {
			runs[i], errs[i] = e.TriggerAndWait(ctx, syncID, opts)
			return nil
		})
	}
	_ = g.Wait()

	result := &SyncResult{}
	for i, run := range runs {
		result.Runs = append(result.Runs, run)
		if run.RunID != 0 || run.DryRun {
			result.SyncsTriggered++
		}

		err := errs[i]
		switch {
		case err == nil:
			if !run.DryRun {
				result.RunsCompleted++
			}
		case isRunFailure(err):
			result.RunsFailed++
		case isTimeout(err):
			result.RunsTimedOut++
		}
		if err != nil {
			e.logger.Errorf("Sync %d failed: %v", run.SyncID, err)
			result.Errors = append(result.Errors, fmt.Errorf("sync %d: %w", run.SyncID, err))
		}

		if run.Run != nil {
			result.RecordsProcessed += run.Run.RecordsProcessed
		}
	}

	e.logger.Infof("Sync runs finished. Triggered: %d, Completed: %d, Failed: %d, Timed out: %d, Records processed: %d, Errors: %d",
		result.SyncsTriggered, result.RunsCompleted, result.RunsFailed, result.RunsTimedOut,
		result.RecordsProcessed, len(result.Errors))

	return result, ctx.Err()
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
