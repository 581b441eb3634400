package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gobeyondidentity/census-sync/internal/census"
)

const defaultPollInterval = 10 * time.Second

// WaitOptions bounds how long WaitForCompletion polls a run.
// Zero MaxWait or MaxAttempts means no limit on that axis.
type WaitOptions struct {
	MaxWait      time.Duration
	PollInterval time.Duration
	MaxAttempts  int
}

// DefaultWaitOptions returns the wait limits from the sync configuration
func (e *Engine) DefaultWaitOptions() WaitOptions {
	return WaitOptions{
		MaxWait:      time.Duration(e.config.Sync.MaxWaitSeconds) * time.Second,
		PollInterval: time.Duration(e.config.Sync.PollFrequencySeconds) * time.Second,
		MaxAttempts:  e.config.Sync.MaxPollAttempts,
	}
}

// WaitForCompletion polls a sync run until it reaches a terminal status.
// A completed or skipped run is returned with a nil error. Failed and
// cancelled runs are returned together with ErrSyncRunFailed or
// ErrSyncRunCancelled so callers can still inspect them.
func (e *Engine) WaitForCompletion(ctx context.Context, runID int64, opts WaitOptions) (*census.SyncRun, error) {
	start := time.Now()

	// Bounds status requests and their retries as well as the sleeps between polls
	pollCtx := ctx
	if opts.MaxWait > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, opts.MaxWait)
		defer cancel()
	}

	var last *census.SyncRun
	for attempt := 1; ; attempt++ {
		run, err := e.GetSyncRunInfo(pollCtx, runID)
		if err != nil {
			if waitExpired(ctx, pollCtx) {
				return last, maxWaitExceeded(opts.MaxWait, runID)
			}
			return nil, err
		}
		last = run

		status := run.EffectiveStatus()
		switch status {
		case census.RunStatusCompleted, census.RunStatusSkipped:
			e.logger.Infof("Census sync run with ID %d finished with status %s after %v", runID, status, time.Since(start).Round(time.Second))
			return run, nil
		case census.RunStatusFailed:
			return run, fmt.Errorf("%w: run %d: %s", ErrSyncRunFailed, runID, failureMessage(run))
		case census.RunStatusCancelled:
			return run, fmt.Errorf("%w: run %d", ErrSyncRunCancelled, runID)
		}

		if opts.MaxAttempts > 0 && attempt >= opts.MaxAttempts {
			return run, fmt.Errorf("%w: max poll attempts of %d exceeded while waiting for sync run with ID %d",
				ErrSyncRunTimeout, opts.MaxAttempts, runID)
		}

		interval := opts.PollInterval
		if interval <= 0 {
			interval = defaultPollInterval
		}
		if opts.MaxWait > 0 {
			remaining := opts.MaxWait - time.Since(start)
			if remaining <= 0 {
				return run, maxWaitExceeded(opts.MaxWait, runID)
			}
			if interval > remaining {
				interval = remaining
			}
		}

		e.logger.Infof("Census sync run with ID %d has status %s. Waiting for %v.", runID, displayStatus(status), interval)
		if err := sleepContext(pollCtx, interval); err != nil {
			if waitExpired(ctx, pollCtx) {
				return run, maxWaitExceeded(opts.MaxWait, runID)
			}
			return run, err
		}
	}
}

// waitExpired reports whether pollCtx ended because of the wait bound rather
// than the caller's context
func waitExpired(ctx, pollCtx context.Context) bool {
	return ctx.Err() == nil && pollCtx.Err() != nil
}

func maxWaitExceeded(maxWait time.Duration, runID int64) error {
	return fmt.Errorf("%w: max wait time of %v exceeded while waiting for sync run with ID %d",
		ErrSyncRunTimeout, maxWait, runID)
}

func failureMessage(run *census.SyncRun) string {
	switch {
	case run.ErrorMessage != "" && run.ErrorDetail != "":
		return run.ErrorMessage + ": " + run.ErrorDetail
	case run.ErrorMessage != "":
		return run.ErrorMessage
	case run.ErrorCode != "":
		return run.ErrorCode
	}
	return "no error message reported"
}

func displayStatus(status census.RunStatus) string {
	if status == "" {
		return "unknown"
	}
	return string(status)
}

func isRunFailure(err error) bool {
	return errors.Is(err, ErrSyncRunFailed) || errors.Is(err, ErrSyncRunCancelled)
}

func isTimeout(err error) bool {
	return errors.Is(err, ErrSyncRunTimeout)
}
