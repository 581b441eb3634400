package server

import (
	"context"

	"github.com/gobeyondidentity/census-sync/internal/census"
	syncengine "github.com/gobeyondidentity/census-sync/internal/sync"
)

// SyncEngine interface for sync operations
type SyncEngine interface {
	Sync(ctx context.Context) (*syncengine.SyncResult, error)
	TriggerSync(ctx context.Context, syncID int64, forceFullSync bool) (int64, error)
	TriggerAndWait(ctx context.Context, syncID int64, opts syncengine.TriggerOptions) (*syncengine.RunResult, error)
	WaitForCompletion(ctx context.Context, runID int64, opts syncengine.WaitOptions) (*census.SyncRun, error)
	GetSyncRunInfo(ctx context.Context, runID int64) (*census.SyncRun, error)
	GetSyncInfo(ctx context.Context, syncID int64) (*census.Sync, error)
	DefaultWaitOptions() syncengine.WaitOptions
}
