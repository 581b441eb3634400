package sync

import (
	"context"

	"github.com/gobeyondidentity/census-sync/internal/census"
)

// CensusClient interface for Census API operations
type CensusClient interface {
	TriggerSyncRun(ctx context.Context, syncID int64, forceFullSync bool) (*census.TriggerResult, error)
	GetSyncRun(ctx context.Context, runID int64) (*census.SyncRun, error)
	GetSync(ctx context.Context, syncID int64) (*census.Sync, error)
}
