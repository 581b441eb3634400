package census

import "fmt"

// Census REST API endpoints. Paths are relative to the client base URL.
const (
	DefaultBaseURL = "https://app.getcensus.com"

	SyncAPISync    = "/api/v1/syncs/%d"
	SyncAPITrigger = "/api/v1/syncs/%d/trigger"
	SyncRunAPIRun  = "/api/v1/sync_runs/%d"

	syncHistoryURL = DefaultBaseURL + "/sync/%d/sync-history"
)

// SyncHistoryURL returns the Census UI page listing the runs of a sync.
func SyncHistoryURL(syncID int64) string {
	return fmt.Sprintf(syncHistoryURL, syncID)
}
