package setup

import (
	"fmt"
	"os"
	"path/filepath"
)

// GenerateDocumentation creates setup documentation files
func GenerateDocumentation(outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := generateSetupGuide(filepath.Join(outputDir, "SETUP.md")); err != nil {
		return err
	}

	if err := generateAPIGuide(filepath.Join(outputDir, "API.md")); err != nil {
		return err
	}

	if err := generateTroubleshootingGuide(filepath.Join(outputDir, "TROUBLESHOOTING.md")); err != nil {
		return err
	}

	fmt.Printf("✅ Documentation generated in %s\n", outputDir)
	return nil
}

func generateSetupGuide(path string) error {
	content := `# Census Sync Setup Guide

## Quick Start

### 1. Run the Setup Wizard
The easiest way to get started is using the interactive setup wizard:

` + "```bash" + `
./census-sync setup wizard
` + "```" + `

This will guide you through:
- Application configuration (log level, test mode)
- Census credentials (API key, optional keyring storage)
- Sync settings (sync ids, wait and polling limits)
- Server mode settings (port, scheduling)

### 2. Validate Setup
Test your configuration and Census connectivity:

` + "```bash" + `
./census-sync setup validate
` + "```" + `

### 3. Trigger Your First Sync Run
Trigger one sync and wait for it to finish:

` + "```bash" + `
./census-sync trigger --sync-id 42 --wait
` + "```" + `

Or run every configured sync:

` + "```bash" + `
./census-sync run
` + "```" + `

### 4. Start Server Mode (Optional)
For scheduled runs and an HTTP API:

` + "```bash" + `
./census-sync server
` + "```" + `

## Manual Configuration

If you prefer to create the configuration manually, create a ` + "`config.yaml`" + ` file:

` + "```yaml" + `
# Application settings
app:
  log_level: "info"
  test_mode: true

# Census credentials. Use either api_key or credentials_name.
census:
  api_key: "${CENSUS_API_KEY}"
  # credentials_name: "production"
  base_url: "https://app.getcensus.com"
  timeout_seconds: 30
  requests_per_second: 0  # 0 = unlimited
  max_retries: 3          # retries on HTTP 429, 0 = none

# Sync run settings
sync:
  sync_ids:
    - 42
    - 43
  force_full_sync: false
  max_wait_seconds: 900   # 0 = no limit
  poll_frequency_seconds: 10
  max_poll_attempts: 0    # 0 = bounded by max_wait_seconds only
  retry_attempts: 3       # 0 = no retries
  retry_delay_seconds: 10
  concurrency: 1

# Server mode settings
server:
  port: 8080
  schedule_enabled: false
  schedule: "0 */6 * * *"
` + "```" + `

Environment variables in the form ` + "`${NAME}`" + ` are expanded when the file is loaded.

## Prerequisites

### Census API Key

1. **Open Census**
   - Log into [Census](https://app.getcensus.com)
   - Open the workspace that owns your syncs

2. **Create an API Key**
   - Navigate to Workspace Settings > API Access
   - Copy the workspace API key (it starts with ` + "`secret-token:`" + `)

3. **Find Your Sync IDs**
   - Open a sync in Census
   - The id is the number in the URL: ` + "`https://app.getcensus.com/sync/<id>/overview`" + `

### Storing the Key in the Keyring

Instead of keeping the key in ` + "`config.yaml`" + `, store it once:

` + "```bash" + `
./census-sync credentials set --name production --api-key-file ./census-key.txt
` + "```" + `

and reference it from the configuration:

` + "```yaml" + `
census:
  credentials_name: "production"
` + "```" + `

## Security Best Practices

1. **Configuration Security**
   - Never commit API keys to version control
   - Prefer ` + "`credentials_name`" + ` or ` + "`${CENSUS_API_KEY}`" + ` over inline keys
   - config.yaml is written with 0600 permissions

2. **Test Mode**
   - With ` + "`test_mode: true`" + ` nothing is triggered in Census
   - Use it to check schedules and sync ids before going live

3. **Monitoring**
   - Use server mode for metrics and health checks
   - Set up alerts for failed or timed out sync runs
   - Use ` + "`requests_per_second`" + ` to stay within Census API rate limits

## Common Configurations

### Development Setup
` + "```yaml" + `
app:
  log_level: "debug"
  test_mode: true

server:
  schedule_enabled: false  # Manual runs only
` + "```" + `

### Production Setup
` + "```yaml" + `
app:
  log_level: "info"
  test_mode: false

server:
  schedule_enabled: true
  schedule: "0 */6 * * *"  # Every 6 hours
` + "```" + `

### Long-running Syncs
` + "```yaml" + `
sync:
  max_wait_seconds: 7200
  poll_frequency_seconds: 60
  concurrency: 4
` + "```" + `
`

	return os.WriteFile(path, []byte(content), 0644)
}

func generateAPIGuide(path string) error {
	content := `# Census Sync API Documentation

## Overview

In server mode census-sync exposes an HTTP API for triggering Census sync runs,
waiting for them and monitoring the service. Every response carries an
` + "`X-Request-ID`" + ` header; send your own to correlate logs.

## Base URL
` + "```" + `
http://localhost:8080
` + "```" + `

## Endpoints

### Health Check
**GET** ` + "`/health`" + `

` + "```json" + `
{
  "status": "healthy",
  "version": "0.1.0",
  "timestamp": "2025-01-15T10:30:00Z",
  "services": {
    "census": "configured",
    "scheduler": "running"
  },
  "last_sync": "2025-01-15T06:00:00Z",
  "next_sync": "2025-01-15T12:00:00Z",
  "sync_enabled": true
}
` + "```" + `

### Run All Configured Syncs
**POST** ` + "`/sync`" + `

Triggers every id in ` + "`sync.sync_ids`" + ` and waits for each run.

` + "```json" + `
{
  "status": "success",
  "message": "Sync operation completed",
  "timestamp": "2025-01-15T10:30:00Z",
  "result": {
    "syncs_triggered": 2,
    "runs_completed": 2,
    "runs_failed": 0,
    "runs_timed_out": 0,
    "records_processed": 1520,
    "runs": [
      {"status": "completed", "sync_id": 42, "sync_run_id": 1001}
    ],
    "duration": 45000000000,
    "errors": null
  }
}
` + "```" + `

` + "`status`" + ` is ` + "`partial_failure`" + ` when some runs failed. Returns 400 when no syncs are configured.

### Trigger a Sync
**POST** ` + "`/syncs/{sync_id}/trigger`" + `

| Query parameter | Description |
|---|---|
| ` + "`wait`" + ` | ` + "`true`" + ` to wait for the run to finish |
| ` + "`force_full_sync`" + ` | ` + "`true`" + ` to resync all records |
| ` + "`max_wait_seconds`" + ` | Override sync.max_wait_seconds |
| ` + "`poll_frequency_seconds`" + ` | Override sync.poll_frequency_seconds |
| ` + "`max_poll_attempts`" + ` | Override sync.max_poll_attempts |

` + "```json" + `
{
  "status": "triggered",
  "timestamp": "2025-01-15T10:30:00Z",
  "sync_id": 42,
  "sync_run_id": 1001,
  "sync_history_url": "https://app.getcensus.com/sync/42/sync-history"
}
` + "```" + `

With ` + "`wait=true`" + ` the final ` + "`sync_run`" + ` is included and ` + "`status`" + ` is the run status
(` + "`completed`" + `, ` + "`skipped`" + `, ` + "`failed`" + `, ` + "`cancelled`" + `) or ` + "`timeout`" + `.

### Wait for a Sync Run
**POST** ` + "`/sync_runs/{run_id}/wait`" + `

Accepts the same wait overrides as the trigger endpoint.

### Get a Sync Run
**GET** ` + "`/sync_runs/{run_id}`" + `

Returns the Census sync run object.

### Get a Sync
**GET** ` + "`/syncs/{sync_id}`" + `

Returns the Census sync object.

### Metrics
**GET** ` + "`/metrics`" + `

` + "```json" + `
{
  "total_syncs": 10,
  "successful_syncs": 9,
  "failed_syncs": 1,
  "success_rate": 90.0,
  "total_runs_triggered": 20,
  "total_runs_completed": 19,
  "total_runs_failed": 1,
  "total_runs_timed_out": 0,
  "total_records_processed": 15000,
  "last_sync_duration": 45000000000,
  "average_sync_duration": 43000000000,
  "last_sync_time": "2025-01-15T10:30:00Z",
  "uptime": 86400000000000
}
` + "```" + `

### Scheduler Control
Only registered when ` + "`server.schedule_enabled`" + ` is true.

- **POST** ` + "`/scheduler/start`" + `
- **POST** ` + "`/scheduler/stop`" + `
- **GET** ` + "`/scheduler/status`" + `

### Version
**GET** ` + "`/version`" + `

## HTTP Status Codes

| Code | Meaning |
|---|---|
| 200 | Request served. A failed or cancelled run is still a 200 with ` + "`status`" + ` set accordingly |
| 400 | Invalid path or query parameter, or no syncs configured |
| 404 | Census reported the sync or run does not exist |
| 502 | Census returned an error |
| 504 | The run did not finish within the wait limits |

## Examples

` + "```bash" + `
# Trigger sync 42 and wait up to 30 minutes
curl -X POST "http://localhost:8080/syncs/42/trigger?wait=true&max_wait_seconds=1800"

# Check a run
curl http://localhost:8080/sync_runs/1001
` + "```" + `
`

	return os.WriteFile(path, []byte(content), 0644)
}

func generateTroubleshootingGuide(path string) error {
	content := `# Census Sync Troubleshooting Guide

## Common Issues and Solutions

### Configuration Issues

#### "Configuration validation failed"
**Symptoms:** Validation errors when running ` + "`setup validate`" + ` or starting the application.

**Solutions:**
1. Run the setup wizard again: ` + "`./census-sync setup wizard`" + `
2. Check required fields in ` + "`config.yaml`" + `
3. Make sure every sync id is a positive number

#### "no Census API key configured"
**Symptoms:** The client cannot be created.

**Solutions:**
1. Set ` + "`census.api_key`" + ` (for example ` + "`\"${CENSUS_API_KEY}\"`" + `)
2. Or store a key with ` + "`./census-sync credentials set --name <name>`" + ` and set ` + "`census.credentials_name`" + `

### Authentication Issues

#### "Authentication failed"
**Symptoms:** HTTP 401 or 403 from the Census API.

**Solutions:**
1. Verify the workspace API key is correct
2. Check that the key belongs to the workspace that owns the syncs
3. Regenerate the key in Census and update the keyring entry

### Sync Run Issues

#### "census sync trigger failed"
**Symptoms:** The trigger call is rejected.

**Solutions:**
1. Check the sync id exists: ` + "`./census-sync sync-info --sync-id <id>`" + `
2. Check whether the sync is paused in Census
3. Read the message Census returned in the log line

#### "census sync run failed"
**Symptoms:** The run finished with status ` + "`failed`" + `.

**Solutions:**
1. Open the sync history link printed when the run was triggered
2. Inspect ` + "`error_message`" + ` and ` + "`error_detail`" + ` with ` + "`./census-sync run-info --run-id <id>`" + `

#### "census sync run timed out"
**Symptoms:** The run was still queued or working when the wait limit was reached.

**Solutions:**
1. The run keeps going in Census; resume waiting with ` + "`./census-sync wait --run-id <id>`" + `
2. Increase ` + "`sync.max_wait_seconds`" + ` or ` + "`sync.max_poll_attempts`" + `

#### HTTP 429 Too Many Requests
**Symptoms:** Warnings about rate limiting.

**Solutions:**
1. Set ` + "`census.requests_per_second`" + ` to pace requests
2. Raise ` + "`sync.poll_frequency_seconds`" + `
3. Lower ` + "`sync.concurrency`" + `

### Server Mode Issues

#### Port already in use
**Solutions:**
1. Change ` + "`server.port`" + ` in config.yaml
2. Find the process holding the port: ` + "`lsof -i :8080`" + `

#### Scheduled syncs not running
**Solutions:**
1. Check ` + "`server.schedule_enabled: true`" + `
2. Validate the cron expression (5 fields, for example ` + "`0 */6 * * *`" + `)
3. Check ` + "`GET /scheduler/status`" + `

## Debugging

Enable debug logging to see every request and poll:

` + "```yaml" + `
app:
  log_level: "debug"
` + "```" + `

## Getting Help

1. Run ` + "`./census-sync setup validate`" + ` and include the output
2. Include the sync id, run id and request id of the failing operation
3. Never share your API key
`

	return os.WriteFile(path, []byte(content), 0644)
}
