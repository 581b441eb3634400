package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeyondidentity/census-sync/internal/census"
	"github.com/gobeyondidentity/census-sync/internal/config"
)

// Mock Census client for testing
type mockCensusClient struct {
	mu sync.Mutex

	triggerErr error
	nextRunID  int64
	triggered  []int64
	fullSyncs  []bool
	statuses   map[int64][]*census.SyncRun // run id -> successive poll responses
	runErrs    []error                     // returned before any status
	runCalls   int
	syncs      map[int64]*census.Sync
}

func newMockClient() *mockCensusClient {
	return &mockCensusClient{
		nextRunID: 100,
		statuses:  make(map[int64][]*census.SyncRun),
		syncs:     make(map[int64]*census.Sync),
	}
}

func (m *mockCensusClient) TriggerSyncRun(ctx context.Context, syncID int64, forceFullSync bool) (*census.TriggerResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.triggerErr != nil {
		return nil, m.triggerErr
	}
	m.nextRunID++
	m.triggered = append(m.triggered, syncID)
	m.fullSyncs = append(m.fullSyncs, forceFullSync)
	return &census.TriggerResult{SyncRunID: m.nextRunID}, nil
}

func (m *mockCensusClient) GetSyncRun(ctx context.Context, runID int64) (*census.SyncRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runCalls++
	if len(m.runErrs) > 0 {
		err := m.runErrs[0]
		m.runErrs = m.runErrs[1:]
		return nil, err
	}
	responses, ok := m.statuses[runID]
	if !ok || len(responses) == 0 {
		return nil, &census.APIError{StatusCode: http.StatusNotFound, Status: "not_found"}
	}
	run := responses[0]
	if len(responses) > 1 {
		m.statuses[runID] = responses[1:]
	}
	return run, nil
}

func (m *mockCensusClient) GetSync(ctx context.Context, syncID int64) (*census.Sync, error) {
	if sync, ok := m.syncs[syncID]; ok {
		return sync, nil
	}
	return nil, &census.APIError{StatusCode: http.StatusNotFound, Message: fmt.Sprintf("Sync %d not found", syncID)}
}

func runWith(id int64, status census.RunStatus) *census.SyncRun {
	return &census.SyncRun{ID: id, SyncID: 42, Status: status}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Reduce log noise during tests
	return logger
}

func testConfig() *config.Config {
	return &config.Config{
		Sync: config.SyncConfig{
			SyncIDs:       []int64{42},
			RetryAttempts: 3,
		},
	}
}

var fastWait = WaitOptions{MaxWait: time.Second, PollInterval: time.Millisecond}

func TestNewEngine(t *testing.T) {
	client := newMockClient()
	cfg := testConfig()
	cfg.Sync.RetryDelaySeconds = 10
	logger := testLogger()

	engine := NewEngine(client, cfg, logger)

	require.NotNil(t, engine)
	assert.Equal(t, client, engine.client)
	assert.Equal(t, cfg, engine.config)
	assert.Equal(t, logger, engine.logger)
	assert.Equal(t, 10*time.Second, engine.retryDelay)
}

func TestTriggerSync(t *testing.T) {
	client := newMockClient()
	engine := NewEngine(client, testConfig(), testLogger())

	runID, err := engine.TriggerSync(context.Background(), 42, true)
	require.NoError(t, err)
	assert.Equal(t, int64(101), runID)
	assert.Equal(t, []int64{42}, client.triggered)
	assert.Equal(t, []bool{true}, client.fullSyncs)
}

func TestTriggerSync_Failure(t *testing.T) {
	client := newMockClient()
	client.triggerErr = &census.APIError{StatusCode: http.StatusNotFound, Message: "Sync 42 could not be found"}
	engine := NewEngine(client, testConfig(), testLogger())

	_, err := engine.TriggerSync(context.Background(), 42, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSyncTriggerFailed))
	assert.Contains(t, err.Error(), "Sync 42 could not be found")
}

func TestTriggerSync_FailureKeepsAPIError(t *testing.T) {
	client := newMockClient()
	client.triggerErr = &census.APIError{StatusCode: http.StatusNotFound, Message: "Sync 42 could not be found"}
	engine := NewEngine(client, testConfig(), testLogger())

	_, err := engine.TriggerSync(context.Background(), 42, false)
	require.Error(t, err)

	var apiErr *census.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.False(t, census.IsTransient(err))
}

func TestTriggerSync_TestMode(t *testing.T) {
	client := newMockClient()
	cfg := testConfig()
	cfg.App.TestMode = true
	engine := NewEngine(client, cfg, testLogger())

	runID, err := engine.TriggerSync(context.Background(), 42, false)
	require.NoError(t, err)
	assert.Equal(t, int64(0), runID)
	assert.Empty(t, client.triggered)
}

func TestGetSyncRunInfo_RetriesTransientErrors(t *testing.T) {
	client := newMockClient()
	client.runErrs = []error{
		&census.APIError{StatusCode: http.StatusServiceUnavailable},
		&census.APIError{StatusCode: http.StatusTooManyRequests},
	}
	client.statuses[7] = []*census.SyncRun{runWith(7, census.RunStatusWorking)}
	engine := NewEngine(client, testConfig(), testLogger())

	run, err := engine.GetSyncRunInfo(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, census.RunStatusWorking, run.Status)
	assert.Equal(t, 3, client.runCalls)
}

func TestGetSyncRunInfo_DoesNotRetryClientErrors(t *testing.T) {
	client := newMockClient()
	engine := NewEngine(client, testConfig(), testLogger())

	_, err := engine.GetSyncRunInfo(context.Background(), 404)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGetSyncRunInfoFailed))
	assert.Equal(t, "not_found", census.UserMessage(err))
	assert.Equal(t, 1, client.runCalls)
}

func TestGetSyncRunInfo_RetriesExhausted(t *testing.T) {
	client := newMockClient()
	for i := 0; i < 5; i++ {
		client.runErrs = append(client.runErrs, &census.APIError{StatusCode: http.StatusBadGateway})
	}
	cfg := testConfig()
	cfg.Sync.RetryAttempts = 2
	engine := NewEngine(client, cfg, testLogger())

	_, err := engine.GetSyncRunInfo(context.Background(), 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGetSyncRunInfoFailed))
	assert.Equal(t, 3, client.runCalls)
}

func TestGetSyncRunInfo_RetriesClientTimeout(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			time.Sleep(300 * time.Millisecond)
		}
		_, _ = w.Write([]byte(`{"status":"success","data":{"id":7,"sync_id":42,"status":"working"}}`))
	}))
	defer srv.Close()

	client := census.NewClient("secret-token:abc123",
		census.WithBaseURL(srv.URL),
		census.WithTimeout(50*time.Millisecond))
	cfg := testConfig()
	cfg.Sync.RetryAttempts = 1
	engine := NewEngine(client, cfg, testLogger())

	run, err := engine.GetSyncRunInfo(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, census.RunStatusWorking, run.Status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetSyncRunInfo_StopsWhenContextExpires(t *testing.T) {
	client := newMockClient()
	for i := 0; i < 5; i++ {
		client.runErrs = append(client.runErrs, &census.APIError{StatusCode: http.StatusBadGateway})
	}
	cfg := testConfig()
	cfg.Sync.RetryDelaySeconds = 10
	engine := NewEngine(client, cfg, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := engine.GetSyncRunInfo(ctx, 7)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, client.runCalls)
}

func TestGetSyncInfo(t *testing.T) {
	client := newMockClient()
	client.syncs[42] = &census.Sync{ID: 42, Label: "Users to Salesforce"}
	engine := NewEngine(client, testConfig(), testLogger())

	sync, err := engine.GetSyncInfo(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "Users to Salesforce", sync.Label)

	_, err = engine.GetSyncInfo(context.Background(), 1)
	assert.True(t, errors.Is(err, ErrGetSyncInfoFailed))
}

func TestWaitForCompletion(t *testing.T) {
	tests := []struct {
		name       string
		responses  []*census.SyncRun
		opts       WaitOptions
		wantErr    error
		wantStatus census.RunStatus
		wantCalls  int
	}{
		{
			name: "completes after polling",
			responses: []*census.SyncRun{
				runWith(7, census.RunStatusQueued),
				runWith(7, census.RunStatusWorking),
				runWith(7, census.RunStatusCompleted),
			},
			opts:       fastWait,
			wantStatus: census.RunStatusCompleted,
			wantCalls:  3,
		},
		{
			name:       "skipped is terminal",
			responses:  []*census.SyncRun{runWith(7, census.RunStatusSkipped)},
			opts:       fastWait,
			wantStatus: census.RunStatusSkipped,
			wantCalls:  1,
		},
		{
			name: "failed run",
			responses: []*census.SyncRun{
				runWith(7, census.RunStatusWorking),
				{ID: 7, Status: census.RunStatusFailed, ErrorMessage: "Destination rejected records"},
			},
			opts:       fastWait,
			wantErr:    ErrSyncRunFailed,
			wantStatus: census.RunStatusFailed,
			wantCalls:  2,
		},
		{
			name:       "cancelled run",
			responses:  []*census.SyncRun{{ID: 7, Status: census.RunStatusWorking, Canceled: true}},
			opts:       fastWait,
			wantErr:    ErrSyncRunCancelled,
			wantStatus: census.RunStatusCancelled,
			wantCalls:  1,
		},
		{
			name:       "max attempts exceeded",
			responses:  []*census.SyncRun{runWith(7, census.RunStatusWorking)},
			opts:       WaitOptions{PollInterval: time.Millisecond, MaxAttempts: 3},
			wantErr:    ErrSyncRunTimeout,
			wantStatus: census.RunStatusWorking,
			wantCalls:  3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newMockClient()
			client.statuses[7] = tt.responses
			engine := NewEngine(client, testConfig(), testLogger())

			run, err := engine.WaitForCompletion(context.Background(), 7, tt.opts)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "expected %v, got %v", tt.wantErr, err)
			} else {
				require.NoError(t, err)
			}
			require.NotNil(t, run)
			assert.Equal(t, tt.wantStatus, run.EffectiveStatus())
			assert.Equal(t, tt.wantCalls, client.runCalls)
		})
	}
}

func TestWaitForCompletion_FailureMessage(t *testing.T) {
	client := newMockClient()
	client.statuses[7] = []*census.SyncRun{{ID: 7, Status: census.RunStatusFailed, ErrorMessage: "Bad credentials", ErrorDetail: "token expired"}}
	engine := NewEngine(client, testConfig(), testLogger())

	_, err := engine.WaitForCompletion(context.Background(), 7, fastWait)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bad credentials: token expired")
}

func TestWaitForCompletion_MaxWaitExceeded(t *testing.T) {
	client := newMockClient()
	client.statuses[7] = []*census.SyncRun{runWith(7, census.RunStatusWorking)}
	engine := NewEngine(client, testConfig(), testLogger())

	start := time.Now()
	_, err := engine.WaitForCompletion(context.Background(), 7, WaitOptions{MaxWait: 30 * time.Millisecond, PollInterval: 10 * time.Millisecond})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSyncRunTimeout))
	assert.Less(t, time.Since(start), time.Second)
	assert.GreaterOrEqual(t, client.runCalls, 2)
}

func TestWaitForCompletion_MaxWaitBoundsRetries(t *testing.T) {
	client := newMockClient()
	for i := 0; i < 5; i++ {
		client.runErrs = append(client.runErrs, &census.APIError{StatusCode: http.StatusServiceUnavailable})
	}
	cfg := testConfig()
	cfg.Sync.RetryDelaySeconds = 10
	engine := NewEngine(client, cfg, testLogger())

	start := time.Now()
	run, err := engine.WaitForCompletion(context.Background(), 7, WaitOptions{MaxWait: 30 * time.Millisecond, PollInterval: time.Millisecond})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSyncRunTimeout))
	assert.Nil(t, run)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitForCompletion_ContextCanceled(t *testing.T) {
	client := newMockClient()
	client.statuses[7] = []*census.SyncRun{runWith(7, census.RunStatusWorking)}
	engine := NewEngine(client, testConfig(), testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := engine.WaitForCompletion(ctx, 7, WaitOptions{PollInterval: time.Hour})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestWaitForCompletion_RunInfoFailure(t *testing.T) {
	client := newMockClient()
	engine := NewEngine(client, testConfig(), testLogger())

	run, err := engine.WaitForCompletion(context.Background(), 404, fastWait)
	assert.Nil(t, run)
	assert.True(t, errors.Is(err, ErrGetSyncRunInfoFailed))
}

func TestTriggerAndWait(t *testing.T) {
	client := newMockClient()
	client.statuses[101] = []*census.SyncRun{
		runWith(101, census.RunStatusWorking),
		{ID: 101, SyncID: 42, Status: census.RunStatusCompleted, RecordsProcessed: 12},
	}
	engine := NewEngine(client, testConfig(), testLogger())

	result, err := engine.TriggerAndWait(context.Background(), 42, TriggerOptions{Wait: fastWait})
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.SyncID)
	assert.Equal(t, int64(101), result.RunID)
	require.NotNil(t, result.Run)
	assert.Equal(t, int64(12), result.Run.RecordsProcessed)
	assert.False(t, result.DryRun)
}

func TestTriggerAndWait_TestMode(t *testing.T) {
	client := newMockClient()
	cfg := testConfig()
	cfg.App.TestMode = true
	engine := NewEngine(client, cfg, testLogger())

	result, err := engine.TriggerAndWait(context.Background(), 42, TriggerOptions{Wait: fastWait})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Nil(t, result.Run)
	assert.Equal(t, 0, client.runCalls)
}

func TestSync(t *testing.T) {
	client := newMockClient()
	// Run ids are handed out in trigger order; with concurrency 1 that is config order.
	client.statuses[101] = []*census.SyncRun{{ID: 101, Status: census.RunStatusCompleted, RecordsProcessed: 10}}
	client.statuses[102] = []*census.SyncRun{{ID: 102, Status: census.RunStatusFailed, ErrorMessage: "boom"}}
	client.statuses[103] = []*census.SyncRun{runWith(103, census.RunStatusWorking)}

	cfg := testConfig()
	cfg.Sync.SyncIDs = []int64{1, 2, 3}
	cfg.Sync.MaxPollAttempts = 2
	cfg.Sync.PollFrequencySeconds = 0
	cfg.Sync.MaxWaitSeconds = 1 // caps the single poll interval of the working run
	cfg.Sync.Concurrency = 1
	engine := NewEngine(client, cfg, testLogger())

	result, err := engine.Sync(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 3, result.SyncsTriggered)
	assert.Equal(t, 1, result.RunsCompleted)
	assert.Equal(t, 1, result.RunsFailed)
	assert.Equal(t, 1, result.RunsTimedOut)
	assert.Equal(t, int64(10), result.RecordsProcessed)
	assert.Len(t, result.Runs, 3)
	assert.Len(t, result.Errors, 2)

	combined := result.Err()
	require.Error(t, combined)
	assert.True(t, errors.Is(combined, ErrSyncRunFailed))
	assert.True(t, errors.Is(combined, ErrSyncRunTimeout))
}

func TestSync_TriggerFailures(t *testing.T) {
	client := newMockClient()
	client.triggerErr = errors.New("connection refused")

	cfg := testConfig()
	cfg.Sync.SyncIDs = []int64{1, 2}
	cfg.Sync.Concurrency = 2
	engine := NewEngine(client, cfg, testLogger())

	result, err := engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.SyncsTriggered)
	assert.Len(t, result.Errors, 2)
	assert.True(t, errors.Is(result.Err(), ErrSyncTriggerFailed))
}

func TestSync_NoSyncsConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Sync.SyncIDs = nil
	engine := NewEngine(newMockClient(), cfg, testLogger())

	result, err := engine.Sync(context.Background())
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, ErrNoSyncsConfigured))
}

func TestSyncResultErr_NoErrors(t *testing.T) {
	result := &SyncResult{}
	assert.NoError(t, result.Err())
}
