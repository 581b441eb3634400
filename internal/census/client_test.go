package census

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithBaseURL(srv.URL), WithHTTPClient(srv.Client())}, opts...)
	return NewClient("secret-token:abc123", opts...)
}

func TestTriggerSyncRun(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/syncs/42/trigger", r.URL.Path)
		assert.Equal(t, "Bearer secret-token:abc123", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		assert.Empty(t, body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"sync_run_id":424242}}`))
	})

	result, err := client.TriggerSyncRun(context.Background(), 42, false)
	require.NoError(t, err)
	assert.Equal(t, int64(424242), result.SyncRunID)
}

func TestTriggerSyncRun_ForceFullSync(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"force_full_sync":true}`, string(body))
		_, _ = w.Write([]byte(`{"status":"success","data":{"sync_run_id":7}}`))
	})

	result, err := client.TriggerSyncRun(context.Background(), 1, true)
	require.NoError(t, err)
	assert.Equal(t, int64(7), result.SyncRunID)
}

func TestGetSyncRun(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/sync_runs/99", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"status": "success",
			"data": {
				"id": 99,
				"sync_id": 42,
				"status": "completed",
				"canceled": false,
				"records_processed": 120,
				"records_updated": 118,
				"records_failed": 2,
				"completed_at": "2024-01-02T03:04:05.000Z"
			}
		}`))
	})

	run, err := client.GetSyncRun(context.Background(), 99)
	require.NoError(t, err)
	assert.Equal(t, int64(99), run.ID)
	assert.Equal(t, int64(42), run.SyncID)
	assert.Equal(t, RunStatusCompleted, run.Status)
	assert.Equal(t, int64(120), run.RecordsProcessed)
	assert.Equal(t, int64(2), run.RecordsFailed)
	require.NotNil(t, run.CompletedAt)
	assert.Equal(t, 2024, run.CompletedAt.Year())
}

func TestGetSync(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/syncs/42", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"success","data":{"id":42,"label":"Users to Salesforce","paused":false,"operation":"upsert"}}`))
	})

	sync, err := client.GetSync(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "Users to Salesforce", sync.Label)
	assert.Equal(t, "upsert", sync.Operation)
}

func TestCallEndpoint_APIError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{
			name:        "message field",
			status:      http.StatusNotFound,
			body:        `{"status":"not_found","message":"Sync 42 could not be found"}`,
			wantMessage: "Sync 42 could not be found",
		},
		{
			name:        "status field only",
			status:      http.StatusUnauthorized,
			body:        `{"status":"unauthorized"}`,
			wantMessage: "unauthorized",
		},
		{
			name:        "plain text body",
			status:      http.StatusBadGateway,
			body:        "bad gateway",
			wantMessage: "bad gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.GetSync(context.Background(), 42)
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMessage, apiErr.UserMessage())
			assert.Equal(t, tt.wantMessage, UserMessage(err))
		})
	}
}

func TestCallEndpoint_RetriesRateLimited(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","data":{"sync_run_id":5}}`))
	})

	result, err := client.TriggerSyncRun(context.Background(), 1, false)
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.SyncRunID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCallEndpoint_RateLimitedRetriesExhausted(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}, WithMaxRetries(1))

	_, err := client.GetSyncRun(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "max retries (1) exceeded")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}

func TestCallEndpoint_ClientTimeoutIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}, WithTimeout(50*time.Millisecond))

	_, err := client.GetSyncRun(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, IsTransient(err))
}

func TestCallEndpoint_ContextCanceled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.CallEndpoint(ctx, http.MethodGet, "/api/v1/syncs/1", nil, nil)
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient("key", WithBaseURL("https://census.example.com/"), WithRateLimit(5))
	assert.Equal(t, "https://census.example.com", client.BaseURL())
	assert.Equal(t, 3, client.maxRetries)
	assert.NotNil(t, client.limiter)

	client = NewClient("key")
	assert.Equal(t, DefaultBaseURL, client.BaseURL())
}

func TestNewClient_KeepsHTTPClientSettings(t *testing.T) {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	checkRedirect := func(req *http.Request, via []*http.Request) error { return http.ErrUseLastResponse }

	client := NewClient("key", WithHTTPClient(&http.Client{
		Timeout:       5 * time.Second,
		Jar:           jar,
		CheckRedirect: checkRedirect,
	}))
	assert.Equal(t, 5*time.Second, client.httpClient.Timeout)
	assert.Equal(t, jar, client.httpClient.Jar)
	assert.NotNil(t, client.httpClient.CheckRedirect)

	client = NewClient("key", WithHTTPClient(&http.Client{Timeout: 5 * time.Second}), WithTimeout(time.Second))
	assert.Equal(t, time.Second, client.httpClient.Timeout)

	client = NewClient("key", WithHTTPClient(&http.Client{}))
	assert.Equal(t, defaultTimeout, client.httpClient.Timeout)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("boom")))
	assert.False(t, IsTransient(&APIError{StatusCode: http.StatusNotFound}))
	assert.True(t, IsTransient(&APIError{StatusCode: http.StatusTooManyRequests}))
	assert.True(t, IsTransient(&APIError{StatusCode: http.StatusServiceUnavailable}))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(&url.Error{Op: "Get", URL: "https://app.getcensus.com", Err: context.DeadlineExceeded}))
	assert.False(t, IsTransient(&url.Error{Op: "Get", URL: "https://app.getcensus.com", Err: context.Canceled}))
}

func TestSyncHistoryURL(t *testing.T) {
	assert.Equal(t, "https://app.getcensus.com/sync/42/sync-history", SyncHistoryURL(42))
}
