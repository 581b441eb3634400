package census

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/ratelimit"
	"golang.org/x/oauth2"
)

// Client handles Census REST API operations
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    ratelimit.Limiter
	maxRetries int
}

type clientOptions struct {
	baseURL           string
	httpClient        *http.Client
	timeout           time.Duration
	requestsPerSecond int
	maxRetries        int
}

// Option configures a Client
type Option func(*clientOptions)

// WithBaseURL overrides the Census API base URL
func WithBaseURL(baseURL string) Option {
	return func(o *clientOptions) {
		if baseURL != "" {
			o.baseURL = baseURL
		}
	}
}

// WithHTTPClient sets the HTTP client used for requests. The client is copied
// and its transport wrapped with bearer authentication; Jar, CheckRedirect and
// a non-zero Timeout are kept unless WithTimeout overrides the timeout.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = httpClient
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables the limit.
func WithRateLimit(requestsPerSecond int) Option {
	return func(o *clientOptions) {
		o.requestsPerSecond = requestsPerSecond
	}
}

// WithMaxRetries sets how many times a rate limited (429) request is repeated
func WithMaxRetries(maxRetries int) Option {
	return func(o *clientOptions) {
		if maxRetries >= 0 {
			o.maxRetries = maxRetries
		}
	}
}

const defaultTimeout = 30 * time.Second

// NewClient creates a new Census API client authenticated with apiKey
func NewClient(apiKey string, opts ...Option) *Client {
	o := &clientOptions{
		baseURL:    DefaultBaseURL,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(o)
	}

	httpClient := &http.Client{}
	if o.httpClient != nil {
		copied := *o.httpClient
		httpClient = &copied
	}

	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient.Transport = &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: apiKey,
			TokenType:   "Bearer",
		}),
		Base: base,
	}

	switch {
	case o.timeout > 0:
		httpClient.Timeout = o.timeout
	case httpClient.Timeout == 0:
		httpClient.Timeout = defaultTimeout
	}

	limiter := ratelimit.NewUnlimited()
	if o.requestsPerSecond > 0 {
		limiter = ratelimit.New(o.requestsPerSecond)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(o.baseURL, "/"),
		httpClient: httpClient,
		limiter:    limiter,
		maxRetries: o.maxRetries,
	}
}

// BaseURL returns the API root the client sends requests to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CallEndpoint calls an endpoint of the Census API. The path is appended to the
// base URL, body (if any) is sent as JSON, and the response is decoded into out.
func (c *Client) CallEndpoint(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = data
	}

	for attempt := 0; ; attempt++ {
		respBody, resp, err := c.do(ctx, method, path, payload)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			apiErr := newAPIError(resp.StatusCode, respBody)
			if attempt >= c.maxRetries {
				return fmt.Errorf("max retries (%d) exceeded for %s %s: %w", c.maxRetries, method, path, apiErr)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryAfterDuration(resp, attempt)):
				continue
			}
		}

		if resp.StatusCode >= 400 {
			return newAPIError(resp.StatusCode, respBody)
		}

		if out == nil || resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
			return nil
		}

		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response from %s %s: %w", method, path, err)
		}
		return nil
	}
}

// do performs a single rate limited request and returns the drained response body
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, *http.Response, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.limiter.Take()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to perform request %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return respBody, resp, nil
}

// GetSyncRun retrieves the details of a sync run
func (c *Client) GetSyncRun(ctx context.Context, runID int64) (*SyncRun, error) {
	var result envelope[SyncRun]
	if err := c.CallEndpoint(ctx, http.MethodGet, fmt.Sprintf(SyncRunAPIRun, runID), nil, &result); err != nil {
		return nil, fmt.Errorf("failed to get sync run %d: %w", runID, err)
	}
	return &result.Data, nil
}

// GetSync retrieves the configuration of a sync
func (c *Client) GetSync(ctx context.Context, syncID int64) (*Sync, error) {
	var result envelope[Sync]
	if err := c.CallEndpoint(ctx, http.MethodGet, fmt.Sprintf(SyncAPISync, syncID), nil, &result); err != nil {
		return nil, fmt.Errorf("failed to get sync %d: %w", syncID, err)
	}
	return &result.Data, nil
}

// TriggerSyncRun starts a new run of the sync and returns its run id
func (c *Client) TriggerSyncRun(ctx context.Context, syncID int64, forceFullSync bool) (*TriggerResult, error) {
	var body interface{}
	if forceFullSync {
		body = triggerRequest{ForceFullSync: true}
	}

	var result envelope[TriggerResult]
	if err := c.CallEndpoint(ctx, http.MethodPost, fmt.Sprintf(SyncAPITrigger, syncID), body, &result); err != nil {
		return nil, fmt.Errorf("failed to trigger sync %d: %w", syncID, err)
	}
	return &result.Data, nil
}

func newAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: statusCode,
		Body:       strings.TrimSpace(string(body)),
	}
	// Non-JSON bodies leave only the raw text.
	_ = json.Unmarshal(body, apiErr)
	return apiErr
}

// retryAfterDuration reads the Retry-After header, falling back to exponential backoff
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
