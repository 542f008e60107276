// Package client is a Go client for the Residency Hub REST API, plus the
// resident-side review queue that acknowledges assessments optimistically.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rms-hub/residency-hub/pkg/logger"
	"github.com/rms-hub/residency-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the API client.
type Config struct {
	// BaseURL is the server root, e.g. "http://localhost:8080".
	BaseURL string

	// APIKey is sent as X-API-Key when set.
	APIKey string

	// ActorID is sent as X-Actor-ID on deletes.
	ActorID string

	Timeout time.Duration

	// ReadAttempts bounds attempts for GET requests on 5xx, 429 and
	// transport errors. Writes are sent once.
	ReadAttempts int

	// HTTPClient overrides the default client; Timeout is ignored then.
	HTTPClient *http.Client

	Logger *logger.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		Timeout:      15 * time.Second,
		ReadAttempts: 3,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
	// Details holds per-field messages for validation errors.
	Details map[string]string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsValidation reports whether err is a 400 from the API.
func IsValidation(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client talks to the Residency Hub API. It is safe for concurrent use.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *logger.Logger
	reads      *retry.Retrier

	// Resident progress is revalidated with If-None-Match.
	etagMu sync.Mutex
	etags  map[string]cachedProgress
}

type cachedProgress struct {
	etag  string
	value ResidentProgress
}

// New creates a client.
func New(config Config) *Client {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.ReadAttempts <= 0 {
		config.ReadAttempts = 1
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	log := config.Logger.With(logger.Component("api_client"))
	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     log,
		reads: retry.New(
			retry.WithMaxAttempts(config.ReadAttempts),
			retry.WithInitialDelay(50*time.Millisecond),
			retry.WithMaxDelay(time.Second),
			retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
				log.Debug("retrying read", logger.Int("attempt", attempt), logger.Duration("delay", delay), logger.Err(err))
			}),
		),
		etags: make(map[string]cachedProgress),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// GetResidentProgress fetches a resident's progress. A previously seen
// version is revalidated and reused when the server answers 304.
func (c *Client) GetResidentProgress(ctx context.Context, residentID string) (*ResidentProgress, error) {
	path := "/api/v1/residents/" + url.PathEscape(residentID) + "/progress"

	c.etagMu.Lock()
	cached, haveCached := c.etags[path]
	c.etagMu.Unlock()

	var out ResidentProgress
	resp, err := retry.DoWithData(ctx, c.reads, func(ctx context.Context) (*response, error) {
		headers := map[string]string{}
		if haveCached {
			headers["If-None-Match"] = cached.etag
		}
		return c.send(ctx, http.MethodGet, path, nil, headers, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("get progress of %s: %w", residentID, err)
	}

	if resp.status == http.StatusNotModified && haveCached {
		v := cached.value
		return &v, nil
	}
	if tag := resp.header.Get("ETag"); tag != "" {
		c.etagMu.Lock()
		c.etags[path] = cachedProgress{etag: tag, value: out}
		c.etagMu.Unlock()
	}
	return &out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ASSESSMENTS
// ══════════════════════════════════════════════════════════════════════════════

// ListUnacknowledged returns the resident's assessments awaiting review,
// newest first.
func (c *Client) ListUnacknowledged(ctx context.Context, residentID string) ([]Assessment, error) {
	var out []Assessment
	if err := c.get(ctx, "/api/v1/residents/"+url.PathEscape(residentID)+"/unacknowledged", &out); err != nil {
		return nil, fmt.Errorf("list unacknowledged of %s: %w", residentID, err)
	}
	return out, nil
}

// ListAssessments returns assessments matching opts, newest first.
func (c *Client) ListAssessments(ctx context.Context, opts ListOptions) ([]Assessment, error) {
	q := url.Values{}
	if opts.ResidentID != "" {
		q.Set("resident_id", opts.ResidentID)
	}
	if opts.AssessorID != "" {
		q.Set("assessor_id", opts.AssessorID)
	}
	if opts.EPAID > 0 {
		q.Set("epa_id", strconv.Itoa(opts.EPAID))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	path := "/api/v1/assessments"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []Assessment
	if err := c.get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	return out, nil
}

func (c *Client) GetAssessment(ctx context.Context, id string) (*Assessment, error) {
	var out Assessment
	if err := c.get(ctx, "/api/v1/assessments/"+url.PathEscape(id), &out); err != nil {
		return nil, fmt.Errorf("get assessment %s: %w", id, err)
	}
	return &out, nil
}

// SubmitAssessment stores a new assessment and returns its id.
func (c *Client) SubmitAssessment(ctx context.Context, req SubmitRequest) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if _, err := c.send(ctx, http.MethodPost, "/api/v1/assessments", req, nil, &out); err != nil {
		return "", fmt.Errorf("submit assessment: %w", err)
	}
	return out.ID, nil
}

// Acknowledge marks an assessment as reviewed. It is sent exactly once.
func (c *Client) Acknowledge(ctx context.Context, id string) (*AcknowledgeResult, error) {
	var out AcknowledgeResult
	if _, err := c.send(ctx, http.MethodPatch, "/api/v1/assessments/"+url.PathEscape(id)+"/acknowledge", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("acknowledge %s: %w", id, err)
	}
	return &out, nil
}

// DeleteAssessment soft-deletes an assessment on behalf of Config.ActorID.
func (c *Client) DeleteAssessment(ctx context.Context, id string) (*DeleteResult, error) {
	headers := map[string]string{}
	if c.config.ActorID != "" {
		headers["X-Actor-ID"] = c.config.ActorID
	}
	var out DeleteResult
	if _, err := c.send(ctx, http.MethodDelete, "/api/v1/assessments/"+url.PathEscape(id), nil, headers, &out); err != nil {
		return nil, fmt.Errorf("delete %s: %w", id, err)
	}
	return &out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSPORT
// ══════════════════════════════════════════════════════════════════════════════

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

type response struct {
	status int
	header http.Header
}

// get performs a retried GET.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.reads.Do(ctx, func(ctx context.Context) error {
		_, err := c.send(ctx, http.MethodGet, path, nil, nil, out)
		return err
	})
}

// send performs a single request. Failures worth retrying are wrapped with
// retry.Retryable; only GET callers retry them.
func (c *Client) send(ctx context.Context, method, path string, body any, headers map[string]string, out any) (*response, error) {
	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIKey != "" {
		req.Header.Set("X-API-Key", c.config.APIKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, retry.Retryable(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.Retryable(fmt.Errorf("read response: %w", err))
	}
	r := &response{status: resp.StatusCode, header: resp.Header}

	if resp.StatusCode == http.StatusNotModified {
		return r, nil
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 400 {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		c.logger.Debug("api error",
			logger.String("method", method),
			logger.String("path", path),
			logger.Int("status", resp.StatusCode),
			logger.String("code", apiErr.Code),
		)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, retry.Retryable(apiErr)
		}
		return nil, apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("decode data: %w", err)
		}
	}
	return r, nil
}
