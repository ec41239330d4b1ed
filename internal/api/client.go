package api

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
	"time"
)

// Error is a non-2xx daemon reply.
type Error struct {
	StatusCode int
	Message    string
	Kind       string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned HTTP %d", e.StatusCode)
	}
	return e.Message
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to the daemon HTTP API.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient returns a client for the daemon listening on bind, which may be a
// host:port pair or a full URL.
func NewClient(bind string, httpClient *http.Client) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, errors.New("api bind address not configured")
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{base: base, http: httpClient}, nil
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var out DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &out)
	return out, err
}

// ListJobs returns jobs, optionally filtered by status.
func (c *Client) ListJobs(ctx context.Context, statuses ...string) ([]Job, error) {
	query := url.Values{}
	for _, status := range statuses {
		query.Add("status", status)
	}
	var out JobListResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// Submit creates a job.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (Job, error) {
	var out JobResponse
	err := c.do(ctx, http.MethodPost, "/api/jobs", nil, req, &out)
	return out.Job, err
}

// GetJob returns one job.
func (c *Client) GetJob(ctx context.Context, id string) (Job, error) {
	var out JobResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, nil, &out)
	return out.Job, err
}

// DeleteJob removes a job and everything it published.
func (c *Client) DeleteJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(id), nil, nil, nil)
}

// Resubmit creates a new job from a failed one.
func (c *Client) Resubmit(ctx context.Context, id string) (Job, error) {
	var out JobResponse
	err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/resubmit", nil, nil, &out)
	return out.Job, err
}

// Events returns snapshots newer than since. With wait set the daemon holds
// the request until something new arrives or its poll window closes.
func (c *Client) Events(ctx context.Context, id string, since uint64, wait bool) (EventsResponse, error) {
	query := url.Values{"since": {strconv.FormatUint(since, 10)}}
	if wait {
		query.Set("wait", "1")
	}
	var out EventsResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id)+"/events", query, nil, &out)
	return out, err
}

// StorageStats returns what the bucket holds.
func (c *Client) StorageStats(ctx context.Context) (StorageStatsResponse, error) {
	var out StorageStatsResponse
	err := c.do(ctx, http.MethodGet, "/api/storage/stats", nil, nil, &out)
	return out, err
}

// Categories returns the known category ids.
func (c *Client) Categories(ctx context.Context) (CategoriesResponse, error) {
	var out CategoriesResponse
	err := c.do(ctx, http.MethodGet, "/api/categories", nil, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.base.JoinPath(path)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon at %s: %w", c.base.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var payload ErrorResponse
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); readErr == nil && json.Unmarshal(data, &payload) == nil {
			apiErr.Message = payload.Error
			apiErr.Kind = payload.Kind
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// DefaultTimeout bounds non-streaming CLI requests.
const DefaultTimeout = 30 * time.Second
