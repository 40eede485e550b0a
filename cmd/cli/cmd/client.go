package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"podqueue/pkg/api"
)

// Client handles API calls to the podqueue controller.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// do sends a request and decodes the JSON response into out when the
// status is one of ok.
func (c *Client) do(method, path string, body, out any, ok ...int) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if !slices.Contains(ok, resp.StatusCode) {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// errorMessage extracts the error field of an api.ErrorResponse, or returns the raw body.
func errorMessage(body []byte) string {
	var e api.ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}

// ImportPodcast sends POST /podcasts/import.
func (c *Client) ImportPodcast(feedURL string) (*api.ImportPodcastResponse, error) {
	var resp api.ImportPodcastResponse
	err := c.do(http.MethodPost, "/podcasts/import", api.ImportPodcastRequest{FeedURL: feedURL}, &resp,
		http.StatusOK, http.StatusAccepted)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// EnqueueEpisodeJob sends POST /episodes/{id}/{action}.
func (c *Client) EnqueueEpisodeJob(episodeID, action string) (*api.EnqueueResponse, error) {
	var resp api.EnqueueResponse
	path := fmt.Sprintf("/episodes/%s/%s", url.PathEscape(episodeID), action)
	if err := c.do(http.MethodPost, path, nil, &resp, http.StatusAccepted); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetJob sends GET /jobs/{id}.
func (c *Client) GetJob(jobID string) (*api.JobResponse, error) {
	var resp api.JobResponse
	if err := c.do(http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListJobs sends GET /jobs with optional filters.
func (c *Client) ListJobs(status, jobType string, limit, offset int) ([]api.JobResponse, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if jobType != "" {
		q.Set("type", jobType)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}

	path := "/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp api.ListJobsResponse
	if err := c.do(http.MethodGet, path, nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// GetLogs sends GET /jobs/{id}/logs for entries after afterID.
func (c *Client) GetLogs(jobID string, afterID int64) ([]api.LogEntry, error) {
	path := fmt.Sprintf("/jobs/%s/logs?after_id=%d", url.PathEscape(jobID), afterID)
	var resp api.GetLogsResponse
	if err := c.do(http.MethodGet, path, nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp.Logs, nil
}

// TriggerSync sends POST /internal/sync.
func (c *Client) TriggerSync() (*api.SyncResponse, error) {
	var resp api.SyncResponse
	if err := c.do(http.MethodPost, "/internal/sync", nil, &resp, http.StatusOK, http.StatusAccepted); err != nil {
		return nil, err
	}
	return &resp, nil
}
