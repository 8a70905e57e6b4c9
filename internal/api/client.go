package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"datapipe/console/internal/jobs"
	"datapipe/console/internal/params"
)

// ErrDuplicateJob reports that the console already tracks a job with the
// submitted ID.
var ErrDuplicateJob = errors.New("duplicate job id")

// ErrNoRows reports that the requested table slice holds no data.
var ErrNoRows = errors.New("no rows found")

// Client handles requests to the console API.
type Client struct {
	BaseURL   *url.URL
	Client    *http.Client
	UserAgent string
}

// NewClient constructs a new console API client.
func NewClient(baseURL string) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	return &Client{
		BaseURL:   parsed,
		Client:    &http.Client{Timeout: 15 * time.Second},
		UserAgent: "datapipe-consolectl",
	}, nil
}

type submitPayload struct {
	JobType      string        `json:"job_type"`
	JobID        string        `json:"job_id,omitempty"`
	Params       params.Params `json:"params"`
	IgnoreResult bool          `json:"ignore_result,omitempty"`
}

// Submit enqueues a job and returns the ID the console assigned to it.
func (c *Client) Submit(ctx context.Context, jobType jobs.Type, jobID string, p params.Params, ignoreResult bool) (string, error) {
	payload := submitPayload{
		JobType:      string(jobType),
		JobID:        jobID,
		Params:       p,
		IgnoreResult: ignoreResult,
	}

	var response struct {
		JobID string `json:"job_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/task", nil, payload, &response); err != nil {
		return "", err
	}
	return response.JobID, nil
}

// LastSettings fetches the parameter set last submitted for a page, or nil
// when nothing has been saved yet.
func (c *Client) LastSettings(ctx context.Context, page jobs.Type) (params.Params, error) {
	var p params.Params
	query := url.Values{"page": {string(page)}}
	if err := c.doJSON(ctx, http.MethodGet, "/settings", query, nil, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// Databases lists the databases the console can see.
func (c *Client) Databases(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.doJSON(ctx, http.MethodGet, "/databases", nil, nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// Tables lists the tables of a database, optionally filtered by name suffix.
func (c *Client) Tables(ctx context.Context, database string, suffixes []string) ([]string, error) {
	query := url.Values{"database": {database}}
	for _, suffix := range suffixes {
		query.Add("suffix", suffix)
	}

	var names []string
	if err := c.doJSON(ctx, http.MethodGet, "/tables", query, nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// Dates lists the distinct dates a table holds within the given bounds.
func (c *Client) Dates(ctx context.Context, database, table, startDate, endDate string) ([]string, error) {
	query := url.Values{"database": {database}, "table": {table}}
	if startDate != "" {
		query.Set("start_date", startDate)
	}
	if endDate != "" {
		query.Set("end_date", endDate)
	}

	var dates []string
	if err := c.doJSON(ctx, http.MethodGet, "/dates", query, nil, &dates); err != nil {
		return nil, err
	}
	return dates, nil
}

// HasRows reports whether a table slice holds any data. ErrNoRows means the
// console answered definitively that it does not.
func (c *Client) HasRows(ctx context.Context, database, table, startDate, endDate string) error {
	query := url.Values{"database": {database}, "table": {table}}
	if startDate != "" {
		query.Set("start_date", startDate)
	}
	if endDate != "" {
		query.Set("end_date", endDate)
	}
	return c.doJSON(ctx, http.MethodGet, "/count", query, nil, nil)
}

// Watch follows the completion stream until the given job's signal arrives
// or the context ends.
func (c *Client) Watch(ctx context.Context, channel, jobID string) error {
	query := url.Values{}
	if channel != "" {
		query.Set("channel", channel)
	}
	requestURL := c.BaseURL.ResolveReference(&url.URL{Path: "/stream", RawQuery: query.Encode()})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("User-Agent", c.UserAgent)

	// The stream stays open indefinitely, so the client timeout must not
	// apply here.
	streamClient := &http.Client{Transport: c.Client.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("api error %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if scanner.Text() == "data: "+jobID {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return fmt.Errorf("stream closed before job %s finished", jobID)
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var requestBody []byte
	if body != nil {
		var err error
		requestBody, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
	}

	requestURL := c.BaseURL.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, requestURL.String(), bytes.NewReader(requestBody))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return ErrDuplicateJob
	case resp.StatusCode == http.StatusNotFound:
		return ErrNoRows
	case resp.StatusCode >= http.StatusBadRequest:
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("api error %s: %s", resp.Status, strings.TrimSpace(string(bodyBytes)))
	case resp.StatusCode == http.StatusNoContent:
		return nil
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
