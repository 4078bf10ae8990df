// Package syncclient is the HTTP client for the shoplist sync server.
// Wire types mirror internal/api but are independently defined.
package syncclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrNotFound signals a 404 from the server.
var ErrNotFound = errors.New("not found")

// Client is an HTTP client for the sync server.
type Client struct {
	BaseURL  string
	DeviceID string
	HTTP     *http.Client
}

// New creates a new sync client.
func New(baseURL, deviceID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		DeviceID: deviceID,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

// PullResponse is the response from a pull request.
type PullResponse struct {
	Documents  []json.RawMessage `json:"documents"`
	Checkpoint Checkpoint        `json:"checkpoint"`
	HasMore    bool              `json:"has_more"`
}

// Checkpoint is the cursor returned with a pull page.
type Checkpoint struct {
	UpdatedAt time.Time `json:"updatedAt"`
}

// PushResponse is the response from a push request. An empty Conflicts
// array means the server accepted the entire batch.
type PushResponse struct {
	Success   bool              `json:"success"`
	Conflicts []json.RawMessage `json:"conflicts"`
}

// StatusResponse is the response from a collection status request.
type StatusResponse struct {
	DocumentCount int64      `json:"document_count"`
	LastUpdatedAt *time.Time `json:"last_updated_at,omitempty"`
}

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// HealthCheck hits the /healthz endpoint to verify server reachability.
func (c *Client) HealthCheck() (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do("GET", "/healthz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pull fetches documents with updatedAt after since. A nil since omits
// the bound entirely (first sync, equivalent to the epoch).
func (c *Client) Pull(collection string, since *time.Time, limit int) (*PullResponse, error) {
	params := url.Values{}
	if since != nil {
		params.Set("since", since.UTC().Format(time.RFC3339Nano))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	path := fmt.Sprintf("/v1/sync/%s/pull", collection)
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp PullResponse
	if err := c.do("GET", path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Push sends a batch of complete document states for one collection.
func (c *Client) Push(collection string, docs []json.RawMessage) (*PushResponse, error) {
	body := map[string][]json.RawMessage{collection: docs}
	var resp PushResponse
	if err := c.do("POST", fmt.Sprintf("/v1/sync/%s/push", collection), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status gets the server-side status for one collection.
func (c *Client) Status(collection string) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do("GET", fmt.Sprintf("/v1/sync/%s/status", collection), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// apiError is the standard error body from the server.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

// errorEnvelope matches the server's error response shape.
type errorEnvelope struct {
	Error apiError `json:"error"`
}

func (c *Client) do(method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.DeviceID != "" {
		req.Header.Set("X-Device-ID", c.DeviceID)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var env errorEnvelope
		if json.Unmarshal(respBody, &env) == nil && env.Error.Code != "" {
			if resp.StatusCode == http.StatusNotFound {
				return fmt.Errorf("%w: %s", ErrNotFound, env.Error.Message)
			}
			return &env.Error
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
