package instrument

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Status is a single successful read of the instrument status endpoint.
type Status struct {
	Recording string `json:"recording"`
	Stream    string `json:"stream"`
	BaseName  string `json:"base_name"`
	Path      string `json:"path"`
}

// Client queries the instrument status API over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient constructs an instrument client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Connect verifies the instrument is reachable by issuing a status query.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.Query(ctx)
	return err
}

// Query fetches the current instrument status.
func (c *Client) Query(ctx context.Context) (Status, error) {
	url := c.baseURL + "/api/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Status{}, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("query instrument: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Status{}, fmt.Errorf("instrument status returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return Status{}, fmt.Errorf("decode instrument status: %w", err)
	}
	return status, nil
}
