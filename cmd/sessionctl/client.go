package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sessiond/internal/daemon"
)

// printJSON renders an API payload for --json output, one indented document
// per invocation.
func printJSON(cmd *cobra.Command, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

// apiClient talks to the sessiond HTTP API.
type apiClient struct {
	baseURL string
	client  *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *apiClient) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sessiond not reachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) status(ctx context.Context) (daemon.StatusResponse, error) {
	var payload daemon.StatusResponse
	err := c.get(ctx, "/api/status", &payload)
	return payload, err
}

// health returns the payload and whether the daemon reported healthy. The
// endpoint answers 503 when degraded, which do() surfaces as an error, so it
// is fetched without the shared error mapping.
func (c *apiClient) health(ctx context.Context) (daemon.HealthResponse, error) {
	var payload daemon.HealthResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return payload, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return payload, fmt.Errorf("sessiond not reachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return payload, fmt.Errorf("decode response: %w", err)
	}
	return payload, nil
}

func (c *apiClient) history(ctx context.Context, limit int) (daemon.HistoryResponse, error) {
	var payload daemon.HistoryResponse
	err := c.get(ctx, fmt.Sprintf("/api/session/history?limit=%d", limit), &payload)
	return payload, err
}

type metadataRequest struct {
	SubjectID     *string `json:"subject_id,omitempty"`
	RecordingType *string `json:"recording_type,omitempty"`
	Operator      *string `json:"operator,omitempty"`
	Chamber       *int    `json:"chamber,omitempty"`
}

func (c *apiClient) setMetadata(ctx context.Context, update metadataRequest) (daemon.MetadataResponse, error) {
	var payload struct {
		Metadata daemon.MetadataResponse `json:"metadata"`
	}
	err := c.do(ctx, http.MethodPost, "/api/session/metadata", update, &payload)
	return payload.Metadata, err
}

func (c *apiClient) clearMetadata(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/session/metadata", nil, nil)
}
