package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"sessiond/internal/logging"
)

// Export polling cadence and the wall-clock ceiling on one export.
const (
	defaultExportPollInterval = 2 * time.Second
	defaultExportTimeout      = 300 * time.Second
)

var (
	// ErrExportRejected means the recorder answered the export request with
	// a non-success status. Typically the requested window holds no footage.
	ErrExportRejected = errors.New("recorder rejected export request")

	// ErrExportTimeout means the export did not reach a terminal state
	// before the wall-clock ceiling.
	ErrExportTimeout = errors.New("export timed out")
)

// ExportJob is one entry in the recorder's export list.
type ExportJob struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Camera     string `json:"camera"`
	VideoPath  string `json:"video_path"`
	InProgress bool   `json:"in_progress"`
}

// key returns the identifier used to match a job against a request, since
// older recorder versions report only a name.
func (j ExportJob) key() string {
	if j.ID != "" {
		return j.ID
	}
	return j.Name
}

// ExportClient drives clip exports through the recorder's HTTP API.
type ExportClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger

	pollInterval time.Duration
	timeout      time.Duration
}

// NewExportClient builds a client for the recorder at baseURL. requestTimeout
// bounds individual HTTP calls, not the export as a whole.
func NewExportClient(baseURL string, requestTimeout time.Duration, logger *slog.Logger) *ExportClient {
	return &ExportClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       &http.Client{Timeout: requestTimeout},
		logger:       logging.NewComponentLogger(logger, "export-client"),
		pollInterval: defaultExportPollInterval,
		timeout:      defaultExportTimeout,
	}
}

// SetExportWindow overrides the poll cadence and wall-clock ceiling.
// Non-positive values keep the defaults.
func (c *ExportClient) SetExportWindow(pollInterval, timeout time.Duration) {
	if pollInterval > 0 {
		c.pollInterval = pollInterval
	}
	if timeout > 0 {
		c.timeout = timeout
	}
}

// Reachable reports whether the recorder answers its stats endpoint.
func (c *ExportClient) Reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/stats", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
	return resp.StatusCode == http.StatusOK
}

// RequestExport asks the recorder to cut a clip for camera between start and
// end. The recorder expects whole epoch seconds. It returns the export
// identifier for AwaitExport. An unreachable recorder and a rejected request
// are distinct failures; the latter wraps ErrExportRejected.
func (c *ExportClient) RequestExport(ctx context.Context, camera string, start, end time.Time) (string, error) {
	url := fmt.Sprintf("%s/api/export/%s/start/%d/end/%d", c.baseURL, camera, start.Unix(), end.Unix())

	c.logger.Info("requesting export",
		logging.String(logging.FieldCamera, camera),
		logging.Int64("start", start.Unix()),
		logging.Int64("end", end.Unix()),
		logging.Int64("duration_seconds", end.Unix()-start.Unix()),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", fmt.Errorf("build export request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("recorder unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d: %s", ErrExportRejected, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode export response: %w", err)
	}
	id := payload.ID
	if id == "" {
		id = payload.Name
	}
	if id == "" {
		return "", fmt.Errorf("export response carried no identifier")
	}

	c.logger.Info("export started", logging.String(logging.FieldExportID, id))
	return id, nil
}

// AwaitExport polls the export list until the job identified by exportID
// reaches a terminal state. Individual poll failures are logged and retried;
// only the wall-clock ceiling ends the wait, with ErrExportTimeout.
func (c *ExportClient) AwaitExport(ctx context.Context, exportID string) (ExportJob, error) {
	deadline := time.Now().Add(c.timeout)
	c.logger.Info("waiting for export", logging.String(logging.FieldExportID, exportID))

	for time.Now().Before(deadline) {
		job, found, err := c.findExport(ctx, exportID)
		if err != nil {
			if ctx.Err() != nil {
				return ExportJob{}, ctx.Err()
			}
			c.logger.Warn("export status check failed", logging.Error(err))
		} else if found && !job.InProgress {
			c.logger.Info("export completed",
				logging.String(logging.FieldExportID, exportID),
				logging.String("video_path", job.VideoPath),
			)
			return job, nil
		}

		select {
		case <-ctx.Done():
			return ExportJob{}, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}

	return ExportJob{}, fmt.Errorf("%w after %s", ErrExportTimeout, c.timeout)
}

func (c *ExportClient) findExport(ctx context.Context, exportID string) (ExportJob, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/exports", nil)
	if err != nil {
		return ExportJob{}, false, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return ExportJob{}, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return ExportJob{}, false, fmt.Errorf("export list returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var jobs []ExportJob
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return ExportJob{}, false, fmt.Errorf("decode export list: %w", err)
	}
	for _, job := range jobs {
		if job.key() == exportID {
			return job, true, nil
		}
	}
	return ExportJob{}, false, nil
}
