package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"sessiond/internal/config"
	"sessiond/internal/logging"
	"sessiond/internal/session"
)

// defaultHistoryLimit applies when the history query carries no limit.
const defaultHistoryLimit = 50

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	cameras   map[string]string
	operators []string

	listener net.Listener
	server   *http.Server
}

// StatusResponse is the /api/status payload.
type StatusResponse struct {
	Daemon     string           `json:"daemon"`
	Instrument InstrumentStatus `json:"instrument"`
	MQTT       MQTTStatus       `json:"mqtt"`
	Recorder   RecorderStatus   `json:"recorder"`
	Session    *session.Record  `json:"session"`
	Pending    MetadataResponse `json:"pending_metadata"`
}

// InstrumentStatus reports status-source connectivity.
type InstrumentStatus struct {
	Connected      bool   `json:"connected"`
	RecordingState string `json:"recording_state"`
}

// MQTTStatus reports broker connectivity.
type MQTTStatus struct {
	Connected bool `json:"connected"`
}

// RecorderStatus reports whether the recorder HTTP API answers.
type RecorderStatus struct {
	Reachable bool `json:"reachable"`
}

// MetadataResponse is the pending-metadata payload.
type MetadataResponse struct {
	SubjectID     string `json:"subject_id"`
	RecordingType string `json:"recording_type"`
	Operator      string `json:"operator"`
	Chamber       int    `json:"chamber"`
	IsDefault     bool   `json:"is_default"`
}

// HistoryResponse is the /api/session/history payload.
type HistoryResponse struct {
	Count    int              `json:"count"`
	Total    int              `json:"total"`
	Sessions []session.Record `json:"sessions"`
}

// HealthResponse is the /api/health payload.
type HealthResponse struct {
	Healthy             bool `json:"healthy"`
	InstrumentConnected bool `json:"instrument_connected"`
	MQTTConnected       bool `json:"mqtt_connected"`
}

func metadataResponse(meta session.Metadata) MetadataResponse {
	return MetadataResponse{
		SubjectID:     meta.SubjectID,
		RecordingType: meta.RecordingType,
		Operator:      meta.Operator,
		Chamber:       meta.Chamber,
		IsDefault:     meta.IsDefault(),
	}
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.API.Bind)
	if bind == "" {
		return nil, nil
	}

	mux := http.NewServeMux()
	srv := &apiServer{
		bind:      bind,
		logger:    logging.NewComponentLogger(logger, "api-server"),
		daemon:    d,
		cameras:   cfg.Cameras,
		operators: cfg.Operators,
	}

	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/session/metadata", srv.handleMetadata)
	mux.HandleFunc("/api/session/current", srv.handleCurrent)
	mux.HandleFunc("/api/session/history", srv.handleHistory)
	mux.HandleFunc("/api/health", srv.handleHealth)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	payload := StatusResponse{
		Daemon: "running",
		Instrument: InstrumentStatus{
			Connected:      status.InstrumentConnected,
			RecordingState: status.RecordingIndicator,
		},
		MQTT:     MQTTStatus{Connected: status.MQTTConnected},
		Recorder: RecorderStatus{Reachable: status.RecorderReachable},
		Session:  status.ActiveSession,
		Pending:  metadataResponse(status.PendingMetadata),
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleMetadata(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSetMetadata(w, r)
	case http.MethodDelete:
		s.daemon.store.ClearMetadata()
		s.writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"message": "metadata cleared to defaults",
		})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleSetMetadata(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SubjectID     *string `json:"subject_id"`
		RecordingType *string `json:"recording_type"`
		Operator      *string `json:"operator"`
		Chamber       *int    `json:"chamber"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "request body must be JSON")
		return
	}

	if body.Chamber != nil {
		key := fmt.Sprintf("chamber_%d", *body.Chamber)
		if _, ok := s.cameras[key]; !ok {
			s.writeError(w, http.StatusBadRequest,
				fmt.Sprintf("invalid chamber %d: no camera configured", *body.Chamber))
			return
		}
	}

	// Unknown operators are accepted; the list is advisory.
	if body.Operator != nil && len(s.operators) > 0 && !slices.Contains(s.operators, *body.Operator) {
		s.logger.Warn("operator not in configured list",
			logging.String("operator", *body.Operator),
		)
	}

	updated := s.daemon.store.SetMetadata(session.MetadataUpdate{
		SubjectID:     body.SubjectID,
		RecordingType: body.RecordingType,
		Operator:      body.Operator,
		Chamber:       body.Chamber,
	})

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"metadata": metadataResponse(updated),
	})
}

func (s *apiServer) handleCurrent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if record, ok := s.daemon.store.Active(); ok {
		s.writeJSON(w, http.StatusOK, map[string]any{"session": record})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"session": nil})
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = parsed
	}

	records, total := s.daemon.store.History(limit)
	if records == nil {
		records = []session.Record{}
	}
	s.writeJSON(w, http.StatusOK, HistoryResponse{
		Count:    len(records),
		Total:    total,
		Sessions: records,
	})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	instrumentOK, mqttOK := s.daemon.Healthy()
	payload := HealthResponse{
		Healthy:             instrumentOK && mqttOK,
		InstrumentConnected: instrumentOK,
		MQTTConnected:       mqttOK,
	}
	status := http.StatusOK
	if !payload.Healthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, payload)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
