package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sessiond/internal/session"
)

func newTestAPI(t *testing.T, ctrl *stubController) (*apiServer, *Daemon) {
	t.Helper()
	cfg := testConfig(t)
	cfg.API.Bind = "127.0.0.1:0"
	cfg.Operators = []string{"andrea"}

	d := newTestDaemon(t, cfg, ctrl, &stubExports{})
	d.ctx, d.cancel = context.WithCancel(context.Background())
	t.Cleanup(d.cancel)

	if d.api == nil {
		t.Fatal("api server should be configured")
	}
	return d.api, d
}

func doRequest(t *testing.T, srv *apiServer, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rec.Body.String())
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, d := newTestAPI(t, &stubController{connected: true})
	d.handleSessionStart(snapshotWith("take_001", ""))

	rec := doRequest(t, srv, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}

	var payload StatusResponse
	decodeBody(t, rec, &payload)
	if payload.Daemon != "running" {
		t.Fatalf("unexpected daemon state %q", payload.Daemon)
	}
	if !payload.MQTT.Connected {
		t.Fatal("mqtt should report connected")
	}
	if !payload.Recorder.Reachable {
		t.Fatal("recorder should report reachable")
	}
	if payload.Session == nil || payload.Session.InstrumentBaseName != "take_001" {
		t.Fatalf("active session missing from status: %+v", payload.Session)
	}
	if !payload.Pending.IsDefault {
		t.Fatal("pending metadata should be default")
	}
}

func TestMetadataPostPartialUpdate(t *testing.T) {
	srv, d := newTestAPI(t, &stubController{})

	rec := doRequest(t, srv, http.MethodPost, "/api/session/metadata",
		`{"subject_id": "HETCF3R1", "chamber": 1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Status   string           `json:"status"`
		Metadata MetadataResponse `json:"metadata"`
	}
	decodeBody(t, rec, &payload)
	if payload.Metadata.SubjectID != "HETCF3R1" || payload.Metadata.Chamber != 1 {
		t.Fatalf("unexpected metadata %+v", payload.Metadata)
	}
	if payload.Metadata.RecordingType != "unknown" {
		t.Fatalf("untouched field should stay default, got %q", payload.Metadata.RecordingType)
	}
	if payload.Metadata.IsDefault {
		t.Fatal("metadata should no longer be default")
	}

	meta := d.store.PendingMetadata()
	if meta.SubjectID != "HETCF3R1" {
		t.Fatalf("store not updated: %+v", meta)
	}
}

func TestMetadataPostRejectsUnknownChamber(t *testing.T) {
	srv, _ := newTestAPI(t, &stubController{})

	rec := doRequest(t, srv, http.MethodPost, "/api/session/metadata", `{"chamber": 9}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "chamber") {
		t.Fatalf("error should mention chamber: %s", rec.Body.String())
	}
}

func TestMetadataPostRejectsBadJSON(t *testing.T) {
	srv, _ := newTestAPI(t, &stubController{})

	rec := doRequest(t, srv, http.MethodPost, "/api/session/metadata", "not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestMetadataPostAcceptsUnknownOperator(t *testing.T) {
	srv, _ := newTestAPI(t, &stubController{})

	rec := doRequest(t, srv, http.MethodPost, "/api/session/metadata", `{"operator": "stranger"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("advisory operator list must not reject, got %d", rec.Code)
	}
}

func TestMetadataDelete(t *testing.T) {
	srv, d := newTestAPI(t, &stubController{})
	d.store.SetMetadata(session.MetadataUpdate{SubjectID: strptr("M1")})

	rec := doRequest(t, srv, http.MethodDelete, "/api/session/metadata", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !d.store.PendingMetadata().IsDefault() {
		t.Fatal("metadata should be reset")
	}
}

func TestCurrentSessionEndpoint(t *testing.T) {
	srv, d := newTestAPI(t, &stubController{connected: true})

	rec := doRequest(t, srv, http.MethodGet, "/api/session/current", "")
	var empty struct {
		Session *session.Record `json:"session"`
	}
	decodeBody(t, rec, &empty)
	if empty.Session != nil {
		t.Fatal("expected null session")
	}

	d.handleSessionStart(snapshotWith("base", ""))
	rec = doRequest(t, srv, http.MethodGet, "/api/session/current", "")
	var active struct {
		Session *session.Record `json:"session"`
	}
	decodeBody(t, rec, &active)
	if active.Session == nil {
		t.Fatal("expected active session")
	}
}

func TestHistoryEndpoint(t *testing.T) {
	srv, d := newTestAPI(t, &stubController{connected: true})
	for i := 0; i < 3; i++ {
		d.handleSessionStart(snapshotWith("base", ""))
		d.handleSessionEnd(snapshotWith("", ""))
	}
	d.exportWG.Wait()

	rec := doRequest(t, srv, http.MethodGet, "/api/session/history?limit=2", "")
	var payload HistoryResponse
	decodeBody(t, rec, &payload)
	if payload.Count != 2 || payload.Total != 3 {
		t.Fatalf("expected 2 of 3, got %d of %d", payload.Count, payload.Total)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/session/history?limit=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}

	// No limit falls back to the default and returns everything here.
	rec = doRequest(t, srv, http.MethodGet, "/api/session/history", "")
	decodeBody(t, rec, &payload)
	if payload.Count != 3 {
		t.Fatalf("expected all 3 records, got %d", payload.Count)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, d := newTestAPI(t, &stubController{connected: true})

	// Instrument never polled: unhealthy.
	rec := doRequest(t, srv, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	// A successful poll marks the instrument connected.
	d.poller.Poll(context.Background())
	rec = doRequest(t, srv, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload HealthResponse
	decodeBody(t, rec, &payload)
	if !payload.Healthy || !payload.InstrumentConnected || !payload.MQTTConnected {
		t.Fatalf("unexpected health payload %+v", payload)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestAPI(t, &stubController{})

	rec := doRequest(t, srv, http.MethodPost, "/api/status", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
