package daemon

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"sessiond/internal/capture"
	"sessiond/internal/config"
	"sessiond/internal/instrument"
	"sessiond/internal/logging"
	"sessiond/internal/poller"
	"sessiond/internal/session"
)

func intptr(i int) *int { return &i }

func strptr(s string) *string { return &s }

func snapshotWith(baseName, path string) poller.Snapshot {
	return poller.Snapshot{
		BaseName:  baseName,
		Path:      path,
		Connected: true,
		PolledAt:  time.Now(),
	}
}

type stubController struct {
	mu          sync.Mutex
	connected   bool
	connectErr  error
	commands    []string
	stopAlls    int
	disconnects int
}

func (c *stubController) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr != nil {
		return c.connectErr
	}
	c.connected = true
	return nil
}

func (c *stubController) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnects++
}

func (c *stubController) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *stubController) CameraFor(chamber int) (string, error) {
	if chamber == 0 {
		return "pi_cam_0", nil
	}
	return "", errors.New("unmapped chamber")
}

func (c *stubController) SetRecording(camera string, enable bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := "off"
	if enable {
		state = "on"
	}
	c.commands = append(c.commands, camera+":"+state)
	return nil
}

func (c *stubController) StopAllRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopAlls++
	return nil
}

func (c *stubController) commandLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commands...)
}

type stubExports struct {
	mu         sync.Mutex
	requestErr error
	awaitErr   error
	awaitDelay time.Duration
	job        capture.ExportJob
	requests   []string
	lastStart  time.Time
	lastEnd    time.Time
}

func (e *stubExports) Reachable(context.Context) bool { return true }

func (e *stubExports) RequestExport(_ context.Context, camera string, start, end time.Time) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, camera)
	e.lastStart = start
	e.lastEnd = end
	if e.requestErr != nil {
		return "", e.requestErr
	}
	return "exp_1", nil
}

func (e *stubExports) AwaitExport(ctx context.Context, _ string) (capture.ExportJob, error) {
	if e.awaitDelay > 0 {
		select {
		case <-ctx.Done():
			return capture.ExportJob{}, ctx.Err()
		case <-time.After(e.awaitDelay):
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.awaitErr != nil {
		return capture.ExportJob{}, e.awaitErr
	}
	return e.job, nil
}

type stubSource struct {
	mu      sync.Mutex
	status  instrument.Status
	err     error
	queries int
}

func (s *stubSource) Connect(context.Context) error { return nil }

func (s *stubSource) Query(context.Context) (instrument.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if s.err != nil {
		return instrument.Status{}, s.err
	}
	return s.status, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Daemon.LogDir = t.TempDir()
	cfg.Daemon.PollInterval = 0.01
	cfg.Sessions.DataDir = t.TempDir()
	cfg.Sessions.ExportDir = t.TempDir()
	cfg.API.Bind = ""
	cfg.Recorder.ExportBufferSeconds = 2
	return &cfg
}

func newTestDaemon(t *testing.T, cfg *config.Config, ctrl *stubController, exports *stubExports) *Daemon {
	t.Helper()
	store, err := session.Open(cfg.Sessions.DataDir, time.UTC, cfg.Cameras, logging.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	d, err := New(cfg, store, ctrl, exports, &stubSource{status: instrument.Status{Recording: "R_OFF"}}, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestStartStopLifecycle(t *testing.T) {
	ctrl := &stubController{}
	d := newTestDaemon(t, testConfig(t), ctrl, &stubExports{})

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !ctrl.Connected() {
		t.Fatal("broker should be connected after start")
	}
	if ctrl.stopAlls != 1 {
		t.Fatalf("expected clean-slate stop sweep, got %d", ctrl.stopAlls)
	}

	d.Stop()
	if ctrl.stopAlls != 2 {
		t.Fatalf("expected shutdown stop sweep, got %d", ctrl.stopAlls)
	}
	if ctrl.disconnects != 1 {
		t.Fatalf("expected one disconnect, got %d", ctrl.disconnects)
	}

	// A second Stop must be a no-op.
	d.Stop()
	if ctrl.stopAlls != 2 || ctrl.disconnects != 1 {
		t.Fatal("Stop is not idempotent")
	}
}

func TestStartFailsWithoutBroker(t *testing.T) {
	ctrl := &stubController{connectErr: errors.New("connection refused")}
	d := newTestDaemon(t, testConfig(t), ctrl, &stubExports{})

	err := d.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "mqtt broker") {
		t.Fatalf("expected broker connect failure, got %v", err)
	}
	if d.running.Load() {
		t.Fatal("daemon must not be running after failed start")
	}
}

func TestSessionEdgesDriveRecordingAndExport(t *testing.T) {
	ctrl := &stubController{connected: true}
	exports := &stubExports{job: capture.ExportJob{ID: "exp_1", VideoPath: "/exports/a.mp4"}}
	d := newTestDaemon(t, testConfig(t), ctrl, exports)
	d.ctx, d.cancel = context.WithCancel(context.Background())
	defer d.cancel()

	d.store.SetMetadata(session.MetadataUpdate{Chamber: intptr(0)})

	d.handleSessionStart(snapshotWith("take_001", "/data/take_001.xdat"))

	record, ok := d.store.Active()
	if !ok {
		t.Fatal("expected active session after start edge")
	}
	if got := ctrl.commandLog(); len(got) != 1 || got[0] != "pi_cam_0:on" {
		t.Fatalf("unexpected commands %v", got)
	}
	if record.InstrumentBaseName != "take_001" {
		t.Fatalf("instrument identifiers lost: %+v", record)
	}

	d.handleSessionEnd(snapshotWith("", ""))
	d.exportWG.Wait()

	if d.store.HasActive() {
		t.Fatal("session should be closed after end edge")
	}
	if got := ctrl.commandLog(); len(got) != 2 || got[1] != "pi_cam_0:off" {
		t.Fatalf("unexpected commands %v", got)
	}

	records, _ := d.store.History(1)
	if records[0].ExportStatus != session.ExportCompleted {
		t.Fatalf("expected completed export, got %q", records[0].ExportStatus)
	}

	// The export window is the session widened by the buffer.
	wantStart := records[0].StartTime().Add(-2 * time.Second)
	wantEnd := records[0].EndTime().Add(2 * time.Second)
	if !exports.lastStart.Equal(wantStart) || !exports.lastEnd.Equal(wantEnd) {
		t.Fatalf("export window %v..%v, want %v..%v", exports.lastStart, exports.lastEnd, wantStart, wantEnd)
	}
}

func TestExportFailureStatuses(t *testing.T) {
	cases := []struct {
		name       string
		requestErr error
		awaitErr   error
		want       string
	}{
		{"rejected", capture.ErrExportRejected, nil, "failed: export request rejected"},
		{"unreachable", errors.New("recorder unreachable: dial tcp"), nil, "failed: recorder unreachable: dial tcp"},
		{"timeout", nil, capture.ErrExportTimeout, "failed: export timed out"},
		{"await error", nil, errors.New("decode export list: EOF"), "failed: decode export list: EOF"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := &stubController{connected: true}
			exports := &stubExports{requestErr: tc.requestErr, awaitErr: tc.awaitErr}
			d := newTestDaemon(t, testConfig(t), ctrl, exports)
			d.ctx, d.cancel = context.WithCancel(context.Background())
			defer d.cancel()

			d.handleSessionStart(snapshotWith("base", ""))
			d.handleSessionEnd(snapshotWith("", ""))
			d.exportWG.Wait()

			records, _ := d.store.History(1)
			if records[0].ExportStatus != tc.want {
				t.Fatalf("export status %q, want %q", records[0].ExportStatus, tc.want)
			}
		})
	}
}

func TestEndEdgeWithoutActiveSession(t *testing.T) {
	ctrl := &stubController{connected: true}
	d := newTestDaemon(t, testConfig(t), ctrl, &stubExports{})
	d.ctx, d.cancel = context.WithCancel(context.Background())
	defer d.cancel()

	d.handleSessionEnd(snapshotWith("", ""))
	d.exportWG.Wait()

	if got := ctrl.commandLog(); len(got) != 0 {
		t.Fatalf("no commands expected, got %v", got)
	}
	if _, total := d.store.History(1); total != 0 {
		t.Fatalf("history should stay empty, got %d", total)
	}
}

func TestShutdownLetsInFlightExportFinish(t *testing.T) {
	ctrl := &stubController{}
	exports := &stubExports{
		awaitDelay: 100 * time.Millisecond,
		job:        capture.ExportJob{ID: "exp_1", VideoPath: "/exports/a.mp4"},
	}
	d := newTestDaemon(t, testConfig(t), ctrl, exports)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	d.handleSessionStart(snapshotWith("base", ""))
	d.handleSessionEnd(snapshotWith("", ""))

	// Stop before the export settles. The supervision goroutine keeps the
	// context it started with and must still reach completed.
	d.Stop()

	records, total := d.store.History(1)
	if total != 1 {
		t.Fatalf("expected one closed session, got %d", total)
	}
	if records[0].ExportStatus != session.ExportCompleted {
		t.Fatalf("export status after shutdown %q, want %q", records[0].ExportStatus, session.ExportCompleted)
	}
}

func TestStopAbortsActiveSession(t *testing.T) {
	ctrl := &stubController{}
	d := newTestDaemon(t, testConfig(t), ctrl, &stubExports{})

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	d.handleSessionStart(snapshotWith("base", ""))

	d.Stop()

	records, total := d.store.History(1)
	if total != 1 {
		t.Fatalf("expected aborted session in history, got %d", total)
	}
	if records[0].ExportStatus != "aborted: daemon shutdown" {
		t.Fatalf("unexpected export status %q", records[0].ExportStatus)
	}
}

func TestStatusReportsActiveSession(t *testing.T) {
	ctrl := &stubController{connected: true}
	d := newTestDaemon(t, testConfig(t), ctrl, &stubExports{})
	d.ctx, d.cancel = context.WithCancel(context.Background())
	defer d.cancel()

	st := d.Status(context.Background())
	if st.ActiveSession != nil {
		t.Fatal("no active session expected")
	}
	if !st.MQTTConnected {
		t.Fatal("broker stub should report connected")
	}
	if !st.RecorderReachable {
		t.Fatal("recorder stub should report reachable")
	}

	d.handleSessionStart(snapshotWith("base", ""))
	st = d.Status(context.Background())
	if st.ActiveSession == nil {
		t.Fatal("active session expected in status")
	}
}
