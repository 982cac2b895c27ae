package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"sessiond/internal/capture"
	"sessiond/internal/config"
	"sessiond/internal/logging"
	"sessiond/internal/poller"
	"sessiond/internal/session"
)

// recordingController is the slice of capture.Controller the daemon drives.
type recordingController interface {
	Connect(ctx context.Context) error
	Disconnect()
	Connected() bool
	CameraFor(chamber int) (string, error)
	SetRecording(camera string, enable bool) error
	StopAllRecording() error
}

// exportAPI is the slice of capture.ExportClient the daemon drives.
type exportAPI interface {
	Reachable(ctx context.Context) bool
	RequestExport(ctx context.Context, camera string, start, end time.Time) (string, error)
	AwaitExport(ctx context.Context, exportID string) (capture.ExportJob, error)
}

// Daemon coordinates polling, session state, and recording control, and
// enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *session.Store
	ctrl    recordingController
	exports exportAPI
	poller  *poller.Poller

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	exportBuffer time.Duration

	running  atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	exportWG sync.WaitGroup
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *session.Store, ctrl recordingController, exports exportAPI, source poller.StatusSource, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || ctrl == nil || exports == nil || source == nil {
		return nil, errors.New("daemon requires config, store, controller, export client, and status source")
	}

	lockPath := filepath.Join(cfg.Daemon.LogDir, "sessiond.lock")
	d := &Daemon{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		store:        store,
		ctrl:         ctrl,
		exports:      exports,
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
		exportBuffer: time.Duration(cfg.Recorder.ExportBufferSeconds) * time.Second,
	}
	d.poller = poller.New(source, logger, d.handleSessionStart, d.handleSessionEnd)

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start connects services, resets recording state, and launches the polling
// loop and API server. The broker connection is mandatory; the instrument is
// allowed to come up later.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another sessiond instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	if err := d.ctrl.Connect(d.ctx); err != nil {
		d.releaseLock()
		d.cancel()
		return fmt.Errorf("connect mqtt broker: %w", err)
	}

	// Clean slate: a previous crash may have left cameras recording.
	d.logger.Info("resetting all camera recordings to off")
	if err := d.ctrl.StopAllRecording(); err != nil {
		d.logger.Warn("startup recording reset incomplete", logging.Error(err))
	}

	if !d.exports.Reachable(d.ctx) {
		d.logger.Warn("recorder api not reachable; exports will fail until it is up",
			logging.String("url", d.cfg.Recorder.URL),
		)
	}

	// Instrument may start after the daemon; the poll loop keeps trying.
	if err := d.poller.Connect(d.ctx); err != nil {
		d.logger.Warn("instrument not reachable on startup, will retry in poll loop")
	}

	if d.api != nil {
		if err := d.api.start(d.ctx); err != nil {
			d.releaseLock()
			d.cancel()
			return err
		}
	}

	d.running.Store(true)
	d.wg.Add(1)
	go d.pollLoop()

	d.logger.Info("sessiond started",
		logging.String("lock", d.lockPath),
		logging.Duration("poll_interval", d.cfg.PollInterval()),
	)
	return nil
}

func (d *Daemon) pollLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			// Each tick doubles as the reconnect path: a successful
			// query marks the instrument connected again.
			d.poller.Poll(d.ctx)
		}
	}
}

// handleSessionStart reacts to the instrument starting a recording.
func (d *Daemon) handleSessionStart(snap poller.Snapshot) {
	record, err := d.store.Start(snap.BaseName, snap.Path)
	if err != nil {
		d.logger.Error("session start ignored", logging.Error(err))
		return
	}

	if err := d.ctrl.SetRecording(record.Camera, true); err != nil {
		d.logger.Error("failed to enable video recording; session will have no footage",
			logging.String(logging.FieldSessionID, record.SessionID),
			logging.String(logging.FieldCamera, record.Camera),
			logging.Error(err),
		)
	}

	d.logger.Info("session active",
		logging.String(logging.FieldSessionID, record.SessionID),
		logging.String(logging.FieldCamera, record.Camera),
		logging.String("subject", record.SubjectID),
		logging.String("type", record.RecordingType),
	)
}

// handleSessionEnd reacts to the instrument stopping a recording.
func (d *Daemon) handleSessionEnd(snap poller.Snapshot) {
	record, err := d.store.End()
	if err != nil {
		d.logger.Warn("session end detected but no active session to close")
		return
	}

	if err := d.ctrl.SetRecording(record.Camera, false); err != nil {
		d.logger.Error("failed to disable video recording",
			logging.String(logging.FieldCamera, record.Camera),
			logging.Error(err),
		)
	}

	d.logger.Info("session closed",
		logging.String(logging.FieldSessionID, record.SessionID),
		logging.Float64("duration_seconds", record.DurationSeconds),
		logging.String("filename", record.VideoFilename),
	)

	// The export can take minutes; it must never block the poll loop, and
	// shutdown must not cancel it mid-flight. It runs on a context that
	// survives Stop and reaches its own completion or timeout.
	exportCtx := context.WithoutCancel(d.ctx)
	d.exportWG.Add(1)
	go func() {
		defer d.exportWG.Done()
		d.exportSession(exportCtx, record)
	}()
}

// exportSession requests a clip for the finished session and supervises it
// to a terminal export status on the session record.
func (d *Daemon) exportSession(ctx context.Context, record session.Record) {
	// Widen the window so segment boundaries do not clip the session.
	start := record.StartTime().Add(-d.exportBuffer)
	end := record.EndTime().Add(d.exportBuffer)

	exportID, err := d.exports.RequestExport(ctx, record.Camera, start, end)
	if err != nil {
		if errors.Is(err, capture.ErrExportRejected) {
			d.logger.Error("export request rejected",
				logging.String(logging.FieldSessionID, record.SessionID),
				logging.Error(err),
			)
			d.store.UpdateExportStatus(session.ExportFailed("export request rejected"))
			return
		}
		d.logger.Error("export request failed",
			logging.String(logging.FieldSessionID, record.SessionID),
			logging.Error(err),
		)
		d.store.UpdateExportStatus(session.ExportFailed(err.Error()))
		return
	}

	job, err := d.exports.AwaitExport(ctx, exportID)
	if err != nil {
		if errors.Is(err, capture.ErrExportTimeout) {
			d.store.UpdateExportStatus(session.ExportFailed("export timed out"))
		} else {
			d.store.UpdateExportStatus(session.ExportFailed(err.Error()))
		}
		d.logger.Error("export did not complete",
			logging.String(logging.FieldSessionID, record.SessionID),
			logging.String(logging.FieldExportID, exportID),
			logging.Error(err),
		)
		return
	}

	d.store.UpdateExportStatus(session.ExportCompleted)
	d.logger.Info("export completed",
		logging.String(logging.FieldSessionID, record.SessionID),
		logging.String(logging.FieldExportID, exportID),
		logging.String("video_path", job.VideoPath),
	)
}

// Status is the daemon runtime overview served by the API.
type Status struct {
	Running             bool
	InstrumentConnected bool
	RecordingIndicator  string
	MQTTConnected       bool
	RecorderReachable   bool
	ActiveSession       *session.Record
	PendingMetadata     session.Metadata
}

// Status reports the daemon's current runtime state. The recorder probe is
// bounded so a down recorder cannot stall the status endpoint.
func (d *Daemon) Status(ctx context.Context) Status {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	st := Status{
		Running:             d.running.Load(),
		InstrumentConnected: d.poller.Connected(),
		RecordingIndicator:  string(d.poller.LastIndicator()),
		MQTTConnected:       d.ctrl.Connected(),
		RecorderReachable:   d.exports.Reachable(probeCtx),
		PendingMetadata:     d.store.PendingMetadata(),
	}
	if record, ok := d.store.Active(); ok {
		st.ActiveSession = &record
	}
	return st
}

// Healthy reports whether both core services are up.
func (d *Daemon) Healthy() (instrument, mqtt bool) {
	return d.poller.Connected(), d.ctrl.Connected()
}

// Stop shuts the daemon down: the poll loop exits, any active session is
// aborted, all cameras are commanded off, and the broker connection closes.
// Safe to call more than once.
func (d *Daemon) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}

	d.cancel()
	d.wg.Wait()
	// In-flight exports are never cancelled; they run to their own
	// completion or timeout and record a terminal status before Stop
	// returns.
	d.exportWG.Wait()
	if d.api != nil {
		d.api.stop()
	}

	if record, err := d.store.Abort("daemon shutdown"); err == nil {
		d.logger.Warn("aborted active session on shutdown",
			logging.String(logging.FieldSessionID, record.SessionID),
		)
		if err := d.ctrl.SetRecording(record.Camera, false); err != nil {
			d.logger.Error("failed to disable recording for aborted session", logging.Error(err))
		}
	}

	if err := d.ctrl.StopAllRecording(); err != nil {
		d.logger.Warn("shutdown recording sweep incomplete", logging.Error(err))
	}
	d.ctrl.Disconnect()
	d.releaseLock()

	d.logger.Info("sessiond stopped")
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}
