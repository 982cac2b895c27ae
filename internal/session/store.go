package session

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"sessiond/internal/logging"
)

var (
	// ErrSessionActive is returned when a start arrives while a session is
	// already open. The instrument should never produce overlapping ON
	// signals; rejecting keeps every opened session accounted for instead of
	// silently orphaning the previous one.
	ErrSessionActive = errors.New("a session is already active")

	// ErrNoActiveSession is returned by End and Abort when nothing is open.
	ErrNoActiveSession = errors.New("no active session")
)

// Store owns pending metadata, the active session slot, and session history.
// All methods are safe for concurrent use; the API surface reads while the
// poll loop writes.
type Store struct {
	dataDir string
	loc     *time.Location
	cameras map[string]string
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	pending Metadata
	active  *Record
	history []Record
}

// Open creates a store rooted at dataDir and loads any persisted history.
func Open(dataDir string, loc *time.Location, cameras map[string]string, logger *slog.Logger) (*Store, error) {
	if loc == nil {
		loc = time.UTC
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions directory: %w", err)
	}

	s := &Store{
		dataDir: dataDir,
		loc:     loc,
		cameras: cameras,
		logger:  logging.NewComponentLogger(logger, "session-store"),
		now:     time.Now,
		pending: DefaultMetadata(),
	}
	s.loadHistory()
	return s, nil
}

// SetMetadata merges the non-nil fields of update into the pending metadata
// and returns the result. Range and membership checks belong to the caller.
func (s *Store) SetMetadata(update MetadataUpdate) Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	if update.SubjectID != nil {
		s.pending.SubjectID = *update.SubjectID
	}
	if update.RecordingType != nil {
		s.pending.RecordingType = *update.RecordingType
	}
	if update.Operator != nil {
		s.pending.Operator = *update.Operator
	}
	if update.Chamber != nil {
		s.pending.Chamber = *update.Chamber
	}

	s.logger.Info("session metadata updated",
		logging.String("subject", s.pending.SubjectID),
		logging.String("type", s.pending.RecordingType),
		logging.String("operator", s.pending.Operator),
		logging.Int("chamber", s.pending.Chamber),
	)
	return s.pending
}

// ClearMetadata resets pending metadata to defaults.
func (s *Store) ClearMetadata() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = DefaultMetadata()
	s.logger.Info("session metadata cleared")
}

// PendingMetadata returns a copy of the staged metadata.
func (s *Store) PendingMetadata() Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Start opens a new session from the pending metadata and the identifiers
// the instrument reported. It fails with ErrSessionActive if a session is
// already open.
func (s *Store) Start(instrumentBaseName, instrumentPath string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return Record{}, ErrSessionActive
	}

	now := s.now()
	meta := s.pending

	record := Record{
		SessionID:          uuid.NewString(),
		StartTimeUTC:       timeToEpoch(now),
		StartTimeLocal:     now.In(s.loc).Format(time.RFC3339),
		SubjectID:          meta.SubjectID,
		RecordingType:      meta.RecordingType,
		Operator:           meta.Operator,
		Chamber:            meta.Chamber,
		Camera:             s.cameraFor(meta.Chamber),
		InstrumentBaseName: instrumentBaseName,
		InstrumentPath:     instrumentPath,
		ExportStatus:       ExportPending,
		TransferStatus:     TransferSkipped,
	}
	s.active = &record

	if meta.IsDefault() {
		s.logger.Warn("session started without metadata; files will use placeholder names",
			logging.String(logging.FieldSessionID, record.SessionID),
		)
	} else {
		s.logger.Info("session started",
			logging.String(logging.FieldSessionID, record.SessionID),
			logging.String("subject", record.SubjectID),
			logging.String("type", record.RecordingType),
			logging.Int("chamber", record.Chamber),
			logging.String(logging.FieldCamera, record.Camera),
		)
	}
	return record, nil
}

// End closes the active session: stamps the end time, computes the duration,
// derives the video filename, persists the sidecar, and appends to history.
// Pending metadata is reset so the next session starts clean.
func (s *Store) End() (Record, error) {
	return s.close(ExportPending, "")
}

// Abort force-closes the active session, recording the reason in the export
// status. Used during daemon shutdown.
func (s *Store) Abort(reason string) (Record, error) {
	record, err := s.close("", reason)
	if err == nil {
		s.logger.Warn("session aborted",
			logging.String(logging.FieldSessionID, record.SessionID),
			logging.String("reason", reason),
			logging.Float64("duration_seconds", record.DurationSeconds),
		)
	}
	return record, err
}

func (s *Store) close(exportStatus, abortReason string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return Record{}, ErrNoActiveSession
	}

	record := *s.active
	now := s.now()

	record.EndTimeUTC = timeToEpoch(now)
	record.EndTimeLocal = now.In(s.loc).Format(time.RFC3339)
	record.DurationSeconds = math.Round((record.EndTimeUTC-record.StartTimeUTC)*10) / 10
	record.VideoFilename = deriveFilename(record.StartTime(), s.loc, record.SubjectID, record.RecordingType)
	if abortReason != "" {
		record.ExportStatus = ExportAborted(abortReason)
	} else {
		record.ExportStatus = exportStatus
	}

	if abortReason == "" {
		s.logger.Info("session ended",
			logging.String(logging.FieldSessionID, record.SessionID),
			logging.Float64("duration_seconds", record.DurationSeconds),
			logging.String("filename", record.VideoFilename),
		)
	}

	s.writeSidecar(record)
	s.history = append(s.history, record)
	s.active = nil
	s.pending = DefaultMetadata()

	return record, nil
}

// UpdateExportStatus rewrites the export status of the most recently closed
// session and re-persists its sidecar. No-op when history is empty.
func (s *Store) UpdateExportStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.history) == 0 {
		return
	}
	latest := &s.history[len(s.history)-1]
	latest.ExportStatus = status
	s.writeSidecar(*latest)
}

// Active returns a copy of the active session, if any.
func (s *Store) Active() (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return Record{}, false
	}
	return *s.active, true
}

// HasActive reports whether a session is currently open.
func (s *Store) HasActive() bool {
	_, ok := s.Active()
	return ok
}

// History returns up to limit finished sessions, newest first, plus the
// total count. Limit is clamped to [1, 500].
func (s *Store) History(limit int) ([]Record, int) {
	if limit < 1 {
		limit = 1
	}
	if limit > 500 {
		limit = 500
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.history)
	n := limit
	if n > total {
		n = total
	}
	out := make([]Record, 0, n)
	for i := total - 1; i >= total-n; i-- {
		out = append(out, s.history[i])
	}
	return out, total
}

func (s *Store) cameraFor(chamber int) string {
	key := fmt.Sprintf("chamber_%d", chamber)
	if camera, ok := s.cameras[key]; ok {
		return camera
	}
	// Unmapped chambers still get a usable record; the controller surfaces
	// the wiring problem when commands are sent.
	return fmt.Sprintf("cam_%d", chamber)
}
