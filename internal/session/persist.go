package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio/v2"

	"sessiond/internal/logging"
)

// sidecarSuffix names the per-session JSON records in the data directory.
const sidecarSuffix = "_session.json"

// sidecarPath derives the sidecar filename from the video filename stem,
// falling back to the session UUID for records closed without one.
func (s *Store) sidecarPath(record Record) string {
	stem := record.SessionID
	if record.VideoFilename != "" {
		stem = strings.TrimSuffix(record.VideoFilename, filepath.Ext(record.VideoFilename))
	}
	return filepath.Join(s.dataDir, stem+sidecarSuffix)
}

// writeSidecar persists a session record atomically. Failures are logged,
// never raised: the in-memory history stays authoritative for this process.
func (s *Store) writeSidecar(record Record) {
	path := s.sidecarPath(record)

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		s.logger.Error("marshal session record", logging.String("path", path), logging.Error(err))
		return
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		s.logger.Error("write session record", logging.String("path", path), logging.Error(err))
		return
	}
	s.logger.Info("session record written", logging.String("path", path))
}

// loadHistory rebuilds history from sidecars on disk. Files are loaded in
// filename order (chronological, since filenames start with the local
// timestamp); malformed files are skipped with a warning.
func (s *Store) loadHistory() {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		s.logger.Warn("scan sessions directory failed", logging.Error(err))
		return
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), sidecarSuffix) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(s.dataDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("read session record failed", logging.String("path", path), logging.Error(err))
			continue
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			s.logger.Warn("skipping malformed session record", logging.String("path", path), logging.Error(err))
			continue
		}
		s.history = append(s.history, record)
	}

	if len(s.history) > 0 {
		s.logger.Info("loaded session history", logging.Int("count", len(s.history)))
	}
}
