package session

import (
	"fmt"
	"strings"
	"time"
)

// metadataDefault is the sentinel for fields never set by an operator.
const metadataDefault = "unknown"

// Export status values. Failed and aborted states carry a reason suffix.
const (
	ExportPending   = "pending"
	ExportCompleted = "completed"

	TransferSkipped = "skipped"
)

// ExportFailed formats a terminal failed export status.
func ExportFailed(reason string) string {
	return "failed: " + reason
}

// ExportAborted formats the export status of a force-closed session.
func ExportAborted(reason string) string {
	return "aborted: " + reason
}

// Metadata is the operator-provided description of the next session.
type Metadata struct {
	SubjectID     string `json:"subject_id"`
	RecordingType string `json:"recording_type"`
	Operator      string `json:"operator"`
	Chamber       int    `json:"chamber"`
}

// DefaultMetadata returns metadata with every field at its sentinel value.
func DefaultMetadata() Metadata {
	return Metadata{
		SubjectID:     metadataDefault,
		RecordingType: metadataDefault,
		Operator:      metadataDefault,
	}
}

// IsDefault reports whether no identifying field was explicitly set. The
// chamber is excluded: chamber 0 is a legitimate default.
func (m Metadata) IsDefault() bool {
	return m.SubjectID == metadataDefault &&
		m.RecordingType == metadataDefault &&
		m.Operator == metadataDefault
}

// MetadataUpdate carries a partial metadata change; nil fields are left
// untouched.
type MetadataUpdate struct {
	SubjectID     *string
	RecordingType *string
	Operator      *string
	Chamber       *int
}

// Record is the complete description of one recording session.
type Record struct {
	SessionID          string  `json:"session_id"`
	StartTimeUTC       float64 `json:"start_time_utc"`
	EndTimeUTC         float64 `json:"end_time_utc"`
	StartTimeLocal     string  `json:"start_time_local"`
	EndTimeLocal       string  `json:"end_time_local"`
	DurationSeconds    float64 `json:"duration_seconds"`
	SubjectID          string  `json:"subject_id"`
	RecordingType      string  `json:"recording_type"`
	Operator           string  `json:"operator"`
	Chamber            int     `json:"chamber"`
	Camera             string  `json:"camera"`
	InstrumentBaseName string  `json:"instrument_base_name"`
	InstrumentPath     string  `json:"instrument_path"`
	VideoFilename      string  `json:"video_filename"`
	ExportStatus       string  `json:"export_status"`
	TransferStatus     string  `json:"transfer_status"`
}

// StartTime returns the session start as a time value.
func (r Record) StartTime() time.Time {
	return epochToTime(r.StartTimeUTC)
}

// EndTime returns the session end as a time value; zero until closed.
func (r Record) EndTime() time.Time {
	if r.EndTimeUTC == 0 {
		return time.Time{}
	}
	return epochToTime(r.EndTimeUTC)
}

func epochToTime(epoch float64) time.Time {
	sec := int64(epoch)
	nsec := int64((epoch - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

func timeToEpoch(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}

// deriveFilename builds the video filename for a session:
// YYMMDDHHMM_<subject>_<type>.mp4, local start time, spaces underscored.
// Two sessions in the same minute with identical subject and type collide;
// accepted limitation.
func deriveFilename(start time.Time, loc *time.Location, subjectID, recordingType string) string {
	timestamp := start.In(loc).Format("0601021504")
	subject := strings.ReplaceAll(subjectID, " ", "_")
	recType := strings.ReplaceAll(recordingType, " ", "_")
	return fmt.Sprintf("%s_%s_%s.mp4", timestamp, subject, recType)
}
