// Package models defines the data shared between the coordinator, workers,
// and CLI: the file and worker records, RPC payloads, and configuration
// shapes that cross process boundaries.
package models

import "time"

// FileRecord is the unit of work. Stable identity is ID; the natural key is
// the absolute canonical Path. Only JobLifecycle mutates a FileRecord, and
// only through the Store's write path.
type FileRecord struct {
	ID        int64  `json:"id"`
	Path      string `json:"path"`
	Directory string `json:"directory"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Mtime     int64  `json:"mtime"` // unix seconds, as observed by the scanner

	Status   string `json:"status"` // see constants.FileStatus*
	Priority int32  `json:"priority"`

	PreferredWorkerID string     `json:"preferred_worker_id,omitempty"`
	PinnedAt           *time.Time `json:"pinned_at,omitempty"`

	AssignedWorkerID string     `json:"assigned_worker_id,omitempty"`
	AssignedAt       *time.Time `json:"assigned_at,omitempty"`
	LastProgressAt   *time.Time `json:"last_progress_at,omitempty"`
	LeaseToken       string     `json:"lease_token,omitempty"`

	SourceCodec      string `json:"source_codec,omitempty"`
	SourceResolution string `json:"source_resolution,omitempty"` // SD|720p|1080p|1440p|4k
	SourceAudioCodec string `json:"source_audio_codec,omitempty"`
	SourceBitrate    int64  `json:"source_bitrate,omitempty"` // bits/sec
	HDRKind          string `json:"hdr_kind"`                 // see constants.HDRKind*

	TargetCRF          int `json:"target_crf,omitempty"`
	TargetAudioBitrate int `json:"target_audio_bitrate,omitempty"` // kbps

	OutputSizeBytes int64   `json:"output_size_bytes,omitempty"`
	SavingsBytes    int64   `json:"savings_bytes,omitempty"`
	SavingsPercent  float64 `json:"savings_percent,omitempty"`

	AttemptCount     int        `json:"attempt_count"`
	LastErrorKind    string     `json:"last_error_kind,omitempty"`
	LastErrorMessage string     `json:"last_error_message,omitempty"`
	ErrorAt          *time.Time `json:"error_at,omitempty"`
	SkipReason       string     `json:"skip_reason,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// InFlight reports whether the record currently holds a live assignment.
func (f *FileRecord) InFlight() bool {
	return f.Status == "assigned" || f.Status == "processing"
}

// ScanRecord is what the pluggable directory source yields per file; the
// scanner never reads media metadata itself, only path/size/mtime.
type ScanRecord struct {
	Path  string
	Size  int64
	Mtime int64
}
