// Package constants holds the enumerations shared by the coordinator,
// workers, and CLI — status values, error kinds, and defaults that appear
// on the wire and in the store.
package constants

// FileRecord statuses.
const (
	FileStatusPending    = "pending"
	FileStatusAssigned   = "assigned"
	FileStatusProcessing = "processing"
	FileStatusCompleted  = "completed"
	FileStatusFailed     = "failed"
	FileStatusSkipped    = "skipped"
)

// Worker statuses.
const (
	WorkerStatusRegistering = "registering"
	WorkerStatusIdle        = "idle"
	WorkerStatusProcessing  = "processing"
	WorkerStatusOffline     = "offline"
)

// HDR classifications.
const (
	HDRKindNone        = "none"
	HDRKindHDR10       = "hdr10"
	HDRKindHDR10Plus   = "hdr10plus"
	HDRKindDolbyVision = "dolby_vision"
	HDRKindUnknown     = "unknown"
)

// Skip reasons — terminal, not a failure.
const (
	SkipDynamicHDRUnpreservable  = "dynamic_hdr_unpreservable"
	SkipAlreadyEfficient         = "already_efficient"
	SkipNonVideo                 = "non_video"
	SkipOutputSmallerThanThresh  = "output_smaller_than_threshold"
)

// Error kinds the lifecycle understands.
const (
	// Retryable.
	ErrKindTransferError = "transfer_error"
	ErrKindProbeTimeout  = "probe_timeout"
	ErrKindEncoderCrash  = "encoder_crash"
	ErrKindWorkerOffline = "worker_offline"
	ErrKindStaleLease     = "stale_lease"
	ErrKindStalled        = "stalled"

	// Fatal.
	ErrKindMalformedSource    = "malformed_source"
	ErrKindDiskFull           = "disk_full"
	ErrKindSafeReplaceFailed  = "safe_replace_failed"

	// Transport/encoder detail kinds surfaced through TransferError/TranscodeError.
	ErrKindHashMismatch = "hash_mismatch"
	ErrKindKilled       = "killed"
	ErrKindEmptyOutput  = "empty_output"
	ErrKindIOError      = "io_error"
	ErrKindUnreadable   = "unreadable"
	ErrKindMalformed    = "malformed"
)

// File ordering strategies for the scheduler's tie-break key.
const (
	OrderOldestMtime = "oldest_mtime"
	OrderNewestMtime = "newest_mtime"
	OrderLargest     = "largest_size"
	OrderSmallest    = "smallest_size"
)

// Progress phases reported by a worker during an assignment.
const (
	PhaseDownloading = "downloading"
	PhaseProbing     = "probing"
	PhaseTranscoding = "transcoding"
	PhaseUploading   = "uploading"
	PhaseVerifying   = "verifying"
)

// Cluster-wide defaults (overridable via cluster config; see models.ClusterConfig).
const (
	DefaultMinSavingsPct    = 5
	DefaultMaxAttempts      = 3
	DefaultLivenessTimeoutS = 30
	DefaultSweepIntervalS   = 10
	DefaultPinGraceS        = 60
	DefaultHeartbeatS       = 10
	DefaultProgressStallS   = 300
	DefaultSIGTERMGraceS    = 5
	DefaultEncoderPreset    = 8
	DefaultNiceValue        = 10
	DefaultIonicePriority   = 3
)

// Log levels / formats.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)
