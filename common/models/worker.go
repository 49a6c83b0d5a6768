package models

import "time"

// Capabilities describes what a worker announced at registration. Populated
// from real host telemetry (gopsutil) on the worker side, not placeholders.
type Capabilities struct {
	CPUCount                int    `json:"cpu_count"`
	MemoryTotalBytes        uint64 `json:"memory_total_bytes"`
	EncoderPresets          []int  `json:"encoder_presets"`
	SupportsFileDistribution bool  `json:"supports_file_distribution"`
}

// Worker is ephemeral; not durable across a coordinator restart.
type Worker struct {
	ID           string       `json:"id"`
	DisplayName  string       `json:"display_name"`
	Hostname     string       `json:"hostname"`
	Version      string       `json:"version"`
	Capabilities Capabilities `json:"capabilities"`

	Status  string `json:"status"` // see constants.WorkerStatus*
	FadeOut bool   `json:"fade_out"`

	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
	CurrentFileID   int64     `json:"current_file_id,omitempty"`
	CurrentProgress float64   `json:"current_progress"`
	CurrentSpeed    float64   `json:"current_speed"` // fps
	CurrentETA      int64     `json:"current_eta"`   // seconds

	CPUPercent float64 `json:"cpu_percent"`
	MemPercent float64 `json:"mem_percent"`

	JobsCompleted        int64 `json:"jobs_completed"`
	JobsFailed           int64 `json:"jobs_failed"`
	TotalBytesProcessed  int64 `json:"total_bytes_processed"`

	// PendingCancelLease, when non-empty, is returned once on the worker's
	// next heartbeat as cancel_current and then cleared — the coordinator
	// never pushes to a worker.
	PendingCancelLease string `json:"-"`
}

// Assignment is the coordinator's authorization for worker_id to process
// file_id, identified by lease_token, held in memory and mirrored on the
// FileRecord. A worker holds at most one live assignment.
type Assignment struct {
	FileID     int64
	WorkerID   string
	LeaseToken string
	Deadline   time.Time
}
