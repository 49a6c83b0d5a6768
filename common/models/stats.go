package models

import "time"

// Stats is the coordinator's point-in-time snapshot of queue and worker
// health, served by /status and fed by Store.SnapshotForUI.
type Stats struct {
	Pending    int64 `json:"pending"`
	Assigned   int64 `json:"assigned"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Skipped    int64 `json:"skipped"`

	TotalBytesSaved      int64   `json:"total_bytes_saved"`
	AverageSavingsPercent float64 `json:"average_savings_percent"`

	WorkersOnline int `json:"workers_online"`
	WorkersTotal  int `json:"workers_total"`

	Daily []StatsDaily `json:"daily,omitempty"`
}

// StatsDaily is one materialized row of the stats_daily rollup table.
type StatsDaily struct {
	Day                  time.Time `json:"day"`
	FilesCompleted       int64     `json:"files_completed"`
	BytesSaved           int64     `json:"bytes_saved"`
	AverageSavingsPercent float64  `json:"average_savings_percent"`
}
