package models

import "time"

// LoggingSettings is the ambient logging configuration shared by both the
// coordinator and workers.
type LoggingSettings struct {
	Level      string `yaml:"level"` // debug, info, warn, error
	Format     string `yaml:"format"` // json, text
	OutputPath string `yaml:"output_path"`
}

// CoordinatorConfig is the coordinator's static bootstrap configuration —
// everything that doesn't change without a restart.
type CoordinatorConfig struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	Scanner struct {
		RootPath        string        `yaml:"root_path"`
		VideoExtensions []string      `yaml:"video_extensions"`
		RecursiveDepth  int           `yaml:"recursive_depth"`
		ScanInterval    time.Duration `yaml:"scan_interval"` // 0 disables periodic rescans
	} `yaml:"scanner"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	// ClusterConfigPath is where the mutable, versioned ClusterConfig is
	// persisted and reloaded from across restarts.
	ClusterConfigPath string `yaml:"cluster_config_path"`

	Logging LoggingSettings `yaml:"logging"`
}

// WorkerConfig is a worker's static bootstrap configuration.
type WorkerConfig struct {
	Worker struct {
		ID                string        `yaml:"id"`
		DisplayName       string        `yaml:"display_name"`
		Concurrency       int           `yaml:"concurrency"` // values above 1 are only logged as unsupported; a worker runs one job at a time
		CoordinatorURL    string        `yaml:"coordinator_url"`
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
		JobCheckInterval  time.Duration `yaml:"job_check_interval"`

		// InitialBackoffInterval/MaxBackoffInterval govern the poll loop's
		// exponential backoff when the coordinator reports no_work or a
		// request fails; reset to InitialBackoffInterval on success.
		InitialBackoffInterval time.Duration `yaml:"initial_backoff_interval"`
		MaxBackoffInterval     time.Duration `yaml:"max_backoff_interval"`
	} `yaml:"worker"`

	Storage struct {
		TempDir         string        `yaml:"temp_dir"`
		DownloadTimeout time.Duration `yaml:"download_timeout"`
		UploadTimeout   time.Duration `yaml:"upload_timeout"`
		ChunkSize       int           `yaml:"chunk_size"`
	} `yaml:"storage"`

	FFmpeg struct {
		Path        string        `yaml:"path"`
		FFprobePath string        `yaml:"ffprobe_path"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"ffmpeg"`

	Logging LoggingSettings `yaml:"logging"`
}

// ClusterConfig is distributed to workers on register, key/value, versioned
// by a content digest. It is the only place cluster-wide tunables live —
// workers never hardcode MIN_SAVINGS_PCT, MAX_ATTEMPTS, etc.
type ClusterConfig struct {
	MinSavingsPct      float64 `json:"min_savings_pct"`
	EncoderPreset      int     `json:"encoder_preset"`
	SkipAudioTranscode bool    `json:"skip_audio_transcode"`
	CopySubtitles      bool    `json:"copy_subtitles"`
	CopyMetadata       bool    `json:"copy_metadata"`
	FileOrder          string  `json:"file_order"` // oldest_mtime|newest_mtime|largest_size|smallest_size
	MaxAttempts        int     `json:"max_attempts"`
	LivenessTimeoutS   int     `json:"liveness_timeout_s"`
	SweepIntervalS     int     `json:"sweep_interval_s"`
	PinGraceS          int     `json:"pin_grace_s"`
	HeartbeatS         int     `json:"heartbeat_s"`
	ProgressStallS     int     `json:"progress_stall_s"`
	SIGTERMGraceS      int     `json:"sigterm_grace_s"`
	NiceValue          int     `json:"nice_value"`
	IonicePriority      int     `json:"ionice_class"`
	TestingMode        bool    `json:"testing_mode"`

	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}
