package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/avfarm/common/constants"
	"github.com/avfarm/common/models"
)

// Manager holds the mutable, versioned ClusterConfig distributed to workers
// on register, guarding it with a RWMutex since HTTP handlers read it far
// more often than operators update it.
type Manager struct {
	mu       sync.RWMutex
	config   *models.ClusterConfig
	filePath string
}

// NewManager loads the cluster config from jsonPath, or seeds it from
// defaults if the file does not exist yet.
func NewManager(jsonPath string, defaults models.ClusterConfig) (*Manager, error) {
	m := &Manager{filePath: jsonPath}

	if cfg, err := m.loadFromFile(); err == nil {
		m.config = cfg
		return m, nil
	}

	defaults.UpdatedAt = time.Now()
	if defaults.Version == 0 {
		defaults.Version = 1
	}
	m.config = &defaults

	if err := m.saveToFile(); err != nil {
		return nil, fmt.Errorf("failed to save initial cluster config: %w", err)
	}
	return m, nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() models.ClusterConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.config
}

// Digest returns a stable content hash of the current configuration,
// handed to workers on register so they can tell whether their cached copy
// is stale without re-parsing the whole payload.
func (m *Manager) Digest() string {
	m.mu.RLock()
	cfg := *m.config
	m.mu.RUnlock()

	data, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Update validates and persists a new configuration, bumping Version.
func (m *Manager) Update(cfg models.ClusterConfig) error {
	if err := validateConfig(&cfg); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cfg.UpdatedAt = time.Now()
	cfg.Version = m.config.Version + 1
	m.config = &cfg

	return m.saveToFile()
}

func (m *Manager) loadFromFile() (*models.ClusterConfig, error) {
	// #nosec G304 - filePath is from the coordinator's own config, not untrusted input
	data, err := os.ReadFile(m.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cluster config file: %w", err)
	}

	var cfg models.ClusterConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse cluster config file: %w", err)
	}
	return &cfg, nil
}

func (m *Manager) saveToFile() error {
	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cluster config: %w", err)
	}

	tempPath := m.filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp cluster config file: %w", err)
	}
	if err := os.Rename(tempPath, m.filePath); err != nil {
		return fmt.Errorf("failed to rename cluster config file: %w", err)
	}
	return nil
}

// ValidationError represents a single configuration field failing validation.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every field that failed validateConfig, so an
// operator sees all problems in one response instead of fixing them one at
// a time.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (e *ValidationErrors) Error() string {
	return fmt.Sprintf("validation failed with %d errors", len(e.Errors))
}

func validateConfig(cfg *models.ClusterConfig) error {
	var errs []ValidationError

	if cfg.MinSavingsPct < 0 || cfg.MinSavingsPct > 100 {
		errs = append(errs, ValidationError{Field: "min_savings_pct", Message: "must be between 0 and 100"})
	}

	if cfg.EncoderPreset < 0 || cfg.EncoderPreset > 13 {
		errs = append(errs, ValidationError{Field: "encoder_preset", Message: "must be between 0 (slowest) and 13 (fastest)"})
	}

	validOrders := map[string]bool{
		constants.OrderOldestMtime: true,
		constants.OrderNewestMtime: true,
		constants.OrderLargest:     true,
		constants.OrderSmallest:    true,
	}
	if cfg.FileOrder != "" && !validOrders[cfg.FileOrder] {
		errs = append(errs, ValidationError{
			Field:   "file_order",
			Message: "must be one of: " + constants.OrderOldestMtime + ", " + constants.OrderNewestMtime + ", " + constants.OrderLargest + ", " + constants.OrderSmallest,
		})
	}

	if cfg.MaxAttempts <= 0 {
		errs = append(errs, ValidationError{Field: "max_attempts", Message: "must be greater than 0"})
	}

	if cfg.LivenessTimeoutS <= 0 {
		errs = append(errs, ValidationError{Field: "liveness_timeout_s", Message: "must be greater than 0"})
	}
	if cfg.SweepIntervalS <= 0 {
		errs = append(errs, ValidationError{Field: "sweep_interval_s", Message: "must be greater than 0"})
	}
	if cfg.PinGraceS < 0 {
		errs = append(errs, ValidationError{Field: "pin_grace_s", Message: "must not be negative"})
	}
	if cfg.HeartbeatS <= 0 {
		errs = append(errs, ValidationError{Field: "heartbeat_s", Message: "must be greater than 0"})
	}
	if cfg.ProgressStallS <= 0 {
		errs = append(errs, ValidationError{Field: "progress_stall_s", Message: "must be greater than 0"})
	}
	if cfg.SIGTERMGraceS < 0 {
		errs = append(errs, ValidationError{Field: "sigterm_grace_s", Message: "must not be negative"})
	}

	if cfg.NiceValue < -20 || cfg.NiceValue > 19 {
		errs = append(errs, ValidationError{Field: "nice_value", Message: "must be between -20 and 19"})
	}
	if cfg.IonicePriority < 0 || cfg.IonicePriority > 7 {
		errs = append(errs, ValidationError{Field: "ionice_class", Message: "must be between 0 and 7"})
	}

	if len(errs) > 0 {
		return &ValidationErrors{Errors: errs}
	}
	return nil
}

// DefaultClusterConfig returns the out-of-the-box tunables a fresh
// coordinator starts with before any operator edit, grounded in
// constants.Default* so the defaults live in exactly one place.
func DefaultClusterConfig() models.ClusterConfig {
	return models.ClusterConfig{
		MinSavingsPct:      constants.DefaultMinSavingsPct,
		EncoderPreset:      constants.DefaultEncoderPreset,
		SkipAudioTranscode: false,
		CopySubtitles:      true,
		CopyMetadata:       true,
		FileOrder:          constants.OrderOldestMtime,
		MaxAttempts:        constants.DefaultMaxAttempts,
		LivenessTimeoutS:   constants.DefaultLivenessTimeoutS,
		SweepIntervalS:     constants.DefaultSweepIntervalS,
		PinGraceS:          constants.DefaultPinGraceS,
		HeartbeatS:         constants.DefaultHeartbeatS,
		ProgressStallS:     constants.DefaultProgressStallS,
		SIGTERMGraceS:      constants.DefaultSIGTERMGraceS,
		NiceValue:          constants.DefaultNiceValue,
		IonicePriority:     constants.DefaultIonicePriority,
		TestingMode:        false,
		Version:            1,
	}
}
