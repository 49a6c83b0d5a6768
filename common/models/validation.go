package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/avfarm/common/constants"
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors represents a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors: ", len(e)))
	for i, err := range e {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Validate validates a FileRecord's invariants that don't require store
// access (status enum, attempt bounds, lease/assignment agreement).
func (f *FileRecord) Validate() error {
	var errs ValidationErrors

	if f.Path == "" {
		errs = append(errs, ValidationError{Field: "Path", Message: "cannot be empty"})
	}
	if !isValidFileStatus(f.Status) {
		errs = append(errs, ValidationError{
			Field:   "Status",
			Message: fmt.Sprintf("invalid status %q", f.Status),
		})
	}
	if f.AttemptCount < 0 {
		errs = append(errs, ValidationError{Field: "AttemptCount", Message: "cannot be negative"})
	}
	if f.AssignedWorkerID != "" {
		if !f.InFlight() {
			errs = append(errs, ValidationError{Field: "Status", Message: "assigned_worker_id set but status is not assigned/processing"})
		}
		if f.LeaseToken == "" {
			errs = append(errs, ValidationError{Field: "LeaseToken", Message: "cannot be empty when assigned_worker_id is set"})
		}
	}
	if f.Status == constants.FileStatusCompleted {
		if f.OutputSizeBytes <= 0 {
			errs = append(errs, ValidationError{Field: "OutputSizeBytes", Message: "must be positive for a completed record"})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Validate validates a Worker's heartbeat-carried fields.
func (w *Worker) Validate() error {
	var errs ValidationErrors

	if w.ID == "" {
		errs = append(errs, ValidationError{Field: "ID", Message: "cannot be empty"})
	}
	if !isValidWorkerStatus(w.Status) {
		errs = append(errs, ValidationError{
			Field:   "Status",
			Message: fmt.Sprintf("invalid status %q", w.Status),
		})
	}
	if w.CPUPercent < 0 || w.CPUPercent > 100 {
		errs = append(errs, ValidationError{Field: "CPUPercent", Message: "must be between 0 and 100"})
	}
	if w.MemPercent < 0 || w.MemPercent > 100 {
		errs = append(errs, ValidationError{Field: "MemPercent", Message: "must be between 0 and 100"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Validate validates a ClusterConfig's tunables before it is persisted and
// handed out on register.
func (c *ClusterConfig) Validate() error {
	var errs ValidationErrors

	if c.MinSavingsPct < 0 || c.MinSavingsPct > 100 {
		errs = append(errs, ValidationError{Field: "MinSavingsPct", Message: "must be between 0 and 100"})
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, ValidationError{Field: "MaxAttempts", Message: "must be at least 1"})
	}
	if c.LivenessTimeoutS < 1 {
		errs = append(errs, ValidationError{Field: "LivenessTimeoutS", Message: "must be positive"})
	}
	if c.PinGraceS < 0 {
		errs = append(errs, ValidationError{Field: "PinGraceS", Message: "cannot be negative"})
	}
	if !isValidFileOrder(c.FileOrder) {
		errs = append(errs, ValidationError{
			Field:   "FileOrder",
			Message: fmt.Sprintf("invalid file_order %q, must be one of: oldest_mtime, newest_mtime, largest_size, smallest_size", c.FileOrder),
		})
	}
	if c.EncoderPreset < 0 || c.EncoderPreset > 13 {
		errs = append(errs, ValidationError{Field: "EncoderPreset", Message: "must be between 0 and 13"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Validate validates the LoggingSettings fields.
func (l *LoggingSettings) Validate() error {
	var errs ValidationErrors

	if !isValidLogLevel(l.Level) && l.Level != "" {
		errs = append(errs, ValidationError{
			Field:   "Level",
			Message: fmt.Sprintf("invalid log level %q, must be one of: debug, info, warn, error", l.Level),
		})
	}
	if !isValidLogFormat(l.Format) && l.Format != "" {
		errs = append(errs, ValidationError{
			Field:   "Format",
			Message: fmt.Sprintf("invalid log format %q, must be one of: json, text", l.Format),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func isValidFileStatus(status string) bool {
	switch status {
	case constants.FileStatusPending, constants.FileStatusAssigned, constants.FileStatusProcessing,
		constants.FileStatusCompleted, constants.FileStatusFailed, constants.FileStatusSkipped:
		return true
	default:
		return false
	}
}

func isValidWorkerStatus(status string) bool {
	switch status {
	case constants.WorkerStatusRegistering, constants.WorkerStatusIdle,
		constants.WorkerStatusProcessing, constants.WorkerStatusOffline:
		return true
	default:
		return false
	}
}

func isValidFileOrder(order string) bool {
	switch order {
	case constants.OrderOldestMtime, constants.OrderNewestMtime,
		constants.OrderLargest, constants.OrderSmallest:
		return true
	default:
		return false
	}
}

func isValidLogLevel(level string) bool {
	switch level {
	case constants.LogLevelDebug, constants.LogLevelInfo,
		constants.LogLevelWarn, constants.LogLevelError:
		return true
	default:
		return false
	}
}

func isValidLogFormat(format string) bool {
	switch format {
	case constants.LogFormatJSON, constants.LogFormatText:
		return true
	default:
		return false
	}
}

// Serialization helpers.

func (f *FileRecord) ToJSON() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal file record to JSON: %w", err)
	}
	return data, nil
}

func FileRecordFromJSON(data []byte) (*FileRecord, error) {
	var f FileRecord
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal file record from JSON: %w", err)
	}
	return &f, nil
}

func (c *ClusterConfig) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cluster config to JSON: %w", err)
	}
	return data, nil
}

func ClusterConfigFromJSON(data []byte) (*ClusterConfig, error) {
	var c ClusterConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cluster config from JSON: %w", err)
	}
	return &c, nil
}

func (c *CoordinatorConfig) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal coordinator config to YAML: %w", err)
	}
	return data, nil
}

func CoordinatorConfigFromYAML(data []byte) (*CoordinatorConfig, error) {
	var c CoordinatorConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal coordinator config from YAML: %w", err)
	}
	return &c, nil
}

func (c *WorkerConfig) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal worker config to YAML: %w", err)
	}
	return data, nil
}

func WorkerConfigFromYAML(data []byte) (*WorkerConfig, error) {
	var c WorkerConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal worker config from YAML: %w", err)
	}
	return &c, nil
}

// IsValidationError checks if an error is a ValidationError or ValidationErrors.
func IsValidationError(err error) bool {
	var ve ValidationError
	var ves ValidationErrors
	return errors.As(err, &ve) || errors.As(err, &ves)
}
