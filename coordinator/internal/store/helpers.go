package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/avfarm/common/models"
	"github.com/avfarm/common/utils"
)

const selectFileColumns = `
	SELECT id, path, directory, filename, size_bytes, mtime, status, priority,
		preferred_worker_id, pinned_at, assigned_worker_id, assigned_at, last_progress_at, lease_token,
		source_codec, source_resolution, source_audio_codec, source_bitrate, hdr_kind,
		target_crf, target_audio_bitrate,
		output_size_bytes, savings_bytes, savings_percent,
		attempt_count, last_error_kind, last_error_message, error_at, skip_reason,
		created_at, updated_at, completed_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// queryRowContext is satisfied by *sql.DB and *sql.Tx.
type queryRowContext interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func fetchFile(ctx context.Context, q queryRowContext, id int64) (*models.FileRecord, error) {
	row := q.QueryRowContext(ctx, selectFileColumns+` FROM files WHERE id = ?`, id)
	return scanFile(row)
}

func scanFile(row rowScanner) (*models.FileRecord, error) {
	var f models.FileRecord
	var preferredWorkerID, assignedWorkerID, leaseToken sql.NullString
	var sourceCodec, sourceResolution, sourceAudioCodec sql.NullString
	var sourceBitrate sql.NullInt64
	var targetCRF, targetAudioBitrate sql.NullInt64
	var outputSize, savingsBytes sql.NullInt64
	var savingsPercent sql.NullFloat64
	var lastErrorKind, lastErrorMessage, skipReason sql.NullString
	var pinnedAt, assignedAt, lastProgressAt, errorAt, completedAt sql.NullTime

	err := row.Scan(
		&f.ID, &f.Path, &f.Directory, &f.Filename, &f.SizeBytes, &f.Mtime, &f.Status, &f.Priority,
		&preferredWorkerID, &pinnedAt, &assignedWorkerID, &assignedAt, &lastProgressAt, &leaseToken,
		&sourceCodec, &sourceResolution, &sourceAudioCodec, &sourceBitrate, &f.HDRKind,
		&targetCRF, &targetAudioBitrate,
		&outputSize, &savingsBytes, &savingsPercent,
		&f.AttemptCount, &lastErrorKind, &lastErrorMessage, &errorAt, &skipReason,
		&f.CreatedAt, &f.UpdatedAt, &completedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan file row: %w", err)
	}

	f.PreferredWorkerID = preferredWorkerID.String
	f.AssignedWorkerID = assignedWorkerID.String
	f.LeaseToken = leaseToken.String
	f.SourceCodec = sourceCodec.String
	f.SourceResolution = sourceResolution.String
	f.SourceAudioCodec = sourceAudioCodec.String
	f.SourceBitrate = sourceBitrate.Int64
	f.TargetCRF = int(targetCRF.Int64)
	f.TargetAudioBitrate = int(targetAudioBitrate.Int64)
	f.OutputSizeBytes = outputSize.Int64
	f.SavingsBytes = savingsBytes.Int64
	f.SavingsPercent = savingsPercent.Float64
	f.LastErrorKind = lastErrorKind.String
	f.LastErrorMessage = lastErrorMessage.String
	f.SkipReason = skipReason.String

	if pinnedAt.Valid {
		f.PinnedAt = &pinnedAt.Time
	}
	if assignedAt.Valid {
		f.AssignedAt = &assignedAt.Time
	}
	if lastProgressAt.Valid {
		f.LastProgressAt = &lastProgressAt.Time
	}
	if errorAt.Valid {
		f.ErrorAt = &errorAt.Time
	}
	if completedAt.Valid {
		f.CompletedAt = &completedAt.Time
	}
	return &f, nil
}

func splitPath(path string) (directory, filename string) {
	return filepath.Dir(path), filepath.Base(path)
}

func resolutionLabel(width, height int) string {
	switch {
	case height <= 0:
		return ""
	case height <= 480:
		return "SD"
	case height <= 720:
		return "720p"
	case height <= 1080:
		return "1080p"
	case height <= 1440:
		return "1440p"
	default:
		return "4k"
	}
}

func newLeaseToken() string {
	token, err := utils.GenerateSecureToken()
	if err != nil {
		// crypto/rand failing indicates a broken host RNG; fall back to a
		// time-derived token rather than leaving the lease empty.
		return fmt.Sprintf("lease-%d", time.Now().UnixNano())
	}
	return token
}
