// Package store is the coordinator's single source of truth: the SQLite-backed
// job queue and worker-visible file records. Same sql.Open/schema/
// prepared-statement idiom as a one-table job queue tracker, generalized
// to the full FileRecord lifecycle.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avfarm/common/constants"
	"github.com/avfarm/common/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	// SQLite driver for database/sql
	_ "github.com/mattn/go-sqlite3"
)

var (
	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_mutations_total",
		Help: "Total Store mutations by operation and outcome.",
	}, []string{"op", "outcome"})

	mutationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "store_mutation_duration_seconds",
		Help:    "Store mutation latency by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)

// ErrNoWork is returned by ClaimNext when no file is eligible for assignment.
var ErrNoWork = fmt.Errorf("store: no work available")

// ErrStaleLease is returned by any mutating call whose lease_token no
// longer matches the current assignment on the record.
var ErrStaleLease = fmt.Errorf("store: stale lease")

// ErrNotFound is returned when an admin op targets a file ID that doesn't exist.
var ErrNotFound = fmt.Errorf("store: file not found")

// ErrWorkerBusy is returned by ClaimNext when the requesting worker already
// holds an in-flight (assigned or processing) file. A worker must report or
// be reaped before it can claim another.
var ErrWorkerBusy = fmt.Errorf("store: worker already has an in-flight assignment")

// Store owns the files/stats_daily/schema_version tables. Writer is a
// single-connection pool (single-writer discipline); reader is a separate
// pool sized for concurrent snapshot/admin reads.
type Store struct {
	writer *sql.DB
	reader *sql.DB
}

// New opens dbPath in WAL mode and applies the schema if needed.
func New(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", dbPath)

	writer, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open writer connection: %w", err)
	}
	writer.SetMaxOpenConns(1)

	reader, err := sql.Open("sqlite3", dsn)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("failed to open reader pool: %w", err)
	}
	reader.SetMaxOpenConns(4)

	if err := writer.Ping(); err != nil {
		_ = writer.Close()
		_ = reader.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{writer: writer, reader: reader}
	if err := s.initSchema(); err != nil {
		_ = writer.Close()
		_ = reader.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

const schemaVersion = 1

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

	CREATE TABLE IF NOT EXISTS files (
		id                   INTEGER PRIMARY KEY AUTOINCREMENT,
		path                 TEXT NOT NULL UNIQUE,
		directory            TEXT NOT NULL,
		filename             TEXT NOT NULL,
		size_bytes           INTEGER NOT NULL,
		mtime                INTEGER NOT NULL,

		status               TEXT NOT NULL DEFAULT 'pending',
		priority             INTEGER NOT NULL DEFAULT 0,

		preferred_worker_id  TEXT,
		pinned_at            TIMESTAMP,

		assigned_worker_id   TEXT,
		assigned_at          TIMESTAMP,
		last_progress_at     TIMESTAMP,
		lease_token          TEXT,

		source_codec         TEXT,
		source_resolution    TEXT,
		source_audio_codec   TEXT,
		source_bitrate       INTEGER,
		hdr_kind             TEXT NOT NULL DEFAULT 'none',

		target_crf           INTEGER,
		target_audio_bitrate INTEGER,

		output_size_bytes    INTEGER,
		savings_bytes        INTEGER,
		savings_percent      REAL,

		attempt_count        INTEGER NOT NULL DEFAULT 0,
		last_error_kind      TEXT,
		last_error_message   TEXT,
		error_at             TIMESTAMP,
		skip_reason          TEXT,

		created_at           TIMESTAMP NOT NULL,
		updated_at           TIMESTAMP NOT NULL,
		completed_at         TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_files_queue ON files(status, priority DESC, id ASC);
	CREATE INDEX IF NOT EXISTS idx_files_preferred_worker ON files(preferred_worker_id, status);
	CREATE INDEX IF NOT EXISTS idx_files_assigned_worker ON files(assigned_worker_id);

	CREATE TABLE IF NOT EXISTS stats_daily (
		day                     DATE PRIMARY KEY,
		files_completed         INTEGER NOT NULL DEFAULT 0,
		bytes_saved             INTEGER NOT NULL DEFAULT 0,
		avg_savings_percent     REAL NOT NULL DEFAULT 0
	);
	`
	if _, err := s.writer.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var count int
	if err := s.writer.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&count); err != nil {
		return fmt.Errorf("failed to probe schema_version: %w", err)
	}
	if count == 0 {
		if _, err := s.writer.Exec(`INSERT INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("failed to seed schema_version: %w", err)
		}
	}
	return nil
}

// Close closes both connection pools.
func (s *Store) Close() error {
	werr := s.writer.Close()
	rerr := s.reader.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

func instrument(op string) func(outcome string) {
	start := time.Now()
	return func(outcome string) {
		mutationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		mutationsTotal.WithLabelValues(op, outcome).Inc()
	}
}

// UpsertScan records one scanner observation. A brand new path is inserted
// as pending; an existing path whose size/mtime changed while it sat in a
// terminal state is re-enqueued as pending (the mtime-changed-while-assigned
// case is otherwise ignored until the in-flight record reaches a terminal
// state). Returns the live record id and whether this call mutated anything.
func (s *Store) UpsertScan(ctx context.Context, rec models.ScanRecord) (id int64, changed bool, err error) {
	done := instrument("upsert_scan")
	defer func() {
		if err != nil {
			done("error")
		} else {
			done("ok")
		}
	}()

	now := time.Now().UTC()

	var existingID int64
	var status string
	var size, mtime int64
	err = s.writer.QueryRowContext(ctx, `SELECT id, status, size_bytes, mtime FROM files WHERE path = ?`, rec.Path).
		Scan(&existingID, &status, &size, &mtime)

	if err == sql.ErrNoRows {
		directory, filename := splitPath(rec.Path)
		res, insErr := s.writer.ExecContext(ctx, `
			INSERT INTO files (path, directory, filename, size_bytes, mtime, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.Path, directory, filename, rec.Size, rec.Mtime, constants.FileStatusPending, now, now)
		if insErr != nil {
			return 0, false, fmt.Errorf("failed to insert scanned file: %w", insErr)
		}
		newID, _ := res.LastInsertId()
		return newID, true, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up scanned file: %w", err)
	}

	isTerminal := status == constants.FileStatusCompleted || status == constants.FileStatusFailed || status == constants.FileStatusSkipped
	if !isTerminal || (size == rec.Size && mtime == rec.Mtime) {
		return existingID, false, nil
	}

	_, err = s.writer.ExecContext(ctx, `
		UPDATE files SET size_bytes = ?, mtime = ?, status = ?, updated_at = ?,
			output_size_bytes = NULL, savings_bytes = NULL, savings_percent = NULL,
			skip_reason = NULL, attempt_count = 0, last_error_kind = NULL,
			last_error_message = NULL, error_at = NULL, completed_at = NULL
		WHERE id = ?
	`, rec.Size, rec.Mtime, constants.FileStatusPending, now, existingID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to re-enqueue changed file: %w", err)
	}
	return existingID, true, nil
}

// orderColumn maps a cluster-config ordering key onto a SQL ORDER BY clause.
func orderColumn(key string) string {
	switch key {
	case constants.OrderNewestMtime:
		return "mtime DESC"
	case constants.OrderLargest:
		return "size_bytes DESC"
	case constants.OrderSmallest:
		return "size_bytes ASC"
	default:
		return "mtime ASC"
	}
}

// ClaimNext atomically picks the next eligible file for workerID and marks
// it assigned with a fresh lease token. Decision order: files pinned to
// workerID first, then priority DESC, then the configured ordering key. A
// file pinned to another worker is passed over until pinGrace has elapsed
// since it was pinned.
func (s *Store) ClaimNext(ctx context.Context, workerID string, orderingKey string, pinGrace time.Duration) (rec *models.FileRecord, leaseToken string, err error) {
	done := instrument("claim_next")
	defer func() {
		if err != nil {
			done("error")
		} else {
			done("ok")
		}
	}()

	tx, txErr := s.writer.BeginTx(ctx, nil)
	if txErr != nil {
		return nil, "", fmt.Errorf("failed to begin claim transaction: %w", txErr)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	pinCutoff := now.Add(-pinGrace)

	var busy int
	busyErr := tx.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM files
		WHERE assigned_worker_id = ? AND status IN (?, ?)
	`, workerID, constants.FileStatusAssigned, constants.FileStatusProcessing).Scan(&busy)
	if busyErr != nil {
		return nil, "", fmt.Errorf("failed to check in-flight assignment: %w", busyErr)
	}
	if busy > 0 {
		return nil, "", ErrWorkerBusy
	}

	query := fmt.Sprintf(`
		SELECT id FROM files
		WHERE status = ?
		  AND (preferred_worker_id IS NULL OR preferred_worker_id = '' OR preferred_worker_id = ?
		       OR pinned_at IS NULL OR pinned_at < ?)
		ORDER BY CASE WHEN preferred_worker_id = ? THEN 1 ELSE 0 END DESC, priority DESC, %s, id ASC
		LIMIT 1
	`, orderColumn(orderingKey))

	var id int64
	scanErr := tx.QueryRowContext(ctx, query, constants.FileStatusPending, workerID, pinCutoff, workerID).Scan(&id)
	if scanErr == sql.ErrNoRows {
		return nil, "", ErrNoWork
	}
	if scanErr != nil {
		return nil, "", fmt.Errorf("failed to select next file: %w", scanErr)
	}

	leaseToken = newLeaseToken()

	// The WHERE clause only ever admits a pin matching workerID or one past
	// pinCutoff, so by the time a claim succeeds the pin has served its
	// purpose (or expired); clear it so it doesn't linger on a now-assigned
	// record.
	if _, execErr := tx.ExecContext(ctx, `
		UPDATE files SET status = ?, assigned_worker_id = ?, assigned_at = ?,
			last_progress_at = ?, lease_token = ?, attempt_count = attempt_count + 1,
			preferred_worker_id = NULL, pinned_at = NULL, updated_at = ?
		WHERE id = ?
	`, constants.FileStatusAssigned, workerID, now, now, leaseToken, now, id); execErr != nil {
		return nil, "", fmt.Errorf("failed to claim file: %w", execErr)
	}

	claimed, fetchErr := fetchFile(ctx, tx, id)
	if fetchErr != nil {
		return nil, "", fetchErr
	}
	if commitErr := tx.Commit(); commitErr != nil {
		return nil, "", fmt.Errorf("failed to commit claim: %w", commitErr)
	}
	return claimed, leaseToken, nil
}

// RecordProgress updates the live position of an in-flight file and, on the
// first probing callback, its classified source profile.
func (s *Store) RecordProgress(ctx context.Context, fileID int64, leaseToken string, profile *models.SourceProfile) error {
	done := instrument("record_progress")
	now := time.Now().UTC()

	var args []any
	set := "status = ?, last_progress_at = ?, updated_at = ?"
	args = append(args, constants.FileStatusProcessing, now, now)

	if profile != nil {
		set += `, source_codec = ?, source_resolution = ?, hdr_kind = ?`
		args = append(args, profile.VideoCodec, resolutionLabel(profile.Width, profile.Height), profile.HDRKind)
		if len(profile.AudioStreams) > 0 {
			set += `, source_audio_codec = ?`
			args = append(args, profile.AudioStreams[0].Codec)
		}
		if profile.BitrateBPS > 0 {
			set += `, source_bitrate = ?`
			args = append(args, profile.BitrateBPS)
		}
	}

	args = append(args, fileID, leaseToken)
	res, err := s.writer.ExecContext(ctx, fmt.Sprintf(`UPDATE files SET %s WHERE id = ? AND lease_token = ?`, set), args...)
	if err != nil {
		done("error")
		return fmt.Errorf("failed to record progress: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		done("stale")
		return ErrStaleLease
	}
	done("ok")
	return nil
}

// RecordCompletion finalizes a successful encode. Savings below
// minSavingsPct is itself surfaced by the caller's JobLifecycle, not here —
// Store records the numbers as reported.
func (s *Store) RecordCompletion(ctx context.Context, fileID int64, leaseToken string, outputSize int64, crf, audioBitrate int) error {
	done := instrument("record_completion")
	now := time.Now().UTC()

	var origSize int64
	if err := s.writer.QueryRowContext(ctx, `SELECT size_bytes FROM files WHERE id = ? AND lease_token = ?`, fileID, leaseToken).Scan(&origSize); err != nil {
		done("stale")
		if err == sql.ErrNoRows {
			return ErrStaleLease
		}
		return fmt.Errorf("failed to read original size: %w", err)
	}

	savedBytes := origSize - outputSize
	var savingsPct float64
	if origSize > 0 {
		savingsPct = float64(savedBytes) / float64(origSize) * 100
	}

	res, err := s.writer.ExecContext(ctx, `
		UPDATE files SET status = ?, output_size_bytes = ?, savings_bytes = ?, savings_percent = ?,
			target_crf = ?, target_audio_bitrate = ?, completed_at = ?, updated_at = ?,
			assigned_worker_id = NULL, lease_token = NULL
		WHERE id = ? AND lease_token = ?
	`, constants.FileStatusCompleted, outputSize, savedBytes, savingsPct, crf, audioBitrate, now, now, fileID, leaseToken)
	if err != nil {
		done("error")
		return fmt.Errorf("failed to record completion: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		done("stale")
		return ErrStaleLease
	}
	done("ok")
	return nil
}

// RecordFailure either re-enqueues the file as pending (retryable, under
// the attempt ceiling) or marks it permanently failed. It leaves
// attempt_count as the claim set it.
func (s *Store) RecordFailure(ctx context.Context, fileID int64, leaseToken, errKind, errMsg string, retryable bool, maxAttempts int) error {
	done := instrument("record_failure")
	now := time.Now().UTC()

	// attempt_count was already incremented by the claim that issued
	// leaseToken; a failure just decides the file's fate from that count,
	// it does not advance it again.
	var attempts int
	if err := s.writer.QueryRowContext(ctx, `SELECT attempt_count FROM files WHERE id = ? AND lease_token = ?`, fileID, leaseToken).Scan(&attempts); err != nil {
		done("stale")
		if err == sql.ErrNoRows {
			return ErrStaleLease
		}
		return fmt.Errorf("failed to read attempt count: %w", err)
	}

	status := constants.FileStatusPending
	if !retryable || attempts >= maxAttempts {
		status = constants.FileStatusFailed
	}

	res, err := s.writer.ExecContext(ctx, `
		UPDATE files SET status = ?, last_error_kind = ?, last_error_message = ?,
			error_at = ?, updated_at = ?, assigned_worker_id = NULL, lease_token = NULL
		WHERE id = ? AND lease_token = ?
	`, status, errKind, errMsg, now, now, fileID, leaseToken)
	if err != nil {
		done("error")
		return fmt.Errorf("failed to record failure: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		done("stale")
		return ErrStaleLease
	}
	done("ok")
	return nil
}

// RecordSkip marks a file as permanently skipped — a terminal status
// distinct from both completed and failed.
func (s *Store) RecordSkip(ctx context.Context, fileID int64, leaseToken, reason string) error {
	done := instrument("record_skip")
	now := time.Now().UTC()

	res, err := s.writer.ExecContext(ctx, `
		UPDATE files SET status = ?, skip_reason = ?, completed_at = ?, updated_at = ?,
			assigned_worker_id = NULL, lease_token = NULL
		WHERE id = ? AND lease_token = ?
	`, constants.FileStatusSkipped, reason, now, now, fileID, leaseToken)
	if err != nil {
		done("error")
		return fmt.Errorf("failed to record skip: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		done("stale")
		return ErrStaleLease
	}
	done("ok")
	return nil
}

// ReapAssignment reverts an in-flight file (assigned or processing) back to
// pending, clearing its lease. Used by the liveness sweeper when a worker
// has gone silent. It leaves attempt_count unchanged, so the increment made
// by the reaped claim stands.
func (s *Store) ReapAssignment(ctx context.Context, fileID int64) error {
	done := instrument("reap_assignment")
	now := time.Now().UTC()

	_, err := s.writer.ExecContext(ctx, `
		UPDATE files SET status = ?, assigned_worker_id = NULL, lease_token = NULL, updated_at = ?
		WHERE id = ? AND status IN (?, ?)
	`, constants.FileStatusPending, now, fileID, constants.FileStatusAssigned, constants.FileStatusProcessing)
	if err != nil {
		done("error")
		return fmt.Errorf("failed to reap assignment: %w", err)
	}
	done("ok")
	return nil
}

// ReapAssignmentsForWorker reverts every in-flight file assigned to workerID
// back to pending, clearing their leases in one statement. Used by the
// liveness sweeper once a worker has been declared stale, instead of
// looking up and reaping each of its files individually.
func (s *Store) ReapAssignmentsForWorker(ctx context.Context, workerID string) (int64, error) {
	done := instrument("reap_assignments_for_worker")
	now := time.Now().UTC()

	res, err := s.writer.ExecContext(ctx, `
		UPDATE files SET status = ?, assigned_worker_id = NULL, lease_token = NULL, updated_at = ?
		WHERE assigned_worker_id = ? AND status IN (?, ?)
	`, constants.FileStatusPending, now, workerID, constants.FileStatusAssigned, constants.FileStatusProcessing)
	if err != nil {
		done("error")
		return 0, fmt.Errorf("failed to reap assignments for worker %s: %w", workerID, err)
	}
	done("ok")
	return res.RowsAffected()
}

// GetFile returns a single file record by id.
func (s *Store) GetFile(ctx context.Context, id int64) (*models.FileRecord, error) {
	rec, err := fetchFile(ctx, s.reader, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListFiles returns files, optionally filtered by status, newest-updated first.
func (s *Store) ListFiles(ctx context.Context, status string, limit int) ([]models.FileRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = s.reader.QueryContext(ctx, selectFileColumns+` FROM files WHERE status = ? ORDER BY updated_at DESC LIMIT ?`, status, limit)
	} else {
		rows, err = s.reader.QueryContext(ctx, selectFileColumns+` FROM files ORDER BY updated_at DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.FileRecord
	for rows.Next() {
		rec, scanErr := scanFile(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// SnapshotForUI computes the live /status aggregate plus the persisted
// daily rollups.
func (s *Store) SnapshotForUI(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{}

	rows, err := s.reader.QueryContext(ctx, `SELECT status, COUNT(*) FROM files GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query status counts: %w", err)
	}
	for rows.Next() {
		var status string
		var count int64
		if scanErr := rows.Scan(&status, &count); scanErr != nil {
			_ = rows.Close()
			return nil, scanErr
		}
		switch status {
		case constants.FileStatusPending:
			stats.Pending = count
		case constants.FileStatusAssigned:
			stats.Assigned = count
		case constants.FileStatusProcessing:
			stats.Processing = count
		case constants.FileStatusCompleted:
			stats.Completed = count
		case constants.FileStatusFailed:
			stats.Failed = count
		case constants.FileStatusSkipped:
			stats.Skipped = count
		}
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var savedBytes sql.NullInt64
	var avgSavings sql.NullFloat64
	if err := s.reader.QueryRowContext(ctx, `
		SELECT SUM(savings_bytes), AVG(savings_percent) FROM files WHERE status = ?
	`, constants.FileStatusCompleted).Scan(&savedBytes, &avgSavings); err != nil {
		return nil, fmt.Errorf("failed to aggregate savings: %w", err)
	}
	stats.TotalBytesSaved = savedBytes.Int64
	stats.AverageSavingsPercent = avgSavings.Float64

	dailyRows, err := s.reader.QueryContext(ctx, `
		SELECT day, files_completed, bytes_saved, avg_savings_percent FROM stats_daily ORDER BY day DESC LIMIT 30
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats_daily: %w", err)
	}
	defer func() { _ = dailyRows.Close() }()
	for dailyRows.Next() {
		var d models.StatsDaily
		if scanErr := dailyRows.Scan(&d.Day, &d.FilesCompleted, &d.BytesSaved, &d.AverageSavingsPercent); scanErr != nil {
			return nil, scanErr
		}
		stats.Daily = append(stats.Daily, d)
	}
	return stats, dailyRows.Err()
}

// RollupDay materializes stats_daily for the given day from the files
// table, called once per day (plus once eagerly at startup) by the
// cron-scheduled rollup job.
func (s *Store) RollupDay(ctx context.Context, day time.Time) error {
	dayStr := day.UTC().Format("2006-01-02")
	var filesCompleted int64
	var bytesSaved sql.NullInt64
	var avgSavings sql.NullFloat64

	err := s.writer.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(savings_bytes), AVG(savings_percent)
		FROM files WHERE status = ? AND date(completed_at) = ?
	`, constants.FileStatusCompleted, dayStr).Scan(&filesCompleted, &bytesSaved, &avgSavings)
	if err != nil {
		return fmt.Errorf("failed to aggregate day %s: %w", dayStr, err)
	}

	_, err = s.writer.ExecContext(ctx, `
		INSERT INTO stats_daily (day, files_completed, bytes_saved, avg_savings_percent)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			files_completed = excluded.files_completed,
			bytes_saved = excluded.bytes_saved,
			avg_savings_percent = excluded.avg_savings_percent
	`, dayStr, filesCompleted, bytesSaved.Int64, avgSavings.Float64)
	if err != nil {
		return fmt.Errorf("failed to upsert stats_daily for %s: %w", dayStr, err)
	}
	return nil
}

// --- admin operations ---

// ResetFile clears a failed/completed/skipped file back to pending.
func (s *Store) ResetFile(ctx context.Context, id int64) error {
	return s.adminTransition(ctx, id, `
		UPDATE files SET status = ?, attempt_count = 0, last_error_kind = NULL, last_error_message = NULL,
			error_at = NULL, skip_reason = NULL, completed_at = NULL, updated_at = ? WHERE id = ?
	`, constants.FileStatusPending)
}

// RetryFile clears a failed file's error state and re-enqueues it as
// pending without resetting attempt_count, so MAX_ATTEMPTS still applies.
func (s *Store) RetryFile(ctx context.Context, id int64) error {
	return s.adminTransition(ctx, id, `
		UPDATE files SET status = ?, last_error_kind = NULL, last_error_message = NULL,
			error_at = NULL, updated_at = ? WHERE id = ?
	`, constants.FileStatusPending)
}

// SkipFile marks a pending/failed file as manually skipped by an operator.
func (s *Store) SkipFile(ctx context.Context, id int64, reason string) error {
	now := time.Now().UTC()
	res, err := s.writer.ExecContext(ctx, `
		UPDATE files SET status = ?, skip_reason = ?, completed_at = ?, updated_at = ? WHERE id = ?
	`, constants.FileStatusSkipped, reason, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to skip file: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPriority sets a file's scheduling priority without touching its
// status or error state — priority and retry are orthogonal.
func (s *Store) SetPriority(ctx context.Context, id int64, priority int32) error {
	now := time.Now().UTC()
	res, err := s.writer.ExecContext(ctx, `UPDATE files SET priority = ?, updated_at = ? WHERE id = ?`, priority, now, id)
	if err != nil {
		return fmt.Errorf("failed to set priority: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPreferredWorker soft-pins a file to workerID: ClaimNext will prefer it
// over other workers until pinGrace elapses or the pinned worker claims it,
// whichever comes first. Passing an empty workerID clears the pin.
func (s *Store) SetPreferredWorker(ctx context.Context, id int64, workerID string) error {
	now := time.Now().UTC()
	var preferred sql.NullString
	var pinnedAt sql.NullTime
	if workerID != "" {
		preferred = sql.NullString{String: workerID, Valid: true}
		pinnedAt = sql.NullTime{Time: now, Valid: true}
	}
	res, err := s.writer.ExecContext(ctx, `
		UPDATE files SET preferred_worker_id = ?, pinned_at = ?, updated_at = ? WHERE id = ?
	`, preferred, pinnedAt, now, id)
	if err != nil {
		return fmt.Errorf("failed to set preferred worker: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteFile removes a file record outright (the on-disk media is untouched).
func (s *Store) DeleteFile(ctx context.Context, id int64) error {
	res, err := s.writer.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetFailedFiles bulk-resets every failed file to pending; returns the
// number of rows affected.
func (s *Store) ResetFailedFiles(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	res, err := s.writer.ExecContext(ctx, `
		UPDATE files SET status = ?, attempt_count = 0, last_error_kind = NULL, last_error_message = NULL,
			error_at = NULL, updated_at = ? WHERE status = ?
	`, constants.FileStatusPending, now, constants.FileStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk reset failed files: %w", err)
	}
	return res.RowsAffected()
}

// DeleteCompletedFiles bulk-deletes every completed file's record (not the
// media itself); returns the number of rows affected.
func (s *Store) DeleteCompletedFiles(ctx context.Context) (int64, error) {
	res, err := s.writer.ExecContext(ctx, `DELETE FROM files WHERE status = ?`, constants.FileStatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk delete completed files: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) adminTransition(ctx context.Context, id int64, query, newStatus string) error {
	now := time.Now().UTC()
	res, err := s.writer.ExecContext(ctx, query, newStatus, now, id)
	if err != nil {
		return fmt.Errorf("failed to transition file %d: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}
