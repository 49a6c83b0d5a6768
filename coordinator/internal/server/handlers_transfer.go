package server

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avfarm/common/constants"
	"github.com/avfarm/common/models"
	"github.com/avfarm/common/utils"
	"github.com/avfarm/coordinator/internal/lifecycle"
	"github.com/avfarm/coordinator/internal/safereplace"
	"github.com/avfarm/coordinator/internal/store"
)

// parsePathInt64 extracts and validates a chi URL int64 param, writing the
// error response itself so handlers can early-return on !ok.
func parsePathInt64(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return id, true
}

// uploadSession tracks one in-flight worker upload awaiting its terminal
// report. Keyed by (file_id, lease_token) — a stale or abandoned upload is
// swept after uploadTTL rather than leaking a temp file forever.
type uploadSession struct {
	tempPath     string
	bytesWritten int64
	contentHash  string
	expiresAt    time.Time
}

const uploadTTL = 2 * time.Hour

// uploadTracker is the FileTransfer component's resumable-upload table: a
// session keyed by (file_id, lease_token), created on the first POST and
// looked up again on a PUT continuation or the final report. No separate
// upload-id is issued to the worker.
type uploadTracker struct {
	mu       sync.Mutex
	sessions map[string]*uploadSession
	ticker   *time.Ticker
}

func newUploadTracker() *uploadTracker {
	t := &uploadTracker{
		sessions: make(map[string]*uploadSession),
		ticker:   time.NewTicker(10 * time.Minute),
	}
	go t.sweep()
	return t
}

func uploadKey(fileID int64, leaseToken string) string {
	return fmt.Sprintf("%d:%s", fileID, leaseToken)
}

func (t *uploadTracker) put(fileID int64, leaseToken string, sess *uploadSession) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[uploadKey(fileID, leaseToken)] = sess
}

func (t *uploadTracker) get(fileID int64, leaseToken string) (*uploadSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.sessions[uploadKey(fileID, leaseToken)]
	return sess, ok
}

func (t *uploadTracker) remove(fileID int64, leaseToken string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, uploadKey(fileID, leaseToken))
}

func (t *uploadTracker) sweep() {
	for range t.ticker.C {
		t.mu.Lock()
		now := time.Now()
		for key, sess := range t.sessions {
			if now.After(sess.expiresAt) {
				_ = os.Remove(sess.tempPath)
				delete(t.sessions, key)
			}
		}
		t.mu.Unlock()
	}
}

func (t *uploadTracker) stop() {
	t.ticker.Stop()
}

// handleDownload implements GET /files/{id}/bytes?offset=K: the worker's
// source-file download, resumable from offset and verified end-to-end with
// the X-Content-Hash response header.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	fileID, ok := parsePathInt64(w, r, "id")
	if !ok {
		return
	}

	rec, err := s.store.GetFile(r.Context(), fileID)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown file")
		return
	}

	var offset int64
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, _ = strconv.ParseInt(raw, 10, 64)
	}

	safePath, err := utils.ValidatePathWithinBase(s.mediaRoot, rec.Path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "source path outside media root")
		return
	}

	f, err := os.Open(safePath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "source file unreadable")
		return
	}
	defer func() { _ = f.Close() }()

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to seek source file")
			return
		}
	}

	hash, err := utils.CalculateFileSHA256(safePath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hash source file")
		return
	}
	w.Header().Set("X-Content-Hash", hash)
	w.Header().Set("Content-Type", "application/octet-stream")

	status := http.StatusOK
	if offset > 0 {
		status = http.StatusPartialContent
	}
	w.WriteHeader(status)
	n, _ := io.Copy(w, f)
	s.metrics.RecordBytesDownloaded(n)
}

// handleUpload implements POST /files/{id}/result: the worker streams its
// full encoded output in one request, tagged with X-Lease-Token,
// X-Content-Hash and X-Output-Size. The content is staged to tempDir and
// held by uploadTracker until the matching /report arrives — SafeReplace
// never runs against the live path from inside this handler.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	fileID, ok := parsePathInt64(w, r, "id")
	if !ok {
		return
	}

	leaseToken := r.Header.Get("X-Lease-Token")
	wantHash := r.Header.Get("X-Content-Hash")
	if leaseToken == "" || wantHash == "" {
		writeError(w, http.StatusBadRequest, "missing lease token or content hash")
		return
	}

	rec, err := s.store.GetFile(r.Context(), fileID)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown file")
		return
	}
	if rec.LeaseToken != leaseToken {
		writeJSON(w, http.StatusConflict, models.UploadRejected{Rejected: true, Reason: "stale lease"})
		return
	}

	tempPath := filepath.Join(s.tempDir, fmt.Sprintf("%d-%s.part", fileID, leaseToken))
	safeTempPath, err := utils.ValidatePathWithinBase(s.tempDir, tempPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}
	tempPath = safeTempPath

	out, err := os.OpenFile(tempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}
	written, copyErr := io.Copy(out, r.Body)
	_ = out.Close()
	if copyErr != nil {
		_ = os.Remove(tempPath)
		writeError(w, http.StatusBadGateway, "upload stream interrupted")
		return
	}

	gotHash, err := utils.CalculateFileSHA256(tempPath)
	if err != nil || gotHash != wantHash {
		_ = os.Remove(tempPath)
		writeJSON(w, http.StatusBadRequest, models.UploadRejected{Rejected: true, Reason: "hash_mismatch"})
		return
	}

	s.uploads.put(fileID, leaseToken, &uploadSession{
		tempPath:     tempPath,
		bytesWritten: written,
		contentHash:  gotHash,
		expiresAt:    time.Now().Add(uploadTTL),
	})
	s.metrics.RecordBytesUploaded(written)

	savedBytes := rec.SizeBytes - written
	var savingsPct float64
	if rec.SizeBytes > 0 {
		savingsPct = float64(savedBytes) / float64(rec.SizeBytes) * 100
	}
	writeJSON(w, http.StatusOK, models.UploadAccepted{
		Accepted:       true,
		SavedBytes:     savedBytes,
		SavingsPercent: savingsPct,
	})
}

// handleUploadContinue implements PUT /files/{id}/result?offset=K: appends
// to a previously staged upload rather than restarting it from zero.
func (s *Server) handleUploadContinue(w http.ResponseWriter, r *http.Request) {
	fileID, ok := parsePathInt64(w, r, "id")
	if !ok {
		return
	}
	leaseToken := r.Header.Get("X-Lease-Token")
	if leaseToken == "" {
		writeError(w, http.StatusBadRequest, "missing lease token")
		return
	}

	sess, found := s.uploads.get(fileID, leaseToken)
	if !found {
		writeError(w, http.StatusNotFound, "no upload in progress for this lease")
		return
	}

	offset, _ := strconv.ParseInt(r.URL.Query().Get("offset"), 10, 64)
	if offset != sess.bytesWritten {
		writeError(w, http.StatusConflict, "offset does not match staged upload")
		return
	}

	// #nosec G304 - sess.tempPath was created by this process in handleUpload
	out, err := os.OpenFile(sess.tempPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resume staged upload")
		return
	}
	n, copyErr := io.Copy(out, r.Body)
	_ = out.Close()
	if copyErr != nil {
		writeError(w, http.StatusBadGateway, "upload stream interrupted")
		return
	}
	sess.bytesWritten += n

	wantHash := r.Header.Get("X-Content-Hash")
	if wantHash == "" {
		writeJSON(w, http.StatusOK, models.UploadAccepted{Accepted: true})
		return
	}

	gotHash, err := utils.CalculateFileSHA256(sess.tempPath)
	if err != nil || gotHash != wantHash {
		_ = os.Remove(sess.tempPath)
		s.uploads.remove(fileID, leaseToken)
		writeJSON(w, http.StatusBadRequest, models.UploadRejected{Rejected: true, Reason: "hash_mismatch"})
		return
	}
	sess.contentHash = gotHash
	writeJSON(w, http.StatusOK, models.UploadAccepted{Accepted: true})
}

// handleSuccessReport finishes a successful assignment: it resolves the
// staged upload from handleUpload, enforces the savings floor, hands off to
// SafeReplace, and only then commits the completion to Store.
func (s *Server) handleSuccessReport(w http.ResponseWriter, r *http.Request, fileID int64, workerID, leaseToken string, outcome *models.SuccessOutcome) {
	sess, found := s.uploads.get(fileID, leaseToken)
	if !found {
		writeError(w, http.StatusBadRequest, "no staged upload for this lease")
		return
	}
	defer func() {
		s.uploads.remove(fileID, leaseToken)
	}()

	if sess.bytesWritten != outcome.OutputSize || sess.contentHash != outcome.ContentHash {
		_ = os.Remove(sess.tempPath)
		writeError(w, http.StatusBadRequest, "reported outcome does not match staged upload")
		return
	}

	rec, err := s.store.GetFile(r.Context(), fileID)
	if err != nil {
		_ = os.Remove(sess.tempPath)
		writeError(w, http.StatusNotFound, "unknown file")
		return
	}

	var savingsPct float64
	if rec.SizeBytes > 0 {
		savingsPct = float64(rec.SizeBytes-outcome.OutputSize) / float64(rec.SizeBytes) * 100
	}
	cfg := s.configMgr.Get()

	if !lifecycle.MeetsSavingsFloor(savingsPct, cfg.MinSavingsPct) {
		_ = os.Remove(sess.tempPath)
		slog.Info("output below savings floor, skipping",
			"file_id", fileID, "savings_percent", savingsPct, "floor_percent", cfg.MinSavingsPct)
		if err := s.store.RecordSkip(r.Context(), fileID, leaseToken, constants.SkipOutputSmallerThanThresh); err != nil {
			s.reportStoreErr(w, err)
			return
		}
		s.finishReport(w, r, fileID, workerID, nil, true, outcome.OutputSize, constants.FileStatusSkipped)
		return
	}

	if err := safereplace.Replace(rec.Path, sess.tempPath, cfg.MinSavingsPct, cfg.TestingMode); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("safe replace failed: %v", err))
		return
	}

	if err := s.store.RecordCompletion(r.Context(), fileID, leaseToken, outcome.OutputSize, rec.TargetCRF, rec.TargetAudioBitrate); err != nil {
		s.reportStoreErr(w, err)
		return
	}

	s.finishReport(w, r, fileID, workerID, nil, true, outcome.OutputSize, constants.FileStatusCompleted)
}

func (s *Server) reportStoreErr(w http.ResponseWriter, err error) {
	if err == store.ErrStaleLease {
		writeJSON(w, http.StatusConflict, models.ReportResponse{OK: false})
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
