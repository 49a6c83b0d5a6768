package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avfarm/common/constants"
	"github.com/avfarm/common/models"
	"github.com/avfarm/coordinator/internal/eventbus"
	"github.com/avfarm/coordinator/internal/lifecycle"
	"github.com/avfarm/coordinator/internal/store"
)

func decodeJSON(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(v)
}

// handleRegister implements POST /workers/register.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeJSON(r, &req); err != nil || req.WorkerID == "" {
		writeError(w, http.StatusBadRequest, "invalid registration request")
		return
	}

	worker := s.registry.Register(req)
	s.bus.Publish(eventbus.Event{Kind: "worker.updated", Payload: worker})

	writeJSON(w, http.StatusOK, models.RegisterResponse{
		Accepted:      true,
		ConfigDigest:  s.configMgr.Digest(),
		ClusterConfig: s.configMgr.Get(),
	})
}

// handleHeartbeat implements POST /workers/{id}/heartbeat.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "id")

	var req models.HeartbeatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid heartbeat request")
		return
	}

	cancelLease, fadeOut, ok := s.registry.Heartbeat(workerID, req)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown worker")
		return
	}

	s.metrics.RecordWorkerHeartbeat(workerID, fadeOut)
	if worker, found := s.registry.Get(workerID); found {
		s.bus.Publish(eventbus.Event{Kind: "worker.updated", Payload: worker})
	}

	writeJSON(w, http.StatusOK, models.HeartbeatResponse{
		CancelLeaseToken: cancelLease,
		FadeOut:          fadeOut,
	})
}

// handleNext implements POST /workers/{id}/next: the Scheduler's entry
// point. A fade-out worker never receives new work, even though the store
// claim itself has no notion of fade-out.
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "id")

	worker, ok := s.registry.Get(workerID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown worker")
		return
	}
	if worker.FadeOut {
		writeJSON(w, http.StatusOK, models.NextResponse{NoWork: true})
		return
	}

	cfg := s.configMgr.Get()
	pinGrace := time.Duration(cfg.PinGraceS) * time.Second

	rec, leaseToken, err := s.store.ClaimNext(r.Context(), workerID, cfg.FileOrder, pinGrace)
	if err != nil {
		if errors.Is(err, store.ErrWorkerBusy) {
			slog.Warn("worker requested next while already holding an in-flight assignment", "worker_id", workerID)
		}
		writeJSON(w, http.StatusOK, models.NextResponse{NoWork: true})
		return
	}

	s.bus.Publish(eventbus.Event{Kind: "file.updated", Payload: rec})

	writeJSON(w, http.StatusOK, models.NextResponse{
		Assignment: &models.NextAssignment{
			FileID:     rec.ID,
			Path:       rec.Path,
			Size:       rec.SizeBytes,
			LeaseToken: leaseToken,
		},
	})
}

// handleProgress implements POST /files/{id}/progress.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	fileID, ok := parsePathInt64(w, r, "id")
	if !ok {
		return
	}

	var req models.ProgressRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid progress request")
		return
	}

	if err := s.store.RecordProgress(r.Context(), fileID, req.LeaseToken, req.SourceProfile); err != nil {
		if err == store.ErrStaleLease {
			writeJSON(w, http.StatusConflict, models.ReportResponse{OK: false})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if rec, getErr := s.store.GetFile(r.Context(), fileID); getErr == nil {
		s.bus.Publish(eventbus.Event{Kind: "file.updated", Payload: rec})
	}

	writeJSON(w, http.StatusOK, models.ReportResponse{OK: true})
}

// handleReport implements POST /files/{id}/report: the terminal outcome of
// an assignment. The coordinator alone decides the resulting state
// transition from what the worker reports — a worker's own Retryable hint
// is ignored; lifecycle.IsRetryable decides from the reported kind.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	fileID, ok := parsePathInt64(w, r, "id")
	if !ok {
		return
	}

	var req models.ReportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid report request")
		return
	}

	// The assignment still names its worker at this point; RecordFailure/
	// RecordSkip/RecordCompletion below may clear it, so capture it first
	// for the per-worker throughput counters in registry.RecordOutcome.
	var holder string
	if rec, getErr := s.store.GetFile(r.Context(), fileID); getErr == nil {
		holder = rec.AssignedWorkerID
	}

	switch {
	case req.Outcome.Skip != nil:
		err := s.store.RecordSkip(r.Context(), fileID, req.LeaseToken, req.Outcome.Skip.Reason)
		s.finishReport(w, r, fileID, holder, err, true, 0, constants.FileStatusSkipped)

	case req.Outcome.Failure != nil:
		f := req.Outcome.Failure
		cfg := s.configMgr.Get()
		retryable := lifecycle.IsRetryable(f.Kind)
		err := s.store.RecordFailure(r.Context(), fileID, req.LeaseToken, f.Kind, f.Message, retryable, cfg.MaxAttempts)
		s.metrics.RecordFileError(f.Kind)
		s.finishReport(w, r, fileID, holder, err, false, 0, constants.FileStatusFailed)

	case req.Outcome.Success != nil:
		s.handleSuccessReport(w, r, fileID, holder, req.LeaseToken, req.Outcome.Success)

	default:
		writeError(w, http.StatusBadRequest, "report carries no outcome")
	}
}

// finishReport is the common tail for the skip, failure and success report paths:
// translate a store error, update the worker's throughput counters, emit
// the file.updated event and acknowledge the worker.
func (s *Server) finishReport(w http.ResponseWriter, r *http.Request, fileID int64, workerID string, err error, success bool, bytesProcessed int64, status string) {
	if err != nil {
		if err == store.ErrStaleLease {
			writeJSON(w, http.StatusConflict, models.ReportResponse{OK: false})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if workerID != "" {
		s.registry.RecordOutcome(workerID, success, bytesProcessed)
	}
	s.metrics.RecordFileCompleted(status, 0)

	if rec, getErr := s.store.GetFile(r.Context(), fileID); getErr == nil {
		s.bus.Publish(eventbus.Event{Kind: "file.updated", Payload: rec})
	}
	writeJSON(w, http.StatusOK, models.ReportResponse{OK: true})
}
