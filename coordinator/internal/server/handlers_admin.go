package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avfarm/common/models"
	"github.com/avfarm/coordinator/internal/eventbus"
	"github.com/avfarm/coordinator/internal/store"
)

// handleStatus implements GET /status: the queue/worker snapshot the CLI
// and UI poll.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.SnapshotForUI(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	cfg := s.configMgr.Get()
	liveness := time.Duration(cfg.LivenessTimeoutS) * time.Second
	stats.WorkersTotal = s.registry.Total()
	stats.WorkersOnline = s.registry.CountOnline(liveness)

	writeJSON(w, http.StatusOK, stats)
}

// handleAdminScan implements POST /admin/scan: walks mediaRoot and upserts
// every observation into Store, synchronously, reporting what changed.
func (s *Server) handleAdminScan(w http.ResponseWriter, r *http.Request) {
	if s.scanner == nil {
		writeError(w, http.StatusInternalServerError, "scanner not configured")
		return
	}

	records, err := s.scanner.Scan()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var added, updated int
	for _, rec := range records {
		id, changed, upsertErr := s.store.UpsertScan(r.Context(), rec)
		if upsertErr != nil {
			writeError(w, http.StatusInternalServerError, upsertErr.Error())
			return
		}
		if !changed {
			continue
		}
		file, getErr := s.store.GetFile(r.Context(), id)
		if getErr != nil {
			continue
		}
		if file.CreatedAt.Equal(file.UpdatedAt) {
			added++
		} else {
			updated++
		}
		s.bus.Publish(eventbus.Event{Kind: "file.updated", Payload: file})
	}

	writeJSON(w, http.StatusOK, models.AdminScanResponse{Added: added, Updated: updated})
}

// handleAdminListFiles implements GET /admin/files?status=&limit=, the
// listing the CLI's jobs command and the UI table page poll.
func (s *Server) handleAdminListFiles(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	files, err := s.store.ListFiles(r.Context(), status, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files, "count": len(files)})
}

// maybeCancelInFlight asks rec's assigned worker to abort its current job,
// if rec is assigned or processing. An operator op that moves a file out
// from under a worker (skip, delete, or an explicit cancel) must not leave
// that worker encoding a job nobody will ever collect the result of.
func (s *Server) maybeCancelInFlight(rec *models.FileRecord) {
	if rec == nil || !rec.InFlight() || rec.AssignedWorkerID == "" {
		return
	}
	s.registry.RequestCancel(rec.AssignedWorkerID, rec.LeaseToken)
}

// handleAdminFileOp returns a handler for the single-file admin ops, all of
// which share the same {id} path param and "notify, then 200 {"ok":true}"
// shape.
func (s *Server) handleAdminFileOp(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fileID, ok := parsePathInt64(w, r, "id")
		if !ok {
			return
		}

		if op == "skip" || op == "delete" || op == "cancel" {
			if rec, getErr := s.store.GetFile(r.Context(), fileID); getErr == nil {
				s.maybeCancelInFlight(rec)
			}
		}

		var err error
		switch op {
		case "reset":
			err = s.store.ResetFile(r.Context(), fileID)
		case "retry":
			err = s.store.RetryFile(r.Context(), fileID)
		case "skip":
			var body struct {
				Reason string `json:"reason"`
			}
			_ = decodeJSON(r, &body)
			err = s.store.SkipFile(r.Context(), fileID, body.Reason)
		case "delete":
			err = s.store.DeleteFile(r.Context(), fileID)
		case "priority":
			var body struct {
				Priority int32 `json:"priority"`
			}
			if decErr := decodeJSON(r, &body); decErr != nil {
				writeError(w, http.StatusBadRequest, "invalid priority body")
				return
			}
			err = s.store.SetPriority(r.Context(), fileID, body.Priority)
		case "pin":
			var body struct {
				WorkerID string `json:"worker_id"`
			}
			if decErr := decodeJSON(r, &body); decErr != nil {
				writeError(w, http.StatusBadRequest, "invalid pin body")
				return
			}
			err = s.store.SetPreferredWorker(r.Context(), fileID, body.WorkerID)
		case "cancel":
			// Cancellation is fire-and-forget against the registry; the file's
			// store status is untouched here and settles once the worker
			// reports the aborted job's outcome.
		}

		if err != nil {
			if err == store.ErrNotFound {
				writeError(w, http.StatusNotFound, "unknown file")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if op != "delete" {
			if rec, getErr := s.store.GetFile(r.Context(), fileID); getErr == nil {
				s.bus.Publish(eventbus.Event{Kind: "file.updated", Payload: rec})
			}
		} else {
			s.bus.Publish(eventbus.Event{Kind: "file.deleted", Payload: fileID})
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// handleAdminBulkResetFailed implements POST /admin/files/bulk/reset-failed.
func (s *Server) handleAdminBulkResetFailed(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.ResetFailedFiles(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.bus.Publish(eventbus.Event{Kind: "files.bulk_updated", Payload: count})
	writeJSON(w, http.StatusOK, map[string]int64{"affected": count})
}

// handleAdminBulkDeleteCompleted implements POST /admin/files/bulk/delete-completed.
func (s *Server) handleAdminBulkDeleteCompleted(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.DeleteCompletedFiles(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.bus.Publish(eventbus.Event{Kind: "files.bulk_updated", Payload: count})
	writeJSON(w, http.StatusOK, map[string]int64{"affected": count})
}

// handleAdminListWorkers implements GET /admin/workers: the registry
// snapshot the CLI's workers command polls.
func (s *Server) handleAdminListWorkers(w http.ResponseWriter, r *http.Request) {
	workers := s.registry.List()
	writeJSON(w, http.StatusOK, map[string]any{"workers": workers, "count": len(workers)})
}

// handleAdminFadeOut implements POST /admin/workers/{id}/fade_out: toggles a
// worker into (or out of) drain mode, taking effect on its next heartbeat.
func (s *Server) handleAdminFadeOut(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "id")

	var body struct {
		FadeOut bool `json:"fade_out"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid fade_out body")
		return
	}

	worker, ok := s.registry.SetFadeOut(workerID, body.FadeOut)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown worker")
		return
	}
	s.bus.Publish(eventbus.Event{Kind: "worker.updated", Payload: worker})
	writeJSON(w, http.StatusOK, worker)
}

// handleGetClusterConfig implements GET /admin/config.
func (s *Server) handleGetClusterConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

// handleUpdateClusterConfig implements POST /admin/config: validates and
// persists a new ClusterConfig, then broadcasts it so connected UIs/CLIs
// see the change without polling.
func (s *Server) handleUpdateClusterConfig(w http.ResponseWriter, r *http.Request) {
	var cfg models.ClusterConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid cluster config body")
		return
	}

	if err := s.configMgr.Update(cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated := s.configMgr.Get()
	s.bus.Publish(eventbus.Event{Kind: "config.updated", Payload: updated})
	writeJSON(w, http.StatusOK, updated)
}
