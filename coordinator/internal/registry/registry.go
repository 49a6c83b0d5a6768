// Package registry is the WorkerRegistry: the coordinator's in-memory view
// of which workers exist, their last heartbeat, and their live progress.
// Workers are ephemeral — nothing here survives a coordinator restart,
// which is why it lives apart from the Store.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/avfarm/common/constants"
	"github.com/avfarm/common/models"
)

// Registry tracks registered workers and their liveness.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]*models.Worker
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{workers: make(map[string]*models.Worker)}
}

// Register records a worker announcing itself, creating it if unseen or
// refreshing its capabilities/hostname if already known — registration is
// idempotent by WorkerID.
func (r *Registry) Register(req models.RegisterRequest) *models.Worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[req.WorkerID]
	if !ok {
		w = &models.Worker{ID: req.WorkerID}
		r.workers[req.WorkerID] = w
	}
	w.DisplayName = req.DisplayName
	w.Hostname = req.Hostname
	w.Version = req.Version
	w.Capabilities = req.Capabilities
	w.Status = constants.WorkerStatusIdle
	w.LastHeartbeatAt = time.Now()
	return w
}

// Heartbeat records a liveness ping and the worker's current progress, if
// any, and returns the worker's pending cancel lease (cleared once
// delivered) plus its fade-out state.
func (r *Registry) Heartbeat(workerID string, req models.HeartbeatRequest) (cancelLease string, fadeOut bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, found := r.workers[workerID]
	if !found {
		return "", false, false
	}

	w.LastHeartbeatAt = time.Now()
	w.CPUPercent = req.CPUPercent
	w.MemPercent = req.MemPercent

	if req.Current != nil {
		w.Status = constants.WorkerStatusProcessing
		w.CurrentFileID = req.Current.FileID
		w.CurrentProgress = req.Current.Percent
		w.CurrentSpeed = req.Current.FPS
		w.CurrentETA = req.Current.ETA
	} else {
		w.Status = constants.WorkerStatusIdle
		w.CurrentFileID = 0
		w.CurrentProgress = 0
		w.CurrentSpeed = 0
		w.CurrentETA = 0
	}

	cancelLease = w.PendingCancelLease
	w.PendingCancelLease = ""
	return cancelLease, w.FadeOut, true
}

// Get returns a copy of the named worker, if known.
func (r *Registry) Get(workerID string) (models.Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[workerID]
	if !ok {
		return models.Worker{}, false
	}
	return *w, true
}

// List returns a stable-ordered snapshot of every known worker, sorted by ID.
func (r *Registry) List() []models.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Worker, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetFadeOut flips the drain flag for a worker: once set, the worker stops
// accepting new assignments but finishes its current one.
func (r *Registry) SetFadeOut(workerID string, fadeOut bool) (models.Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[workerID]
	if !ok {
		return models.Worker{}, false
	}
	w.FadeOut = fadeOut
	return *w, true
}

// RequestCancel arms a pending cancellation for the worker's current lease,
// delivered on its next heartbeat response.
func (r *Registry) RequestCancel(workerID, leaseToken string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[workerID]
	if !ok {
		return false
	}
	w.PendingCancelLease = leaseToken
	return true
}

// RecordOutcome updates a worker's running throughput counters after a
// terminal report.
func (r *Registry) RecordOutcome(workerID string, success bool, bytesProcessed int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[workerID]
	if !ok {
		return
	}
	if success {
		w.JobsCompleted++
	} else {
		w.JobsFailed++
	}
	w.TotalBytesProcessed += bytesProcessed
}

// IsAlive reports whether workerID's last heartbeat is within
// livenessTimeout of now.
func (r *Registry) IsAlive(workerID string, livenessTimeout time.Duration) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[workerID]
	if !ok {
		return false
	}
	return time.Since(w.LastHeartbeatAt) < livenessTimeout
}

// Stale returns the IDs of workers whose last heartbeat exceeds
// livenessTimeout, marking them offline in the registry as a side effect —
// the sweeper's Store-side reap of their assignments happens separately.
func (r *Registry) Stale(livenessTimeout time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []string
	now := time.Now()
	for id, w := range r.workers {
		if now.Sub(w.LastHeartbeatAt) >= livenessTimeout {
			w.Status = constants.WorkerStatusOffline
			stale = append(stale, id)
		}
	}
	return stale
}

// CountOnline reports how many workers have a heartbeat within
// livenessTimeout.
func (r *Registry) CountOnline(livenessTimeout time.Duration) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := time.Now()
	count := 0
	for _, w := range r.workers {
		if now.Sub(w.LastHeartbeatAt) < livenessTimeout {
			count++
		}
	}
	return count
}

// Total reports how many workers have ever registered.
func (r *Registry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}
