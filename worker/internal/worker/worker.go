// Package worker implements the worker-side job loop: register, heartbeat,
// acquire an assignment, download, probe, decide encode params, transcode,
// upload, and report the outcome. Expands a simple poll-a-job/
// report-complete loop into the full download/probe/encode/upload/report
// pipeline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/avfarm/common/constants"
	"github.com/avfarm/common/models"
	"github.com/avfarm/worker/internal/client"
	"github.com/avfarm/worker/internal/hostinfo"
	"github.com/avfarm/worker/internal/probe"
	"github.com/avfarm/worker/internal/quality"
	"github.com/avfarm/worker/internal/transcoder"
)

const (
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 30 * time.Second
)

// currentState is the in-flight job snapshot the heartbeat loop reports.
type currentState struct {
	mu         sync.Mutex
	fileID     int64
	leaseToken string
	percent    float64
	fps        float64
	eta        int64
	phase      string
	cancel     context.CancelFunc
}

func (s *currentState) set(fileID int64, leaseToken string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileID, s.leaseToken, s.cancel = fileID, leaseToken, cancel
	s.percent, s.fps, s.eta, s.phase = 0, 0, 0, ""
}

func (s *currentState) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s = currentState{}
}

func (s *currentState) updateProgress(percent, fps float64, eta int64, phase string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.percent, s.fps, s.eta, s.phase = percent, fps, eta, phase
}

func (s *currentState) snapshot() (fileID int64, percent, fps float64, eta int64, phase string, hasWork bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileID, s.percent, s.fps, s.eta, s.phase, s.fileID != 0
}

// cancelIfMatches cancels the in-flight job if its lease_token matches and
// reports whether it did.
func (s *currentState) cancelIfMatches(leaseToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leaseToken == leaseToken && s.cancel != nil {
		s.cancel()
		return true
	}
	return false
}

// Worker drives one worker process against a single coordinator.
type Worker struct {
	config      *models.WorkerConfig
	client      *client.Client
	prober      *probe.Prober
	qualityPolicy *quality.Policy
	cache       *CacheManager

	clusterMu  sync.RWMutex
	clusterCfg models.ClusterConfig

	current currentState

	backoffMu      sync.Mutex
	currentBackoff time.Duration

	fadeOut atomic32
}

// atomic32 is a tiny bool flag safe for concurrent read/write without
// pulling in sync/atomic.Bool (kept go1.19-compatible in spirit with the
// rest of this package's style).
type atomic32 struct {
	mu sync.RWMutex
	v  bool
}

func (a *atomic32) set(v bool) { a.mu.Lock(); a.v = v; a.mu.Unlock() }
func (a *atomic32) get() bool  { a.mu.RLock(); defer a.mu.RUnlock(); return a.v }

func New(cfg *models.WorkerConfig) (*Worker, error) {
	qp, err := quality.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load quality lookup tables: %w", err)
	}

	ffprobePath := cfg.FFmpeg.FFprobePath
	if ffprobePath == "" {
		ffprobePath = deriveFFprobePath(cfg.FFmpeg.Path)
	}

	return &Worker{
		config:        cfg,
		client:        client.New(cfg.Worker.CoordinatorURL, cfg.Worker.ID),
		prober:        probe.New(ffprobePath),
		qualityPolicy: qp,
		cache:         NewCacheManager(cfg.Storage.TempDir, 0, 0),
	}, nil
}

func deriveFFprobePath(ffmpegPath string) string {
	dir := filepath.Dir(ffmpegPath)
	base := filepath.Base(ffmpegPath)
	return filepath.Join(dir, "ffprobe"+filepath.Ext(base))
}

// Start registers with the coordinator, launches the heartbeat loop, and
// runs the job-acquisition loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	caps, err := hostinfo.Capabilities(ctx)
	if err != nil {
		return fmt.Errorf("failed to gather host capabilities: %w", err)
	}

	hostname, _ := os.Hostname()
	regResp, err := w.client.Register(ctx, models.RegisterRequest{
		WorkerID:     w.config.Worker.ID,
		DisplayName:  w.config.Worker.DisplayName,
		Hostname:     hostname,
		Version:      "dev",
		Capabilities: caps,
	})
	if err != nil {
		return fmt.Errorf("failed to register with coordinator: %w", err)
	}
	if !regResp.Accepted {
		return fmt.Errorf("coordinator rejected registration")
	}

	w.clusterMu.Lock()
	w.clusterCfg = regResp.ClusterConfig
	w.clusterMu.Unlock()

	slog.Info("registered with coordinator",
		"worker_id", w.config.Worker.ID,
		"config_digest", regResp.ConfigDigest,
	)

	if w.config.Worker.Concurrency > 1 {
		slog.Warn("worker.concurrency > 1 is not supported, a worker runs exactly one pollLoop against one shared job slot",
			"configured", w.config.Worker.Concurrency)
	}

	go w.heartbeatLoop(ctx)
	w.pollLoop(ctx, 0)
	return nil
}

func (w *Worker) pollLoop(ctx context.Context, idx int) {
	for {
		if ctx.Err() != nil {
			return
		}
		if w.fadeOut.get() {
			time.Sleep(w.config.Worker.JobCheckInterval)
			continue
		}

		assignment, err := w.client.Next(ctx)
		if err != nil {
			if !errors.Is(err, client.ErrNoWork) {
				slog.Warn("failed to request next assignment", "worker_index", idx, "error", err)
			}
			backoff := w.getAndUpdateBackoff(true)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			continue
		}
		w.getAndUpdateBackoff(false)

		if err := w.processAssignment(ctx, assignment); err != nil {
			slog.Error("assignment processing failed", "file_id", assignment.FileID, "error", err)
		}
	}
}

// getAndUpdateBackoff returns the current wait on failure and doubles the
// next one (up to the maximum), or resets it to the initial interval on
// success.
func (w *Worker) getAndUpdateBackoff(failed bool) time.Duration {
	initial := w.config.Worker.InitialBackoffInterval
	if initial <= 0 {
		initial = defaultInitialBackoff
	}
	max := w.config.Worker.MaxBackoffInterval
	if max <= 0 {
		max = defaultMaxBackoff
	}

	w.backoffMu.Lock()
	defer w.backoffMu.Unlock()

	if !failed {
		w.currentBackoff = initial
		return w.currentBackoff
	}
	if w.currentBackoff <= 0 {
		w.currentBackoff = initial
	}
	backoff := w.currentBackoff
	w.currentBackoff *= 2
	if w.currentBackoff > max {
		w.currentBackoff = max
	}
	return backoff
}

func (w *Worker) heartbeatLoop(ctx context.Context) {
	interval := w.config.Worker.HeartbeatInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sendHeartbeat(ctx)
		}
	}
}

func (w *Worker) sendHeartbeat(ctx context.Context) {
	telemetry, _ := hostinfo.Sample(ctx)

	req := models.HeartbeatRequest{
		CPUPercent: telemetry.CPUPercent,
		MemPercent: telemetry.MemPercent,
	}
	if fileID, percent, fps, eta, phase, hasWork := w.current.snapshot(); hasWork {
		req.Current = &models.CurrentReport{
			FileID:  fileID,
			Percent: percent,
			FPS:     fps,
			ETA:     eta,
			Phase:   phase,
		}
	}

	resp, err := w.client.Heartbeat(ctx, req)
	if err != nil {
		slog.Warn("heartbeat failed", "error", err)
		return
	}

	w.fadeOut.set(resp.FadeOut)

	if resp.CancelLeaseToken != "" {
		if w.current.cancelIfMatches(resp.CancelLeaseToken) {
			slog.Info("cancelling in-flight assignment on coordinator directive", "lease_token", resp.CancelLeaseToken)
		}
	}
}

func (w *Worker) processAssignment(ctx context.Context, a *models.NextAssignment) error {
	jobCtx, cancel := context.WithCancel(ctx)
	w.current.set(a.FileID, a.LeaseToken, cancel)
	defer func() {
		cancel()
		w.current.clear()
	}()

	sourcePath := filepath.Join(w.config.Storage.TempDir, fmt.Sprintf("%d.src", a.FileID))
	outputPath := filepath.Join(w.config.Storage.TempDir, fmt.Sprintf("%d.av1.mkv", a.FileID))
	defer func() {
		w.cache.RemoveFile(removeIfExists(sourcePath))
		w.cache.RemoveFile(removeIfExists(outputPath))
	}()

	w.current.updateProgress(0, 0, 0, constants.PhaseDownloading)
	if err := w.client.Download(jobCtx, a.FileID, sourcePath); err != nil {
		return w.reportFailure(ctx, a, classifyTransferError(err))
	}
	if info, err := os.Stat(sourcePath); err == nil {
		w.cache.AddFile(info.Size())
	}

	w.current.updateProgress(0, 0, 0, constants.PhaseProbing)
	sourceProfile, err := w.prober.Probe(jobCtx, sourcePath)
	if err != nil {
		var pErr *models.ProbeError
		if errors.As(err, &pErr) && pErr.Message == probe.ErrNoVideoStream.Error() {
			return w.reportSkip(ctx, a, constants.SkipNonVideo)
		}
		return w.reportFailure(ctx, a, classifyProbeError(err))
	}
	_ = w.client.Progress(ctx, a.FileID, models.ProgressRequest{
		LeaseToken:    a.LeaseToken,
		Phase:         constants.PhaseProbing,
		SourceProfile: sourceProfile,
	})

	clusterCfg := w.clusterConfig()
	params, skip := w.qualityPolicy.Decide(sourceProfile, &clusterCfg)
	if skip != nil {
		return w.reportSkip(ctx, a, skip.Reason)
	}

	w.current.updateProgress(0, 0, 0, constants.PhaseTranscoding)
	tc := transcoder.New(w.config.FFmpeg.Path, clusterCfg.NiceValue, clusterCfg.IonicePriority, time.Duration(clusterCfg.SIGTERMGraceS)*time.Second)
	result, err := tc.Encode(jobCtx, sourcePath, outputPath, params, sourceProfile.DurationSec, func(p transcoder.Progress) {
		w.current.updateProgress(p.Percent, p.FPS, p.ETA, constants.PhaseTranscoding)
		_ = w.client.Progress(ctx, a.FileID, models.ProgressRequest{
			LeaseToken: a.LeaseToken,
			Percent:    p.Percent,
			FPS:        p.FPS,
			ETA:        p.ETA,
			Phase:      constants.PhaseTranscoding,
		})
	})
	if err != nil {
		var tErr *models.TranscodeError
		if errors.As(err, &tErr) {
			if tErr.Kind == "killed" {
				return w.reportFailure(ctx, a, failureOutcome{kind: constants.ErrKindKilled, message: tErr.Error(), retryable: true})
			}
			return w.reportFailure(ctx, a, failureOutcome{kind: tErr.Kind, message: tErr.Error(), retryable: tErr.Kind != "empty_output"})
		}
		return w.reportFailure(ctx, a, failureOutcome{kind: constants.ErrKindIOError, message: err.Error(), retryable: true})
	}
	w.cache.AddFile(result.OutputSize)

	w.current.updateProgress(100, 0, 0, constants.PhaseUploading)
	accepted, err := w.client.Upload(jobCtx, a.FileID, a.LeaseToken, outputPath)
	if err != nil {
		if errors.Is(err, client.ErrStaleLease) {
			return nil // coordinator already reaped this lease; nothing to report
		}
		return w.reportFailure(ctx, a, classifyTransferError(err))
	}

	w.current.updateProgress(100, 0, 0, constants.PhaseVerifying)
	slog.Info("upload accepted", "file_id", a.FileID, "savings_percent", accepted.SavingsPercent)

	return w.client.Report(ctx, a.FileID, models.ReportRequest{
		LeaseToken: a.LeaseToken,
		Outcome: models.Outcome{
			Success: &models.SuccessOutcome{
				OutputSize: result.OutputSize,
			},
		},
	})
}

func (w *Worker) clusterConfig() models.ClusterConfig {
	w.clusterMu.RLock()
	defer w.clusterMu.RUnlock()
	return w.clusterCfg
}

type failureOutcome struct {
	kind      string
	message   string
	retryable bool
}

func (w *Worker) reportFailure(ctx context.Context, a *models.NextAssignment, f failureOutcome) error {
	return w.client.Report(ctx, a.FileID, models.ReportRequest{
		LeaseToken: a.LeaseToken,
		Outcome: models.Outcome{
			Failure: &models.FailureOutcome{
				Kind:      f.kind,
				Message:   f.message,
				Retryable: f.retryable,
			},
		},
	})
}

func (w *Worker) reportSkip(ctx context.Context, a *models.NextAssignment, reason string) error {
	return w.client.Report(ctx, a.FileID, models.ReportRequest{
		LeaseToken: a.LeaseToken,
		Outcome: models.Outcome{
			Skip: &models.SkipOutcome{Reason: reason},
		},
	})
}

func classifyTransferError(err error) failureOutcome {
	var tErr *models.TransferError
	if errors.As(err, &tErr) {
		return failureOutcome{kind: constants.ErrKindTransferError, message: tErr.Error(), retryable: true}
	}
	return failureOutcome{kind: constants.ErrKindTransferError, message: err.Error(), retryable: true}
}

func classifyProbeError(err error) failureOutcome {
	var pErr *models.ProbeError
	if errors.As(err, &pErr) {
		retryable := pErr.Kind == "timeout"
		return failureOutcome{kind: constants.ErrKindProbeTimeout, message: pErr.Error(), retryable: retryable}
	}
	return failureOutcome{kind: constants.ErrKindProbeTimeout, message: err.Error(), retryable: true}
}

func removeIfExists(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	_ = os.Remove(path)
	return info.Size()
}
