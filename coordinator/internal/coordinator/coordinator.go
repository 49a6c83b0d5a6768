// Package coordinator wires the Store, WorkerRegistry, EventBus, Scanner and
// HTTP server into one running process: the initial scan, the periodic
// liveness sweep that reaps stale assignments, the daily stats rollup, and
// graceful shutdown on SIGINT/SIGTERM.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/avfarm/common/models"
	"github.com/avfarm/coordinator/internal/config"
	"github.com/avfarm/coordinator/internal/eventbus"
	"github.com/avfarm/coordinator/internal/registry"
	"github.com/avfarm/coordinator/internal/scanner"
	"github.com/avfarm/coordinator/internal/server"
	"github.com/avfarm/coordinator/internal/store"
)

// Coordinator orchestrates every long-running component of the coordinator
// process.
type Coordinator struct {
	cfg       *models.CoordinatorConfig
	store     *store.Store
	registry  *registry.Registry
	bus       *eventbus.Bus
	configMgr *config.Manager
	scanner   *scanner.Scanner
	server    *server.Server
	cron      *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires every component from cfg but starts nothing yet.
func New(cfg *models.CoordinatorConfig) (*Coordinator, error) {
	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	configMgr, err := config.NewManager(cfg.ClusterConfigPath, config.DefaultClusterConfig())
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to load cluster config: %w", err)
	}

	reg := registry.New()
	bus := eventbus.New()
	scn := scanner.New(cfg.Scanner.RootPath, cfg.Scanner.VideoExtensions, cfg.Scanner.RecursiveDepth)

	tempDir := os.TempDir()
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to prepare temp dir: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(addr, server.Deps{
		Store:     st,
		Registry:  reg,
		Bus:       bus,
		ConfigMgr: configMgr,
		Scanner:   scn,
		APIKey:    os.Getenv("AVFARM_API_KEY"),
		MediaRoot: cfg.Scanner.RootPath,
		TempDir:   tempDir,
	})

	ctx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		cfg:       cfg,
		store:     st,
		registry:  reg,
		bus:       bus,
		configMgr: configMgr,
		scanner:   scn,
		server:    srv,
		cron:      cron.New(),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start runs the initial scan, launches the background loops, serves HTTP,
// and blocks until the process is asked to stop.
func (c *Coordinator) Start() error {
	slog.Info("scanning media root", "path", c.cfg.Scanner.RootPath)
	if err := c.runScan(); err != nil {
		return fmt.Errorf("initial scan failed: %w", err)
	}

	if _, err := c.cron.AddFunc("7 0 * * *", c.rollupYesterday); err != nil {
		return fmt.Errorf("failed to schedule daily rollup: %w", err)
	}
	c.cron.Start()
	c.rollupYesterday() // also roll up the previous day once at startup

	c.wg.Add(1)
	go c.sweepStaleWorkers()

	if c.cfg.Scanner.ScanInterval > 0 {
		c.wg.Add(1)
		go c.periodicRescan()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- c.server.Start()
	}()

	go func() {
		<-sigChan
		slog.Info("shutdown signal received, draining background loops and HTTP server")
		c.cancel()
		c.cron.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", "error", err)
		}
	}()

	err := <-serverErrChan

	slog.Info("waiting for background loops to stop")
	c.wg.Wait()

	if closeErr := c.store.Close(); closeErr != nil {
		slog.Error("failed to close store", "error", closeErr)
	}
	return err
}

// runScan walks the media root once and upserts every observation into the
// Store, publishing a file.updated event for anything that changed.
func (c *Coordinator) runScan() error {
	records, err := c.scanner.Scan()
	if err != nil {
		return err
	}

	var added, reenqueued int
	for _, rec := range records {
		id, changed, upsertErr := c.store.UpsertScan(c.ctx, rec)
		if upsertErr != nil {
			slog.Error("failed to upsert scanned file", "path", rec.Path, "error", upsertErr)
			continue
		}
		if !changed {
			continue
		}
		file, getErr := c.store.GetFile(c.ctx, id)
		if getErr != nil {
			continue
		}
		if file.CreatedAt.Equal(file.UpdatedAt) {
			added++
		} else {
			reenqueued++
		}
		c.bus.Publish(eventbus.Event{Kind: "file.updated", Payload: file})
	}
	slog.Info("scan complete", "found", len(records), "added", added, "reenqueued", reenqueued)
	return nil
}

func (c *Coordinator) periodicRescan() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.Scanner.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.runScan(); err != nil {
				slog.Error("periodic rescan failed", "error", err)
			}
		}
	}
}

// sweepStaleWorkers is the liveness sweeper: any worker whose heartbeat has
// exceeded the cluster's configured liveness timeout is declared offline and
// its in-flight assignments are reaped back to pending.
func (c *Coordinator) sweepStaleWorkers() {
	defer c.wg.Done()

	interval := time.Duration(c.configMgr.Get().SweepIntervalS) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			liveness := time.Duration(c.configMgr.Get().LivenessTimeoutS) * time.Second
			for _, workerID := range c.registry.Stale(liveness) {
				reaped, err := c.store.ReapAssignmentsForWorker(c.ctx, workerID)
				if err != nil {
					slog.Error("failed to reap assignments for stale worker", "worker_id", workerID, "error", err)
					continue
				}
				if reaped > 0 {
					slog.Warn("reaped assignments from stale worker", "worker_id", workerID, "count", reaped)
				}
				if worker, ok := c.registry.Get(workerID); ok {
					c.bus.Publish(eventbus.Event{Kind: "worker.updated", Payload: worker})
				}
			}
		}
	}
}

// rollupYesterday materializes stats_daily for the day just completed,
// called once at startup (in case the coordinator was down at midnight) and
// then every day via cron.
func (c *Coordinator) rollupYesterday() {
	day := time.Now().UTC().Add(-24 * time.Hour)
	if err := c.store.RollupDay(c.ctx, day); err != nil {
		slog.Error("daily stats rollup failed", "day", day.Format("2006-01-02"), "error", err)
	}
}
