// Package main implements the worker service entry point.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/avfarm/worker/internal/config"
	"github.com/avfarm/worker/internal/logger"
	"github.com/avfarm/worker/internal/worker"
	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	coordinatorURL := flag.String("url", "", "Coordinator URL override (e.g., http://localhost:8080)")
	workerID := flag.String("id", "", "Worker ID override (auto-generated if not provided and not set in config)")
	flag.Parse()

	cfg, err := config.LoadWorkerConfig(*configPath)
	if err != nil {
		log.Printf("failed to load config from %s: %v", *configPath, err)
		os.Exit(1)
	}

	if *coordinatorURL != "" {
		cfg.Worker.CoordinatorURL = *coordinatorURL
	}
	if *workerID != "" {
		cfg.Worker.ID = *workerID
	}
	if cfg.Worker.ID == "" {
		cfg.Worker.ID = generateWorkerID()
	}
	if cfg.FFmpeg.Path == "" {
		cfg.FFmpeg.Path = findFFmpegPath()
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)

	w, err := worker.New(cfg)
	if err != nil {
		slog.Error("failed to initialize worker", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Start(ctx); err != nil {
		slog.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
}

func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return hostname + "-" + uuid.New().String()[:8]
}

// findFFmpegPath attempts to find ffmpeg in common locations.
func findFFmpegPath() string {
	paths := []string{
		"/usr/bin/ffmpeg",
		"/usr/local/bin/ffmpeg",
		"/opt/ffmpeg/bin/ffmpeg",
		"ffmpeg", // Use PATH
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return "ffmpeg" // Fallback to PATH lookup
}
