// Package server implements the coordinator's HTTP API: the RPC surface
// workers call, the admin/status surface the CLI and UI call, and the
// live event stream. Routing is go-chi/chi, with middleware wrapped
// chi.Router.Use-style rather than hand-rolled.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/avfarm/common/utils"
	"github.com/avfarm/coordinator/internal/config"
	"github.com/avfarm/coordinator/internal/eventbus"
	"github.com/avfarm/coordinator/internal/metrics"
	"github.com/avfarm/coordinator/internal/registry"
	"github.com/avfarm/coordinator/internal/scanner"
	"github.com/avfarm/coordinator/internal/store"
)

// rateLimiter implements simple token-bucket rate limiting per client IP.
type rateLimiter struct {
	mu            sync.Mutex
	requestCounts map[string]*bucketState
	cleanupTicker *time.Ticker
}

type bucketState struct {
	tokens     int
	lastRefill time.Time
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		requestCounts: make(map[string]*bucketState),
		cleanupTicker: time.NewTicker(5 * time.Minute),
	}
	go rl.cleanup()
	return rl
}

func (rl *rateLimiter) cleanup() {
	for range rl.cleanupTicker.C {
		rl.mu.Lock()
		now := time.Now()
		for ip, state := range rl.requestCounts {
			if now.Sub(state.lastRefill) > 10*time.Minute {
				delete(rl.requestCounts, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *rateLimiter) allow(ip string, maxTokens int, refillRate time.Duration) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	state, exists := rl.requestCounts[ip]
	if !exists {
		rl.requestCounts[ip] = &bucketState{tokens: maxTokens - 1, lastRefill: now}
		return true
	}

	elapsed := now.Sub(state.lastRefill)
	if tokensToAdd := int(elapsed / refillRate); tokensToAdd > 0 {
		state.tokens += tokensToAdd
		if state.tokens > maxTokens {
			state.tokens = maxTokens
		}
		state.lastRefill = now
	}

	if state.tokens > 0 {
		state.tokens--
		return true
	}
	return false
}

func (rl *rateLimiter) stop() {
	rl.cleanupTicker.Stop()
}

// Server holds every dependency the HTTP handlers need.
type Server struct {
	store       *store.Store
	registry    *registry.Registry
	bus         *eventbus.Bus
	configMgr   *config.Manager
	metrics     *metrics.Metrics
	scanner     *scanner.Scanner
	apiKey      string
	mediaRoot   string
	tempDir     string
	rateLimiter *rateLimiter
	httpServer  *http.Server
	addr        string

	uploads *uploadTracker
}

// Deps bundles the collaborators New needs, avoiding an ever-growing
// positional parameter list as the RPC surface grows.
type Deps struct {
	Store     *store.Store
	Registry  *registry.Registry
	Bus       *eventbus.Bus
	ConfigMgr *config.Manager
	Scanner   *scanner.Scanner
	APIKey    string
	MediaRoot string
	TempDir   string
}

// New builds a Server bound to addr.
func New(addr string, deps Deps) *Server {
	return &Server{
		store:       deps.Store,
		registry:    deps.Registry,
		bus:         deps.Bus,
		configMgr:   deps.ConfigMgr,
		metrics:     metrics.New(),
		scanner:     deps.Scanner,
		apiKey:      deps.APIKey,
		mediaRoot:   deps.MediaRoot,
		tempDir:     deps.TempDir,
		rateLimiter: newRateLimiter(),
		addr:        addr,
		uploads:     newUploadTracker(),
	}
}

// Router builds the chi router for this server, exported so integration
// tests can exercise it with httptest without going through Start/Shutdown.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.correlationMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.apiMetricsMiddleware)

	r.Get("/healthz", s.handleHealthzLive)
	r.Get("/readyz", s.handleHealthzReady)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/events", s.handleEvents)

	r.Route("/workers", func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)
		r.Use(s.authMiddleware)
		r.Post("/register", s.handleRegister)
		r.Post("/{id}/heartbeat", s.handleHeartbeat)
		r.Post("/{id}/next", s.handleNext)
	})

	r.Route("/files", func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)
		r.Use(s.authMiddleware)
		r.Get("/{id}/bytes", s.handleDownload)
		r.Post("/{id}/result", s.handleUpload)
		r.Put("/{id}/result", s.handleUploadContinue)
		r.Post("/{id}/progress", s.handleProgress)
		r.Post("/{id}/report", s.handleReport)
	})

	r.With(s.rateLimitMiddleware).Get("/status", s.handleStatus)

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)
		r.Post("/scan", s.handleAdminScan)
		r.Get("/files", s.handleAdminListFiles)
		r.Post("/files/{id}/reset", s.handleAdminFileOp("reset"))
		r.Post("/files/{id}/retry", s.handleAdminFileOp("retry"))
		r.Post("/files/{id}/skip", s.handleAdminFileOp("skip"))
		r.Post("/files/{id}/delete", s.handleAdminFileOp("delete"))
		r.Post("/files/{id}/priority", s.handleAdminFileOp("priority"))
		r.Post("/files/{id}/pin", s.handleAdminFileOp("pin"))
		r.Post("/files/{id}/cancel", s.handleAdminFileOp("cancel"))
		r.Post("/files/bulk/reset-failed", s.handleAdminBulkResetFailed)
		r.Post("/files/bulk/delete-completed", s.handleAdminBulkDeleteCompleted)
		r.Get("/workers", s.handleAdminListWorkers)
		r.Post("/workers/{id}/fade_out", s.handleAdminFadeOut)
		r.Get("/config", s.handleGetClusterConfig)
		r.Post("/config", s.handleUpdateClusterConfig)
	})

	return r
}

// Start begins serving on s.addr. Blocks until Shutdown is called or the
// listener fails.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Router(),
		ReadTimeout:  35 * time.Minute, // long enough for a large source download/upload
		WriteTimeout: 35 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("http server starting", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.stop()
	s.uploads.stop()
	if s.httpServer == nil {
		return nil
	}
	slog.Info("http server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

func (s *Server) correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = utils.GenerateCorrelationID()
		}
		w.Header().Set("X-Correlation-ID", correlationID)
		ctx := utils.ContextWithCorrelationID(r.Context(), correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			ip = forwarded
		}
		if !s.rateLimiter.allow(ip, 300, time.Minute/300) {
			slog.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code written so apiMetricsMiddleware
// can label it after the handler runs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (s *Server) apiMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		s.metrics.RecordAPIRequest(route, r.Method, strconv.Itoa(rec.status), time.Since(start).Seconds())
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		expected := "Bearer " + s.apiKey
		if authHeader == "" || !utils.ConstantTimeCompare(authHeader, expected) {
			slog.Warn("rejected unauthenticated worker request", "path", r.URL.Path, "ip", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
