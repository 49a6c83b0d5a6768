package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avfarm/coordinator/internal/eventbus"
)

// handleHealthzLive implements GET /healthz: the process is up.
func (s *Server) handleHealthzLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHealthzReady implements GET /readyz: the process is up and its
// dependencies (the database) answer.
func (s *Server) handleHealthzReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.SnapshotForUI(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

var eventsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleEvents implements GET /events: upgrades to a websocket, sends the
// current queue/worker snapshot once, then streams live EventBus events
// until the client disconnects or falls behind and is dropped.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := eventsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("events websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)

	if snapshot, err := s.store.SnapshotForUI(r.Context()); err == nil {
		if writeErr := conn.WriteJSON(eventbus.Event{Kind: "stats.snapshot", Payload: snapshot}); writeErr != nil {
			return
		}
	}
	if workers := s.registry.List(); workers != nil {
		if writeErr := conn.WriteJSON(eventbus.Event{Kind: "workers.snapshot", Payload: workers}); writeErr != nil {
			return
		}
	}

	// Drain (and discard) client reads so a dead connection is detected
	// promptly; this endpoint is server-push only.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				_ = conn.Close()
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				if sub.Dropped() {
					slog.Warn("events subscriber dropped for falling behind")
				}
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
