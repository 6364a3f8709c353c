package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"webrtc-rendezvous/internal/app/rooms"
)

const storeTimeout = 3 * time.Second

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	s.mux.HandleFunc("GET /readyz", s.handleReady)

	s.mux.HandleFunc("POST /rooms", s.handleCreateRoom)
	s.mux.HandleFunc("GET /rooms/{id}", s.handleRoomExists)

	s.mux.Handle("GET /ws", s.deps.Hub.HTTPHandler())
	s.mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, s.deps.Hub.Stats())
	})
	s.mux.HandleFunc("GET /api/settings", s.handleSettings)
	s.mux.HandleFunc("GET /debug/ice", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{
			"mode":       s.deps.Settings.ICEMode,
			"iceServers": s.deps.Settings.ICEServers,
		})
	})

	if s.cfg.StaticDir != "" {
		s.mux.Handle("GET /", SPAHandler(s.cfg.StaticDir))
	}
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	if err := s.deps.Rooms.Ping(ctx); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "error": err.Error()})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	room, err := s.deps.Rooms.Create(ctx)
	if err != nil {
		s.log.Error("room create failed", "err", err)
		WriteJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to create room"})
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{"roomId": room.ID})
}

// handleRoomExists reports whether id was ever issued, not whether anyone is
// currently in it.
func (s *Server) handleRoomExists(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	_, err := s.deps.Rooms.Get(ctx, r.PathValue("id"))
	switch {
	case errors.Is(err, rooms.ErrNotFound):
		WriteJSON(w, http.StatusOK, map[string]any{"exists": false})
	case err != nil:
		s.log.Error("room lookup failed", "room", r.PathValue("id"), "err", err)
		WriteJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to look up room"})
	default:
		WriteJSON(w, http.StatusOK, map[string]any{"exists": true})
	}
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"wsURL":      resolveWSURL(s.deps.Settings, r),
		"iceMode":    s.deps.Settings.ICEMode,
		"iceServers": s.deps.Settings.ICEServers,
	})
}

func resolveWSURL(settings Settings, r *http.Request) string {
	if settings.PublicWSURL != "" {
		return settings.PublicWSURL
	}

	proto := "ws"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		proto = "wss"
	}

	host := r.Host
	if host == "" {
		host = "localhost:8080"
	}

	return fmt.Sprintf("%s://%s/ws", proto, host)
}

// SPAHandler serves files from staticDir and falls back to index.html so
// client-side routes resolve.
func SPAHandler(staticDir string) http.Handler {
	fs := http.FileServer(http.Dir(staticDir))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(staticDir, filepath.Clean("/"+r.URL.Path))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			fs.ServeHTTP(w, r)
			return
		}

		http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
	})
}
