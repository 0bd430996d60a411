// Package status serves the agent's local observability surface: health,
// current state, session history, archived sessions, Prometheus metrics,
// and a small set of control endpoints for operating the agent without a
// UI attached.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/livevlm/livevlm-agent/internal/archive"
	"github.com/livevlm/livevlm-agent/internal/session"
	"github.com/livevlm/livevlm-agent/internal/store"
)

// Server exposes agent state over a local HTTP listener.
type Server struct {
	logger  *zap.Logger
	store   *store.Store
	tracker *session.Tracker
	archive *archive.Archive // optional
	ctrl    Commands

	httpServer *http.Server
}

// Commands are the orchestrator operations the control endpoints call.
// Satisfied by *orchestrator.Orchestrator.
type Commands interface {
	Stop()
	Reset()
	Dismiss()
	RequestSummary() error
	RequestStats() error
	SetContextWindow(n int) error
}

// NewServer builds the status server. Archive may be nil; its endpoints
// then answer 404.
func NewServer(addr string, st *store.Store, tracker *session.Tracker, arch *archive.Archive, ctrl Commands, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		logger:  logger,
		store:   st,
		tracker: tracker,
		archive: arch,
		ctrl:    ctrl,
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	router.HandleFunc("/statusz", s.handleStatusz).Methods("GET")
	router.HandleFunc("/history", s.handleHistory).Methods("GET")
	router.HandleFunc("/sessions", s.handleSessions).Methods("GET")
	router.HandleFunc("/sessions/{sessionId}/frames", s.handleSessionFrames).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	if ctrl != nil {
		router.HandleFunc("/control/stop", s.handleStop).Methods("POST")
		router.HandleFunc("/control/reset", s.handleReset).Methods("POST")
		router.HandleFunc("/control/dismiss", s.handleDismiss).Methods("POST")
		router.HandleFunc("/control/summary", s.handleSummary).Methods("POST")
		router.HandleFunc("/control/stats", s.handleStats).Methods("POST")
		router.HandleFunc("/control/context-window", s.handleContextWindow).Methods("POST")
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the underlying router for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// ListenAndServe blocks serving the status surface.
func (s *Server) ListenAndServe() error {
	s.logger.Info("status listener starting", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatusz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state": s.store.Get(),
		"stats": s.tracker.Stats(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.NotFound(w, r)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := s.archive.Sessions(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (s *Server) handleSessionFrames(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.NotFound(w, r)
		return
	}
	sessionID := mux.Vars(r)["sessionId"]
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	frames, err := s.archive.Frames(r.Context(), sessionID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"frames": frames})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Stop()
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Reset()
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Dismiss()
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.RequestSummary(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"success": true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.RequestStats(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"success": true})
}

func (s *Server) handleContextWindow(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContextWindow int `json:"context_window"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if err := s.ctrl.SetContextWindow(body.ContextWindow); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
