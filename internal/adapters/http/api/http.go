// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/calmcare/moodlens/internal/adapters/playback"
	"github.com/calmcare/moodlens/internal/adapters/repository"
	"github.com/calmcare/moodlens/internal/domain/emotion"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SessionDependencies
	RecordingDependencies
	PlaybackDependencies
	LabelDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	sessionsHandler  *SessionsHandler
	playbackHandler  *PlaybackHandler
	labelsHandler    *LabelsHandler
	dashboardHandler *dashboardHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxClipBytes int64) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		sessionsHandler:  NewSessionsHandler(deps, deps, maxClipBytes),
		playbackHandler:  NewPlaybackHandler(deps),
		labelsHandler:    NewLabelsHandler(deps),
		dashboardHandler: newdashboardHandler(),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/dashboard", s.dashboardHandler.HandleDashboard)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/labels", MetricsMiddleware(s.labelsHandler.HandleLabels, "labels"))
	mux.HandleFunc("/sessions", MetricsMiddleware(s.sessionsHandler.HandleSessions, "sessions"))
	mux.HandleFunc("/sessions/", MetricsMiddleware(s.sessionsHandler.HandleSession, "sessions"))
	mux.HandleFunc(playback.PathPrefix, MetricsMiddleware(s.playbackHandler.HandlePlayback, "playback"))
}

// sessionResponse mirrors the session view returned by GET /sessions/{id}.
type sessionResponse struct {
	SessionID   string                 `json:"session_id"`
	State       string                 `json:"state"`
	DisplayName string                 `json:"display_name,omitempty"`
	FileName    string                 `json:"file_name,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Top         *emotion.RankedResult  `json:"top,omitempty"`
	Results     []emotion.RankedResult `json:"results,omitempty"`
	PlaybackURL string                 `json:"playback_url,omitempty"`
}

// newSessionResponse projects a session record into the API shape.
func newSessionResponse(sess repository.Session) sessionResponse {
	resp := sessionResponse{
		SessionID:   sess.ID,
		State:       string(sess.State),
		DisplayName: sess.DisplayName,
		FileName:    sess.FileName,
		Error:       sess.ErrorMessage,
		Results:     sess.Results,
		PlaybackURL: playback.URL(sess.PlaybackToken),
	}
	if len(sess.Results) > 0 {
		top := sess.Results[0]
		resp.Top = &top
	}
	return resp
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// isNotFound translates upstream not-found errors to 404.
func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || errors.Is(err, playback.ErrNotFound)
}
