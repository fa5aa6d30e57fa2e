package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/calmcare/moodlens/internal/adapters/playback"
)

// PlaybackDependencies defines the interface for serving clip payloads.
type PlaybackDependencies interface {
	Playback(ctx context.Context, token string) (playback.Payload, error)
}

// PlaybackHandler streams stored clip payloads back to the browser so the
// demo page can replay what was analyzed.
type PlaybackHandler struct {
	deps PlaybackDependencies
}

// NewPlaybackHandler creates a new playback handler.
func NewPlaybackHandler(deps PlaybackDependencies) *PlaybackHandler {
	return &PlaybackHandler{deps: deps}
}

// HandlePlayback handles GET /playback/{token} requests.
func (h *PlaybackHandler) HandlePlayback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	token := strings.TrimPrefix(r.URL.Path, playback.PathPrefix)
	if token == "" || strings.Contains(token, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	payload, err := h.deps.Playback(r.Context(), token)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}

	w.Header().Set("Content-Type", payload.MIME)
	w.Header().Set("Content-Length", strconv.Itoa(len(payload.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload.Data)
}
