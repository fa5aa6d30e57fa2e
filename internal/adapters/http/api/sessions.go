// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/calmcare/moodlens/internal/adapters/capture"
	"github.com/calmcare/moodlens/internal/adapters/repository"
	service "github.com/calmcare/moodlens/internal/app"
	"github.com/calmcare/moodlens/internal/domain/clip"
	"github.com/calmcare/moodlens/pkg/metrics"
)

// SessionDependencies defines the interface for session and clip operations.
type SessionDependencies interface {
	CreateSession(ctx context.Context) (repository.Session, error)
	GetSession(ctx context.Context, id string) (repository.Session, error)
	AnalyzeClip(ctx context.Context, sessionID, requestID, name, mimeType string, data []byte) (bool, error)
}

// RecordingDependencies defines the interface for the recording subresource.
type RecordingDependencies interface {
	StartRecording(ctx context.Context, sessionID string) error
	AppendChunk(ctx context.Context, sessionID string, chunk []byte) error
	StopRecording(ctx context.Context, sessionID, requestID string) (bool, error)
	AbortRecording(ctx context.Context, sessionID string) error
}

// SessionsHandler handles the /sessions resource tree.
type SessionsHandler struct {
	deps         SessionDependencies
	recDeps      RecordingDependencies
	maxClipBytes int64
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies, recDeps RecordingDependencies, maxClipBytes int64) *SessionsHandler {
	return &SessionsHandler{
		deps:         deps,
		recDeps:      recDeps,
		maxClipBytes: maxClipBytes,
	}
}

// clipRequest mirrors the JSON schema for POST /sessions/{id}/clips.
type clipRequest struct {
	RequestID string `json:"request_id"`
	Name      string `json:"name"`
	MIME      string `json:"mime"`
	Data      string `json:"data"` // base64-encoded payload
}

// HandleSessions handles POST /sessions requests.
func (h *SessionsHandler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_session"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	sess, err := h.deps.CreateSession(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(sess))
}

// HandleSession routes /sessions/{id} and its subresources.
func (h *SessionsHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if parts[0] == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 1:
		h.handleGetSession(w, r, id)
	case len(parts) == 2 && parts[1] == "clips":
		h.handlePostClip(w, r, id)
	case len(parts) == 2 && parts[1] == "recording":
		h.handleRecording(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

// handleGetSession handles GET /sessions/{id}.
func (h *SessionsHandler) handleGetSession(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	sess, err := h.deps.GetSession(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

// handlePostClip handles POST /sessions/{id}/clips. The payload arrives as
// multipart form data (file part "file") or as JSON with base64 data.
func (h *SessionsHandler) handlePostClip(w http.ResponseWriter, r *http.Request, id string) {
	const op = "api.post_clip"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	requestID, name, mimeType, data, err := h.readClip(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	h.submit(w, r, op, id, requestID, name, mimeType, data)
}

// readClip extracts the clip payload from a multipart or JSON body.
func (h *SessionsHandler) readClip(r *http.Request) (requestID, name, mimeType string, data []byte, err error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		if err = r.ParseMultipartForm(h.maxClipBytes); err != nil {
			return "", "", "", nil, err
		}
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			return "", "", "", nil, ferr
		}
		defer func() { _ = file.Close() }()

		data, err = io.ReadAll(io.LimitReader(file, h.maxClipBytes))
		if err != nil {
			return "", "", "", nil, err
		}
		return r.FormValue("request_id"), header.Filename, header.Header.Get("Content-Type"), data, nil
	}

	var req clipRequest
	if err = json.NewDecoder(io.LimitReader(r.Body, h.maxClipBytes)).Decode(&req); err != nil {
		return "", "", "", nil, err
	}
	if req.Data != "" {
		data, err = base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			return "", "", "", nil, err
		}
	}
	return req.RequestID, req.Name, req.MIME, data, nil
}

// handleRecording handles the recording subresource:
// POST starts, PATCH appends a chunk, DELETE stops (or aborts with ?abort=true).
func (h *SessionsHandler) handleRecording(w http.ResponseWriter, r *http.Request, id string) {
	const op = "api.recording"
	switch r.Method {
	case http.MethodPost:
		if err := h.recDeps.StartRecording(r.Context(), id); err != nil {
			h.writeRecordingError(w, op, err)
			return
		}
		writeJSON(w, http.StatusOK, ackResponse{Status: "recording"})

	case http.MethodPatch:
		chunk, err := io.ReadAll(io.LimitReader(r.Body, h.maxClipBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		if err := h.recDeps.AppendChunk(r.Context(), id, chunk); err != nil {
			h.writeRecordingError(w, op, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		if r.URL.Query().Get("abort") == "true" {
			if err := h.recDeps.AbortRecording(r.Context(), id); err != nil {
				h.writeRecordingError(w, op, err)
				return
			}
			writeJSON(w, http.StatusOK, ackResponse{Status: "aborted"})
			return
		}
		duplicate, err := h.recDeps.StopRecording(r.Context(), id, r.URL.Query().Get("request_id"))
		if err != nil {
			h.submitError(w, op, err)
			return
		}
		if duplicate {
			writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
			return
		}
		writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})

	default:
		http.NotFound(w, r)
	}
}

// submit runs the shared acceptance path for uploads and finished recordings.
func (h *SessionsHandler) submit(w http.ResponseWriter, r *http.Request, op, id, requestID, name, mimeType string, data []byte) {
	duplicate, err := h.deps.AnalyzeClip(r.Context(), id, requestID, name, mimeType, data)
	if err != nil {
		h.submitError(w, op, err)
		return
	}
	if duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}

// submitError maps submission failures onto status codes and user-facing
// messages.
func (h *SessionsHandler) submitError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, clip.ErrNotAudio):
		metrics.RecordErrorByComponent("api", "invalid_input_type")
		writeError(w, http.StatusBadRequest, "invalid_input_type", clip.ErrNotAudio)
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
	case errors.Is(err, capture.ErrNotRecording):
		writeError(w, http.StatusConflict, "not_recording", err)
	case isNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}

// writeRecordingError maps capture failures onto status codes.
func (h *SessionsHandler) writeRecordingError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, capture.ErrCaptureDenied):
		writeError(w, http.StatusConflict, "capture_denied", capture.ErrCaptureDenied)
	case errors.Is(err, capture.ErrAlreadyRecording):
		writeError(w, http.StatusConflict, "already_recording", err)
	case errors.Is(err, capture.ErrNotRecording):
		writeError(w, http.StatusConflict, "not_recording", err)
	case errors.Is(err, capture.ErrRecordingTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "recording_too_large", err)
	case isNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}
