package api

import (
	"net/http"

	"github.com/calmcare/moodlens/internal/domain/emotion"
)

// LabelDependencies defines the interface for listing emotion profiles.
type LabelDependencies interface {
	Labels() []emotion.Profile
}

// LabelsHandler serves the emotion label catalog the demo page renders
// result cards from.
type LabelsHandler struct {
	deps LabelDependencies
}

// NewLabelsHandler creates a new labels handler.
func NewLabelsHandler(deps LabelDependencies) *LabelsHandler {
	return &LabelsHandler{deps: deps}
}

// labelResponse is the JSON shape for a single emotion profile.
type labelResponse struct {
	Label       string   `json:"label"`
	Color       string   `json:"color"`
	Cue         string   `json:"cue"`
	Suggestions []string `json:"suggestions"`
}

// HandleLabels handles GET /labels requests.
func (h *LabelsHandler) HandleLabels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	profiles := h.deps.Labels()
	out := make([]labelResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, labelResponse{
			Label:       string(p.Label),
			Color:       p.Color,
			Cue:         p.Cue,
			Suggestions: p.Suggestions,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
