package democlips

import (
	"time"

	"github.com/calmcare/moodlens/internal/domain/emotion"
)

// Config holds configuration for the clip demo run
type Config struct {
	BaseURL    string        // Base URL of the service
	NumClips   int           // Number of clips to generate
	Workers    int           // Number of concurrent workers
	Timeout    time.Duration // HTTP request timeout
	OutputFile string        // Output file for generated clips
	LogFile    string        // Log file for demo output
	Verbose    bool          // Enable verbose logging
}

// Clip represents a clip submission payload
type Clip struct {
	RequestID string `json:"request_id"`
	Name      string `json:"name"`
	MIME      string `json:"mime"`
	Data      string `json:"data"` // base64-encoded payload
}

// SessionView mirrors the session shape returned by GET /sessions/{id}
type SessionView struct {
	SessionID   string                 `json:"session_id"`
	State       string                 `json:"state"`
	DisplayName string                 `json:"display_name"`
	Error       string                 `json:"error"`
	Results     []emotion.RankedResult `json:"results"`
	PlaybackURL string                 `json:"playback_url"`
}

// AckResponse represents the response from clip submission
type AckResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Stats holds demo run statistics
type Stats struct {
	ClipsGenerated   int
	ClipsSubmitted   int
	ClipsSuccessful  int
	ClipsDuplicate   int
	ClipsFailed      int
	ResultsRetrieved int
	ResultsVerified  int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
