// Package repository defines the session store interface and errors.
//
// The store owns the interaction state machine for each session:
// idle -> loading -> done, with a transition back to idle on failure.
// Every analysis attempt bumps the session's generation; completions and
// failures carry the generation they were started with, and the store
// ignores any that arrive for a superseded generation.
package repository

import (
	"context"
	"time"

	"github.com/calmcare/moodlens/internal/domain/emotion"
)

// State names the interaction states a session moves through.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateDone    State = "done"
)

// Session is the owned, explicit state record for one caregiver session.
type Session struct {
	ID         string
	State      State
	Generation uint64

	// Clip metadata for the current analysis.
	DisplayName string
	FileName    string
	MIME        string

	// ErrorMessage is the auxiliary error flag tracked alongside state.
	ErrorMessage string

	// Results from the most recent completed analysis. Replaced wholesale
	// on each completion; never merged.
	Results []emotion.RankedResult

	// PlaybackToken references the current playback payload, if any.
	PlaybackToken string

	UpdatedAt time.Time
}

// Store provides read/write access to session state.
type Store interface {
	// Create registers a new session in idle state.
	Create(ctx context.Context) (Session, error)

	// Get returns a session snapshot. Returns ErrNotFound if unknown.
	Get(ctx context.Context, id string) (Session, error)

	// BeginAnalysis moves the session to loading, clears results and the
	// error flag, records clip metadata, and returns the new generation.
	BeginAnalysis(ctx context.Context, id, displayName, fileName, mime string) (uint64, error)

	// CompleteAnalysis stores results and moves to done, provided gen is
	// still the session's current generation. Returns false when the
	// result was discarded as stale.
	CompleteAnalysis(ctx context.Context, id string, gen uint64, results []emotion.RankedResult) (bool, error)

	// FailAnalysis moves the session back to idle with the error flag set,
	// provided gen is still current. Returns false when discarded as stale.
	FailAnalysis(ctx context.Context, id string, gen uint64, msg string) (bool, error)

	// SetError sets the error flag without touching state or generation.
	// Used for rejections that never invoke the pipeline.
	SetError(ctx context.Context, id, msg string) error

	// Reset returns the session to idle with empty results and a bumped
	// generation, orphaning any in-flight analysis.
	Reset(ctx context.Context, id string) error

	// SetPlaybackToken swaps the session's playback token and returns the
	// superseded one (empty if none) so the caller can revoke it.
	SetPlaybackToken(ctx context.Context, id, token string) (string, error)

	// Count returns the number of sessions tracked.
	Count(ctx context.Context) int
}
