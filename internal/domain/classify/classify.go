// Package classify defines the contract for producing raw emotion scores
// from a clip handle.
package classify

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/calmcare/moodlens/internal/domain/clip"
	"github.com/calmcare/moodlens/internal/domain/emotion"
)

// Default classifier configuration constants.
const (
	defaultLatency = 900 * time.Millisecond
	defaultJitter  = 0.06
	defaultFloor   = 0.05
)

// Option applies a configuration option to the MockClassifier.
type Option func(*MockClassifier)

// WithLatency sets the simulated inference latency.
func WithLatency(latency time.Duration) Option {
	return func(c *MockClassifier) {
		if latency >= 0 {
			c.latency = latency
		}
	}
}

// WithJitter sets the amplitude of the per-label jitter. Scores move within
// [base-jitter, base+jitter] before the floor is applied.
func WithJitter(jitter float64) Option {
	return func(c *MockClassifier) {
		if jitter >= 0 {
			c.jitter = jitter
		}
	}
}

// WithScoreFloor sets the post-jitter minimum score.
func WithScoreFloor(floor float64) Option {
	return func(c *MockClassifier) {
		if floor > 0 {
			c.floor = floor
		}
	}
}

// WithRandSource sets the jitter randomness source, mainly for tests.
func WithRandSource(src rand.Source) Option {
	return func(c *MockClassifier) {
		if src != nil {
			c.rng = rand.New(src) //nolint:gosec // jitter is cosmetic, not security-relevant
		}
	}
}

// Classifier produces exactly one raw score per emotion label for a clip.
// Implementations may simulate latency to model an external ML service.
type Classifier interface {
	// Classify computes raw scores, honoring ctx for cancellation.
	Classify(ctx context.Context, h clip.Handle) ([]emotion.RawScore, error)
}

// MockClassifier implements Classifier with seeded, jittered scores.
//
// This is explicitly a stand-in for a real vocal affect model. The scores
// depend only on the clip's display name length plus random jitter and
// carry no meaning about the audio itself.
type MockClassifier struct {
	latency time.Duration
	jitter  float64
	floor   float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockClassifier creates a classifier with configuration options.
func NewMockClassifier(opts ...Option) *MockClassifier {
	c := &MockClassifier{
		latency: defaultLatency,
		jitter:  defaultJitter,
		floor:   defaultFloor,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // jitter is cosmetic, not security-relevant
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseScores returns the deterministic pre-jitter score per label for a
// seed, in canonical label order. Exposed so callers can verify the seed
// derivation independently of the jitter.
func BaseScores(seed int) []emotion.RawScore {
	return []emotion.RawScore{
		{Label: emotion.Calm, Score: 0.32 + float64(seed%3)*0.05},
		{Label: emotion.Stressed, Score: 0.28 + float64((seed+1)%3)*0.04},
		{Label: emotion.Excited, Score: 0.25 + float64((seed+2)%3)*0.03},
		{Label: emotion.Neutral, Score: 0.15},
	}
}

// Classify computes one raw score per label for the given clip handle.
// The only failure mode is context cancellation during the simulated
// inference latency.
func (c *MockClassifier) Classify(ctx context.Context, h clip.Handle) ([]emotion.RawScore, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	case <-time.After(c.latency):
		// Continue with scoring
	}

	scores := BaseScores(h.Seed())
	for i := range scores {
		scores[i].Score = math.Max(c.floor, scores[i].Score+c.nextJitter())
	}

	return scores, nil
}

// nextJitter draws an independent offset in [-jitter, +jitter].
func (c *MockClassifier) nextJitter() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (c.rng.Float64()*2 - 1) * c.jitter
}
