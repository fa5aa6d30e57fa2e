package democlips

import (
	"context"
	"fmt"
	"log"

	"github.com/calmcare/moodlens/internal/domain/emotion"
)

// Confidence sum bounds. Independent rounding per label lets the total
// drift a few points either side of 100.
const (
	minConfidenceSum = 97
	maxConfidenceSum = 103
)

// verifyResults checks each completed session for a well-formed
// confidence distribution.
func verifyResults(ctx context.Context, config *Config, clips []Clip, views []SessionView, stats *Stats) error {
	log.Println("🔍 Verifying results...")

	if len(views) == 0 {
		return fmt.Errorf("no results to verify")
	}

	verified := 0
	for i, view := range views {
		if view.SessionID == "" {
			continue
		}
		if err := verifySingleResult(view); err != nil {
			log.Printf("⚠️  Session %s (clip %d) failed verification: %v", view.SessionID, i, err)
			continue
		}
		verified++
		if config.Verbose {
			top := view.Results[0]
			log.Printf("   %s → %s (%d%%)", view.DisplayName, top.Label, top.Confidence)
		}
	}

	stats.ResultsVerified = verified
	if verified == 0 {
		return fmt.Errorf("no session passed verification")
	}

	log.Printf("✅ Verified %d/%d completed sessions", verified, len(views))
	return nil
}

// verifySingleResult validates one completed session view.
func verifySingleResult(view SessionView) error {
	if view.State != "done" {
		return fmt.Errorf("unexpected state %q", view.State)
	}
	if view.Error != "" {
		return fmt.Errorf("analysis error: %s", view.Error)
	}
	if len(view.Results) != emotion.Count() {
		return fmt.Errorf("expected %d results, got %d", emotion.Count(), len(view.Results))
	}

	sum := 0
	seen := make(map[emotion.Label]bool, len(view.Results))
	for i, r := range view.Results {
		if !r.Label.Valid() {
			return fmt.Errorf("unknown label %q", r.Label)
		}
		if seen[r.Label] {
			return fmt.Errorf("duplicate label %q", r.Label)
		}
		seen[r.Label] = true

		if r.Confidence < 0 || r.Confidence > 100 {
			return fmt.Errorf("confidence %d out of range for %q", r.Confidence, r.Label)
		}
		if i > 0 && r.Confidence > view.Results[i-1].Confidence {
			return fmt.Errorf("results not sorted: %q above %q", r.Label, view.Results[i-1].Label)
		}
		sum += r.Confidence
	}

	if sum < minConfidenceSum || sum > maxConfidenceSum {
		return fmt.Errorf("confidence sum %d outside [%d, %d]", sum, minConfidenceSum, maxConfidenceSum)
	}
	if view.PlaybackURL == "" {
		return fmt.Errorf("missing playback url")
	}
	return nil
}
