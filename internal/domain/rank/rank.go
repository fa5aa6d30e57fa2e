// Package rank converts raw classifier scores into ranked integer
// confidences.
package rank

import (
	"math"
	"sort"

	"github.com/calmcare/moodlens/internal/domain/emotion"
)

// percentScale converts a normalized share into a percentage.
const percentScale = 100

// Normalize converts raw scores into integer percentage confidences sorted
// descending. Each confidence is round(100 * score / total) with half-up
// rounding, where total is the sum of all scores, coerced to 1 when the sum
// is zero to guard division. Confidences are rounded independently, so
// their sum may drift a few points from 100 for four labels; callers must
// not re-normalize after rounding. Ties keep input order.
func Normalize(scores []emotion.RawScore) []emotion.RankedResult {
	if len(scores) == 0 {
		return nil
	}

	total := 0.0
	for _, s := range scores {
		total += s.Score
	}
	if total == 0 {
		total = 1
	}

	results := make([]emotion.RankedResult, len(scores))
	for i, s := range scores {
		results[i] = emotion.RankedResult{
			Label:      s.Label,
			Confidence: int(math.Round(percentScale * s.Score / total)),
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})

	return results
}

// Top returns the highest-confidence result, or false for an empty set.
func Top(results []emotion.RankedResult) (emotion.RankedResult, bool) {
	if len(results) == 0 {
		return emotion.RankedResult{}, false
	}
	return results[0], true
}
