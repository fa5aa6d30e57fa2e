package democlips

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"

	"github.com/google/uuid"
	"github.com/calmcare/moodlens/pkg/logger"
)

// Constants for clip generation.
const (
	payloadSizeDivisor = 4096
	minPayloadBytes    = 512
	nameStyleDivisor   = 4
)

// Constants for name style cases. Varying the name length varies the
// classifier's score profile, which keeps the verified results diverse.
const (
	caseShortName    = 0
	caseMediumName   = 1
	caseLongName     = 2
	caseFallbackName = 3
)

// audioMIMEs are the upload types the demo rotates through.
var audioMIMEs = []string{"audio/wav", "audio/mpeg", "audio/mp4"}

// generateClips creates the specified number of clips with varied names
// and synthetic payloads.
func generateClips(ctx context.Context, config *Config, stats *Stats) ([]Clip, error) {
	logger.Get().Info(ctx, "generating clips", logger.Int("numClips", config.NumClips))

	clips := make([]Clip, config.NumClips)

	type clipResult struct {
		index int
		clip  Clip
		err   error
	}

	resultChan := make(chan clipResult, config.NumClips)

	// Use worker pool for clip generation
	workerCount := minInt(config.Workers, config.NumClips)
	clipsPerWorker := config.NumClips / workerCount

	for worker := 0; worker < workerCount; worker++ {
		start := worker * clipsPerWorker
		end := start + clipsPerWorker
		if worker == workerCount-1 {
			end = config.NumClips // Last worker gets remaining clips
		}

		go func(start, end int) {
			for i := start; i < end; i++ {
				select {
				case <-ctx.Done():
					resultChan <- clipResult{index: i, err: ctx.Err()}
					return
				default:
					c, err := generateSingleClip(i)
					resultChan <- clipResult{index: i, clip: c, err: err}
				}
			}
		}(start, end)
	}

	// Collect results
	for i := 0; i < config.NumClips; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during clip generation: %w", ctx.Err())
		case result := <-resultChan:
			if result.err != nil {
				return nil, fmt.Errorf("failed to generate clip %d: %w", result.index, result.err)
			}
			clips[result.index] = result.clip
		}
	}

	stats.ClipsGenerated = len(clips)
	logger.Get().Info(ctx, "generated clips successfully", logger.Int("count", len(clips)))

	return clips, nil
}

// generateSingleClip creates one clip with a varied name and payload.
func generateSingleClip(index int) (Clip, error) {
	payload, err := randomPayload()
	if err != nil {
		return Clip{}, err
	}

	styleNum, err := rand.Int(rand.Reader, big.NewInt(nameStyleDivisor))
	if err != nil {
		return Clip{}, fmt.Errorf("failed to pick name style: %w", err)
	}

	var name string
	switch styleNum.Int64() {
	case caseShortName:
		name = "c" + strconv.Itoa(index) + ".wav"
	case caseMediumName:
		name = "session_clip_" + strconv.Itoa(index) + ".mp3"
	case caseLongName:
		name = "caregiver_recording_morning_check_" + strconv.Itoa(index) + ".m4a"
	case caseFallbackName:
		// Empty name exercises the fallback display name path
		name = ""
	}

	return Clip{
		RequestID: uuid.New().String(),
		Name:      name,
		MIME:      audioMIMEs[index%len(audioMIMEs)],
		Data:      base64.StdEncoding.EncodeToString(payload),
	}, nil
}

// randomPayload returns a small random byte blob standing in for audio data.
func randomPayload() ([]byte, error) {
	sizeNum, err := rand.Int(rand.Reader, big.NewInt(payloadSizeDivisor))
	if err != nil {
		return nil, fmt.Errorf("failed to pick payload size: %w", err)
	}
	buf := make([]byte, minPayloadBytes+int(sizeNum.Int64()))
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to fill payload: %w", err)
	}
	return buf, nil
}

// minInt returns the minimum of two integers.
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
