package democlips

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/calmcare/moodlens/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
)

// Run executes the complete clip demo.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting moodlens clip demo",
		logger.String("baseURL", config.BaseURL),
		logger.Int("clips", config.NumClips),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.String("logFile", config.LogFile),
		logger.Any("verbose", config.Verbose))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate clips
	clips, err := generateClips(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("clip generation failed: %w", err)
	}

	// Step 3: Submit clips concurrently
	sessionIDs, err := submitClips(ctx, config, clips, stats)
	if err != nil {
		return fmt.Errorf("clip submission failed: %w", err)
	}

	// Step 4: Poll sessions until analysis completes
	views, err := pollSessions(ctx, config, sessionIDs, stats)
	if err != nil {
		return fmt.Errorf("result polling failed: %w", err)
	}

	// Step 5: Verify results
	if err := verifyResults(ctx, config, clips, views, stats); err != nil {
		return fmt.Errorf("result verification failed: %w", err)
	}

	// Step 6: Save clips to file
	if err := saveClipsToFile(ctx, config, clips); err != nil {
		logger.Get().Warn(ctx, "failed to save clips to file", logger.Error(err))
	}

	// Final statistics
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	logger.Get().Info(ctx, "demo completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/healthz"

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()

	// Accept any 200 response as healthy (the service returns Prometheus metrics)
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// saveClipsToFile saves the generated clips to a JSON file.
func saveClipsToFile(ctx context.Context, config *Config, clips []Clip) error {
	if len(clips) == 0 {
		return fmt.Errorf("no clips to save")
	}

	// Determine output filename
	filename := config.OutputFile
	if filename == "" {
		timestamp := time.Now().Format("20060102_150405")
		filename = "generated_clips_" + timestamp + ".json"
	}

	// Ensure the directory exists
	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close file", logger.Error(err))
		}
	}()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(clips); err != nil {
		return fmt.Errorf("failed to write clips: %w", err)
	}

	logger.Get().Info(ctx, "clips saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats prints the final demo statistics.
func displayFinalStats(stats *Stats) {
	var successRate, clipsPerSecond float64

	if stats.ClipsSubmitted > 0 {
		successRate = float64(stats.ClipsSuccessful) / float64(stats.ClipsSubmitted) * PercentageMultiplier
	}

	if stats.Duration > 0 {
		clipsPerSecond = float64(stats.ClipsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("clipsGenerated", stats.ClipsGenerated),
		logger.Int("clipsSubmitted", stats.ClipsSubmitted),
		logger.Int("clipsSuccessful", stats.ClipsSuccessful),
		logger.Int("clipsDuplicate", stats.ClipsDuplicate),
		logger.Int("clipsFailed", stats.ClipsFailed),
		logger.Int("resultsRetrieved", stats.ResultsRetrieved),
		logger.Int("resultsVerified", stats.ResultsVerified),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("clipsPerSecond", clipsPerSecond))
}
