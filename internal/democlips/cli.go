package democlips

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/calmcare/moodlens/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	// Initialize the logger first
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "demo_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the demo clips tool.
func ShowHelp() {
	os.Stdout.WriteString(`MoodLens Clip Demo Tool
=======================

A concurrent tool for exercising the MoodLens analysis pipeline end to end:
it creates sessions, submits generated audio clips, polls until analysis
completes, and verifies the returned confidence distributions.

Usage:
  go run cmd/demo-clips/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:8480")
  -clips int
        Number of clips to generate and submit (default 100)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -output string
        Output file for generated clips (default: generated_clips_TIMESTAMP.json)
  -log string
        Log file for demo output (default: demo_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Run with default settings
  go run cmd/demo-clips/main.go

  # Run with custom parameters
  go run cmd/demo-clips/main.go -clips 500 -workers 16 -url http://localhost:8080

  # Run with verbose output
  go run cmd/demo-clips/main.go -verbose -clips 100
`)
}
