package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/calmcare/moodlens/internal/democlips"
)

// Default configuration constants.
const (
	defaultNumClips    = 100
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultDemoTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:8480", "Base URL of the service")
		numClips   = flag.Int("clips", defaultNumClips, "Number of clips to generate and submit")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "Output file for generated clips (default: generated_clips_TIMESTAMP.json)")
		logFile    = flag.String("log", "", "Log file for demo output (default: demo_log_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		democlips.ShowHelp()
		return
	}

	// Setup logging
	if err := democlips.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), defaultDemoTimeout)
	defer cancel()

	// Create demo configuration
	config := &democlips.Config{
		BaseURL:    *baseURL,
		NumClips:   *numClips,
		Workers:    *workers,
		Timeout:    *timeout,
		OutputFile: *outputFile,
		LogFile:    *logFile,
		Verbose:    *verbose,
	}

	// Run the demo
	if err := democlips.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Demo failed: " + err.Error() + "\n")
		return
	}
}
