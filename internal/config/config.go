// Package config defines service configuration structures and loading hooks.
//
// Loading layers defaults, an optional YAML file, and environment
// variables; see Load for precedence.
package config

import (
	"context"
	"runtime"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8480".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory analysis job queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of analysis workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the request-id deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// ShardCount configures the number of shards in the session store.
	ShardCount int `koanf:"shard_count"`

	// AnalysisLatencyMS simulates the classifier's inference latency.
	AnalysisLatencyMS int `koanf:"analysis_latency_ms"`

	// ScoreJitter is the amplitude of the per-label random jitter.
	ScoreJitter float64 `koanf:"score_jitter"`

	// ScoreFloor is the post-jitter minimum raw score.
	ScoreFloor float64 `koanf:"score_floor"`

	// MaxClipBytes caps uploaded clip payloads.
	MaxClipBytes int64 `koanf:"max_clip_bytes"`

	// MaxRecordingBytes caps aggregate recording chunk size.
	MaxRecordingBytes int64 `koanf:"max_recording_bytes"`

	// CaptureEnabled gates recording; false models denied microphone
	// permission.
	CaptureEnabled bool `koanf:"capture_enabled"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention; it is reserved for future use and is
// currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:          "info",
		Addr:              ":8480",
		QueueSize:         1024,
		WorkerCount:       runtime.NumCPU(),
		DedupeSize:        10_000,
		ShardCount:        8,
		AnalysisLatencyMS: 900,
		ScoreJitter:       0.06,
		ScoreFloor:        0.05,
		MaxClipBytes:      10 << 20,
		MaxRecordingBytes: 10 << 20,
		CaptureEnabled:    true,
	}
}
