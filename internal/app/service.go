// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/calmcare/moodlens/internal/adapters/capture"
	jobqueue "github.com/calmcare/moodlens/internal/adapters/mq/queue"
	workerpool "github.com/calmcare/moodlens/internal/adapters/mq/worker"
	"github.com/calmcare/moodlens/internal/adapters/playback"
	repository "github.com/calmcare/moodlens/internal/adapters/repository"
	"github.com/calmcare/moodlens/internal/domain/classify"
	"github.com/calmcare/moodlens/internal/domain/clip"
	"github.com/calmcare/moodlens/internal/domain/dedupe"
	"github.com/calmcare/moodlens/internal/domain/emotion"
	"github.com/calmcare/moodlens/pkg/logger"
	"github.com/calmcare/moodlens/pkg/metrics"
)

// ErrBackpressure signals that the analysis queue rejected a submission.
var ErrBackpressure = errors.New("analysis queue is full")

// Service wires the session store, analysis pipeline, capture, and
// playback components behind the operations the HTTP API needs.
type Service struct {
	mu sync.RWMutex

	// Core components
	sessions   repository.Store
	deduper    dedupe.Deduper
	jobQueue   jobqueue.Queue
	classifier classify.Classifier
	workerPool *workerpool.Pool
	recorder   *capture.Recorder
	playback   *playback.Store

	// Configuration
	workerCount       int
	queueSize         int
	dedupeSize        int
	shardCount        int
	analysisLatency   time.Duration
	scoreJitter       float64
	scoreFloor        float64
	maxRecordingBytes int64
	captureEnabled    bool

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of analysis workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the analysis job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the request-id deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithShardCount sets the number of shards in the session store.
func WithShardCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.shardCount = count
		}
	}
}

// WithAnalysisLatency sets the simulated classifier latency.
func WithAnalysisLatency(latency time.Duration) Option {
	return func(s *Service) {
		if latency >= 0 {
			s.analysisLatency = latency
		}
	}
}

// WithScoreJitter sets the classifier jitter amplitude.
func WithScoreJitter(jitter float64) Option {
	return func(s *Service) {
		if jitter >= 0 {
			s.scoreJitter = jitter
		}
	}
}

// WithScoreFloor sets the classifier's post-jitter minimum score.
func WithScoreFloor(floor float64) Option {
	return func(s *Service) {
		if floor > 0 {
			s.scoreFloor = floor
		}
	}
}

// WithMaxRecordingBytes caps aggregate recording size.
func WithMaxRecordingBytes(maxBytes int64) Option {
	return func(s *Service) {
		if maxBytes > 0 {
			s.maxRecordingBytes = maxBytes
		}
	}
}

// WithCaptureEnabled toggles microphone capture.
func WithCaptureEnabled(enabled bool) Option {
	return func(s *Service) {
		s.captureEnabled = enabled
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:       runtime.NumCPU(),
		queueSize:         1024,
		dedupeSize:        10_000,
		shardCount:        8,
		analysisLatency:   900 * time.Millisecond,
		scoreJitter:       0.06,
		scoreFloor:        0.05,
		maxRecordingBytes: 10 << 20,
		captureEnabled:    true,
		logger:            nil, // Will be replaced when service starts
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting analysis service...")

	s.sessions = repository.NewMemStore(ctx,
		repository.WithShardCount(s.shardCount),
	)
	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
	)
	s.jobQueue = jobqueue.NewInMemoryQueue(
		jobqueue.WithCapacity(s.queueSize),
	)
	s.classifier = classify.NewMockClassifier(
		classify.WithLatency(s.analysisLatency),
		classify.WithJitter(s.scoreJitter),
		classify.WithScoreFloor(s.scoreFloor),
	)
	s.recorder = capture.NewRecorder(
		capture.WithMaxRecordingBytes(s.maxRecordingBytes),
		capture.WithCaptureEnabled(s.captureEnabled),
	)
	s.playback = playback.NewStore()

	s.workerPool = workerpool.NewPool(s.workerCount, s.jobQueue, s.classifier, s.sessions)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "analysis service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Duration("analysisLatency", s.analysisLatency),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping analysis service...")

	if s.workerPool != nil {
		s.workerPool.Stop()
	}
	if q, ok := s.jobQueue.(*jobqueue.InMemoryQueue); ok {
		_ = q.Close()
	}
	if s.recorder != nil {
		_ = s.recorder.Close()
	}
	if s.playback != nil {
		_ = s.playback.Close()
	}

	s.started = false
	s.logger.Info(ctx, "analysis service stopped")
}

// CreateSession registers a new idle session.
func (s *Service) CreateSession(ctx context.Context) (repository.Session, error) {
	return s.sessions.Create(ctx)
}

// GetSession returns a session snapshot.
func (s *Service) GetSession(ctx context.Context, id string) (repository.Session, error) {
	return s.sessions.Get(ctx, id)
}

// AnalyzeClip validates and submits an uploaded clip for analysis.
// Returns duplicate=true when the request id was already accepted.
func (s *Service) AnalyzeClip(ctx context.Context, sessionID, requestID, name, mime string, data []byte) (bool, error) {
	h := clip.Handle{Name: name, MIME: mime, Data: data}
	displayName := name
	if displayName == "" {
		displayName = clip.FallbackName
	}
	return s.submit(ctx, sessionID, requestID, displayName, h)
}

// StartRecording acquires the capture resource and resets the session:
// results are cleared immediately and any in-flight analysis is orphaned.
func (s *Service) StartRecording(ctx context.Context, sessionID string) error {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return err
	}

	if err := s.recorder.Start(ctx, sessionID); err != nil {
		if errors.Is(err, capture.ErrCaptureDenied) {
			_ = s.sessions.SetError(ctx, sessionID, err.Error())
		}
		return err
	}

	if err := s.sessions.Reset(ctx, sessionID); err != nil {
		// Session vanished between Get and Reset; release the resource.
		_ = s.recorder.Abort(ctx, sessionID)
		return err
	}

	// The cleared results no longer reference the old payload.
	if prev, err := s.sessions.SetPlaybackToken(ctx, sessionID, ""); err == nil {
		s.playback.Revoke(ctx, prev)
	}

	return nil
}

// AppendChunk adds one chunk to the session's open recording.
func (s *Service) AppendChunk(ctx context.Context, sessionID string, chunk []byte) error {
	return s.recorder.Append(ctx, sessionID, chunk)
}

// StopRecording finalizes the recording and submits it for analysis under
// the caregiver-facing display name.
func (s *Service) StopRecording(ctx context.Context, sessionID, requestID string) (bool, error) {
	h, err := s.recorder.Stop(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return s.submit(ctx, sessionID, requestID, clip.RecordingDisplayName, h)
}

// AbortRecording releases the capture resource without analyzing.
func (s *Service) AbortRecording(ctx context.Context, sessionID string) error {
	return s.recorder.Abort(ctx, sessionID)
}

// Recording reports whether the session holds an open recording.
func (s *Service) Recording(sessionID string) bool {
	return s.recorder.Active(sessionID)
}

// Playback returns the stored payload for a live token.
func (s *Service) Playback(ctx context.Context, token string) (playback.Payload, error) {
	return s.playback.Get(ctx, token)
}

// Labels returns the caregiver-facing profile table for all labels.
func (s *Service) Labels() []emotion.Profile {
	return emotion.Profiles()
}

// submit runs the shared acceptance path: MIME validation, idempotency,
// playback rotation, state transition, and enqueue.
func (s *Service) submit(ctx context.Context, sessionID, requestID, displayName string, h clip.Handle) (bool, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return false, err
	}

	if err := clip.ValidateMIME(h.MIME); err != nil {
		metrics.RecordUploadRejected()
		_ = s.sessions.SetError(ctx, sessionID, err.Error())
		return false, err
	}

	if requestID == "" {
		requestID = uuid.NewString()
	}
	if s.deduper.SeenAndRecord(ctx, requestID) {
		metrics.RecordDuplicateSubmission()
		s.logger.Debug(ctx, "duplicate submission acknowledged",
			logger.String("requestID", requestID),
			logger.String("sessionID", sessionID),
		)
		return true, nil
	}

	token, err := s.playback.Put(ctx, h.Name, h.MIME, h.Data)
	if err != nil {
		s.deduper.Unrecord(ctx, requestID)
		return false, fmt.Errorf("storing playback payload: %w", err)
	}
	prev, err := s.sessions.SetPlaybackToken(ctx, sessionID, token)
	if err != nil {
		s.deduper.Unrecord(ctx, requestID)
		s.playback.Revoke(ctx, token)
		return false, err
	}
	s.playback.Revoke(ctx, prev)

	gen, err := s.sessions.BeginAnalysis(ctx, sessionID, displayName, h.Name, h.MIME)
	if err != nil {
		s.deduper.Unrecord(ctx, requestID)
		return false, err
	}

	job := jobqueue.Job{
		RequestID:  requestID,
		SessionID:  sessionID,
		Generation: gen,
		Clip:       h,
	}
	if ok := s.jobQueue.Enqueue(ctx, job); !ok {
		s.deduper.Unrecord(ctx, requestID)
		metrics.RecordAnalysisFailed()
		_, _ = s.sessions.FailAnalysis(ctx, sessionID, gen, workerpool.AnalysisFailedMessage)
		return false, ErrBackpressure
	}

	s.logger.Debug(ctx, "analysis enqueued",
		logger.String("sessionID", sessionID),
		logger.String("clip", h.Name),
		logger.Uint64("generation", gen),
	)

	return false, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}

	if s.started {
		queueLen := s.jobQueue.Len(ctx)
		sessionCount := s.sessions.Count(ctx)

		stats["queueLength"] = queueLen
		stats["sessionCount"] = sessionCount
		stats["playbackTokens"] = s.playback.Len()
		stats["dedupeEntries"] = s.deduper.Size()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateSessionCount(sessionCount)
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}
