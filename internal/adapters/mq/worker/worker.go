// Package worker defines worker contracts for asynchronous clip analysis.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/calmcare/moodlens/internal/adapters/mq/queue"
	"github.com/calmcare/moodlens/internal/domain/clip"
	"github.com/calmcare/moodlens/internal/domain/emotion"
	"github.com/calmcare/moodlens/internal/domain/rank"
	"github.com/calmcare/moodlens/pkg/logger"
	"github.com/calmcare/moodlens/pkg/metrics"
)

// Default worker configuration constants.
const (
	workerShutdownTimeout = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// AnalysisFailedMessage is the generic retry message surfaced when the
// pipeline rejects for any reason.
const AnalysisFailedMessage = "Could not analyze. Please try again."

// Classifier produces raw scores for a clip.
type Classifier interface {
	Classify(ctx context.Context, h clip.Handle) ([]emotion.RawScore, error)
}

// Sessions is the slice of the session store workers write results to.
type Sessions interface {
	CompleteAnalysis(ctx context.Context, id string, gen uint64, results []emotion.RankedResult) (bool, error)
	FailAnalysis(ctx context.Context, id string, gen uint64, msg string) (bool, error)
}

// JobSource defines how workers receive jobs.
type JobSource interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes analysis jobs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// AnalysisWorker implements Worker for the classify -> normalize -> store
// pipeline.
type AnalysisWorker struct {
	source     JobSource
	classifier Classifier
	sessions   Sessions
	name       string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewAnalysisWorker creates a new worker with configuration options.
func NewAnalysisWorker(source JobSource, classifier Classifier, sessions Sessions, opts ...Option) *AnalysisWorker {
	w := &AnalysisWorker{
		source:     source,
		classifier: classifier,
		sessions:   sessions,
		name:       "worker",
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *AnalysisWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.source.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.processJob(ctx, job); err != nil {
				w.logger.Error(ctx, "error processing job", logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *AnalysisWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processJob runs one analysis invocation end to end.
func (w *AnalysisWorker) processJob(ctx context.Context, job queue.Job) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerLatency(float64(time.Since(start).Milliseconds()))
	}()

	classifyStart := time.Now()
	scores, err := w.classifier.Classify(ctx, job.Clip)
	metrics.RecordClassifyLatency(float64(time.Since(classifyStart).Milliseconds()))

	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "classify_error")
		metrics.RecordAnalysisFailed()
		w.logger.Error(ctx, "classification failed",
			logger.String("sessionID", job.SessionID),
			logger.String("clip", job.Clip.Name),
			logger.Error(err),
		)
		if _, ferr := w.sessions.FailAnalysis(ctx, job.SessionID, job.Generation, AnalysisFailedMessage); ferr != nil {
			return fmt.Errorf("recording analysis failure: %w", ferr)
		}
		return fmt.Errorf("classify clip %q: %w", job.Clip.Name, err)
	}

	results := rank.Normalize(scores)

	applied, err := w.sessions.CompleteAnalysis(ctx, job.SessionID, job.Generation, results)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "store_error")
		w.logger.Error(ctx, "storing results failed",
			logger.String("sessionID", job.SessionID),
			logger.Error(err),
		)
		return fmt.Errorf("storing results: %w", err)
	}

	if applied {
		metrics.RecordAnalysisCompleted()
	} else {
		w.logger.Debug(ctx, "discarded stale analysis result",
			logger.String("sessionID", job.SessionID),
			logger.Uint64("generation", job.Generation),
		)
	}

	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers    []*AnalysisWorker
	source     JobSource
	classifier Classifier
	sessions   Sessions

	shutdown chan struct{}

	logger logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, source JobSource, classifier Classifier, sessions Sessions) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers:    make([]*AnalysisWorker, workerCount),
		source:     source,
		classifier: classifier,
		sessions:   sessions,
		shutdown:   make(chan struct{}),
		logger:     logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewAnalysisWorker(
			source,
			classifier,
			sessions,
			WithName("worker-"+strconv.Itoa(i)),
		)
	}

	metrics.UpdateWorkerCount(workerCount)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Stop gracefully stops all workers.
func (p *Pool) Stop() {
	close(p.shutdown)

	for _, w := range p.workers {
		select {
		case <-w.shutdown:
			// Already shut down individually.
		default:
			close(w.shutdown)
		}
	}

	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
}

// Shutdown closes the job source and waits for workers to drain.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.source.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	return nil
}
