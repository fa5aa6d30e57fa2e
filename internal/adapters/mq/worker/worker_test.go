package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/calmcare/moodlens/internal/adapters/mq/queue"
	worker "github.com/calmcare/moodlens/internal/adapters/mq/worker"
	"github.com/calmcare/moodlens/internal/domain/clip"
	"github.com/calmcare/moodlens/internal/domain/emotion"
	logging "github.com/calmcare/moodlens/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing.
type mockSource struct {
	jobChan    chan queue.Job
	closeError error
}

func newMockSource() *mockSource {
	return &mockSource{
		jobChan: make(chan queue.Job, 10),
	}
}

func (ms *mockSource) Dequeue(ctx context.Context) <-chan queue.Job {
	return ms.jobChan
}

func (ms *mockSource) Close() error {
	close(ms.jobChan)
	return ms.closeError
}

func (ms *mockSource) addJob(j queue.Job) {
	ms.jobChan <- j
}

type mockClassifier struct {
	errors map[string]error
	mu     sync.RWMutex
}

func newMockClassifier() *mockClassifier {
	return &mockClassifier{
		errors: make(map[string]error),
	}
}

func (mc *mockClassifier) Classify(ctx context.Context, h clip.Handle) ([]emotion.RawScore, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if err, exists := mc.errors[h.Name]; exists {
		return nil, err
	}
	return []emotion.RawScore{
		{Label: emotion.Calm, Score: 0.4},
		{Label: emotion.Stressed, Score: 0.3},
		{Label: emotion.Excited, Score: 0.2},
		{Label: emotion.Neutral, Score: 0.1},
	}, nil
}

func (mc *mockClassifier) setError(clipName string, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.errors[clipName] = err
}

type mockSessions struct {
	results     map[string][]emotion.RankedResult
	failures    map[string]string
	staleGens   map[string]uint64 // generations considered stale per session
	storeErrors map[string]error
	mu          sync.RWMutex
}

func newMockSessions() *mockSessions {
	return &mockSessions{
		results:     make(map[string][]emotion.RankedResult),
		failures:    make(map[string]string),
		staleGens:   make(map[string]uint64),
		storeErrors: make(map[string]error),
	}
}

func (msn *mockSessions) CompleteAnalysis(ctx context.Context, id string, gen uint64, results []emotion.RankedResult) (bool, error) {
	msn.mu.Lock()
	defer msn.mu.Unlock()

	if err, exists := msn.storeErrors[id]; exists {
		return false, err
	}
	if stale, exists := msn.staleGens[id]; exists && gen <= stale {
		return false, nil
	}
	msn.results[id] = results
	return true, nil
}

func (msn *mockSessions) FailAnalysis(ctx context.Context, id string, gen uint64, msg string) (bool, error) {
	msn.mu.Lock()
	defer msn.mu.Unlock()

	if stale, exists := msn.staleGens[id]; exists && gen <= stale {
		return false, nil
	}
	msn.failures[id] = msg
	return true, nil
}

func (msn *mockSessions) markStale(id string, upTo uint64) {
	msn.mu.Lock()
	defer msn.mu.Unlock()
	msn.staleGens[id] = upTo
}

func (msn *mockSessions) setStoreError(id string, err error) {
	msn.mu.Lock()
	defer msn.mu.Unlock()
	msn.storeErrors[id] = err
}

func (msn *mockSessions) getResults(id string) ([]emotion.RankedResult, bool) {
	msn.mu.RLock()
	defer msn.mu.RUnlock()
	r, ok := msn.results[id]
	return r, ok
}

func (msn *mockSessions) getFailure(id string) (string, bool) {
	msn.mu.RLock()
	defer msn.mu.RUnlock()
	m, ok := msn.failures[id]
	return m, ok
}

func testJob(sessionID string, gen uint64, clipName string) queue.Job {
	return queue.Job{
		RequestID:  "req-" + sessionID,
		SessionID:  sessionID,
		Generation: gen,
		Clip:       clip.Handle{Name: clipName, MIME: "audio/wav", Data: []byte{0x01, 0x02}},
	}
}

func TestAnalysisWorker(t *testing.T) {
	convey.Convey("Given a new AnalysisWorker", t, func() {
		// Initialize logging for tests
		_ = logging.Init()

		source := newMockSource()
		classifier := newMockClassifier()
		sessions := newMockSessions()

		convey.Convey("When creating a worker with default options", func() {
			w := worker.NewAnalysisWorker(source, classifier, sessions)

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When creating a worker with custom options", func() {
			w := worker.NewAnalysisWorker(
				source, classifier, sessions,
				worker.WithName("test-worker"),
			)

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When running a worker", func() {
			w := worker.NewAnalysisWorker(source, classifier, sessions)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go w.Run(ctx)

			// Give worker time to start
			time.Sleep(10 * time.Millisecond)

			convey.Convey("And when processing a job", func() {
				source.addJob(testJob("session-1", 1, "clip-1.wav"))

				// Give worker time to process
				time.Sleep(50 * time.Millisecond)

				convey.Convey("Then it should store ranked results", func() {
					results, stored := sessions.getResults("session-1")
					convey.So(stored, convey.ShouldBeTrue)
					convey.So(results, convey.ShouldHaveLength, emotion.Count())
					convey.So(results[0].Label, convey.ShouldEqual, emotion.Calm)
					convey.So(results[0].Confidence, convey.ShouldEqual, 40)
				})
			})

			convey.Convey("And when classification fails", func() {
				classifier.setError("broken.wav", errors.New("classify error"))
				source.addJob(testJob("session-2", 1, "broken.wav"))

				time.Sleep(50 * time.Millisecond)

				convey.Convey("Then it should mark the session failed with the retry message", func() {
					_, stored := sessions.getResults("session-2")
					convey.So(stored, convey.ShouldBeFalse)

					msg, failed := sessions.getFailure("session-2")
					convey.So(failed, convey.ShouldBeTrue)
					convey.So(msg, convey.ShouldEqual, worker.AnalysisFailedMessage)
				})
			})

			convey.Convey("And when the result generation is stale", func() {
				sessions.markStale("session-3", 5)
				source.addJob(testJob("session-3", 3, "old.wav"))

				time.Sleep(50 * time.Millisecond)

				convey.Convey("Then the result should be discarded", func() {
					_, stored := sessions.getResults("session-3")
					convey.So(stored, convey.ShouldBeFalse)
				})
			})

			convey.Convey("And when storing fails", func() {
				sessions.setStoreError("session-4", errors.New("store error"))
				source.addJob(testJob("session-4", 1, "clip.wav"))

				time.Sleep(50 * time.Millisecond)

				convey.Convey("Then no results should be stored", func() {
					_, stored := sessions.getResults("session-4")
					convey.So(stored, convey.ShouldBeFalse)
				})
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer shutdownCancel()

				err := w.Shutdown(shutdownCtx)

				convey.Convey("Then it should shutdown gracefully", func() {
					convey.So(err, convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When context is cancelled", func() {
			w := worker.NewAnalysisWorker(source, classifier, sessions)
			ctx, cancel := context.WithCancel(context.Background())

			go w.Run(ctx)

			time.Sleep(10 * time.Millisecond)
			cancel()
			time.Sleep(50 * time.Millisecond)

			convey.Convey("Then worker should stop", func() {
				convey.So(true, convey.ShouldBeTrue) // Placeholder assertion
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a new WorkerPool", t, func() {
		// Initialize logging for tests
		_ = logging.Init()

		source := newMockSource()
		classifier := newMockClassifier()
		sessions := newMockSessions()

		convey.Convey("When creating a worker pool with default count", func() {
			pool := worker.NewPool(0, source, classifier, sessions)

			convey.Convey("Then it should be created successfully", func() {
				convey.So(pool, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When creating a worker pool with custom count", func() {
			pool := worker.NewPool(3, source, classifier, sessions)

			convey.Convey("Then it should be created successfully", func() {
				convey.So(pool, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When starting a worker pool", func() {
			pool := worker.NewPool(2, source, classifier, sessions)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			pool.Start(ctx)

			// Give workers time to start
			time.Sleep(20 * time.Millisecond)

			convey.Convey("And when processing multiple jobs", func() {
				jobs := []queue.Job{
					testJob("session-a", 1, "a.wav"),
					testJob("session-b", 1, "b.mp3"),
					testJob("session-c", 1, "c.m4a"),
				}

				for _, j := range jobs {
					source.addJob(j)
				}

				// Give workers time to process
				time.Sleep(100 * time.Millisecond)

				convey.Convey("Then all jobs should be processed", func() {
					for _, j := range jobs {
						results, stored := sessions.getResults(j.SessionID)
						convey.So(stored, convey.ShouldBeTrue)
						convey.So(results, convey.ShouldHaveLength, emotion.Count())
					}
				})
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
				defer shutdownCancel()

				err := pool.Shutdown(shutdownCtx)

				convey.Convey("Then it should shutdown gracefully", func() {
					convey.So(err, convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When stopping a worker pool", func() {
			pool := worker.NewPool(2, source, classifier, sessions)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			pool.Start(ctx)

			time.Sleep(20 * time.Millisecond)

			pool.Stop()

			time.Sleep(50 * time.Millisecond)

			convey.Convey("Then all workers should be stopped", func() {
				convey.So(true, convey.ShouldBeTrue) // Placeholder assertion
			})
		})
	})
}

func TestWorkerConcurrency(t *testing.T) {
	convey.Convey("Given a worker pool with multiple workers", t, func() {
		// Initialize logging for tests
		_ = logging.Init()

		source := newMockSource()
		classifier := newMockClassifier()
		sessions := newMockSessions()

		pool := worker.NewPool(4, source, classifier, sessions)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		pool.Start(ctx)

		time.Sleep(20 * time.Millisecond)

		convey.Convey("When processing many concurrent jobs", func() {
			const jobCount = 100
			var wg sync.WaitGroup

			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func(workerID int) {
					defer wg.Done()
					for j := 0; j < jobCount/5; j++ {
						sessionID := fmt.Sprintf("session-%d-%d", workerID, j)
						source.addJob(testJob(sessionID, 1, fmt.Sprintf("clip-%d.wav", j)))
					}
				}(i)
			}

			wg.Wait()

			// Give workers time to process
			time.Sleep(200 * time.Millisecond)

			convey.Convey("Then all jobs should be processed", func() {
				processedCount := 0
				for i := 0; i < 5; i++ {
					for j := 0; j < jobCount/5; j++ {
						sessionID := fmt.Sprintf("session-%d-%d", i, j)
						if _, stored := sessions.getResults(sessionID); stored {
							processedCount++
						}
					}
				}
				convey.So(processedCount, convey.ShouldEqual, jobCount)
			})
		})
	})
}
