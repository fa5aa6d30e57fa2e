package repository

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/calmcare/moodlens/internal/domain/emotion"
	"github.com/calmcare/moodlens/pkg/metrics"
)

// defaultShardCount spreads session locks to keep handler contention low.
const defaultShardCount = 8

// shard holds a slice of the session map behind its own lock.
type shard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// MemStore implements Store with sharded in-memory session records.
type MemStore struct {
	shardCount int
	shards     []*shard
	count      atomic.Int64
}

// NewMemStore creates a new in-memory session store with configuration options.
func NewMemStore(_ context.Context, opts ...Option) *MemStore {
	s := &MemStore{
		shardCount: defaultShardCount,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[string]*Session)}
	}

	metrics.UpdateSessionCount(0)

	return s
}

func (s *MemStore) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[int(h.Sum32())%s.shardCount]
}

// Create registers a new session in idle state.
func (s *MemStore) Create(_ context.Context) (Session, error) {
	sess := Session{
		ID:        uuid.NewString(),
		State:     StateIdle,
		UpdatedAt: time.Now(),
	}

	sh := s.shardFor(sess.ID)
	sh.mu.Lock()
	sh.sessions[sess.ID] = &sess
	sh.mu.Unlock()

	metrics.UpdateSessionCount(int(s.count.Add(1)))
	return sess, nil
}

// Get returns a snapshot of the session.
func (s *MemStore) Get(_ context.Context, id string) (Session, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	sess, ok := sh.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return snapshot(sess), nil
}

// BeginAnalysis moves the session to loading and returns the new generation.
func (s *MemStore) BeginAnalysis(_ context.Context, id, displayName, fileName, mime string) (uint64, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[id]
	if !ok {
		return 0, ErrNotFound
	}

	sess.Generation++
	sess.State = StateLoading
	sess.DisplayName = displayName
	sess.FileName = fileName
	sess.MIME = mime
	sess.Results = nil
	sess.ErrorMessage = ""
	sess.UpdatedAt = time.Now()
	return sess.Generation, nil
}

// CompleteAnalysis applies results for gen; stale generations are discarded.
func (s *MemStore) CompleteAnalysis(_ context.Context, id string, gen uint64, results []emotion.RankedResult) (bool, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[id]
	if !ok {
		return false, ErrNotFound
	}
	if sess.Generation != gen {
		metrics.RecordAnalysisStale()
		return false, nil
	}

	sess.State = StateDone
	sess.Results = results
	sess.ErrorMessage = ""
	sess.UpdatedAt = time.Now()
	return true, nil
}

// FailAnalysis reverts to idle with the error flag set; stale generations
// are discarded.
func (s *MemStore) FailAnalysis(_ context.Context, id string, gen uint64, msg string) (bool, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[id]
	if !ok {
		return false, ErrNotFound
	}
	if sess.Generation != gen {
		metrics.RecordAnalysisStale()
		return false, nil
	}

	sess.State = StateIdle
	sess.Results = nil
	sess.ErrorMessage = msg
	sess.UpdatedAt = time.Now()
	return true, nil
}

// SetError sets the error flag without invoking the pipeline state machine.
func (s *MemStore) SetError(_ context.Context, id, msg string) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.ErrorMessage = msg
	sess.UpdatedAt = time.Now()
	return nil
}

// Reset returns the session to idle, clears results, and bumps the
// generation so in-flight analyses are orphaned.
func (s *MemStore) Reset(_ context.Context, id string) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[id]
	if !ok {
		return ErrNotFound
	}

	sess.Generation++
	sess.State = StateIdle
	sess.Results = nil
	sess.ErrorMessage = ""
	sess.UpdatedAt = time.Now()
	return nil
}

// SetPlaybackToken swaps the playback token and returns the superseded one.
func (s *MemStore) SetPlaybackToken(_ context.Context, id, token string) (string, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[id]
	if !ok {
		return "", ErrNotFound
	}

	prev := sess.PlaybackToken
	sess.PlaybackToken = token
	sess.UpdatedAt = time.Now()
	return prev, nil
}

// Count returns the number of sessions tracked.
func (s *MemStore) Count(_ context.Context) int {
	return int(s.count.Load())
}

// snapshot copies a session so readers never share the Results slice with
// writers.
func snapshot(sess *Session) Session {
	out := *sess
	if sess.Results != nil {
		out.Results = make([]emotion.RankedResult, len(sess.Results))
		copy(out.Results, sess.Results)
	}
	return out
}
