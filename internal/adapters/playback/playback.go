// Package playback owns the temporary playback URIs for accepted audio
// payloads. A token is created when a payload is accepted and revoked when
// a newer payload supersedes it or the service shuts down, so payloads do
// not accumulate across repeated uploads and recordings.
package playback

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/calmcare/moodlens/pkg/metrics"
)

// PathPrefix is the URL prefix playback tokens are served under.
const PathPrefix = "/playback/"

// Sentinel kinds for playback errors.
var (
	ErrNotFound = errors.New("playback token not found")
)

// Payload is the stored audio plus the metadata needed to serve it.
type Payload struct {
	Name string
	MIME string
	Data []byte
}

// Store maps live tokens to payloads.
type Store struct {
	mu     sync.RWMutex
	byTok  map[string]Payload
	bytes  int64
	closed bool
}

// NewStore creates an empty playback store.
func NewStore() *Store {
	return &Store{
		byTok: make(map[string]Payload),
	}
}

// Put stores a payload under a fresh token and returns the token.
func (s *Store) Put(_ context.Context, name, mime string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrNotFound
	}

	token := uuid.NewString()
	s.byTok[token] = Payload{Name: name, MIME: mime, Data: data}
	s.bytes += int64(len(data))
	s.publishGauges()
	return token, nil
}

// Get returns the payload for a live token.
func (s *Store) Get(_ context.Context, token string) (Payload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byTok[token]
	if !ok {
		return Payload{}, ErrNotFound
	}
	return p, nil
}

// Revoke frees a token. Revoking an unknown or already-revoked token is a
// no-op so supersession does not need to care about ordering.
func (s *Store) Revoke(_ context.Context, token string) {
	if token == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byTok[token]
	if !ok {
		return
	}
	delete(s.byTok, token)
	s.bytes -= int64(len(p.Data))
	metrics.RecordPlaybackRevoked()
	s.publishGauges()
}

// URL returns the serving path for a token.
func URL(token string) string {
	if token == "" {
		return ""
	}
	return PathPrefix + token
}

// Len returns the number of live tokens.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byTok)
}

// Close drops all payloads on teardown.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for range s.byTok {
		metrics.RecordPlaybackRevoked()
	}
	s.byTok = make(map[string]Payload)
	s.bytes = 0
	s.closed = true
	s.publishGauges()
	return nil
}

// publishGauges refreshes the token gauges. Must hold s.mu.
func (s *Store) publishGauges() {
	metrics.UpdatePlaybackTokens(len(s.byTok))
	metrics.UpdatePlaybackBytes(s.bytes)
}
