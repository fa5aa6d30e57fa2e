// Package capture models microphone recording as an explicit chunk stream:
// an open recording accepts a lazy, finite sequence of audio-byte chunks
// terminated by a stop signal, and on termination the chunks are
// concatenated into one payload. The capture resource is scoped: it is
// acquired on start and released on stop or abort, success or failure.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/calmcare/moodlens/internal/domain/clip"
	"github.com/calmcare/moodlens/pkg/logger"
	"github.com/calmcare/moodlens/pkg/metrics"
)

// Default capture configuration constants.
const (
	defaultMaxRecordingBytes = 10 << 20 // 10 MiB
	chunkBuffer              = 64
)

// Sentinel kinds for capture errors. ErrCaptureDenied carries the
// caregiver-facing message returned verbatim by the API.
var (
	ErrCaptureDenied     = errors.New("Microphone access was denied. Check permissions and try again.")
	ErrAlreadyRecording  = errors.New("recording already in progress")
	ErrNotRecording      = errors.New("no recording in progress")
	ErrRecordingTooLarge = errors.New("recording exceeds the size limit")
)

// Option applies a configuration option to the Recorder.
type Option func(*Recorder)

// WithMaxRecordingBytes caps the aggregate chunk size per recording.
func WithMaxRecordingBytes(maxBytes int64) Option {
	return func(r *Recorder) {
		if maxBytes > 0 {
			r.maxBytes = maxBytes
		}
	}
}

// WithCaptureEnabled toggles capture. When disabled, Start fails with
// ErrCaptureDenied, modeling a rejected device permission.
func WithCaptureEnabled(enabled bool) Option {
	return func(r *Recorder) {
		r.enabled = enabled
	}
}

// WithLogger sets a custom logger for the recorder.
func WithLogger(l logger.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// recording is one open capture stream. Chunks flow through a channel to
// an aggregator goroutine; closing the channel finalizes the payload.
type recording struct {
	sessionID string
	chunks    chan []byte
	done      chan struct{}
	buf       bytes.Buffer

	mu     sync.RWMutex
	closed bool
	size   atomic.Int64
	max    int64
}

// Recorder manages at most one open recording per session.
type Recorder struct {
	mu       sync.Mutex
	open     map[string]*recording
	maxBytes int64
	enabled  bool
	logger   logger.Logger
}

// NewRecorder creates a recorder with configuration options.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		open:     make(map[string]*recording),
		maxBytes: defaultMaxRecordingBytes,
		enabled:  true,
		logger:   logger.Get().Named("capture"),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Start acquires the capture resource for a session.
func (r *Recorder) Start(ctx context.Context, sessionID string) error {
	if !r.enabled {
		metrics.RecordErrorByComponent("capture", "denied")
		return ErrCaptureDenied
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.open[sessionID]; exists {
		return ErrAlreadyRecording
	}

	rec := &recording{
		sessionID: sessionID,
		chunks:    make(chan []byte, chunkBuffer),
		done:      make(chan struct{}),
		max:       r.maxBytes,
	}
	go rec.aggregate()

	r.open[sessionID] = rec
	metrics.RecordRecordingStarted()
	metrics.UpdateActiveRecordings(len(r.open))
	r.logger.Debug(ctx, "recording started", logger.String("sessionID", sessionID))
	return nil
}

// Append adds one chunk to the session's open recording.
func (r *Recorder) Append(ctx context.Context, sessionID string, chunk []byte) error {
	r.mu.Lock()
	rec, ok := r.open[sessionID]
	r.mu.Unlock()
	if !ok {
		return ErrNotRecording
	}
	return rec.append(ctx, chunk)
}

// Stop releases the capture resource and returns the aggregated payload as
// a clip handle named for the microphone backing file. The resource is
// released even when finalization fails.
func (r *Recorder) Stop(ctx context.Context, sessionID string) (clip.Handle, error) {
	rec, err := r.release(sessionID)
	if err != nil {
		return clip.Handle{}, err
	}

	payload := rec.finalize()
	metrics.RecordRecordingFinished()
	r.logger.Debug(ctx, "recording stopped",
		logger.String("sessionID", sessionID),
		logger.Int("bytes", len(payload)),
	)

	return clip.Handle{
		Name: clip.MicrophoneFileName,
		MIME: clip.MicrophoneMIME,
		Data: payload,
	}, nil
}

// Abort releases the capture resource and discards any buffered chunks.
func (r *Recorder) Abort(ctx context.Context, sessionID string) error {
	rec, err := r.release(sessionID)
	if err != nil {
		return err
	}

	rec.finalize()
	metrics.RecordRecordingAborted()
	r.logger.Debug(ctx, "recording aborted", logger.String("sessionID", sessionID))
	return nil
}

// Active reports whether the session holds an open recording.
func (r *Recorder) Active(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.open[sessionID]
	return ok
}

// Close aborts all open recordings. Used on service teardown.
func (r *Recorder) Close() error {
	r.mu.Lock()
	open := r.open
	r.open = make(map[string]*recording)
	r.mu.Unlock()

	for _, rec := range open {
		rec.finalize()
		metrics.RecordRecordingAborted()
	}
	metrics.UpdateActiveRecordings(0)
	return nil
}

// release detaches the recording from the open set regardless of what the
// caller does with it afterwards.
func (r *Recorder) release(sessionID string) (*recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.open[sessionID]
	if !ok {
		return nil, ErrNotRecording
	}
	delete(r.open, sessionID)
	metrics.UpdateActiveRecordings(len(r.open))
	return rec, nil
}

// aggregate drains the chunk channel into the payload buffer. Runs until
// the channel is closed by finalize.
func (rec *recording) aggregate() {
	defer close(rec.done)
	for chunk := range rec.chunks {
		_, _ = rec.buf.Write(chunk)
	}
}

// append sends one chunk into the stream, enforcing the byte cap. The send
// happens under the read lock; finalize closes the channel under the write
// lock, so a chunk in flight can never hit a closed channel. The aggregator
// drains without the lock, so a full buffer cannot deadlock finalize.
func (rec *recording) append(ctx context.Context, chunk []byte) error {
	rec.mu.RLock()
	defer rec.mu.RUnlock()

	if rec.closed {
		return ErrNotRecording
	}

	next := rec.size.Add(int64(len(chunk)))
	if next > rec.max {
		rec.size.Add(-int64(len(chunk)))
		return fmt.Errorf("%w: %d bytes", ErrRecordingTooLarge, next)
	}

	// Copy so callers may reuse their buffer after Append returns.
	owned := make([]byte, len(chunk))
	copy(owned, chunk)

	select {
	case rec.chunks <- owned:
		return nil
	case <-ctx.Done():
		rec.size.Add(-int64(len(chunk)))
		return fmt.Errorf("append cancelled: %w", ctx.Err())
	}
}

// finalize terminates the chunk stream and returns the concatenated payload.
func (rec *recording) finalize() []byte {
	rec.mu.Lock()
	if !rec.closed {
		rec.closed = true
		close(rec.chunks)
	}
	rec.mu.Unlock()

	<-rec.done
	return rec.buf.Bytes()
}
