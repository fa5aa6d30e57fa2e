// Package clip defines the opaque audio clip handle passed through the
// analysis pipeline. Payloads are used for playback and seeding only,
// never decoded.
package clip

import (
	"errors"
	"strings"
)

// Well-known names for clips that do not come from a user file.
const (
	// FallbackName seeds the classifier when a handle has no display name.
	FallbackName = "sample.wav"

	// MicrophoneFileName is the backing file name for finished recordings.
	MicrophoneFileName = "microphone.webm"

	// MicrophoneMIME is the MIME type reported for finished recordings.
	MicrophoneMIME = "audio/webm"

	// RecordingDisplayName is what the caregiver sees for a live recording.
	RecordingDisplayName = "Live recording"
)

// ErrNotAudio rejects payloads whose MIME type is not an audio type.
// The message is caregiver-facing and returned verbatim by the API.
var ErrNotAudio = errors.New("Please upload an audio file (wav, m4a, mp3).")

// Handle identifies one audio sample.
type Handle struct {
	Name string
	MIME string
	Data []byte
}

// Seed derives the classifier seed from the display name length, falling
// back to FallbackName for anonymous handles.
func (h Handle) Seed() int {
	if h.Name == "" {
		return len(FallbackName)
	}
	return len(h.Name)
}

// ValidateMIME accepts only payloads that report an audio MIME type.
func ValidateMIME(mime string) error {
	if !strings.HasPrefix(mime, "audio") {
		return ErrNotAudio
	}
	return nil
}
