package ai

import (
	"context"
	"errors"
)

// ErrSynthesisUnavailable is returned when no synthesis backend is
// configured. Callers degrade to text-to-speech at the telephony provider.
var ErrSynthesisUnavailable = errors.New("ai: synthesis unavailable")

// Synthesizer converts reply text to playable audio.
type Synthesizer interface {
	// Name identifies the backing provider for logs and metrics.
	Name() string

	// Synthesize returns encoded audio for text in the given voice, plus
	// the file extension naming the container format ("mp3"). An empty
	// voice selects the implementation default.
	Synthesize(ctx context.Context, text, voice string) (audio []byte, ext string, err error)
}

// StubSynthesizer is the no-credentials synthesizer. It never produces
// audio, so calls fall back to provider-side speech.
type StubSynthesizer struct{}

func (StubSynthesizer) Name() string { return "stub" }

func (StubSynthesizer) Synthesize(context.Context, string, string) ([]byte, string, error) {
	return nil, "", ErrSynthesisUnavailable
}

// ValidAudio reports whether b plausibly holds encoded audio. Vendors have
// returned JSON or bracket-tagged error text with a 200 status; those bytes
// must never reach the audio store or the synthesis index.
func ValidAudio(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	switch b[0] {
	case '[', '{', '<':
		return false
	}
	return true
}
