// Package tts provides a unified interface for text-to-speech providers.
//
// The agent speaks every reply and thought: text is synthesized to MP3,
// uploaded, and the resulting URL travels with the response. Providers are
// ElevenLabs (custom voices) and OpenAI (built-in voices), optionally wrapped
// in a fallback Chain.
//
// Example usage:
//
//	provider, _ := tts.NewElevenLabs(
//	    tts.WithAPIKey(os.Getenv("ELEVENLABS_API_KEY")),
//	    tts.WithVoice("your-voice-id"),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "Hello world")
//	// result.Audio contains MP3 bytes
package tts

import (
	"context"
	"time"
)

// Provider turns text into audio. Implementations must be safe for
// concurrent use.
type Provider interface {
	Synthesize(ctx context.Context, text string) (*AudioResult, error)
	// Health checks connectivity and the API key.
	Health(ctx context.Context) error
	Close() error
}

// AudioResult is one synthesized clip.
type AudioResult struct {
	Audio     []byte
	Format    AudioFormat
	Duration  time.Duration // estimate, zero if unknown
	CharCount int
	LatencyMs int64
}

// ContentType returns the MIME type of the audio.
func (r *AudioResult) ContentType() string {
	return r.Format.Encoding.MIME()
}

// AudioFormat describes an encoded clip.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
}

// Encoding names an output format using ElevenLabs' identifiers.
type Encoding string

const (
	EncodingPCM24 Encoding = "pcm_24000"     // 24kHz mono PCM16
	EncodingPCM44 Encoding = "pcm_44100"     // 44.1kHz mono PCM16
	EncodingMP3   Encoding = "mp3_44100_128" // MP3 128kbps
)

// MIME returns the content type for the encoding.
func (e Encoding) MIME() string {
	switch e {
	case EncodingPCM24, EncodingPCM44:
		return "audio/pcm"
	default:
		return "audio/mpeg"
	}
}

// SampleRate returns the sample rate implied by the encoding.
func (e Encoding) SampleRate() int {
	switch e {
	case EncodingPCM24:
		return 24000
	default:
		return 44100
	}
}

// VoiceSettings tunes ElevenLabs voices. Values are in [0,1]; low
// Stability is more expressive.
type VoiceSettings struct {
	Stability       float64
	SimilarityBoost float64
	Style           float64
	SpeakerBoost    bool
}

// DefaultVoiceSettings favors a consistent streamer voice.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75, SpeakerBoost: true}
}
