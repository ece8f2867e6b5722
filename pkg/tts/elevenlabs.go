package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"
)

// ElevenLabs model IDs
const (
	// ModelTurboV2_5 is the fastest English model (~200ms latency).
	ModelTurboV2_5 = "eleven_turbo_v2_5"

	// ModelFlashV2_5 is the fastest multilingual model (~150ms latency).
	ModelFlashV2_5 = "eleven_flash_v2_5"

	// ModelMultilingualV2 is the highest quality multilingual model (~300ms latency).
	ModelMultilingualV2 = "eleven_multilingual_v2"
)

// ElevenLabsVoices maps friendly preset names to ElevenLabs voice IDs.
var ElevenLabsVoices = map[string]string{
	"rachel": "21m00Tcm4TlvDq8ikWAM", // American female, calm
	"aria":   "9BWtsMINqrJLrRacOk9x", // American female, expressive
	"domi":   "AZnzlk1XvdvUeBnXmlld", // American female, strong
	"josh":   "TxGEqnHWrfWFTfGW9XjX", // American male, deep
	"adam":   "pNInz6obpgDQGcFmaJgB", // American male, deep
	"sam":    "yoZ06aMxZJJ28mfd3POQ", // American male, raspy
}

// ResolveElevenLabsVoice maps a preset name to its ID and passes raw IDs through.
func ResolveElevenLabsVoice(nameOrID string) string {
	if id, ok := ElevenLabsVoices[strings.ToLower(nameOrID)]; ok {
		return id
	}
	return nameOrID
}

// ElevenLabs implements Provider for ElevenLabs TTS.
type ElevenLabs struct {
	config  *Config
	baseURL string
	http    *transport
}

// NewElevenLabs creates a new ElevenLabs TTS provider.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	cfg.VoiceID = ResolveElevenLabsVoice(cfg.VoiceID)

	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}

	e := &ElevenLabs{config: cfg, baseURL: baseURL}
	e.http = cfg.transport(providerElevenLabs, parseElevenLabsError)
	return e, nil
}

// Synthesize converts text to audio in the configured output format.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerElevenLabs, ErrEmptyText)
	}
	start := time.Now()

	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", e.baseURL, e.config.VoiceID, e.config.OutputFormat)
	body, err := json.Marshal(e.buildPayload(text))
	if err != nil {
		return nil, WrapError(providerElevenLabs, fmt.Errorf("marshal payload: %w", err))
	}

	audio, err := e.http.post(ctx, url, body, e.header())
	if err != nil {
		return nil, err
	}

	latency := time.Since(start).Milliseconds()
	e.http.logger.Debug().Int("chars", len(text)).Int("bytes", len(audio)).
		Int64("latency_ms", latency).Str("model", e.config.ModelID).Msg("synthesized audio")

	return &AudioResult{
		Audio:     audio,
		Format:    e.outputFormat(),
		CharCount: len(text),
		LatencyMs: latency,
		Duration:  e.estimateDuration(len(audio)),
	}, nil
}

// Health checks API connectivity and API key validity.
func (e *ElevenLabs) Health(ctx context.Context) error {
	return e.http.get(ctx, e.baseURL+"/user", e.header())
}

// Close releases resources held by the provider.
func (e *ElevenLabs) Close() error {
	e.http.client.CloseIdleConnections()
	return nil
}

// VoiceID returns the configured voice ID.
func (e *ElevenLabs) VoiceID() string {
	return e.config.VoiceID
}

type elevenLabsPayload struct {
	Text          string `json:"text"`
	ModelID       string `json:"model_id"`
	VoiceSettings struct {
		Stability       float64 `json:"stability"`
		SimilarityBoost float64 `json:"similarity_boost"`
		Style           float64 `json:"style"`
		SpeakerBoost    bool    `json:"use_speaker_boost"`
	} `json:"voice_settings"`
}

// buildPayload constructs the API request payload.
func (e *ElevenLabs) buildPayload(text string) elevenLabsPayload {
	p := elevenLabsPayload{Text: text, ModelID: e.config.ModelID}
	p.VoiceSettings.Stability = e.config.VoiceSettings.Stability
	p.VoiceSettings.SimilarityBoost = e.config.VoiceSettings.SimilarityBoost
	p.VoiceSettings.Style = e.config.VoiceSettings.Style
	p.VoiceSettings.SpeakerBoost = e.config.VoiceSettings.SpeakerBoost
	return p
}

func (e *ElevenLabs) header() http.Header {
	h := http.Header{}
	h.Set("xi-api-key", e.config.APIKey)
	h.Set("Content-Type", "application/json")
	h.Set("Accept", e.config.OutputFormat.MIME())
	return h
}

// parseElevenLabsError reads and parses an error response.
func parseElevenLabsError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp struct {
		Detail struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"detail"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Detail.Message != "" {
		message = errResp.Detail.Message
		code = errResp.Detail.Status
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   providerElevenLabs,
	}
}

// outputFormat returns the audio format configuration.
func (e *ElevenLabs) outputFormat() AudioFormat {
	return AudioFormat{
		Encoding:   e.config.OutputFormat,
		SampleRate: e.config.OutputFormat.SampleRate(),
		Channels:   1,
	}
}

// estimateDuration estimates audio duration from byte count.
func (e *ElevenLabs) estimateDuration(n int) time.Duration {
	if e.config.OutputFormat == EncodingMP3 {
		return estimateMP3Duration(n)
	}
	// PCM16 = 2 bytes per sample
	seconds := float64(n/2) / float64(e.config.OutputFormat.SampleRate())
	return time.Duration(seconds * float64(time.Second))
}

// Verify ElevenLabs implements Provider at compile time.
var _ Provider = (*ElevenLabs)(nil)
