package tts

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Config is shared by every provider. Fields a provider has no use for are
// ignored.
type Config struct {
	APIKey        string
	BaseURL       string // empty selects the provider's public endpoint
	VoiceID       string
	ModelID       string
	VoiceSettings VoiceSettings
	OutputFormat  Encoding
	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	Logger        zerolog.Logger
}

// Option configures a provider.
type Option func(*Config)

func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

func WithVoice(voiceID string) Option {
	return func(c *Config) { c.VoiceID = voiceID }
}

func WithModel(modelID string) Option {
	return func(c *Config) { c.ModelID = modelID }
}

func WithOutputFormat(f Encoding) Option {
	return func(c *Config) { c.OutputFormat = f }
}

func WithVoiceSettings(s VoiceSettings) Option {
	return func(c *Config) { c.VoiceSettings = s }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithRetry sets how often a 429, 5xx or transport failure is retried and
// the delay before the first retry.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// DefaultConfig returns MP3 output with a 30s timeout and two retries.
func DefaultConfig() *Config {
	return &Config{
		ModelID:       ModelTurboV2_5,
		OutputFormat:  EncodingMP3,
		VoiceSettings: DefaultVoiceSettings(),
		Timeout:       30 * time.Second,
		MaxRetries:    2,
		RetryDelay:    200 * time.Millisecond,
		Logger:        zerolog.Nop(),
	}
}

// Apply runs opts against c.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate requires an API key.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}

// ValidateWithVoice requires an API key and a voice.
func (c *Config) ValidateWithVoice() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.VoiceID == "" {
		return ErrNoVoiceID
	}
	return nil
}

func (c *Config) transport(provider string, parse func(*http.Response) error) *transport {
	return &transport{
		provider:   provider,
		client:     &http.Client{Timeout: c.Timeout},
		maxRetries: c.MaxRetries,
		retryDelay: c.RetryDelay,
		logger:     c.Logger.With().Str("component", "tts."+provider).Logger(),
		parseError: parse,
	}
}
