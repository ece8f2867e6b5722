package inference

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Config holds provider configuration.
type Config struct {
	// Connection
	Name    string // Provider name used in errors and logs
	BaseURL string // API base URL
	APIKey  string // API key (optional for local providers)

	// Models per class
	SmallModel  string
	MediumModel string
	LargeModel  string

	// Request defaults
	MaxTokens   int
	Temperature float64

	// Timeouts
	Timeout time.Duration

	// Retry configuration
	MaxRetries int
	RetryDelay time.Duration

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client

	// Observability
	Logger zerolog.Logger
}

// Option is a functional option for configuring providers.
type Option func(*Config)

// WithName sets the provider name reported in errors.
func WithName(name string) Option {
	return func(c *Config) { c.Name = name }
}

// WithBaseURL sets the API base URL.
// Examples: "https://api.openai.com/v1", "http://localhost:11434/v1"
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithModel uses one model for every class.
func WithModel(model string) Option {
	return func(c *Config) {
		c.SmallModel = model
		c.MediumModel = model
		c.LargeModel = model
	}
}

// WithModels sets the model of each class. Empty names keep the current value.
func WithModels(small, medium, large string) Option {
	return func(c *Config) {
		if small != "" {
			c.SmallModel = small
		}
		if medium != "" {
			c.MediumModel = medium
		}
		if large != "" {
			c.LargeModel = large
		}
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithRetry configures retry behavior.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) { c.HTTPClient = hc }
}

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns sensible defaults for OpenAI.
func DefaultConfig() *Config {
	return &Config{
		Name:        "openai",
		BaseURL:     "https://api.openai.com/v1",
		SmallModel:  "gpt-4o-mini",
		MediumModel: "gpt-4o",
		LargeModel:  "gpt-4o",
		MaxTokens:   512,
		Temperature: 0.7,
		Timeout:     60 * time.Second,
		MaxRetries:  3,
		RetryDelay:  200 * time.Millisecond,
		Logger:      zerolog.Nop(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
// The API key is optional for local providers like Ollama.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoBaseURL
	}
	if c.SmallModel == "" || c.MediumModel == "" || c.LargeModel == "" {
		return ErrNoModel
	}
	return nil
}

// ModelFor resolves the model name of a class.
func (c *Config) ModelFor(class ModelClass) string {
	switch class {
	case ModelSmall:
		return c.SmallModel
	case ModelLarge:
		return c.LargeModel
	default:
		return c.MediumModel
	}
}
