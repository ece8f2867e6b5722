package backend

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-borp/internal/retry"
)

// Config holds collaborator client configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Retry      retry.Config

	// RateLimit is requests per second; zero disables limiting.
	RateLimit rate.Limit
	Burst     int

	Logger zerolog.Logger
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithAPIKey sets the api_key header value.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) { c.HTTPClient = client }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.HTTPClient = &http.Client{Timeout: d} }
}

// WithRetry configures retries for transient failures.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(c *Config) {
		c.Retry.MaxRetries = maxRetries
		c.Retry.BaseDelay = baseDelay
	}
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Config) {
		c.RateLimit = rate.Limit(rps)
		c.Burst = burst
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	r := retry.DefaultConfig()
	r.MaxRetries = 2
	r.BaseDelay = 250 * time.Millisecond
	r.MaxDelay = 5 * time.Second
	return &Config{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Retry:      r,
		RateLimit:  10,
		Burst:      5,
		Logger:     zerolog.Nop(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
