package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/teslashibe/go-borp/internal/retry"
)

// maxAudioSize caps a synthesized clip. A minute of 128kbps MP3 is about 1MB.
const maxAudioSize = 16 << 20

// transport is the retrying HTTP core shared by the providers.
type transport struct {
	provider   string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     zerolog.Logger
	parseError func(*http.Response) error
}

// post sends body to url and returns the audio bytes of a 200 response.
// Transport failures, 429 and 5xx are retried with exponential backoff.
func (t *transport) post(ctx context.Context, url string, body []byte, header http.Header) ([]byte, error) {
	policy := retry.Config{
		MaxRetries: t.maxRetries,
		BaseDelay:  t.retryDelay,
		MaxDelay:   5 * time.Second,
		Multiplier: 2,
	}
	var audio []byte
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(WrapError(t.provider, fmt.Errorf("create request: %w", err)))
		}
		req.Header = header.Clone()

		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return retry.Permanent(ctx.Err())
			}
			return WrapError(t.provider, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
			t.logger.Warn().Int("status", resp.StatusCode).Msg("synthesis rejected")
			return t.parseError(resp)
		case resp.StatusCode != http.StatusOK:
			return retry.Permanent(t.parseError(resp))
		}

		audio, err = io.ReadAll(io.LimitReader(resp.Body, maxAudioSize))
		if err != nil {
			return retry.Permanent(WrapError(t.provider, fmt.Errorf("read response: %w", err)))
		}
		if len(audio) == 0 {
			return retry.Permanent(WrapError(t.provider, ErrEmptyAudio))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return audio, nil
}

// get performs a health probe and maps non-200 responses to APIError.
func (t *transport) get(ctx context.Context, url string, header http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return WrapError(t.provider, err)
	}
	req.Header = header.Clone()

	resp, err := t.client.Do(req)
	if err != nil {
		return WrapError(t.provider, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return t.parseError(resp)
	}
	return nil
}

// estimateMP3Duration assumes a constant 128kbps bitrate.
func estimateMP3Duration(n int) time.Duration {
	return time.Duration(float64(n*8) / 128000 * float64(time.Second))
}
