// Package backend is the HTTP client for the collaborator server: it reads
// unread comments, marks them read, uploads speech and publishes responses
// and animation updates for fan-out to viewers.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/teslashibe/go-borp/internal/retry"
	"github.com/teslashibe/go-borp/pkg/protocol"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 << 10

// Client talks to the collaborator server.
type Client struct {
	config  *Config
	base    *url.URL
	limiter *rate.Limiter
}

// New creates a collaborator client for baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.Apply(opts...)

	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrNoBaseURL
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend: parse base URL: %w", err)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	c := &Client{config: cfg, base: base}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(cfg.RateLimit, burst)
	}
	c.config.Logger = cfg.Logger.With().Str("component", "backend").Logger()
	return c, nil
}

// FetchUnread returns unread comments for agentID created at or after since, oldest first.
func (c *Client) FetchUnread(ctx context.Context, agentID string, since time.Time, limit int) ([]protocol.Comment, error) {
	q := url.Values{}
	q.Set("since", since.UTC().Format(time.RFC3339Nano))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/streams/" + url.PathEscape(agentID) + "/unread-comments?" + q.Encode()

	var out protocol.UnreadCommentsResponse
	if err := c.do(ctx, "fetch unread", http.MethodGet, path, "", nil, &out); err != nil {
		return nil, err
	}
	c.config.Logger.Debug().Str("agent_id", agentID).Int("count", len(out.Comments)).
		Bool("has_more", out.Metadata.HasMore).Msg("fetched unread comments")
	return out.Comments, nil
}

// MarkRead flips the given comments to read and returns how many changed.
func (c *Client) MarkRead(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	body, err := json.Marshal(protocol.MarkReadRequest{CommentIDs: ids})
	if err != nil {
		return 0, err
	}
	var out protocol.MarkReadResponse
	if err := c.do(ctx, "mark read", http.MethodPost, "/api/comments/mark-read", "application/json", body, &out); err != nil {
		return 0, err
	}
	return out.ModifiedCount, nil
}

// PublishResponse posts an AI response for fan-out on {agentId}_ai_response.
func (c *Client) PublishResponse(ctx context.Context, resp *protocol.AIResponse) error {
	if err := resp.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	var out protocol.SuccessResponse
	if err := c.do(ctx, "publish response", http.MethodPost, "/api/ai-responses", "application/json", body, &out); err != nil {
		return err
	}
	c.config.Logger.Info().Str("agent_id", resp.AgentID).Str("response_id", resp.ID).
		Bool("audio", resp.HasAudio()).Str("animation", resp.Animation).Msg("published response")
	return nil
}

// PublishAnimation asks viewers to play label on agentID's avatar.
func (c *Client) PublishAnimation(ctx context.Context, agentID, label string) error {
	body, err := json.Marshal(protocol.AnimationUpdate{AgentID: agentID, Animation: label})
	if err != nil {
		return err
	}
	var out protocol.SuccessResponse
	return c.do(ctx, "publish animation", http.MethodPost, "/api/update-animation", "application/json", body, &out)
}

// UploadAudio stores an MP3 clip and returns its public URL.
func (c *Client) UploadAudio(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", ErrNoAudio
	}
	var out protocol.UploadResponse
	if err := c.do(ctx, "upload audio", http.MethodPost, "/api/upload/audio", "audio/mpeg", audio, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", ErrNoUploadURL
	}
	return c.resolve(out.URL), nil
}

// UpdateStreamingStatus sends the scene heartbeat for status.AgentID.
func (c *Client) UpdateStreamingStatus(ctx context.Context, status protocol.StreamingStatus) error {
	body, err := json.Marshal(status)
	if err != nil {
		return err
	}
	path := "/api/scenes/" + url.PathEscape(status.AgentID)
	var out protocol.SuccessResponse
	return c.do(ctx, "update streaming status", http.MethodPut, path, "application/json", body, &out)
}

// resolve turns a server-relative upload path into an absolute URL.
func (c *Client) resolve(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() {
		return raw
	}
	return c.base.ResolveReference(u).String()
}

// do sends one logical request with rate limiting and retries, decoding a
// 2xx JSON body into out.
func (c *Client) do(ctx context.Context, op, method, path, contentType string, body []byte, out any) error {
	return retry.Do(ctx, c.config.Retry, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Permanent(err)
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
		if err != nil {
			return retry.Permanent(fmt.Errorf("backend %s: %w", op, err))
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")
		if c.config.APIKey != "" {
			req.Header.Set("api_key", c.config.APIKey)
		}

		resp, err := c.config.HTTPClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return retry.Permanent(ctx.Err())
			}
			c.config.Logger.Warn().Err(err).Str("op", op).Msg("request failed")
			return fmt.Errorf("backend %s: %w", op, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			serr := &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
			if serr.IsRetryable() {
				c.config.Logger.Warn().Int("status", resp.StatusCode).Str("op", op).Msg("retryable status")
				return serr
			}
			return retry.Permanent(serr)
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return retry.Permanent(fmt.Errorf("backend %s: decode response: %w", op, err))
		}
		return nil
	})
}
