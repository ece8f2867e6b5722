package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-borp/pkg/backend"
	"github.com/teslashibe/go-borp/pkg/protocol"
)

func newClient(t *testing.T, h http.HandlerFunc, opts ...backend.Option) *backend.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts = append([]backend.Option{backend.WithRetry(2, time.Millisecond), backend.WithRateLimit(0, 0)}, opts...)
	c, err := backend.New(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := backend.New("")
	assert.ErrorIs(t, err, backend.ErrNoBaseURL)
}

func TestFetchUnread(t *testing.T) {
	since := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/streams/agent-1/unread-comments", r.URL.Path)
		assert.Equal(t, "15", r.URL.Query().Get("limit"))
		got, err := time.Parse(time.RFC3339Nano, r.URL.Query().Get("since"))
		require.NoError(t, err)
		assert.True(t, got.Equal(since))
		assert.Equal(t, "k", r.Header.Get("api_key"))

		_ = json.NewEncoder(w).Encode(protocol.UnreadCommentsResponse{
			Comments: []protocol.Comment{{ID: "c1", AgentID: "agent-1", User: "u", Message: "hi"}},
			Metadata: protocol.CommentMetadata{Count: 1},
		})
	}, backend.WithAPIKey("k"))

	comments, err := c.FetchUnread(context.Background(), "agent-1", since, 15)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "c1", comments[0].ID)
}

func TestMarkRead(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req protocol.MarkReadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", "b", "c"}, req.CommentIDs)
		_ = json.NewEncoder(w).Encode(protocol.MarkReadResponse{Success: true, ModifiedCount: 3})
	})

	n, err := c.MarkRead(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = c.MarkRead(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUploadAudioResolvesRelativeURL(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "audio/mpeg", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, []byte("ID3"), body)
		_ = json.NewEncoder(w).Encode(protocol.UploadResponse{Message: "ok", URL: "/uploads/x.mp3"})
	})

	u, err := c.UploadAudio(context.Background(), []byte("ID3"))
	require.NoError(t, err)
	assert.Contains(t, u, "http://")
	assert.Contains(t, u, "/uploads/x.mp3")

	_, err = c.UploadAudio(context.Background(), nil)
	assert.ErrorIs(t, err, backend.ErrNoAudio)
}

func TestPublishRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		var got protocol.AIResponse
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "r1", got.ID)
		_ = json.NewEncoder(w).Encode(protocol.SuccessResponse{Success: true})
	})

	err := c.PublishResponse(context.Background(), &protocol.AIResponse{ID: "r1", AgentID: "a", Text: "hello"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, hits.Load())
}

func TestPublishClientErrorIsPermanent(t *testing.T) {
	var hits atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "invalid animation", http.StatusBadRequest)
	})

	err := c.PublishAnimation(context.Background(), "a", "moonwalk")
	var serr *backend.StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusBadRequest, serr.StatusCode)
	assert.Equal(t, "invalid animation", serr.Body)
	assert.False(t, serr.IsRetryable())
	assert.EqualValues(t, 1, hits.Load())
}

func TestPublishRejectsInvalidResponse(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	assert.Error(t, c.PublishResponse(context.Background(), &protocol.AIResponse{ID: "r1", AgentID: "a"}))
}

func TestUpdateStreamingStatus(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/scenes/agent-1", r.URL.Path)
		var st protocol.StreamingStatus
		require.NoError(t, json.NewDecoder(r.Body).Decode(&st))
		assert.True(t, st.IsStreaming)
		_ = json.NewEncoder(w).Encode(protocol.SuccessResponse{Success: true})
	})

	require.NoError(t, c.UpdateStreamingStatus(context.Background(), protocol.StreamingStatus{
		AgentID:     "agent-1",
		IsStreaming: true,
	}))
}
