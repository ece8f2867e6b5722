package playback

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-borp/pkg/metrics"
	"github.com/teslashibe/go-borp/pkg/protocol"
)

type recordingSink struct {
	mu   sync.Mutex
	last map[string]float64
	sets int
}

func (r *recordingSink) SetExpression(name string, w float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		r.last = make(map[string]float64)
	}
	r.last[name] = w
	r.sets++
}

func (r *recordingSink) get(name string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last[name]
}

func TestTimeoutBoundaries(t *testing.T) {
	to := DefaultTimeouts()
	tests := []struct {
		runes int
		want  time.Duration
	}{
		{0, 3 * time.Second},
		{99, 3 * time.Second},
		{100, 8 * time.Second},
		{200, 8 * time.Second},
		{201, 12 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, to.For(strings.Repeat("a", tt.runes)), "runes=%d", tt.runes)
	}
	// Runes, not bytes.
	assert.Equal(t, 3*time.Second, to.For(strings.Repeat("é", 99)))
}

func TestLipSyncSmoothing(t *testing.T) {
	sink := &recordingSink{}
	l := NewLipSync(sink, DefaultSmoothing)

	assert.InDelta(t, 0.25, l.Update([]int16{0, 16384, -100}), 1e-9)
	assert.InDelta(t, 0.375, l.Update([]int16{-16384}), 1e-9)
	assert.InDelta(t, 0.375, sink.get(ExpressionAA), 1e-9)
	assert.InDelta(t, 0.1875, sink.get(ExpressionIH), 1e-9)
	assert.InDelta(t, 0.1125, sink.get(ExpressionOU), 1e-9)

	l.Reset()
	assert.Zero(t, sink.get(ExpressionAA))
	assert.Zero(t, sink.get(ExpressionOU))
}

func TestLipSyncClampsToOne(t *testing.T) {
	l := NewLipSync(nil, 0)
	for range 10 {
		l.Update([]int16{-32768})
	}
	assert.LessOrEqual(t, l.Update([]int16{-32768}), 1.0)
}

func audioServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.mp3" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("fake mp3"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// toneDecoder yields d of a constant half-scale tone at 6kHz.
func toneDecoder(d time.Duration) Decoder {
	return DecoderFunc(func(ctx context.Context, data []byte) (PCM, error) {
		n := int(d.Seconds() * 6000)
		s := make([]int16, n)
		for i := range s {
			s[i] = 16384
		}
		return PCM{Samples: s, SampleRate: 6000}, nil
	})
}

func TestAudioElementReusesGraph(t *testing.T) {
	srv := audioServer(t)
	e := NewAudioElement(WithDecoder(toneDecoder(50*time.Millisecond)), WithFrameRate(100))
	ctx := context.Background()

	for range 3 {
		require.NoError(t, e.SetSource(ctx, srv.URL+"/a.mp3"))
		frames := 0
		require.NoError(t, e.Play(ctx, func(w []int16) { frames++ }))
		assert.Equal(t, 5, frames)
	}
	assert.Equal(t, 1, e.Graphs())
}

func TestAudioElementFetchFailure(t *testing.T) {
	srv := audioServer(t)
	e := NewAudioElement(WithDecoder(toneDecoder(time.Second)))
	assert.Error(t, e.SetSource(context.Background(), srv.URL+"/missing.mp3"))
	assert.ErrorIs(t, e.Play(context.Background(), nil), ErrNoSource)
}

func TestPresentWithoutAudioTimesOut(t *testing.T) {
	s := New(NewAudioElement(), nil, WithTimeouts(Timeouts{Short: 20 * time.Millisecond, Medium: time.Hour, Long: time.Hour}))

	got := make(chan Result, 1)
	s.Present(context.Background(), &protocol.AIResponse{ID: "r1", AgentID: "a1", Text: "short"}, func(r Result) { got <- r })

	select {
	case r := <-got:
		assert.Equal(t, "r1", r.ResponseID)
		assert.Equal(t, metrics.OutcomeTimeout, r.Outcome)
		assert.NoError(t, r.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("no completion")
	}
}

func TestPresentAudioDrivesLipSyncAndEnds(t *testing.T) {
	srv := audioServer(t)
	sink := &recordingSink{}
	s := New(NewAudioElement(WithDecoder(toneDecoder(50*time.Millisecond)), WithFrameRate(100)), sink)

	got := make(chan Result, 1)
	s.Present(context.Background(), &protocol.AIResponse{ID: "r1", AgentID: "a1", Text: "hi", AudioURL: srv.URL + "/a.mp3"},
		func(r Result) { got <- r })

	r := <-got
	assert.Equal(t, metrics.OutcomeEnded, r.Outcome)
	assert.NoError(t, r.Err)
	assert.Greater(t, sink.sets, 3)
	assert.Zero(t, sink.get(ExpressionAA))
}

func TestPresentFailureStillCompletes(t *testing.T) {
	srv := audioServer(t)
	dec := DecoderFunc(func(ctx context.Context, data []byte) (PCM, error) {
		return PCM{}, errors.New("corrupt")
	})
	s := New(NewAudioElement(WithDecoder(dec)), nil)

	got := make(chan Result, 1)
	s.Present(context.Background(), &protocol.AIResponse{ID: "r1", AgentID: "a1", Text: "hi", AudioURL: srv.URL + "/a.mp3"},
		func(r Result) { got <- r })

	r := <-got
	assert.Equal(t, metrics.OutcomeFailed, r.Outcome)
	assert.Error(t, r.Err)
}

func TestPresentCancelSuppressesCompletion(t *testing.T) {
	srv := audioServer(t)
	sink := &recordingSink{}
	s := New(NewAudioElement(WithDecoder(toneDecoder(10*time.Second))), sink)

	ctx, cancel := context.WithCancel(context.Background())
	called := make(chan struct{}, 1)
	s.Present(ctx, &protocol.AIResponse{ID: "r1", AgentID: "a1", Text: "hi", AudioURL: srv.URL + "/a.mp3"},
		func(Result) { called <- struct{}{} })

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-called:
		t.Fatal("completion after cancel")
	case <-time.After(200 * time.Millisecond):
	}
	assert.Zero(t, sink.get(ExpressionAA))
}

func TestAutoplayBlockedRetriedOnGesture(t *testing.T) {
	srv := audioServer(t)
	e := NewAudioElement(WithDecoder(toneDecoder(30*time.Millisecond)), WithFrameRate(100), WithGestureRequired())
	s := New(e, nil)

	url := srv.URL + "/a.mp3"
	got := make(chan Result, 1)
	s.Present(context.Background(), &protocol.AIResponse{ID: "r1", AgentID: "a1", Text: "hi", AudioURL: url},
		func(r Result) { got <- r })

	r := <-got
	assert.ErrorIs(t, r.Err, ErrAutoplayBlocked)
	assert.Equal(t, url, s.Blocked())

	require.NoError(t, s.Gesture(context.Background()))
	assert.Empty(t, s.Blocked())
	assert.Equal(t, 1, s.Graphs())

	// Nothing left to retry.
	require.NoError(t, s.Gesture(context.Background()))
}

func TestResetForgetsBlockedSource(t *testing.T) {
	srv := audioServer(t)
	e := NewAudioElement(WithDecoder(toneDecoder(30*time.Millisecond)), WithFrameRate(100), WithGestureRequired())
	s := New(e, nil)

	got := make(chan Result, 1)
	s.Present(context.Background(), &protocol.AIResponse{ID: "r1", AgentID: "a1", Text: "hi", AudioURL: srv.URL + "/a.mp3"},
		func(r Result) { got <- r })
	require.ErrorIs(t, (<-got).Err, ErrAutoplayBlocked)
	require.NotEmpty(t, s.Blocked())

	s.Reset()
	assert.Empty(t, s.Blocked())
	require.NoError(t, s.Gesture(context.Background()))
	assert.Empty(t, s.Blocked())
}
