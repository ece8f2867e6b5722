package playback

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-borp/pkg/metrics"
	"github.com/teslashibe/go-borp/pkg/protocol"
)

func missingBinary(t *testing.T) string {
	return filepath.Join(t.TempDir(), "no-such-ffmpeg")
}

func TestFFmpegDecoderMissingBinary(t *testing.T) {
	d := &FFmpegDecoder{Path: missingBinary(t)}
	_, err := d.Decode(context.Background(), []byte("fake mp3"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg decode")
}

func TestFFmpegDecoderReadsRawOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	script := filepath.Join(t.TempDir(), "ffmpeg")
	// Swallow the input and emit two little-endian samples: 1 and -2.
	body := "#!/bin/sh\ncat >/dev/null\nprintf '\\001\\000\\376\\377'\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	d := &FFmpegDecoder{Path: script, SampleRate: 8000}
	pcm, err := d.Decode(context.Background(), []byte("fake mp3"))
	require.NoError(t, err)
	assert.Equal(t, []int16{1, -2}, pcm.Samples)
	assert.Equal(t, 8000, pcm.SampleRate)
	assert.Equal(t, 250*time.Microsecond, pcm.Duration())
}

func TestMissingDecoderCompletesAsFailed(t *testing.T) {
	srv := audioServer(t)
	e := NewAudioElement(WithDecoder(&FFmpegDecoder{Path: missingBinary(t)}))
	s := New(e, nil)

	got := make(chan Result, 1)
	s.Present(context.Background(), &protocol.AIResponse{ID: "r1", AgentID: "a1", Text: "hi", AudioURL: srv.URL + "/a.mp3"},
		func(r Result) { got <- r })

	select {
	case r := <-got:
		assert.Equal(t, metrics.OutcomeFailed, r.Outcome)
		assert.Error(t, r.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("no completion")
	}
}
