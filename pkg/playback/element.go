package playback

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/teslashibe/go-borp/internal/httpc"
)

// DefaultFrameRate is how often the element advances and reports a window.
const DefaultFrameRate = 60

// FrameFunc is called on the playback goroutine with the samples of each frame.
type FrameFunc func(window []int16)

// Element is a reusable audio output. Its graph is built once and sources are
// swapped in place.
type Element interface {
	// SetSource fetches and decodes url, replacing the previous source.
	SetSource(ctx context.Context, url string) error
	// Play blocks until the source ends, ctx is done, or output fails.
	Play(ctx context.Context, frame FrameFunc) error
	// Graphs reports how many output graphs were built.
	Graphs() int
}

// Unlocker is implemented by elements gated on a user gesture.
type Unlocker interface {
	Unlock()
}

// ElementOption configures an AudioElement.
type ElementOption func(*AudioElement)

// WithHTTPClient sets the client used to fetch sources.
func WithHTTPClient(c *http.Client) ElementOption {
	return func(e *AudioElement) { e.client = c }
}

// WithDecoder replaces the ffmpeg decoder.
func WithDecoder(d Decoder) ElementOption {
	return func(e *AudioElement) { e.decoder = d }
}

// WithFrameRate sets the frame ticker rate in Hz.
func WithFrameRate(hz int) ElementOption {
	return func(e *AudioElement) {
		if hz > 0 {
			e.frameRate = hz
		}
	}
}

// WithSinkCommand pipes raw s16le PCM into a subprocess while playing,
// e.g. "aplay -f S16_LE -r 24000 -c 1".
func WithSinkCommand(name string, args ...string) ElementOption {
	return func(e *AudioElement) {
		e.sinkCmd = append([]string{name}, args...)
	}
}

// WithGestureRequired blocks playback until Unlock is called.
func WithGestureRequired() ElementOption {
	return func(e *AudioElement) { e.locked = true }
}

// WithElementLogger sets the element's logger.
func WithElementLogger(l zerolog.Logger) ElementOption {
	return func(e *AudioElement) { e.logger = l }
}

// AudioElement is the default Element: sources are fetched over HTTP,
// decoded to PCM and paced by a frame ticker.
type AudioElement struct {
	client    *http.Client
	decoder   Decoder
	frameRate int
	sinkCmd   []string
	logger    zerolog.Logger

	mu     sync.Mutex
	locked bool
	graphs int
	window []int16 // analysis buffer, allocated with the graph
	out    []byte
	pcm    PCM
	src    string
}

var _ Element = (*AudioElement)(nil)

// NewAudioElement creates an element. Nothing is built until the first source.
func NewAudioElement(opts ...ElementOption) *AudioElement {
	e := &AudioElement{
		client:    httpc.Client,
		decoder:   &FFmpegDecoder{},
		frameRate: DefaultFrameRate,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetSource implements Element.
func (e *AudioElement) SetSource(ctx context.Context, url string) error {
	data, err := httpc.Fetch(ctx, e.client, url)
	if err != nil {
		return fmt.Errorf("fetch audio: %w", err)
	}
	pcm, err := e.decoder.Decode(ctx, data)
	if err != nil {
		return fmt.Errorf("decode audio: %w", err)
	}
	if len(pcm.Samples) == 0 || pcm.SampleRate <= 0 {
		return ErrEmptyAudio
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.window == nil {
		e.buildGraphLocked(pcm.SampleRate)
	}
	e.pcm = pcm
	e.src = url
	return nil
}

func (e *AudioElement) buildGraphLocked(rate int) {
	n := max(1, rate/e.frameRate)
	e.window = make([]int16, n)
	e.out = make([]byte, 0, 2*n)
	e.graphs++
	e.logger.Debug().Int("sample_rate", rate).Int("window", n).Msg("built audio graph")
}

// Graphs implements Element.
func (e *AudioElement) Graphs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graphs
}

// Unlock lifts the gesture requirement.
func (e *AudioElement) Unlock() {
	e.mu.Lock()
	e.locked = false
	e.mu.Unlock()
}

// Play implements Element.
func (e *AudioElement) Play(ctx context.Context, frame FrameFunc) error {
	e.mu.Lock()
	locked, pcm, src := e.locked, e.pcm, e.src
	e.mu.Unlock()
	if locked {
		return ErrAutoplayBlocked
	}
	if src == "" {
		return ErrNoSource
	}

	sink, wait, err := e.startSink(ctx)
	if err != nil {
		return err
	}
	defer wait()

	step := pcm.SampleRate / e.frameRate
	if step < 1 {
		step = 1
	}
	ticker := time.NewTicker(time.Second / time.Duration(e.frameRate))
	defer ticker.Stop()

	for pos := 0; pos < len(pcm.Samples); {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		end := min(pos+step, len(pcm.Samples))
		window := pcm.Samples[pos:end]
		if sink != nil {
			e.out = samplesToLE(e.out, window)
			if _, err := sink.Write(e.out); err != nil {
				return fmt.Errorf("audio sink: %w", err)
			}
		}
		if frame != nil {
			frame(window)
		}
		pos = end
	}
	return nil
}

// startSink launches the configured output subprocess, if any.
func (e *AudioElement) startSink(ctx context.Context) (io.Writer, func(), error) {
	if len(e.sinkCmd) == 0 {
		return nil, func() {}, nil
	}
	cmd := exec.CommandContext(ctx, e.sinkCmd[0], e.sinkCmd[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("sink stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start sink: %w", err)
	}
	wait := func() {
		stdin.Close()
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			e.logger.Warn().Err(err).Msg("audio sink exited")
		}
	}
	return stdin, wait, nil
}
