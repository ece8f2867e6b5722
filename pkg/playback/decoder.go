package playback

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultSampleRate is the PCM rate sources are decoded to.
const DefaultSampleRate = 24000

// PCM is mono signed 16-bit audio.
type PCM struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the play length of p.
func (p PCM) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(p.Samples)) * time.Second / time.Duration(p.SampleRate)
}

// Decoder turns encoded audio into PCM.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (PCM, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(ctx context.Context, data []byte) (PCM, error)

// Decode implements Decoder.
func (f DecoderFunc) Decode(ctx context.Context, data []byte) (PCM, error) { return f(ctx, data) }

// FFmpegDecoder decodes anything ffmpeg understands by piping it through a
// one-shot subprocess.
type FFmpegDecoder struct {
	Path       string // defaults to "ffmpeg"
	SampleRate int    // defaults to DefaultSampleRate
}

var _ Decoder = (*FFmpegDecoder)(nil)

// Decode implements Decoder.
func (d *FFmpegDecoder) Decode(ctx context.Context, data []byte) (PCM, error) {
	path := d.Path
	if path == "" {
		path = "ffmpeg"
	}
	rate := d.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}

	cmd := exec.CommandContext(ctx, path,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le", // raw little-endian PCM
		"-ac", "1",
		"-ar", strconv.Itoa(rate),
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return PCM{}, ctx.Err()
		}
		return PCM{}, fmt.Errorf("ffmpeg decode: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return PCM{Samples: samplesFromLE(stdout.Bytes()), SampleRate: rate}, nil
}

func samplesFromLE(raw []byte) []int16 {
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return out
}

func samplesToLE(dst []byte, samples []int16) []byte {
	dst = dst[:0]
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}
