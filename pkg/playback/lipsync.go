package playback

import "math"

// DefaultSmoothing is the weight kept from the previous mouth value each frame.
const DefaultSmoothing = 0.5

// Viseme channel names.
const (
	ExpressionAA = "aa"
	ExpressionIH = "ih"
	ExpressionOU = "ou"
)

// ExpressionSink receives facial expression weights in [0, 1].
type ExpressionSink interface {
	SetExpression(name string, weight float64)
}

// ExpressionSinkFunc adapts a function to ExpressionSink.
type ExpressionSinkFunc func(name string, weight float64)

// SetExpression implements ExpressionSink.
func (f ExpressionSinkFunc) SetExpression(name string, weight float64) { f(name, weight) }

// LipSync maps audio amplitude to mouth shapes. It is driven from the
// playback goroutine and is not safe for concurrent use.
type LipSync struct {
	sink      ExpressionSink
	smoothing float64
	smoothed  float64
}

// NewLipSync creates a lip-sync driver writing to sink. A smoothing outside
// [0, 1) falls back to DefaultSmoothing.
func NewLipSync(sink ExpressionSink, smoothing float64) *LipSync {
	if smoothing < 0 || smoothing >= 1 {
		smoothing = DefaultSmoothing
	}
	return &LipSync{sink: sink, smoothing: smoothing}
}

// Update consumes one analysis window and returns the mouth opening emitted.
func (l *LipSync) Update(window []int16) float64 {
	raw := peak(window)
	l.smoothed = l.smoothed*l.smoothing + raw*(1-l.smoothing)
	open := math.Min(l.smoothed, 1)
	l.emit(open)
	return open
}

// Reset closes the mouth and forgets the smoothing history.
func (l *LipSync) Reset() {
	l.smoothed = 0
	l.emit(0)
}

func (l *LipSync) emit(open float64) {
	if l.sink == nil {
		return
	}
	l.sink.SetExpression(ExpressionAA, open)
	l.sink.SetExpression(ExpressionIH, open*0.5)
	l.sink.SetExpression(ExpressionOU, open*0.3)
}

// peak returns the largest absolute sample normalized to [0, 1].
func peak(window []int16) float64 {
	var m int32
	for _, s := range window {
		v := int32(s)
		if v < 0 {
			v = -v
		}
		if v > m {
			m = v
		}
	}
	return float64(m) / 32768
}
