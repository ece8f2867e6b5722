package viewer

import "github.com/teslashibe/go-borp/pkg/protocol"

// Token identifies one presentation. Completions carrying any other token
// are stale and ignored.
type Token struct {
	Epoch uint64
	Seq   uint64
}

// Presentation is a response the caller must now present.
type Presentation struct {
	Response *protocol.AIResponse
	Token    Token
}

// Queue sequences responses so at most one is on screen. It is owned by a
// single goroutine and does no locking.
type Queue struct {
	epoch     uint64
	seq       uint64
	current   *protocol.AIResponse
	token     Token
	pending   []*protocol.AIResponse
	audioBusy bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue { return &Queue{} }

// Arrive accepts r. It returns a presentation when r goes on screen now,
// otherwise r is appended to the FIFO.
func (q *Queue) Arrive(r *protocol.AIResponse) (Presentation, bool) {
	if q.current == nil && !q.audioBusy {
		return q.start(r), true
	}
	q.pending = append(q.pending, r)
	return Presentation{}, false
}

// IsCurrent reports whether tok identifies the presentation on screen.
func (q *Queue) IsCurrent(tok Token) bool {
	return q.current != nil && tok == q.token
}

// Complete ends the presentation identified by tok and returns the next one.
func (q *Queue) Complete(tok Token) (Presentation, bool) {
	if !q.IsCurrent(tok) {
		return Presentation{}, false
	}
	q.current = nil
	return q.advance()
}

// SetAudioBusy marks audio playing outside the queue. Clearing it may start
// the next pending entry.
func (q *Queue) SetAudioBusy(busy bool) (Presentation, bool) {
	q.audioBusy = busy
	if busy || q.current != nil {
		return Presentation{}, false
	}
	return q.advance()
}

// Reset drops the current and pending entries without presenting them and
// invalidates every outstanding token.
func (q *Queue) Reset() {
	q.epoch++
	q.current = nil
	q.token = Token{}
	clear(q.pending)
	q.pending = q.pending[:0]
}

// Current returns the response on screen, or nil.
func (q *Queue) Current() *protocol.AIResponse { return q.current }

// Pending returns a copy of the waiting responses, oldest first.
func (q *Queue) Pending() []*protocol.AIResponse {
	return append([]*protocol.AIResponse(nil), q.pending...)
}

// Epoch returns the reset generation.
func (q *Queue) Epoch() uint64 { return q.epoch }

func (q *Queue) advance() (Presentation, bool) {
	if len(q.pending) == 0 {
		return Presentation{}, false
	}
	next := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return q.start(next), true
}

func (q *Queue) start(r *protocol.AIResponse) Presentation {
	q.seq++
	q.current = r
	q.token = Token{Epoch: q.epoch, Seq: q.seq}
	return Presentation{Response: r, Token: q.token}
}
