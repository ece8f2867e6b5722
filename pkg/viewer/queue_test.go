package viewer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-borp/pkg/protocol"
)

func resp(id string) *protocol.AIResponse {
	return &protocol.AIResponse{ID: id, AgentID: "a1", Text: "text " + id}
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()

	p1, ok := q.Arrive(resp("r1"))
	require.True(t, ok)
	_, ok = q.Arrive(resp("r2"))
	assert.False(t, ok)
	_, ok = q.Arrive(resp("r3"))
	assert.False(t, ok)
	assert.Len(t, q.Pending(), 2)

	var order []string
	order = append(order, p1.Response.ID)
	p := p1
	for {
		next, ok := q.Complete(p.Token)
		if !ok {
			break
		}
		order = append(order, next.Response.ID)
		p = next
	}
	assert.Equal(t, []string{"r1", "r2", "r3"}, order)
	assert.Nil(t, q.Current())
	assert.Empty(t, q.Pending())
}

func TestQueueIgnoresStaleTokens(t *testing.T) {
	q := NewQueue()
	p1, _ := q.Arrive(resp("r1"))
	q.Arrive(resp("r2"))

	p2, ok := q.Complete(p1.Token)
	require.True(t, ok)

	// A second completion for r1 must not end r2.
	_, ok = q.Complete(p1.Token)
	assert.False(t, ok)
	assert.Equal(t, "r2", q.Current().ID)
	assert.True(t, q.IsCurrent(p2.Token))
}

func TestQueueResetInvalidatesTokens(t *testing.T) {
	q := NewQueue()
	p1, _ := q.Arrive(resp("r1"))
	q.Arrive(resp("r2"))

	q.Reset()
	assert.Nil(t, q.Current())
	assert.Empty(t, q.Pending())
	assert.Equal(t, uint64(1), q.Epoch())

	_, ok := q.Complete(p1.Token)
	assert.False(t, ok)

	p3, ok := q.Arrive(resp("r3"))
	require.True(t, ok)
	assert.NotEqual(t, p1.Token, p3.Token)
	assert.Equal(t, uint64(1), p3.Token.Epoch)
}

func TestQueueWaitsForOutOfBandAudio(t *testing.T) {
	q := NewQueue()
	q.SetAudioBusy(true)

	_, ok := q.Arrive(resp("r1"))
	assert.False(t, ok)

	p, ok := q.SetAudioBusy(false)
	require.True(t, ok)
	assert.Equal(t, "r1", p.Response.ID)
}

func TestQueueAtMostOneCurrent(t *testing.T) {
	q := NewQueue()
	presented := 0
	for _, id := range []string{"a", "b", "c", "d"} {
		if _, ok := q.Arrive(resp(id)); ok {
			presented++
		}
	}
	assert.Equal(t, 1, presented)
}
