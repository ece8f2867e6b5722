package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    any
	}{
		{name: "comment", msgType: TypeNewComment, data: Comment{ID: "c1", AgentID: "a1", Message: "hi"}},
		{name: "nil data", msgType: TypePing, data: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.msgType, msg.Type)
			assert.NotZero(t, msg.Timestamp)
			if tt.data == nil {
				assert.Nil(t, msg.Data)
			}
		})
	}
}

func TestNewEventNamesChannel(t *testing.T) {
	msg, err := NewEvent("agent_7", EventAIResponse, AIResponse{ID: "r1", AgentID: "agent_7", Text: "hey"})
	require.NoError(t, err)
	assert.Equal(t, TypeEvent, msg.Type)
	assert.Equal(t, "agent_7_ai_response", msg.Event)

	raw, err := msg.Bytes()
	require.NoError(t, err)
	parsed, err := ParseMessage(raw)
	require.NoError(t, err)

	var resp AIResponse
	require.NoError(t, parsed.ParseData(&resp))
	assert.Equal(t, "hey", resp.Text)
}

func TestParseEventName(t *testing.T) {
	tests := []struct {
		in      string
		agentID string
		kind    EventKind
		ok      bool
	}{
		{"a1_ai_response", "a1", EventAIResponse, true},
		{"my_agent_update_animation", "my_agent", EventUpdateAnimation, true},
		{"a1_comment_received", "a1", EventCommentReceived, true},
		{"_ai_response", "", "", false},
		{"a1_something_else", "", "", false},
	}
	for _, tt := range tests {
		agentID, kind, ok := ParseEventName(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.agentID, agentID, tt.in)
		assert.Equal(t, tt.kind, kind, tt.in)
	}
}

func TestParseMessageRejectsGarbage(t *testing.T) {
	_, err := ParseMessage([]byte("not json"))
	assert.Error(t, err)

	_, err = ParseMessage([]byte(`{"agentId":"a1"}`))
	assert.ErrorContains(t, err, "missing type")
}

func TestAIResponseWireShapeIsFlat(t *testing.T) {
	r := AIResponse{ID: "r1", AgentID: "a1", Text: "thinking out loud", Thought: true}
	raw, err := json.Marshal(r)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	want := map[string]any{"id": "r1", "agentId": "a1", "text": "thinking out loud", "thought": true}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("wire shape mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, r.ReplyTo())
}

func TestAIResponseReplyTo(t *testing.T) {
	c := Comment{ID: "c9", User: "Ann", Handle: "ann", Avatar: "pfp.png", Message: "hello borp"}
	var r AIResponse
	r.SetReplyTo(c)

	want := &ReplyTo{User: "Ann", MessageID: "c9", Message: "hello borp", Handle: "ann", Pfp: "pfp.png"}
	if diff := cmp.Diff(want, r.ReplyTo()); diff != "" {
		t.Errorf("ReplyTo mismatch (-want +got):\n%s", diff)
	}
}

func TestCommentAuthorAndValidate(t *testing.T) {
	c := Comment{ID: "c1", AgentID: "a1", User: "Ann", Message: "yo", CreatedAt: time.Now()}
	assert.Equal(t, "Ann", c.Author())
	c.Handle = "ann_"
	assert.Equal(t, "ann_", c.Author())
	assert.NoError(t, c.Validate())

	c.Message = "  "
	assert.Error(t, c.Validate())
}
