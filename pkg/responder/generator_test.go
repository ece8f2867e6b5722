package responder_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-borp/pkg/inference"
	"github.com/teslashibe/go-borp/pkg/memory"
	"github.com/teslashibe/go-borp/pkg/protocol"
	"github.com/teslashibe/go-borp/pkg/responder"
	"github.com/teslashibe/go-borp/pkg/tts"
)

type fakePublisher struct {
	mu         sync.Mutex
	responses  []*protocol.AIResponse
	animations []string
	err        error
}

func (p *fakePublisher) PublishResponse(ctx context.Context, r *protocol.AIResponse) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.responses = append(p.responses, r)
	return nil
}

func (p *fakePublisher) PublishAnimation(ctx context.Context, agentID, label string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.animations = append(p.animations, agentID+":"+label)
	return nil
}

type fakeUploader struct {
	calls int
	err   error
}

func (u *fakeUploader) UploadAudio(ctx context.Context, audio []byte) (string, error) {
	u.calls++
	if u.err != nil {
		return "", u.err
	}
	return "http://cdn.test/uploads/a.mp3", nil
}

var testPersona = responder.Persona{
	AgentID:    "agent-1",
	Name:       "Borp",
	Bio:        []string{"a robot", "loves chat", "streams daily"},
	Lore:       []string{"built in a garage", "once beat a chess bot"},
	Adjectives: []string{"witty", "kind"},
}

var testComment = protocol.Comment{
	ID:      "c1",
	AgentID: "agent-1",
	User:    "Alice",
	Handle:  "alice",
	Avatar:  "http://pfp.test/alice.png",
	Message: "hey borp, what's up?",
}

func newGenerator(t *testing.T, llm inference.Provider, pub responder.Publisher, opts ...responder.Option) *responder.Generator {
	t.Helper()
	opts = append([]responder.Option{responder.WithRand(rand.New(rand.NewPCG(1, 2)))}, opts...)
	g, err := responder.New(testPersona, llm, pub, opts...)
	require.NoError(t, err)
	return g
}

func TestReplyPublishesWithSpeechAndAnimation(t *testing.T) {
	llm := inference.NewScriptedMock(
		"```json\n{\"user\": \"Borp\", \"text\": \"not much, just vibing\", \"action\": \"NONE\", \"animation\": \"happy\"}\n```",
		"Salute.",
	)
	pub := &fakePublisher{}
	up := &fakeUploader{}
	mem := memory.NewMemoryStore(0)
	g := newGenerator(t, llm, pub, responder.WithSpeech(tts.NewMock(), up), responder.WithMemory(mem))

	resp, err := g.Reply(context.Background(), testComment)
	require.NoError(t, err)

	require.Len(t, pub.responses, 1)
	assert.Same(t, resp, pub.responses[0])
	assert.Equal(t, "not much, just vibing", resp.Text)
	assert.Equal(t, "salute", resp.Animation)
	assert.Equal(t, "http://cdn.test/uploads/a.mp3", resp.AudioURL)
	assert.Equal(t, "c1", resp.ReplyToMessageID)
	assert.Equal(t, "alice", resp.ReplyToHandle)
	assert.Equal(t, "http://pfp.test/alice.png", resp.ReplyToPfp)
	assert.False(t, resp.IsGiftResponse)
	assert.NotEmpty(t, resp.ID)

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, inference.ModelMedium, reqs[0].Class)
	assert.Equal(t, inference.ModelSmall, reqs[1].Class)
	assert.Contains(t, reqs[0].Messages[0].Content, "hey borp, what's up?")

	records, _ := mem.Recent(context.Background(), "agent-1", 0)
	require.Len(t, records, 1)
	assert.Equal(t, memory.KindReply, records[0].Kind)
	assert.Equal(t, int64(1), g.Stats().Responses)
}

func TestReplyDegradesWhenSpeechFails(t *testing.T) {
	llm := inference.NewScriptedMock(`{"text": "hello there"}`, "idle")
	pub := &fakePublisher{}
	up := &fakeUploader{}
	speech := tts.NewMock().WithError(errors.New("quota exceeded"))
	g := newGenerator(t, llm, pub, responder.WithSpeech(speech, up))

	resp, err := g.Reply(context.Background(), testComment)
	require.NoError(t, err)
	require.Len(t, pub.responses, 1)
	assert.Equal(t, "hello there", resp.Text)
	assert.Empty(t, resp.AudioURL)
	assert.Zero(t, up.calls)
}

func TestReplyDegradesWhenUploadFails(t *testing.T) {
	llm := inference.NewScriptedMock(`{"text": "hello there"}`, "idle")
	pub := &fakePublisher{}
	g := newGenerator(t, llm, pub, responder.WithSpeech(tts.NewMock(), &fakeUploader{err: errors.New("disk full")}))

	resp, err := g.Reply(context.Background(), testComment)
	require.NoError(t, err)
	assert.Empty(t, resp.AudioURL)
	assert.Len(t, pub.responses, 1)
}

func TestReplyDropsInvalidAnimation(t *testing.T) {
	llm := inference.NewScriptedMock(`{"text": "sure", "animation": "moonwalk"}`, "moonwalk")
	pub := &fakePublisher{}
	g := newGenerator(t, llm, pub)

	resp, err := g.Reply(context.Background(), testComment)
	require.NoError(t, err)
	assert.Empty(t, resp.Animation)
	assert.Len(t, pub.responses, 1)
}

func TestReplyFallsBackToSuggestedAnimation(t *testing.T) {
	llm := &inference.Mock{}
	calls := 0
	llm.ChatFunc = func(ctx context.Context, req *inference.ChatRequest) (*inference.ChatResponse, error) {
		calls++
		if calls == 1 {
			return &inference.ChatResponse{Message: inference.NewAssistantMessage(`{"text": "ok", "animation": "LAUGHING"}`)}, nil
		}
		return nil, errors.New("small model down")
	}
	pub := &fakePublisher{}
	g := newGenerator(t, llm, pub)

	resp, err := g.Reply(context.Background(), testComment)
	require.NoError(t, err)
	assert.Equal(t, "laughing", resp.Animation)
}

func TestReplyUsesRawTextFallback(t *testing.T) {
	llm := inference.NewScriptedMock("just plain words", "idle")
	pub := &fakePublisher{}
	g := newGenerator(t, llm, pub)

	resp, err := g.Reply(context.Background(), testComment)
	require.NoError(t, err)
	assert.Equal(t, "just plain words", resp.Text)
}

func TestReplyEmptyTextIsNotPublished(t *testing.T) {
	llm := inference.NewScriptedMock(`{"text": "  "}`)
	pub := &fakePublisher{}
	g := newGenerator(t, llm, pub)

	_, err := g.Reply(context.Background(), testComment)
	assert.ErrorIs(t, err, responder.ErrEmptyReply)
	assert.Empty(t, pub.responses)
}

func TestReplyModelFailure(t *testing.T) {
	pub := &fakePublisher{}
	g := newGenerator(t, inference.WithError(errors.New("boom")), pub)

	_, err := g.Reply(context.Background(), testComment)
	assert.Error(t, err)
	assert.Empty(t, pub.responses)
}

func TestThought(t *testing.T) {
	llm := inference.NewScriptedMock(`"Did anyone else just hear that? #weird 🤖 I swear the garage is haunted"`)
	pub := &fakePublisher{}
	mem := memory.NewMemoryStore(0)
	g := newGenerator(t, llm, pub, responder.WithMemory(mem), responder.WithSpeech(tts.NewMock(), &fakeUploader{}))

	resp, err := g.Thought(context.Background())
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Thought)
	assert.Equal(t, "Did anyone else just hear that? I swear the garage is haunted", resp.Text)
	assert.NotEmpty(t, resp.AudioURL)
	assert.Nil(t, resp.ReplyTo())

	assert.Equal(t, inference.ModelLarge, llm.Requests()[0].Class)
	records, _ := mem.Recent(context.Background(), "agent-1", 0)
	require.Len(t, records, 1)
	assert.Equal(t, memory.KindThought, records[0].Kind)
}

func TestThoughtEmptyIsSkipped(t *testing.T) {
	pub := &fakePublisher{}
	g := newGenerator(t, inference.NewScriptedMock(`"#hashtag 🔥"`), pub)

	resp, err := g.Thought(context.Background())
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.Empty(t, pub.responses)
}

func TestPeriodicAnimation(t *testing.T) {
	pub := &fakePublisher{}
	g := newGenerator(t, inference.NewScriptedMock("capoeira"), pub)

	label, err := g.PeriodicAnimation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "capoeira", label)
	assert.Equal(t, []string{"agent-1:capoeira"}, pub.animations)
}

func TestPeriodicAnimationInvalidIsNoop(t *testing.T) {
	pub := &fakePublisher{}
	g := newGenerator(t, inference.NewScriptedMock("I pick the moonwalk!"), pub)

	label, err := g.PeriodicAnimation(context.Background())
	require.NoError(t, err)
	assert.Empty(t, label)
	assert.Empty(t, pub.animations)
}

func TestNewValidates(t *testing.T) {
	_, err := responder.New(testPersona, nil, &fakePublisher{})
	assert.ErrorIs(t, err, responder.ErrNoModel)
	_, err = responder.New(testPersona, inference.NewMock(), nil)
	assert.ErrorIs(t, err, responder.ErrNoPublisher)
}

func TestSanitizeThought(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello chat", "hello chat"},
		{"quoted", `"hello chat"`, "hello chat"},
		{"curly quotes", "“hello chat”", "hello chat"},
		{"hashtags", "so #blessed right now #live", "so right now"},
		{"emoji", "gm 🌞☕ chat", "gm chat"},
		{"whitespace", "  lots   of\n space ", "lots of space"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, responder.SanitizeThought(tt.in))
		})
	}

	long := strings.Repeat("word ", 80)
	assert.Len(t, strings.Fields(responder.SanitizeThought(long)), responder.MaxThoughtWords)
}
