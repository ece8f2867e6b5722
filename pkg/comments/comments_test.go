package comments_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-borp/pkg/comments"
	"github.com/teslashibe/go-borp/pkg/inference"
	"github.com/teslashibe/go-borp/pkg/memory"
	"github.com/teslashibe/go-borp/pkg/protocol"
	"github.com/teslashibe/go-borp/pkg/responder"
)

type fakeStore struct {
	mu       sync.Mutex
	comments []protocol.Comment
	fetchErr error
	markErr  error
	sinces   []time.Time
	markCall int
}

func (s *fakeStore) FetchUnread(ctx context.Context, agentID string, since time.Time, limit int) ([]protocol.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinces = append(s.sinces, since)
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var out []protocol.Comment
	for _, c := range s.comments {
		if !c.ReadByAgent && c.AgentID == agentID && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkRead(ctx context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markCall++
	if s.markErr != nil {
		return 0, s.markErr
	}
	n := 0
	for _, id := range ids {
		for i := range s.comments {
			if s.comments[i].ID == id && !s.comments[i].ReadByAgent {
				s.comments[i].ReadByAgent = true
				n++
			}
		}
	}
	return n, nil
}

type fakeReplier struct {
	replied []string
	err     error
}

func (r *fakeReplier) Reply(ctx context.Context, c protocol.Comment) (*protocol.AIResponse, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.replied = append(r.replied, c.ID)
	return &protocol.AIResponse{ID: "r-" + c.ID, AgentID: c.AgentID, Text: "ok"}, nil
}

func batch(ids ...string) []protocol.Comment {
	out := make([]protocol.Comment, len(ids))
	for i, id := range ids {
		out[i] = protocol.Comment{ID: id, AgentID: "a1", User: "user-" + id, Handle: "user-" + id, Message: "msg " + id}
	}
	return out
}

func fixedRanker(id string) comments.Ranker {
	return comments.RankerFunc(func(ctx context.Context, b []protocol.Comment) (protocol.Comment, bool, error) {
		for _, c := range b {
			if c.ID == id {
				return c, true, nil
			}
		}
		return protocol.Comment{}, false, nil
	})
}

func TestProcessEmptyBatchIsNoop(t *testing.T) {
	store := &fakeStore{}
	s := comments.NewSelector("a1", store, fixedRanker(""), &fakeReplier{})

	res, err := s.Process(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, comments.Result{}, res)
	assert.Zero(t, store.markCall)
}

func TestProcessMarksAllReadWhateverIsSelected(t *testing.T) {
	for _, pick := range []string{"c1", "c2", "c3", "NONE"} {
		t.Run(pick, func(t *testing.T) {
			store := &fakeStore{comments: batch("c1", "c2", "c3")}
			replier := &fakeReplier{}
			s := comments.NewSelector("a1", store, fixedRanker(pick), replier)

			b, _ := store.FetchUnread(context.Background(), "a1", time.Time{}, 15)
			res, err := s.Process(context.Background(), b)
			require.NoError(t, err)
			assert.Equal(t, 3, res.Marked)
			assert.Equal(t, 1, store.markCall, "mark-read must be a single batch call")

			again, _ := store.FetchUnread(context.Background(), "a1", time.Time{}, 15)
			assert.Empty(t, again)

			if pick == "NONE" {
				assert.Empty(t, replier.replied)
				assert.False(t, res.Published)
			} else {
				assert.Equal(t, []string{pick}, replier.replied)
				assert.Equal(t, pick, res.SelectedID)
				assert.True(t, res.Published)
			}
		})
	}
}

func TestProcessSingleCommentSkipsRanker(t *testing.T) {
	ranker := comments.RankerFunc(func(ctx context.Context, b []protocol.Comment) (protocol.Comment, bool, error) {
		t.Fatal("ranker must not be called for a single comment")
		return protocol.Comment{}, false, nil
	})
	replier := &fakeReplier{}
	s := comments.NewSelector("a1", &fakeStore{}, ranker, replier)

	res, err := s.Process(context.Background(), batch("only"))
	require.NoError(t, err)
	assert.Equal(t, "only", res.SelectedID)
	assert.Equal(t, []string{"only"}, replier.replied)
}

func TestProcessContinuesWhenMarkReadFails(t *testing.T) {
	store := &fakeStore{markErr: errors.New("db down")}
	replier := &fakeReplier{}
	s := comments.NewSelector("a1", store, fixedRanker("c2"), replier)

	res, err := s.Process(context.Background(), batch("c1", "c2"))
	require.NoError(t, err)
	assert.Zero(t, res.Marked)
	assert.Equal(t, []string{"c2"}, replier.replied)
}

func TestProcessRecordsCommentsAndFirstInteraction(t *testing.T) {
	mem := memory.NewMemoryStore(0)
	s := comments.NewSelector("a1", &fakeStore{}, fixedRanker("c1"), &fakeReplier{}, comments.WithMemory(mem))
	ctx := context.Background()

	_, err := s.Process(ctx, batch("c1", "c2"))
	require.NoError(t, err)

	records, _ := mem.Recent(ctx, "a1", 0)
	kinds := map[memory.Kind]int{}
	for _, r := range records {
		kinds[r.Kind]++
	}
	assert.Equal(t, 2, kinds[memory.KindComment])
	assert.Equal(t, 1, kinds[memory.KindFirstInteraction])

	// The same author again is no longer a first interaction.
	again := batch("c1")
	again[0].ID = "c9"
	_, err = s.Process(ctx, again)
	require.NoError(t, err)
	records, _ = mem.Recent(ctx, "a1", 0)
	n := 0
	for _, r := range records {
		if r.Kind == memory.KindFirstInteraction {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestProcessReturnsReplierError(t *testing.T) {
	boom := errors.New("llm down")
	s := comments.NewSelector("a1", &fakeStore{}, fixedRanker("c1"), &fakeReplier{err: boom})

	res, err := s.Process(context.Background(), batch("c1"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "c1", res.SelectedID)
	assert.False(t, res.Published)
}

func TestReaderAdvancesToFetchStart(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	clock := func() time.Time { return now }

	store := &fakeStore{comments: batch("c1")}
	sel := comments.NewSelector("a1", store, fixedRanker(""), &fakeReplier{})
	r := comments.NewReader("a1", store, sel, comments.WithClock(clock))
	assert.Equal(t, t0, r.LastProcessed())

	now = t0.Add(20 * time.Second)
	res, err := r.ReadAndReply(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fetched)
	assert.Equal(t, t0.Add(20*time.Second), r.LastProcessed())
	assert.Equal(t, t0, store.sinces[0])
}

func TestReaderKeepsTimestampOnFetchFailure(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{fetchErr: errors.New("timeout")}
	sel := comments.NewSelector("a1", store, fixedRanker(""), &fakeReplier{})
	r := comments.NewReader("a1", store, sel, comments.WithSince(t0), comments.WithLimit(5))

	_, err := r.ReadAndReply(context.Background())
	require.Error(t, err)
	assert.Equal(t, t0, r.LastProcessed())
}

func TestLLMRanker(t *testing.T) {
	persona := func() responder.Persona { return responder.Persona{Name: "Borp", Bio: []string{"a robot"}} }
	b := batch("c1", "c2", "c3")

	tests := []struct {
		reply  string
		wantID string
	}{
		{"c2", "c2"},
		{`"c3"`, "c3"},
		{"ID: c1", "c1"},
		{"NONE", ""},
		{"none", ""},
		{"c42", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			llm := inference.NewScriptedMock(tt.reply)
			got, ok, err := comments.NewLLMRanker(llm, persona).Rank(context.Background(), b)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID != "", ok)
			assert.Equal(t, tt.wantID, got.ID)

			prompt := llm.Requests()[0].Messages[0].Content
			assert.Contains(t, prompt, "ID: c2")
			assert.Contains(t, prompt, "Borp")
		})
	}
}

func TestLLMRankerError(t *testing.T) {
	persona := func() responder.Persona { return responder.Persona{Name: "Borp"} }
	_, ok, err := comments.NewLLMRanker(inference.WithError(errors.New("x")), persona).Rank(context.Background(), batch("c1", "c2"))
	assert.Error(t, err)
	assert.False(t, ok)
}
