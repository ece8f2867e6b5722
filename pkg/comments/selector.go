// Package comments decides which chat comment the agent answers.
//
// Every fetched comment is marked read before anything else happens, so a
// crash mid-cycle never redelivers it; at most one comment per batch gets a
// reply.
package comments

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/teslashibe/go-borp/pkg/memory"
	"github.com/teslashibe/go-borp/pkg/metrics"
	"github.com/teslashibe/go-borp/pkg/protocol"
)

// Store is the collaborator's comment inbox.
type Store interface {
	FetchUnread(ctx context.Context, agentID string, since time.Time, limit int) ([]protocol.Comment, error)
	MarkRead(ctx context.Context, ids []string) (int, error)
}

// Replier generates and publishes a reply to one comment.
type Replier interface {
	Reply(ctx context.Context, c protocol.Comment) (*protocol.AIResponse, error)
}

// Result summarizes one processed batch.
type Result struct {
	Fetched    int
	Marked     int
	SelectedID string
	Published  bool
}

// Selector processes a fetched batch.
type Selector struct {
	agentID string
	store   Store
	memory  memory.Store
	ranker  Ranker
	replier Replier
	logger  zerolog.Logger

	seen atomic.Int64
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithMemory sets where per-comment context records go.
func WithMemory(m memory.Store) SelectorOption {
	return func(s *Selector) { s.memory = m }
}

// WithSelectorLogger sets the structured logger.
func WithSelectorLogger(l zerolog.Logger) SelectorOption {
	return func(s *Selector) { s.logger = l }
}

// NewSelector creates a selector for agentID.
func NewSelector(agentID string, store Store, ranker Ranker, replier Replier, opts ...SelectorOption) *Selector {
	s := &Selector{
		agentID: agentID,
		store:   store,
		ranker:  ranker,
		replier: replier,
		memory:  memory.NewMemoryStore(0),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "comments").Str("agent_id", agentID).Logger()
	return s
}

// Seen returns how many comments this selector has processed.
func (s *Selector) Seen() int64 {
	return s.seen.Load()
}

// Process marks the batch read, records it, selects at most one comment and
// hands it to the replier. Only a replier failure is returned; bookkeeping
// failures are logged.
func (s *Selector) Process(ctx context.Context, batch []protocol.Comment) (Result, error) {
	res := Result{Fetched: len(batch)}
	if len(batch) == 0 {
		return res, nil
	}
	s.seen.Add(int64(len(batch)))

	ids := make([]string, len(batch))
	for i, c := range batch {
		ids[i] = c.ID
	}
	marked, err := s.store.MarkRead(ctx, ids)
	if err != nil {
		s.logger.Error().Err(err).Int("count", len(ids)).Msg("failed to mark comments read")
	}
	res.Marked = marked

	// Author lookups must see history from before this batch.
	known := make(map[string]bool)
	for _, c := range batch {
		if _, ok := known[c.Author()]; ok {
			continue
		}
		has, err := s.memory.HasAuthor(ctx, s.agentID, c.Author())
		if err != nil {
			s.logger.Warn().Err(err).Str("author", c.Author()).Msg("author lookup failed")
			has = true
		}
		known[c.Author()] = has
	}

	for _, c := range batch {
		r := memory.NewRecord(s.agentID, memory.KindComment, c.Author(), c.Message, c.ID)
		r.Metadata = map[string]string{"user": c.User}
		if err := s.memory.Append(ctx, r); err != nil {
			s.logger.Warn().Err(err).Str("comment_id", c.ID).Msg("failed to record comment")
		}
	}

	selected, ok := s.selectOne(ctx, batch)
	if !ok {
		metrics.CommentsProcessed.WithLabelValues(metrics.OutcomeSkipped).Add(float64(len(batch)))
		s.logger.Debug().Int("count", len(batch)).Msg("no comment selected")
		return res, nil
	}
	res.SelectedID = selected.ID
	metrics.CommentsProcessed.WithLabelValues(metrics.OutcomeSelected).Inc()
	if len(batch) > 1 {
		metrics.CommentsProcessed.WithLabelValues(metrics.OutcomeSkipped).Add(float64(len(batch) - 1))
	}

	if !known[selected.Author()] {
		first := memory.FirstInteraction(s.agentID, selected.Author(), selected.ID)
		if err := s.memory.Append(ctx, first); err != nil {
			s.logger.Warn().Err(err).Str("author", selected.Author()).Msg("failed to record first interaction")
		}
	}

	if _, err := s.replier.Reply(ctx, selected); err != nil {
		return res, err
	}
	res.Published = true
	return res, nil
}

func (s *Selector) selectOne(ctx context.Context, batch []protocol.Comment) (protocol.Comment, bool) {
	if len(batch) == 1 {
		return batch[0], true
	}
	c, ok, err := s.ranker.Rank(ctx, batch)
	if err != nil {
		s.logger.Warn().Err(err).Msg("ranking failed, skipping batch")
		return protocol.Comment{}, false
	}
	return c, ok
}
