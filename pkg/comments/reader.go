package comments

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultFetchLimit caps one unread-comments page.
const DefaultFetchLimit = 15

// Reader is the read-chat-and-reply task body: fetch, process, advance.
type Reader struct {
	agentID  string
	store    Store
	selector *Selector
	limit    int
	now      func() time.Time
	logger   zerolog.Logger

	mu            sync.Mutex
	lastProcessed time.Time
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithLimit sets the fetch page size.
func WithLimit(n int) ReaderOption {
	return func(r *Reader) { r.limit = n }
}

// WithSince sets the initial lower bound for fetched comments. The default
// is construction time, so chat from before startup is never answered.
func WithSince(t time.Time) ReaderOption {
	return func(r *Reader) { r.lastProcessed = t }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) ReaderOption {
	return func(r *Reader) { r.now = now }
}

// WithReaderLogger sets the structured logger.
func WithReaderLogger(l zerolog.Logger) ReaderOption {
	return func(r *Reader) { r.logger = l }
}

// NewReader creates a reader feeding selector.
func NewReader(agentID string, store Store, selector *Selector, opts ...ReaderOption) *Reader {
	r := &Reader{
		agentID:  agentID,
		store:    store,
		selector: selector,
		limit:    DefaultFetchLimit,
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.lastProcessed.IsZero() {
		r.lastProcessed = r.now()
	}
	r.logger = r.logger.With().Str("component", "comments.reader").Str("agent_id", agentID).Logger()
	return r
}

// LastProcessed returns the current fetch lower bound.
func (r *Reader) LastProcessed() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastProcessed
}

// ReadAndReply runs one cycle. A failed fetch leaves the lower bound alone
// so the next cycle retries the same window. After a fetched batch the bound
// moves to when this fetch started, even if the reply failed, because the
// batch is already marked read.
func (r *Reader) ReadAndReply(ctx context.Context) (Result, error) {
	start := r.now()
	since := r.LastProcessed()

	batch, err := r.store.FetchUnread(ctx, r.agentID, since, r.limit)
	if err != nil {
		r.logger.Error().Err(err).Time("since", since).Msg("failed to fetch unread comments")
		return Result{}, err
	}

	res, err := r.selector.Process(ctx, batch)

	r.mu.Lock()
	r.lastProcessed = start
	r.mu.Unlock()

	if err != nil {
		r.logger.Error().Err(err).Str("comment_id", res.SelectedID).Msg("reply failed")
		return res, err
	}
	if res.Fetched > 0 {
		r.logger.Info().Int("fetched", res.Fetched).Int("marked", res.Marked).
			Str("selected", res.SelectedID).Bool("published", res.Published).Msg("processed comments")
	}
	return res, nil
}
