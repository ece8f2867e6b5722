package server

import (
	"sort"
	"sync"
	"time"

	"github.com/teslashibe/go-borp/pkg/protocol"
)

// CommentStore is the in-memory comment inbox of the reference server.
type CommentStore struct {
	mu       sync.RWMutex
	byID     map[string]*protocol.Comment
	byAgent  map[string][]*protocol.Comment // insertion order
	maxAgent int
}

// NewCommentStore creates a store keeping at most maxPerAgent comments per agent.
func NewCommentStore(maxPerAgent int) *CommentStore {
	if maxPerAgent <= 0 {
		maxPerAgent = 10000
	}
	return &CommentStore{
		byID:     make(map[string]*protocol.Comment),
		byAgent:  make(map[string][]*protocol.Comment),
		maxAgent: maxPerAgent,
	}
}

// Add stores c and reports whether it was new. Comment ids are unique.
func (s *CommentStore) Add(c protocol.Comment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[c.ID]; ok {
		return false
	}
	stored := c
	s.byID[c.ID] = &stored

	list := append(s.byAgent[c.AgentID], &stored)
	if len(list) > s.maxAgent {
		for _, old := range list[:len(list)-s.maxAgent] {
			delete(s.byID, old.ID)
		}
		list = append([]*protocol.Comment(nil), list[len(list)-s.maxAgent:]...)
	}
	s.byAgent[c.AgentID] = list
	return true
}

// Unread returns up to limit unread comments for agentID created at or after
// since, oldest first, and whether more remain.
func (s *CommentStore) Unread(agentID string, since time.Time, limit int) ([]protocol.Comment, bool) {
	s.mu.RLock()
	var out []protocol.Comment
	for _, c := range s.byAgent[agentID] {
		if c.ReadByAgent || c.CreatedAt.Before(since) {
			continue
		}
		out = append(out, *c)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	more := false
	if limit > 0 && len(out) > limit {
		out = out[:limit]
		more = true
	}
	if out == nil {
		out = []protocol.Comment{}
	}
	return out, more
}

// MarkRead flips readByAgent on the given comments and returns how many changed.
// The flag only ever goes from false to true.
func (s *CommentStore) MarkRead(ids []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if c, ok := s.byID[id]; ok && !c.ReadByAgent {
			c.ReadByAgent = true
			n++
		}
	}
	return n
}

// Get returns a copy of the comment with id.
func (s *CommentStore) Get(id string) (protocol.Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return protocol.Comment{}, false
	}
	return *c, true
}

// SceneStore keeps the latest streaming-status heartbeat per agent.
type SceneStore struct {
	mu     sync.RWMutex
	scenes map[string]protocol.StreamingStatus
}

// NewSceneStore creates an empty scene store.
func NewSceneStore() *SceneStore {
	return &SceneStore{scenes: make(map[string]protocol.StreamingStatus)}
}

// Put records status.
func (s *SceneStore) Put(status protocol.StreamingStatus) {
	s.mu.Lock()
	s.scenes[status.AgentID] = status
	s.mu.Unlock()
}

// List returns every scene ordered by agent id.
func (s *SceneStore) List() []protocol.StreamingStatus {
	s.mu.RLock()
	out := make([]protocol.StreamingStatus, 0, len(s.scenes))
	for _, st := range s.scenes {
		out = append(out, st)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}
