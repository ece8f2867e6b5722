// Package memory keeps the agent's continuity record: one entry per chat
// comment it has seen, per reply it gave, per thought it had, and a marker
// the first time it talks with someone.
package memory

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a context record.
type Kind string

const (
	KindComment          Kind = "comment"
	KindReply            Kind = "reply"
	KindThought          Kind = "thought"
	KindFirstInteraction Kind = "first_interaction"
)

// recordNamespace seeds deterministic record ids.
var recordNamespace = uuid.MustParse("6f1c1f9e-8d4e-4f0a-9a55-3b7b1c2e9d10")

// Record is one append-only context entry.
type Record struct {
	ID        string            `json:"id"`
	AgentID   string            `json:"agentId"`
	Kind      Kind              `json:"kind"`
	Author    string            `json:"author,omitempty"`
	Text      string            `json:"text"`
	CommentID string            `json:"commentId,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewRecord builds a record. Records tied to a comment get an id derived
// from agent, kind and comment so appending the same one twice is a no-op.
func NewRecord(agentID string, kind Kind, author, text, commentID string) Record {
	id := uuid.NewString()
	if commentID != "" {
		id = uuid.NewSHA1(recordNamespace, []byte(agentID+"\x00"+string(kind)+"\x00"+commentID)).String()
	}
	return Record{
		ID:        id,
		AgentID:   agentID,
		Kind:      kind,
		Author:    author,
		Text:      text,
		CommentID: commentID,
		CreatedAt: time.Now().UTC(),
	}
}

// FirstInteraction returns the marker written the first time author speaks to the agent.
func FirstInteraction(agentID, author, commentID string) Record {
	return NewRecord(agentID, KindFirstInteraction, author, "My name is "+author, commentID)
}

// normalizeAuthor makes author lookups case-insensitive.
func normalizeAuthor(author string) string {
	return strings.ToLower(strings.TrimSpace(author))
}
