package protocol

import (
	"errors"
	"strings"
	"time"
)

// Comment is a chat message addressed to an agent.
// Everything but ReadByAgent is immutable once stored.
type Comment struct {
	ID          string    `json:"id"`
	AgentID     string    `json:"agentId"`
	User        string    `json:"user"`
	Handle      string    `json:"handle,omitempty"`
	Avatar      string    `json:"avatar,omitempty"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"createdAt"`
	ReadByAgent bool      `json:"readByAgent"`
}

// Author returns the handle, falling back to the display name.
func (c Comment) Author() string {
	if c.Handle != "" {
		return c.Handle
	}
	return c.User
}

// Validate checks the fields required for ingestion.
func (c Comment) Validate() error {
	switch {
	case c.ID == "":
		return errors.New("comment: id is required")
	case c.AgentID == "":
		return errors.New("comment: agentId is required")
	case strings.TrimSpace(c.Message) == "":
		return errors.New("comment: message is required")
	}
	return nil
}

// AIResponse is one agent reaction. The wire shape is flat: optional fields
// are omitted rather than sent as null.
type AIResponse struct {
	ID               string `json:"id"`
	AgentID          string `json:"agentId"`
	Text             string `json:"text"`
	ReplyToUser      string `json:"replyToUser,omitempty"`
	ReplyToMessageID string `json:"replyToMessageId,omitempty"`
	ReplyToMessage   string `json:"replyToMessage,omitempty"`
	ReplyToHandle    string `json:"replyToHandle,omitempty"`
	ReplyToPfp       string `json:"replyToPfp,omitempty"`
	IsGiftResponse   bool   `json:"isGiftResponse,omitempty"`
	GiftID           string `json:"giftId,omitempty"`
	Animation        string `json:"animation,omitempty"`
	AudioURL         string `json:"audioUrl,omitempty"`
	Thought          bool   `json:"thought,omitempty"`
}

// ReplyTo groups the reply context of a response.
type ReplyTo struct {
	User      string
	MessageID string
	Message   string
	Handle    string
	Pfp       string
}

// ReplyTo returns the reply context, or nil for responses that answer nobody.
func (r *AIResponse) ReplyTo() *ReplyTo {
	if r.ReplyToMessageID == "" && r.ReplyToUser == "" && r.ReplyToMessage == "" {
		return nil
	}
	return &ReplyTo{
		User:      r.ReplyToUser,
		MessageID: r.ReplyToMessageID,
		Message:   r.ReplyToMessage,
		Handle:    r.ReplyToHandle,
		Pfp:       r.ReplyToPfp,
	}
}

// SetReplyTo copies the reply context of c onto r.
func (r *AIResponse) SetReplyTo(c Comment) {
	r.ReplyToUser = c.User
	r.ReplyToMessageID = c.ID
	r.ReplyToMessage = c.Message
	r.ReplyToHandle = c.Handle
	r.ReplyToPfp = c.Avatar
}

// HasAudio reports whether the response carries playable speech.
func (r *AIResponse) HasAudio() bool {
	return r.AudioURL != ""
}

// Validate checks the always-present fields.
func (r *AIResponse) Validate() error {
	switch {
	case r.ID == "":
		return errors.New("ai response: id is required")
	case r.AgentID == "":
		return errors.New("ai response: agentId is required")
	case r.Text == "":
		return errors.New("ai response: text is required")
	}
	return nil
}

// AnimationUpdate asks viewers to play a clip on an agent's avatar outside the response queue.
type AnimationUpdate struct {
	AgentID   string `json:"agentId"`
	Animation string `json:"animation"`
}

// UnreadCommentsResponse is returned by GET /api/streams/{agentId}/unread-comments.
type UnreadCommentsResponse struct {
	Comments []Comment       `json:"comments"`
	Metadata CommentMetadata `json:"metadata"`
}

// CommentMetadata describes an unread-comments page.
type CommentMetadata struct {
	Count   int       `json:"count"`
	Since   time.Time `json:"since"`
	HasMore bool      `json:"hasMore"`
}

// MarkReadRequest is the body of POST /api/comments/mark-read.
type MarkReadRequest struct {
	CommentIDs []string `json:"commentIds"`
}

// MarkReadResponse reports how many comments flipped to read.
type MarkReadResponse struct {
	Success       bool `json:"success"`
	ModifiedCount int  `json:"modifiedCount"`
}

// UploadResponse is returned by POST /api/upload/audio.
type UploadResponse struct {
	Message string `json:"message"`
	URL     string `json:"url"`
}

// SuccessResponse is the generic acknowledgement body.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// StreamingStatus is the heartbeat body of PUT /api/scenes/{agentId}.
type StreamingStatus struct {
	AgentID       string      `json:"agentId"`
	IsStreaming   bool        `json:"isStreaming"`
	LastHeartbeat time.Time   `json:"lastHeartbeat"`
	Title         string      `json:"title,omitempty"`
	Description   string      `json:"description,omitempty"`
	ModelName     string      `json:"modelName,omitempty"`
	Identifier    string      `json:"identifier,omitempty"`
	Stats         StreamStats `json:"stats"`
}

// StreamStats are counters reported alongside the heartbeat.
type StreamStats struct {
	Responses  int64 `json:"responses"`
	Thoughts   int64 `json:"thoughts"`
	Animations int64 `json:"animations"`
	Comments   int64 `json:"comments"`
}
