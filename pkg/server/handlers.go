package server

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-borp/pkg/metrics"
	"github.com/teslashibe/go-borp/pkg/protocol"
)

const defaultUnreadLimit = 15

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
		"time":    s.config.Clock().UTC(),
	})
}

// handleAIResponse fans an agent response out to viewers. An out-of-vocabulary
// animation is dropped; the response itself is still delivered.
func (s *Server) handleAIResponse(c *fiber.Ctx) error {
	var resp protocol.AIResponse
	if err := c.BodyParser(&resp); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json body")
	}
	if err := resp.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if resp.Animation != "" {
		label, err := s.config.Vocabulary.Lookup(resp.Animation)
		if err != nil {
			metrics.AnimationRejected.WithLabelValues("server").Inc()
			s.logger.Warn().Str("agent_id", resp.AgentID).Str("animation", resp.Animation).
				Msg("dropping unknown animation from response")
			label = ""
		}
		resp.Animation = label
	}
	if err := s.hub.Publish(resp.AgentID, protocol.EventAIResponse, resp); err != nil {
		return err
	}
	return c.JSON(protocol.SuccessResponse{Success: true})
}

func (s *Server) handleUpdateAnimation(c *fiber.Ctx) error {
	var upd protocol.AnimationUpdate
	if err := c.BodyParser(&upd); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json body")
	}
	if upd.AgentID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "agentId is required")
	}
	label, err := s.config.Vocabulary.Lookup(upd.Animation)
	if err != nil {
		metrics.AnimationRejected.WithLabelValues("server").Inc()
		return fiber.NewError(fiber.StatusBadRequest, "invalid animation")
	}
	upd.Animation = label
	if err := s.hub.Publish(upd.AgentID, protocol.EventUpdateAnimation, upd); err != nil {
		return err
	}
	return c.JSON(protocol.SuccessResponse{Success: true})
}

func (s *Server) handleUnreadComments(c *fiber.Ctx) error {
	agentID := c.Params("agentId")
	now := s.config.Clock()

	var since time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "since must be RFC3339")
		}
		since = t
	}
	if w := s.config.UnreadWindow; w > 0 {
		if floor := now.Add(-w); since.Before(floor) {
			since = floor
		}
	}

	limit := defaultUnreadLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	list, more := s.comments.Unread(agentID, since, limit)
	return c.JSON(protocol.UnreadCommentsResponse{
		Comments: list,
		Metadata: protocol.CommentMetadata{Count: len(list), Since: since.UTC(), HasMore: more},
	})
}

func (s *Server) handleMarkRead(c *fiber.Ctx) error {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json body")
	}
	raw := bytes.TrimSpace(body["commentIds"])
	if len(raw) == 0 || raw[0] != '[' {
		return fiber.NewError(fiber.StatusBadRequest, "commentIds must be an array")
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "commentIds must be an array of strings")
	}
	n := s.comments.MarkRead(ids)
	return c.JSON(protocol.MarkReadResponse{Success: true, ModifiedCount: n})
}

// handleUploadAudio stores a raw audio/mpeg body under a fresh name.
func (s *Server) handleUploadAudio(c *fiber.Ctx) error {
	ct := strings.TrimSpace(strings.SplitN(c.Get(fiber.HeaderContentType), ";", 2)[0])
	if !strings.EqualFold(ct, "audio/mpeg") {
		return fiber.NewError(fiber.StatusBadRequest, "only audio/mpeg uploads are accepted")
	}
	body := c.Body()
	if len(body) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "empty upload")
	}
	name := uuid.NewString() + ".mp3"
	if err := os.WriteFile(filepath.Join(s.config.UploadDir, name), body, 0o644); err != nil {
		return err
	}
	s.logger.Debug().Str("file", name).Int("bytes", len(body)).Msg("stored audio upload")
	return c.JSON(protocol.UploadResponse{Message: "File uploaded successfully", URL: s.uploadURL(name)})
}

// handleNewComment ingests a viewer comment over HTTP.
func (s *Server) handleNewComment(c *fiber.Ctx) error {
	var cm protocol.Comment
	if err := c.BodyParser(&cm); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json body")
	}
	if cm.ID == "" {
		cm.ID = uuid.NewString()
	}
	added, err := s.addComment(cm)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	status := fiber.StatusOK
	if added {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"success": true, "id": cm.ID, "created": added})
}

// ingest is the hub's new_comment handler.
func (s *Server) ingest(cm protocol.Comment) error {
	if cm.ID == "" {
		cm.ID = uuid.NewString()
	}
	_, err := s.addComment(cm)
	return err
}

func (s *Server) addComment(cm protocol.Comment) (bool, error) {
	if cm.CreatedAt.IsZero() {
		cm.CreatedAt = s.config.Clock().UTC()
	}
	cm.ReadByAgent = false
	if err := cm.Validate(); err != nil {
		return false, err
	}
	if !s.comments.Add(cm) {
		return false, nil
	}
	if err := s.hub.Publish(cm.AgentID, protocol.EventCommentReceived, cm); err != nil {
		s.logger.Warn().Err(err).Str("comment_id", cm.ID).Msg("comment fan-out failed")
	}
	return true, nil
}

func (s *Server) handleUpdateScene(c *fiber.Ctx) error {
	var st protocol.StreamingStatus
	if err := c.BodyParser(&st); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json body")
	}
	st.AgentID = c.Params("agentId")
	if st.LastHeartbeat.IsZero() {
		st.LastHeartbeat = s.config.Clock().UTC()
	}
	s.scenes.Put(st)
	return c.JSON(protocol.SuccessResponse{Success: true})
}

func (s *Server) handleListScenes(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"scenes": s.scenes.List()})
}
