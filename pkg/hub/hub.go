// Package hub fans agent events out to subscribed WebSocket viewers using
// the channel-based register/unregister/broadcast loop.
package hub

import (
	"context"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/teslashibe/go-borp/pkg/metrics"
	"github.com/teslashibe/go-borp/pkg/protocol"
)

// envelope is one encoded frame bound for subscribers of agentID.
type envelope struct {
	agentID string
	data    []byte
}

// DefaultQueueSize is how many encoded events may wait for the hub loop.
const DefaultQueueSize = 256

var (
	// ErrOverloaded is returned by Publish when the event queue is full.
	ErrOverloaded = fiber.NewError(fiber.StatusServiceUnavailable, "hub: event queue full")

	// ErrClosed is returned by Publish after Run has returned.
	ErrClosed = fiber.NewError(fiber.StatusServiceUnavailable, "hub: closed")
)

// CommentHandler ingests a comment received over a socket.
type CommentHandler func(c protocol.Comment) error

// Hub maintains the set of active clients and routes events to them.
type Hub struct {
	logger zerolog.Logger

	clients    map[*Client]struct{}
	publish    chan envelope
	register   chan *Client
	unregister chan *Client

	queueSize int

	mu        sync.RWMutex
	count     int
	onComment CommentHandler
	done      chan struct{}
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithQueueSize sets how many events may wait for delivery before Publish
// fails with ErrOverloaded.
func WithQueueSize(n int) Option {
	return func(h *Hub) { h.queueSize = n }
}

// WithCommentHandler sets where new_comment frames go.
func WithCommentHandler(fn CommentHandler) Option {
	return func(h *Hub) { h.onComment = fn }
}

// New creates a hub. Call Run before accepting connections.
func New(opts ...Option) *Hub {
	h := &Hub{
		logger:     zerolog.Nop(),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		queueSize:  DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.publish = make(chan envelope, max(h.queueSize, 1))
	h.logger = h.logger.With().Str("component", "hub").Logger()
	return h
}

// Run is the hub's main loop. It returns when ctx is done, closing every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.setCount(0)
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.setCount(len(h.clients))
			h.logger.Debug().Str("client", c.id).Int("clients", len(h.clients)).Msg("client connected")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.setCount(len(h.clients))
			h.logger.Debug().Str("client", c.id).Int("clients", len(h.clients)).Msg("client disconnected")

		case env := <-h.publish:
			for c := range h.clients {
				if !c.Subscribed(env.agentID) {
					continue
				}
				select {
				case c.send <- env.data:
				default:
					// Too slow; drop the client rather than stall every viewer.
					close(c.send)
					delete(h.clients, c)
					h.logger.Warn().Str("client", c.id).Msg("dropped slow client")
				}
			}
			h.setCount(len(h.clients))
		}
	}
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
	metrics.HubClients.Set(float64(n))
}

// Publish sends an event named {agentID}_{kind} to subscribers of agentID.
func (h *Hub) Publish(agentID string, kind protocol.EventKind, data any) error {
	msg, err := protocol.NewEvent(agentID, kind, data)
	if err != nil {
		return err
	}
	raw, err := msg.Bytes()
	if err != nil {
		return err
	}
	select {
	case <-h.done:
		return ErrClosed
	default:
	}
	select {
	case h.publish <- envelope{agentID: agentID, data: raw}:
		return nil
	default:
		metrics.HubDropped.Inc()
		h.logger.Warn().Str("event", msg.Event).Msg("event queue full, rejecting event")
		return ErrOverloaded
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// RegisterRoutes mounts the viewer socket at /ws.
func (h *Hub) RegisterRoutes(app fiber.Router) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(h.serve))
}

// serve runs one viewer connection until it closes.
func (h *Hub) serve(conn *websocket.Conn) {
	c := newClient(h, conn)
	for _, id := range splitAgents(conn.Query("agentId")) {
		c.subscribe(id)
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	c.run()
}

func (h *Hub) handleComment(c protocol.Comment) error {
	h.mu.RLock()
	fn := h.onComment
	h.mu.RUnlock()
	if fn == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "comment ingestion disabled")
	}
	return fn(c)
}
