package hub

import (
	"strings"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/teslashibe/go-borp/pkg/protocol"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds client frames; comments are small.
	maxMessageSize = 64 * 1024
)

// Client is a single viewer connection.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte // events, closed by the hub
	direct chan []byte // replies to this client's own frames

	mu   sync.RWMutex
	subs map[string]struct{}
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:     uuid.NewString(),
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		direct: make(chan []byte, 16),
		subs:   make(map[string]struct{}),
	}
}

// Subscribed reports whether the client listens to agentID.
func (c *Client) Subscribed(agentID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subs[agentID]
	return ok
}

func (c *Client) subscribe(agentID string) {
	c.mu.Lock()
	c.subs[agentID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) unsubscribe(agentID string) {
	c.mu.Lock()
	delete(c.subs, agentID)
	c.mu.Unlock()
}

func (c *Client) run() {
	go c.writePump()
	c.readPump()
}

// readPump handles control frames until the connection closes.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		c.reply(protocol.TypeError, err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypeSubscribe:
		for _, id := range splitAgents(msg.AgentID) {
			c.subscribe(id)
		}
	case protocol.TypeUnsubscribe:
		for _, id := range splitAgents(msg.AgentID) {
			c.unsubscribe(id)
		}
	case protocol.TypePing:
		c.reply(protocol.TypePong, nil)
	case protocol.TypeNewComment:
		var comment protocol.Comment
		if err := msg.ParseData(&comment); err != nil {
			c.reply(protocol.TypeError, "invalid comment: "+err.Error())
			return
		}
		if comment.AgentID == "" {
			comment.AgentID = msg.AgentID
		}
		if err := c.hub.handleComment(comment); err != nil {
			c.reply(protocol.TypeError, err.Error())
		}
	default:
		c.reply(protocol.TypeError, "unsupported message type "+string(msg.Type))
	}
}

// reply queues a direct answer to this client.
func (c *Client) reply(t protocol.MessageType, data any) {
	msg, err := protocol.NewMessage(t, data)
	if err != nil {
		return
	}
	raw, err := msg.Bytes()
	if err != nil {
		return
	}
	select {
	case c.direct <- raw:
	default:
	}
}

// writePump is the only writer on the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case message := <-c.direct:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// splitAgents accepts "a1" or "a1,a2".
func splitAgents(s string) []string {
	var out []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
