// Package viewer is the audience side: a reconnecting websocket connection,
// the response queue and the scene event loop that presents responses.
package viewer

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/teslashibe/go-borp/internal/retry"
	"github.com/teslashibe/go-borp/pkg/protocol"
)

// ErrNotConnected is returned when sending without a live connection.
var ErrNotConnected = errors.New("viewer: not connected")

// EventHandler receives one event for agentID.
type EventHandler func(agentID string, msg *protocol.Message)

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// WithBackoff sets the reconnect delay range.
func WithBackoff(min, max time.Duration) ConnOption {
	return func(c *Conn) { c.minBackoff, c.maxBackoff = min, max }
}

// WithPingInterval sets the keepalive interval. Zero disables pings.
func WithPingInterval(d time.Duration) ConnOption {
	return func(c *Conn) { c.pingEvery = d }
}

// WithHeader adds headers to the websocket handshake.
func WithHeader(h http.Header) ConnOption {
	return func(c *Conn) { c.header = h }
}

// WithConnLogger sets the logger.
func WithConnLogger(l zerolog.Logger) ConnOption {
	return func(c *Conn) { c.logger = l }
}

// WithOnConnect is called after every successful (re)connect and resubscribe.
func WithOnConnect(fn func()) ConnOption {
	return func(c *Conn) { c.onConnect = fn }
}

// Conn is the viewer's single connection to the collaborator server. It
// reconnects with backoff and restores its subscriptions each time.
type Conn struct {
	url        string
	header     http.Header
	dialer     *websocket.Dialer
	minBackoff time.Duration
	maxBackoff time.Duration
	pingEvery  time.Duration
	logger     zerolog.Logger
	onConnect  func()

	mu       sync.Mutex
	ws       *websocket.Conn
	subs     map[string]struct{}
	handlers map[protocol.EventKind][]EventHandler

	writeMu sync.Mutex
}

// NewConn creates a connection to url (ws:// or wss://). Call Run to connect.
func NewConn(url string, opts ...ConnOption) *Conn {
	c := &Conn{
		url:        url,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
		pingEvery:  30 * time.Second,
		logger:     zerolog.Nop(),
		subs:       make(map[string]struct{}),
		handlers:   make(map[protocol.EventKind][]EventHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle registers fn for events of kind. Register before Run.
func (c *Conn) Handle(kind protocol.EventKind, fn EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[kind] = append(c.handlers[kind], fn)
}

// SetSubscriptions replaces the subscribed agent set. On a live connection
// the difference is sent immediately; otherwise it is applied on connect.
func (c *Conn) SetSubscriptions(agentIDs []string) error {
	next := make(map[string]struct{}, len(agentIDs))
	for _, id := range agentIDs {
		if id != "" {
			next[id] = struct{}{}
		}
	}

	c.mu.Lock()
	var drop, add []string
	for id := range c.subs {
		if _, ok := next[id]; !ok {
			drop = append(drop, id)
		}
	}
	for id := range next {
		if _, ok := c.subs[id]; !ok {
			add = append(add, id)
		}
	}
	c.subs = next
	live := c.ws != nil
	c.mu.Unlock()

	if !live {
		return nil
	}
	sort.Strings(drop)
	sort.Strings(add)
	for _, id := range drop {
		if err := c.send(protocol.NewSubscribe(id, false)); err != nil {
			return err
		}
	}
	for _, id := range add {
		if err := c.send(protocol.NewSubscribe(id, true)); err != nil {
			return err
		}
	}
	return nil
}

// Subscriptions returns the subscribed agent ids, sorted.
func (c *Conn) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscriptionsLocked()
}

func (c *Conn) subscriptionsLocked() []string {
	out := make([]string, 0, len(c.subs))
	for id := range c.subs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SendComment submits a chat comment over the socket.
func (c *Conn) SendComment(cm protocol.Comment) error {
	msg, err := protocol.NewMessage(protocol.TypeNewComment, cm)
	if err != nil {
		return err
	}
	msg.AgentID = cm.AgentID
	return c.send(msg)
}

// Connected reports whether a socket is live.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws != nil
}

func (c *Conn) send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return ws.WriteMessage(websocket.TextMessage, data)
}

// Run connects and dispatches events until ctx is done, reconnecting with
// exponential backoff whenever the socket drops.
func (c *Conn) Run(ctx context.Context) error {
	backoff := retry.NewBackoff(c.minBackoff, c.maxBackoff)
	for {
		ws, _, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err == nil {
			backoff.Reset()
			err = c.serve(ctx, ws)
		}
		if ctx.Err() != nil {
			return nil
		}

		delay := backoff.Next()
		c.logger.Warn().Err(err).Dur("retry_in", delay).Int("attempt", backoff.Attempts()).
			Msg("viewer connection lost")
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// serve runs one connection until it fails or ctx is done.
func (c *Conn) serve(ctx context.Context, ws *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	c.mu.Lock()
	c.ws = ws
	subs := c.subscriptionsLocked()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		ws.Close()
	}()

	for _, id := range subs {
		if err := c.send(protocol.NewSubscribe(id, true)); err != nil {
			return err
		}
	}
	c.logger.Info().Str("url", c.url).Strs("agents", subs).Msg("viewer connected")
	if c.onConnect != nil {
		c.onConnect()
	}

	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if c.pingEvery > 0 {
		go c.keepAlive(pingCtx)
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			c.logger.Debug().Err(err).Msg("ignoring malformed frame")
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Conn) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(c.pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.send(&protocol.Message{Type: protocol.TypePing}); err != nil {
				return
			}
		}
	}
}

func (c *Conn) dispatch(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeEvent:
		agentID, kind, ok := protocol.ParseEventName(msg.Event)
		if !ok {
			c.logger.Debug().Str("event", msg.Event).Msg("unknown event")
			return
		}
		c.mu.Lock()
		hs := c.handlers[kind]
		c.mu.Unlock()
		for _, h := range hs {
			h(agentID, msg)
		}
	case protocol.TypeError:
		c.logger.Warn().Str("data", string(msg.Data)).Msg("server reported an error")
	}
}
