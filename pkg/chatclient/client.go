package chatclient

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dm-service/internal/model"
)

// ConnState is the observable connection status.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second

	defaultHeartbeatInterval = 30 * time.Second
	handshakeTimeout         = 10 * time.Second
	clientWriteWait          = 10 * time.Second
)

// Options configures a Client.
type Options struct {
	// URL is the websocket endpoint, e.g. ws://host/api/dm/ws.
	URL    string
	UserID string
	Token  string

	// HeartbeatInterval must stay strictly below the server's presence
	// TTL; half the TTL is the default.
	HeartbeatInterval time.Duration

	// OnEvent receives every server event after the client's own state
	// (presence set, rejoin bookkeeping) has been updated.
	OnEvent func(model.Event)
	// OnState is called on every connection state change.
	OnState func(ConnState)

	Logger *zap.Logger
}

// Client maintains a persistent socket to the chat service. A dropped
// connection is retried indefinitely with capped exponential backoff;
// every successful (re)connect re-authenticates and rejoins all
// previously joined rooms. That is the only recovery path.
type Client struct {
	opts Options

	mu     sync.Mutex
	conn   *websocket.Conn
	rooms  map[string]struct{}
	state  ConnState
	logger *zap.Logger
}

func New(opts Options) *Client {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeatInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		opts:   opts,
		rooms:  make(map[string]struct{}),
		logger: opts.Logger,
	}
}

// Run connects and blocks until ctx is cancelled, reconnecting on
// every failure.
func (c *Client) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		connected, err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = initialBackoff
		}
		c.setState(StateDisconnected)
		c.logger.Warn("connection lost, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// JoinRoom subscribes to a room. The subscription is remembered and
// re-established on every reconnect; joining is idempotent.
func (c *Client) JoinRoom(roomID string) error {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return c.write(model.Event{Type: model.EventJoinRoom, RoomID: roomID})
}

// SendMessage sends a chat message. Confirmation arrives as the
// message:new event fanned back to the chat's room.
func (c *Client) SendMessage(chatID, content string) error {
	return c.write(model.Event{
		Type:    model.EventSendMessage,
		ChatID:  chatID,
		Content: content,
	})
}

// Typing relays a typing indicator; fire-and-forget.
func (c *Client) Typing(chatID string, isTyping bool) error {
	return c.write(model.Event{
		Type:     model.EventTyping,
		ChatID:   chatID,
		IsTyping: isTyping,
	})
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// runOnce handles one connection lifetime. The bool reports whether
// the handshake completed, so the caller knows to reset backoff.
func (c *Client) runOnce(ctx context.Context) (bool, error) {
	c.setState(StateConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.conn = conn
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	if err := c.write(model.Event{
		Type:   model.EventAuthenticate,
		UserID: c.opts.UserID,
		Token:  c.opts.Token,
	}); err != nil {
		return false, err
	}
	for _, room := range rooms {
		if err := c.write(model.Event{Type: model.EventJoinRoom, RoomID: room}); err != nil {
			return false, err
		}
	}

	c.setState(StateConnected)
	c.logger.Info("connected", zap.String("userId", c.opts.UserID))

	hbCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.heartbeatLoop(hbCtx)

	for {
		var evt model.Event
		if err := conn.ReadJSON(&evt); err != nil {
			return true, err
		}
		if c.opts.OnEvent != nil {
			c.opts.OnEvent(evt)
		}
	}
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.write(model.Event{Type: model.EventHeartbeat}); err != nil {
				c.logger.Debug("heartbeat write failed", zap.Error(err))
				return
			}
		}
	}
}

// write serializes all socket writes; gorilla allows one writer at a
// time and heartbeats run on their own goroutine.
func (c *Client) write(evt model.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return websocket.ErrCloseSent
	}
	c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
	return c.conn.WriteJSON(evt)
}

func (c *Client) setState(s ConnState) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	if c.opts.OnState != nil {
		c.opts.OnState(s)
	}
}
