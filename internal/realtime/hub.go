package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dm-service/internal/middleware"
	"dm-service/internal/model"
	"dm-service/internal/presence"
	"dm-service/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192

	opTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub accepts WebSocket connections and drives the registry, router and
// presence coordinator from each connection's event stream. Disconnects
// of any kind, clean or not, run the same unregister path.
type Hub struct {
	registry    *Registry
	router      *Router
	coordinator *presence.Coordinator
	validator   middleware.TokenValidator
	chats       service.ChatService
	messages    service.MessageService
	logger      *zap.Logger
}

func NewHub(
	registry *Registry,
	router *Router,
	coordinator *presence.Coordinator,
	validator middleware.TokenValidator,
	chats service.ChatService,
	messages service.MessageService,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		registry:    registry,
		router:      router,
		coordinator: coordinator,
		validator:   validator,
		chats:       chats,
		messages:    messages,
		logger:      logger,
	}
}

// HandleWebSocket upgrades the request and starts the connection pumps.
// The socket is anonymous until an authenticate event arrives; every
// other event is silently ignored until then.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	socket, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	conn := h.registry.Register(uuid.NewString())
	activeConnections.Inc()
	h.logger.Info("connection opened", zap.String("connId", conn.ID))

	go h.writePump(socket, conn)
	go h.readPump(socket, conn)
}

func (h *Hub) readPump(socket *websocket.Conn, conn *Connection) {
	defer func() {
		socket.Close()
		h.teardown(conn)
	}()

	socket.SetReadLimit(maxMessageSize)
	socket.SetReadDeadline(time.Now().Add(pongWait))
	socket.SetPongHandler(func(string) error {
		socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", zap.String("connId", conn.ID), zap.Error(err))
			}
			return
		}

		var evt model.Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			h.logger.Warn("failed to parse event", zap.String("connId", conn.ID), zap.Error(err))
			continue
		}

		if !h.handleEvent(conn, &evt) {
			return
		}
	}
}

func (h *Hub) writePump(socket *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		socket.Close()
	}()

	for {
		select {
		case payload := <-conn.Send():
			socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := socket.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-conn.Closed():
			socket.SetWriteDeadline(time.Now().Add(writeWait))
			socket.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleEvent dispatches one client event. Returning false closes the
// connection (authentication failures are fatal for the socket).
func (h *Hub) handleEvent(conn *Connection, evt *model.Event) bool {
	if evt.Type == model.EventAuthenticate {
		return h.handleAuthenticate(conn, evt)
	}

	userID := h.registry.UserID(conn.ID)
	if userID == "" {
		// Unauthenticated connections get no feedback, by policy.
		return true
	}

	switch evt.Type {
	case model.EventJoinRoom:
		h.handleJoinRoom(conn, userID, evt.RoomID)
	case model.EventHeartbeat:
		h.handleHeartbeat(userID)
	case model.EventSendMessage:
		h.handleSendMessage(userID, evt)
	case model.EventTyping:
		h.handleTyping(conn, userID, evt)
	default:
		h.logger.Warn("unknown event type", zap.String("type", evt.Type))
	}
	return true
}

func (h *Hub) handleAuthenticate(conn *Connection, evt *model.Event) bool {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	userID, err := h.validator.ValidateToken(ctx, evt.Token)
	if err != nil {
		h.logger.Warn("authentication failed, closing connection",
			zap.String("connId", conn.ID),
			zap.Error(err))
		return false
	}
	// The token is authoritative; a mismatching claimed id is rejected.
	if evt.UserID != "" && evt.UserID != userID.String() {
		h.logger.Warn("claimed user id does not match token, closing connection",
			zap.String("connId", conn.ID))
		return false
	}

	if err := h.registry.Authenticate(conn.ID, userID.String()); err != nil {
		h.logger.Warn("authenticate rejected, closing connection",
			zap.String("connId", conn.ID),
			zap.Error(err))
		return false
	}

	// Every authenticated connection observes presence.
	h.registry.Join(conn.ID, model.PresenceRoom)

	if err := h.coordinator.HandleHeartbeat(ctx, userID.String()); err != nil {
		h.logger.Warn("initial heartbeat failed", zap.Error(err))
	}

	// Snapshot so the client does not wait for the next presence change.
	if online, err := h.coordinator.ListOnline(ctx); err == nil {
		h.router.SendTo(conn, model.OnlineUsersEvent(online))
	}

	h.logger.Info("connection authenticated",
		zap.String("connId", conn.ID),
		zap.String("userId", userID.String()))
	return true
}

func (h *Hub) handleJoinRoom(conn *Connection, userID, roomID string) {
	if roomID == "" {
		return
	}
	if roomID != model.PresenceRoom {
		chatID, err := uuid.Parse(strings.TrimPrefix(roomID, "chat-"))
		if err != nil || !strings.HasPrefix(roomID, "chat-") {
			h.logger.Warn("ignoring join for unknown room", zap.String("roomId", roomID))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		isParticipant, err := h.chats.IsParticipant(ctx, chatID, uuid.MustParse(userID))
		if err != nil || !isParticipant {
			h.logger.Warn("ignoring join for non-participant",
				zap.String("userId", userID),
				zap.String("roomId", roomID),
				zap.Error(err))
			return
		}
	}

	if err := h.registry.Join(conn.ID, roomID); err != nil {
		h.logger.Warn("join failed", zap.String("connId", conn.ID), zap.Error(err))
	}
}

func (h *Hub) handleHeartbeat(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	// A failed heartbeat never disconnects the socket; the user just
	// goes stale for everyone else once the TTL lapses.
	if err := h.coordinator.HandleHeartbeat(ctx, userID); err != nil {
		h.logger.Warn("heartbeat failed", zap.String("userId", userID), zap.Error(err))
	}
}

func (h *Hub) handleSendMessage(userID string, evt *model.Event) {
	chatID, err := uuid.Parse(evt.ChatID)
	if err != nil {
		h.logger.Warn("send-message with invalid chat id", zap.String("chatId", evt.ChatID))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	// Persist before publish; the service fans out message:new itself.
	if _, err := h.messages.CreateMessage(ctx, chatID, uuid.MustParse(userID), evt.Content); err != nil {
		h.logger.Error("failed to create message",
			zap.String("chatId", evt.ChatID),
			zap.String("userId", userID),
			zap.Error(err))
	}
}

func (h *Hub) handleTyping(conn *Connection, userID string, evt *model.Event) {
	chatID, err := uuid.Parse(evt.ChatID)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	relay := model.Event{
		Type:     model.EventUserTyping,
		ChatID:   evt.ChatID,
		UserID:   userID,
		IsTyping: evt.IsTyping,
	}
	if err := h.router.BroadcastExcept(ctx, model.ChatRoom(chatID), conn.ID, relay); err != nil {
		h.logger.Warn("failed to relay typing event", zap.Error(err))
	}
}

// teardown runs exactly once per connection, for every disconnect
// cause. Presence goes offline only when this was the user's last live
// connection on this process.
func (h *Hub) teardown(conn *Connection) {
	userID, lastConn := h.registry.Unregister(conn.ID)
	activeConnections.Dec()

	if userID == "" {
		h.logger.Info("connection closed", zap.String("connId", conn.ID))
		return
	}

	if lastConn {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := h.coordinator.HandleDisconnect(ctx, userID); err != nil {
			h.logger.Warn("failed to mark user offline", zap.String("userId", userID), zap.Error(err))
		}
	}

	h.logger.Info("connection closed",
		zap.String("connId", conn.ID),
		zap.String("userId", userID),
		zap.Bool("lastConnection", lastConn))
}
