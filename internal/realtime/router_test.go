package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dm-service/internal/model"
)

type failingTransport struct{}

func (failingTransport) Publish(context.Context, []byte) error { return errors.New("broker down") }
func (failingTransport) Subscribe(context.Context) (<-chan []byte, error) {
	return nil, errors.New("broker down")
}

func startRouter(t *testing.T) (*Router, *Registry, context.CancelFunc) {
	t.Helper()

	registry := NewRegistry()
	router := NewRouter(registry, NewInProcTransport(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go router.Run(ctx)
	return router, registry, cancel
}

func joinedConn(t *testing.T, registry *Registry, connID, userID string, rooms ...string) *Connection {
	t.Helper()

	conn := registry.Register(connID)
	require.NoError(t, registry.Authenticate(connID, userID))
	for _, room := range rooms {
		require.NoError(t, registry.Join(connID, room))
	}
	return conn
}

func receiveEvent(t *testing.T, conn *Connection) model.Event {
	t.Helper()

	select {
	case payload := <-conn.Send():
		var evt model.Event
		require.NoError(t, json.Unmarshal(payload, &evt))
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return model.Event{}
	}
}

func assertNoEvent(t *testing.T, conn *Connection) {
	t.Helper()

	select {
	case payload := <-conn.Send():
		t.Fatalf("unexpected event: %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRouterPreservesPublishOrder(t *testing.T) {
	router, registry, cancel := startRouter(t)
	defer cancel()

	conn := joinedConn(t, registry, "conn-1", "user-1", "chat-42")

	ctx := context.Background()
	for i, content := range []string{"first", "second", "third"} {
		evt := model.Event{Type: model.EventMessageNew, ChatID: "42", MessageID: string(rune('a' + i)), Content: content}
		require.NoError(t, router.Broadcast(ctx, "chat-42", evt))
	}

	assert.Equal(t, "first", receiveEvent(t, conn).Content)
	assert.Equal(t, "second", receiveEvent(t, conn).Content)
	assert.Equal(t, "third", receiveEvent(t, conn).Content)
}

func TestRouterNonMemberNeverReceives(t *testing.T) {
	router, registry, cancel := startRouter(t)
	defer cancel()

	member := joinedConn(t, registry, "conn-a", "user-a", "chat-42")
	outsider := joinedConn(t, registry, "conn-c", "user-c")

	evt := model.Event{Type: model.EventMessageNew, ChatID: "42", Content: "hello"}
	require.NoError(t, router.Broadcast(context.Background(), "chat-42", evt))

	assert.Equal(t, "hello", receiveEvent(t, member).Content)
	assertNoEvent(t, outsider)

	// Joining after the publish does not replay it.
	require.NoError(t, registry.Join("conn-c", "chat-42"))
	assertNoEvent(t, outsider)
}

func TestRouterEmptyRoomIsNoOp(t *testing.T) {
	router, _, cancel := startRouter(t)
	defer cancel()

	evt := model.Event{Type: model.EventMessageNew, Content: "into the void"}
	assert.NoError(t, router.Broadcast(context.Background(), "chat-empty", evt))
}

func TestRouterBroadcastExceptSkipsSender(t *testing.T) {
	router, registry, cancel := startRouter(t)
	defer cancel()

	sender := joinedConn(t, registry, "conn-a", "user-a", "chat-42")
	peer := joinedConn(t, registry, "conn-b", "user-b", "chat-42")

	evt := model.Event{Type: model.EventUserTyping, ChatID: "42", UserID: "user-a", IsTyping: true}
	require.NoError(t, router.BroadcastExcept(context.Background(), "chat-42", "conn-a", evt))

	received := receiveEvent(t, peer)
	assert.Equal(t, model.EventUserTyping, received.Type)
	assert.True(t, received.IsTyping)
	assertNoEvent(t, sender)
}

func TestRouterFallsBackToLocalDeliveryWhenTransportDown(t *testing.T) {
	registry := NewRegistry()
	router := NewRouter(registry, failingTransport{}, zap.NewNop())

	conn := joinedConn(t, registry, "conn-1", "user-1", "chat-42")

	evt := model.Event{Type: model.EventMessageNew, ChatID: "42", Content: "still delivered"}
	require.NoError(t, router.Broadcast(context.Background(), "chat-42", evt))

	assert.Equal(t, "still delivered", receiveEvent(t, conn).Content)
}

func TestRouterSendTo(t *testing.T) {
	registry := NewRegistry()
	router := NewRouter(registry, NewInProcTransport(), zap.NewNop())
	conn := registry.Register("conn-1")

	router.SendTo(conn, model.OnlineUsersEvent([]string{"user-1", "user-2"}))

	evt := receiveEvent(t, conn)
	assert.Equal(t, model.EventOnlineUsers, evt.Type)
	assert.Equal(t, []string{"user-1", "user-2"}, evt.UserIDs)
}
