package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAuthenticateOnce(t *testing.T) {
	registry := NewRegistry()
	registry.Register("conn-1")

	require.NoError(t, registry.Authenticate("conn-1", "user-1"))
	assert.Equal(t, "user-1", registry.UserID("conn-1"))

	err := registry.Authenticate("conn-1", "user-2")
	assert.ErrorIs(t, err, ErrAlreadyAuthenticated)
	assert.Equal(t, "user-1", registry.UserID("conn-1"))
}

func TestRegistryAuthenticateValidation(t *testing.T) {
	registry := NewRegistry()
	registry.Register("conn-1")

	assert.ErrorIs(t, registry.Authenticate("conn-1", ""), ErrInvalidUserID)
	assert.ErrorIs(t, registry.Authenticate("ghost", "user-1"), ErrUnknownConnection)
}

func TestRegistryJoinRequiresAuth(t *testing.T) {
	registry := NewRegistry()
	registry.Register("conn-1")

	assert.ErrorIs(t, registry.Join("conn-1", "chat-42"), ErrNotAuthenticated)

	require.NoError(t, registry.Authenticate("conn-1", "user-1"))
	require.NoError(t, registry.Join("conn-1", "chat-42"))
	assert.Len(t, registry.Members("chat-42"), 1)
}

func TestRegistryJoinIdempotent(t *testing.T) {
	registry := NewRegistry()
	registry.Register("conn-1")
	require.NoError(t, registry.Authenticate("conn-1", "user-1"))

	require.NoError(t, registry.Join("conn-1", "chat-42"))
	require.NoError(t, registry.Join("conn-1", "chat-42"))

	assert.Len(t, registry.Members("chat-42"), 1)
}

func TestRegistryLeave(t *testing.T) {
	registry := NewRegistry()
	registry.Register("conn-1")
	require.NoError(t, registry.Authenticate("conn-1", "user-1"))
	require.NoError(t, registry.Join("conn-1", "chat-42"))

	registry.Leave("conn-1", "chat-42")
	assert.Empty(t, registry.Members("chat-42"))

	// Leaving a room never joined is a no-op.
	registry.Leave("conn-1", "chat-42")
	registry.Leave("ghost", "chat-42")
}

func TestRegistryUnregisterReportsLastConnection(t *testing.T) {
	registry := NewRegistry()

	// Two tabs, same user.
	registry.Register("tab-1")
	registry.Register("tab-2")
	require.NoError(t, registry.Authenticate("tab-1", "user-1"))
	require.NoError(t, registry.Authenticate("tab-2", "user-1"))
	assert.Equal(t, 2, registry.ConnCount("user-1"))

	userID, last := registry.Unregister("tab-1")
	assert.Equal(t, "user-1", userID)
	assert.False(t, last)
	assert.Equal(t, 1, registry.ConnCount("user-1"))

	userID, last = registry.Unregister("tab-2")
	assert.Equal(t, "user-1", userID)
	assert.True(t, last)
	assert.Zero(t, registry.ConnCount("user-1"))
}

func TestRegistryUnregisterUnauthenticated(t *testing.T) {
	registry := NewRegistry()
	registry.Register("conn-1")

	userID, last := registry.Unregister("conn-1")
	assert.Empty(t, userID)
	assert.False(t, last)

	userID, last = registry.Unregister("conn-1")
	assert.Empty(t, userID)
	assert.False(t, last)
}

func TestRegistryUnregisterLeavesAllRooms(t *testing.T) {
	registry := NewRegistry()
	registry.Register("conn-1")
	require.NoError(t, registry.Authenticate("conn-1", "user-1"))
	require.NoError(t, registry.Join("conn-1", "chat-1"))
	require.NoError(t, registry.Join("conn-1", "chat-2"))

	registry.Unregister("conn-1")

	assert.Empty(t, registry.Members("chat-1"))
	assert.Empty(t, registry.Members("chat-2"))
}

func TestConnectionDropOnFullBuffer(t *testing.T) {
	conn := newConnection("conn-1")

	payload := []byte("x")
	for i := 0; i < sendBufferSize; i++ {
		require.True(t, conn.trySend(payload))
	}

	// Buffer full: the connection is dropped rather than reordering by
	// skipping events.
	assert.False(t, conn.trySend(payload))
	select {
	case <-conn.Closed():
	default:
		t.Fatal("expected connection to be closed")
	}
	assert.False(t, conn.trySend(payload))
}
