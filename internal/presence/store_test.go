package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreHeartbeatIdempotent(t *testing.T) {
	store := NewMemoryStore(60 * time.Second)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Heartbeat(ctx, "user-1"))
	}

	online, err := store.ListOnline(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1"}, online)
}

func TestMemoryStoreTTLFilter(t *testing.T) {
	store := NewMemoryStore(60 * time.Second)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := base
	store.SetClock(func() time.Time { return now })

	require.NoError(t, store.Heartbeat(ctx, "fresh"))
	require.NoError(t, store.Heartbeat(ctx, "stale"))

	// Refresh one user, then move past the other's TTL.
	now = base.Add(40 * time.Second)
	require.NoError(t, store.Heartbeat(ctx, "fresh"))

	now = base.Add(70 * time.Second)
	online, err := store.ListOnline(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, online)
}

func TestMemoryStoreEntryAtExactTTLStillOnline(t *testing.T) {
	store := NewMemoryStore(60 * time.Second)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := base
	store.SetClock(func() time.Time { return now })

	require.NoError(t, store.Heartbeat(ctx, "user-1"))

	now = base.Add(60 * time.Second)
	online, err := store.ListOnline(ctx)
	require.NoError(t, err)
	assert.Contains(t, online, "user-1")

	now = base.Add(60*time.Second + time.Millisecond)
	online, err = store.ListOnline(ctx)
	require.NoError(t, err)
	assert.NotContains(t, online, "user-1")
}

func TestMemoryStoreMarkOffline(t *testing.T) {
	store := NewMemoryStore(60 * time.Second)
	ctx := context.Background()

	require.NoError(t, store.Heartbeat(ctx, "user-1"))
	require.NoError(t, store.Heartbeat(ctx, "user-2"))

	require.NoError(t, store.MarkOffline(ctx, "user-1"))

	online, err := store.ListOnline(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-2"}, online)

	// Offline for an absent user is a no-op.
	require.NoError(t, store.MarkOffline(ctx, "never-seen"))
}

func TestMemoryStoreHeartbeatAfterExpiryComesBack(t *testing.T) {
	store := NewMemoryStore(30 * time.Second)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := base
	store.SetClock(func() time.Time { return now })

	require.NoError(t, store.Heartbeat(ctx, "user-1"))

	now = base.Add(time.Minute)
	online, err := store.ListOnline(ctx)
	require.NoError(t, err)
	assert.Empty(t, online)

	require.NoError(t, store.Heartbeat(ctx, "user-1"))
	online, err = store.ListOnline(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1"}, online)
}
