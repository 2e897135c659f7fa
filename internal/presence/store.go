package presence

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the shared TTL-based presence registry. One entry per user,
// refreshed on every heartbeat, shared across all of the user's
// connections on all processes.
//
// ListOnline must always apply the TTL filter itself: an entry older
// than the TTL is reported absent even if it has not been physically
// purged yet. Purging is lazy and best effort.
type Store interface {
	Heartbeat(ctx context.Context, userID string) error
	MarkOffline(ctx context.Context, userID string) error
	ListOnline(ctx context.Context) ([]string, error)
}

const onlineUsersKey = "presence:online"

// RedisStore keeps presence in a single redis hash: field = userId,
// value = last heartbeat in unix milliseconds. The whole-key expiry is
// refreshed on each heartbeat so an idle deployment leaves nothing
// behind in redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *RedisStore) Heartbeat(ctx context.Context, userID string) error {
	ts := strconv.FormatInt(s.now().UnixMilli(), 10)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, onlineUsersKey, userID, ts)
	pipe.Expire(ctx, onlineUsersKey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence heartbeat failed: %w", err)
	}
	return nil
}

func (s *RedisStore) MarkOffline(ctx context.Context, userID string) error {
	if err := s.client.HDel(ctx, onlineUsersKey, userID).Err(); err != nil {
		return fmt.Errorf("presence mark offline failed: %w", err)
	}
	return nil
}

func (s *RedisStore) ListOnline(ctx context.Context) ([]string, error) {
	entries, err := s.client.HGetAll(ctx, onlineUsersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("presence list failed: %w", err)
	}

	now := s.now()
	online := make([]string, 0, len(entries))
	var stale []string
	for userID, raw := range entries {
		millis, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			stale = append(stale, userID)
			continue
		}
		if now.Sub(time.UnixMilli(millis)) > s.ttl {
			stale = append(stale, userID)
			continue
		}
		online = append(online, userID)
	}

	// Lazy purge; correctness does not depend on it.
	if len(stale) > 0 {
		s.client.HDel(ctx, onlineUsersKey, stale...)
	}

	return online, nil
}

// MemoryStore is an in-process Store for single-node deployments and
// tests. Same TTL semantics as RedisStore.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// SetClock replaces the time source, for tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Heartbeat(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[userID] = s.now()
	return nil
}

func (s *MemoryStore) MarkOffline(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
	return nil
}

func (s *MemoryStore) ListOnline(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	online := make([]string, 0, len(s.entries))
	for userID, beat := range s.entries {
		if now.Sub(beat) > s.ttl {
			delete(s.entries, userID)
			continue
		}
		online = append(online, userID)
	}
	return online, nil
}
