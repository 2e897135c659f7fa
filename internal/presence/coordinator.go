package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"dm-service/internal/model"
)

// Broadcaster publishes an event to every member of a room. Implemented
// by the realtime router; narrowed here to keep the dependency one-way.
type Broadcaster interface {
	Broadcast(ctx context.Context, roomID string, evt model.Event) error
}

// Coordinator reconciles heartbeat and disconnect signals with the
// presence store and pushes the full online set to the presence room
// whenever the observable set changes. Clients only ever see the binary
// online/offline derived from that set.
type Coordinator struct {
	store         Store
	router        Broadcaster
	logger        *zap.Logger
	sweepInterval time.Duration

	mu        sync.Mutex
	published []string // last broadcast set, sorted
}

func NewCoordinator(store Store, router Broadcaster, sweepInterval time.Duration, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		store:         store,
		router:        router,
		logger:        logger,
		sweepInterval: sweepInterval,
	}
}

// HandleHeartbeat refreshes the user's presence entry. A store failure
// is returned for logging but must not tear down the connection: the
// user simply goes stale once the TTL lapses, which is the fail-safe.
func (c *Coordinator) HandleHeartbeat(ctx context.Context, userID string) error {
	if err := c.store.Heartbeat(ctx, userID); err != nil {
		return err
	}
	c.publishIfChanged(ctx)
	return nil
}

// HandleDisconnect removes the user's entry. Callers invoke this only
// when the user's last connection on this process has closed; with
// other connections still open elsewhere the next heartbeat simply
// recreates the entry before anyone observes the gap.
func (c *Coordinator) HandleDisconnect(ctx context.Context, userID string) error {
	if err := c.store.MarkOffline(ctx, userID); err != nil {
		return err
	}
	c.publishIfChanged(ctx)
	return nil
}

// ListOnline returns the current online set, TTL filter applied.
func (c *Coordinator) ListOnline(ctx context.Context) ([]string, error) {
	return c.store.ListOnline(ctx)
}

// Run sweeps periodically so TTL expiries surface as broadcasts even
// when no other presence event triggers one. Blocks until ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.publishIfChanged(ctx)
		}
	}
}

func (c *Coordinator) publishIfChanged(ctx context.Context) {
	online, err := c.store.ListOnline(ctx)
	if err != nil {
		c.logger.Warn("presence store unreachable, skipping broadcast", zap.Error(err))
		return
	}
	sort.Strings(online)

	c.mu.Lock()
	if equalSets(c.published, online) {
		c.mu.Unlock()
		return
	}
	c.published = online
	c.mu.Unlock()

	if err := c.router.Broadcast(ctx, model.PresenceRoom, model.OnlineUsersEvent(online)); err != nil {
		c.logger.Warn("failed to broadcast online set", zap.Error(err))
	}
}

func equalSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
