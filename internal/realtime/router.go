package realtime

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"dm-service/internal/model"
)

// envelope wraps one room event for the broadcast transport. Exclude
// names a connection id to skip on delivery (typing relays never echo
// to their sender); it only ever matches on the publishing process.
type envelope struct {
	Room    string      `json:"room"`
	Exclude string      `json:"exclude,omitempty"`
	Event   model.Event `json:"event"`
}

// Router fans room events out to every joined connection, local and
// remote. Publishing goes through the transport so every process (the
// publisher included) delivers from the same ordered stream; only if
// the transport is down does the router fall back to direct local
// delivery, so a broker outage never blocks already-joined local
// connections.
type Router struct {
	registry  *Registry
	transport Transport
	logger    *zap.Logger
}

func NewRouter(registry *Registry, transport Transport, logger *zap.Logger) *Router {
	return &Router{
		registry:  registry,
		transport: transport,
		logger:    logger,
	}
}

// Broadcast delivers evt to every connection currently joined to
// roomID. Broadcasting to an empty room is a successful no-op.
func (r *Router) Broadcast(ctx context.Context, roomID string, evt model.Event) error {
	return r.publish(ctx, envelope{Room: roomID, Event: evt})
}

// BroadcastExcept is Broadcast minus one connection, the sender.
func (r *Router) BroadcastExcept(ctx context.Context, roomID, excludeConnID string, evt model.Event) error {
	return r.publish(ctx, envelope{Room: roomID, Exclude: excludeConnID, Event: evt})
}

func (r *Router) publish(ctx context.Context, env envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}

	if err := r.transport.Publish(ctx, payload); err != nil {
		r.logger.Warn("broadcast transport unavailable, delivering locally only",
			zap.String("room", env.Room),
			zap.Error(err))
		r.deliver(env)
		return nil
	}
	eventsPublished.Inc()
	return nil
}

// Run drains the transport subscription and delivers to local members.
// A single goroutine consumes the stream, so events for a room reach
// each connection's send queue in publish order. Blocks until ctx is
// done or the subscription closes.
func (r *Router) Run(ctx context.Context) error {
	ch, err := r.transport.Subscribe(ctx)
	if err != nil {
		return err
	}

	for payload := range ch {
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			r.logger.Warn("dropping malformed broadcast payload", zap.Error(err))
			continue
		}
		r.deliver(env)
	}
	return nil
}

func (r *Router) deliver(env envelope) {
	members := r.registry.Members(env.Room)
	if len(members) == 0 {
		return
	}

	payload, err := json.Marshal(env.Event)
	if err != nil {
		r.logger.Error("failed to marshal event for delivery", zap.Error(err))
		return
	}

	delivered := 0
	for _, conn := range members {
		if conn.ID == env.Exclude {
			continue
		}
		if conn.trySend(payload) {
			delivered++
		} else {
			r.logger.Warn("dropping slow connection",
				zap.String("connId", conn.ID),
				zap.String("room", env.Room))
		}
	}
	eventsDelivered.Add(float64(delivered))
}

// SendTo delivers an event to a single local connection, outside any
// room. Used for the post-authenticate online-set snapshot.
func (r *Router) SendTo(conn *Connection, evt model.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		r.logger.Error("failed to marshal event", zap.Error(err))
		return
	}
	conn.trySend(payload)
}
