package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"inbox-service/internal/models"
	"inbox-service/internal/observability"
)

// Relay forwards deliveries to every service instance. Each instance hands
// what it receives back to Hub.DeliverLocal.
type Relay interface {
	Publish(ctx context.Context, recipient int64, event string, payload []byte) error
}

// Hub fans events out to the live connections of a user.
type Hub struct {
	registry *Registry
	relay    Relay
	log      *slog.Logger
}

// NewHub creates a hub over registry. relay may be nil for single-node mode.
func NewHub(registry *Registry, relay Relay, log *slog.Logger) *Hub {
	return &Hub{registry: registry, relay: relay, log: log}
}

// Registry returns the connections the hub delivers to.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// DeliverNewMessage pushes a new_message event to every connection of recipient.
func (h *Hub) DeliverNewMessage(ctx context.Context, recipient int64, payload models.NewMessagePayload) {
	h.deliver(ctx, recipient, models.InboxEvent{Type: models.EventNewMessage, Message: &payload})
}

// DeliverTyping pushes a typing event from senderID to every connection of recipient.
func (h *Hub) DeliverTyping(ctx context.Context, recipient, senderID int64) {
	h.deliver(ctx, recipient, models.InboxEvent{Type: models.EventTyping, SenderID: senderID})
}

func (h *Hub) deliver(ctx context.Context, recipient int64, event models.InboxEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("encode inbox event", "event", event.Type, "error", err)
		return
	}

	if h.relay != nil {
		err := h.relay.Publish(ctx, recipient, event.Type, data)
		if err == nil {
			return
		}
		h.log.Warn("relay publish failed, delivering locally", "recipient", recipient, "event", event.Type, "error", err)
	}
	h.DeliverLocal(recipient, event.Type, data)
}

// DeliverLocal writes data to the recipient's connections on this instance
// and returns how many accepted it. A failing connection is closed and
// unregistered; the others are still served.
func (h *Hub) DeliverLocal(recipient int64, event string, data []byte) int {
	conns := h.registry.ConnectionsFor(recipient)
	if len(conns) == 0 {
		observability.ObserveDelivery(event, "dropped")
		h.log.Debug("no live connection, event dropped", "recipient", recipient, "event", event)
		return 0
	}

	delivered := 0
	for _, conn := range conns {
		if err := conn.Send(data); err != nil {
			observability.ObserveDelivery(event, "failed")
			h.log.Warn("websocket push failed", "recipient", recipient, "conn_id", conn.ID(), "event", event, "error", err)
			h.registry.Unregister(recipient, conn)
			_ = conn.Close()
			continue
		}
		observability.ObserveDelivery(event, "ok")
		delivered++
	}
	return delivered
}
