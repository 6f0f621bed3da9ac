package observability

import (
	"context"
	"log/slog"
	"time"
)

const (
	WSConnect    = "ws_connect"
	WSDisconnect = "ws_disconnect"
	WSError      = "ws_error"

	wsEventType  = "ws_events"
	wsRoutingKey = "ws_events.inbox"

	// WSKind tags every lifecycle envelope this service publishes.
	WSKind = "inbox"
)

// Publisher is the subset of the AMQP publisher the emitter needs.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// WSEvent describes one websocket lifecycle transition.
type WSEvent struct {
	Name        string
	ConnID      string
	UserID      int64
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
	Reason      string
}

// WSEnvelope is the message published for every lifecycle transition.
type WSEnvelope struct {
	EventType  string    `json:"event_type"`
	EventName  string    `json:"event_name"`
	OccurredAt string    `json:"occurred_at"`
	Payload    WSPayload `json:"payload"`
}

type WSPayload struct {
	WS       WSDetails  `json:"ws"`
	Identity WSIdentity `json:"identity"`
}

type WSDetails struct {
	Kind       string `json:"kind"`
	Event      string `json:"event"`
	ConnID     string `json:"conn_id"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
}

type WSIdentity struct {
	UserID   int64  `json:"user_id"`
	DeviceID string `json:"device_id,omitempty"`
	IP       string `json:"ip,omitempty"`
}

// WSEventEmitter counts lifecycle events and forwards them to the event bus.
type WSEventEmitter struct {
	publisher Publisher
	log       *slog.Logger
}

// NewWSEventEmitter builds an emitter. A nil publisher only records metrics.
func NewWSEventEmitter(publisher Publisher, log *slog.Logger) *WSEventEmitter {
	return &WSEventEmitter{publisher: publisher, log: log}
}

func (e *WSEventEmitter) Emit(ctx context.Context, ev WSEvent) {
	countLifecycle(ev.Name)
	if e == nil || e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, wsRoutingKey, newWSEnvelope(ev, time.Now()), eventHeaders(ev.RequestID, ev.TraceID)); err != nil {
		IncAMQPPublishError()
		if e.log != nil {
			e.log.Warn("ws event publish failed", "event", ev.Name, "conn_id", ev.ConnID, "error", err)
		}
	}
}

func newWSEnvelope(ev WSEvent, now time.Time) WSEnvelope {
	var duration int64
	if ev.Name != WSConnect && !ev.ConnectedAt.IsZero() {
		duration = now.Sub(ev.ConnectedAt).Milliseconds()
	}
	return WSEnvelope{
		EventType:  wsEventType,
		EventName:  ev.Name,
		OccurredAt: now.UTC().Format(time.RFC3339Nano),
		Payload: WSPayload{
			WS: WSDetails{
				Kind:       WSKind,
				Event:      ev.Name,
				ConnID:     ev.ConnID,
				DurationMS: duration,
				Reason:     ev.Reason,
			},
			Identity: WSIdentity{
				UserID:   ev.UserID,
				DeviceID: ev.DeviceID,
				IP:       ev.IP,
			},
		},
	}
}

func eventHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
