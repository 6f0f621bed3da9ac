package telemetry

import (
	"context"
	"log/slog"
	"time"

	"inbox-service/internal/observability"
)

// Audit levels.
const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
)

const (
	auditSchemaVersion = 1
	auditEventType     = "audit_log"
)

// Publisher is the event bus the audit trail is written to.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// AuditEntry is one line of the audit trail.
type AuditEntry struct {
	Level     string
	Text      string
	RequestID string
	UserID    *string
}

// AuditEnvelope is the wire form shared with the other services' audit consumers.
type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// AuditEmitter publishes audit entries. Publishing is best effort.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	log         *slog.Logger
	now         func() time.Time
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, log *slog.Logger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		log:         log,
		now:         time.Now,
	}
}

// Emit publishes entry. A nil emitter does nothing.
func (e *AuditEmitter) Emit(ctx context.Context, entry AuditEntry) {
	if e == nil || e.publisher == nil {
		return
	}
	if entry.Level == "" {
		entry.Level = LevelInfo
	}

	e.log.Debug("audit emit", "level", entry.Level, "request_id", entry.RequestID, "text", entry.Text)
	if err := e.publisher.Publish(ctx, e.routingKey, e.envelope(entry), auditHeaders(entry.RequestID)); err != nil {
		observability.IncAMQPPublishError()
		e.log.Warn("audit publish failed", "routing_key", e.routingKey, "error", err)
	}
}

func (e *AuditEmitter) envelope(entry AuditEntry) AuditEnvelope {
	return AuditEnvelope{
		SchemaVersion: auditSchemaVersion,
		EventType:     auditEventType,
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     entry.RequestID,
		UserID:        entry.UserID,
		Payload:       AuditPayload{Level: entry.Level, Text: entry.Text},
	}
}

func auditHeaders(requestID string) map[string]string {
	if requestID == "" {
		return map[string]string{}
	}
	return map[string]string{"x-request-id": requestID}
}
