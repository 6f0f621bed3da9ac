package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"inbox-service/internal/apperrors"
	"inbox-service/internal/auth"
	"inbox-service/internal/models"
	"inbox-service/internal/observability"
)

// Authenticator resolves the session token a client connects with.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Profile, error)
}

// InboxWebSocketHandler accepts inbox connections for authenticated users.
type InboxWebSocketHandler struct {
	hub      *Hub
	auth     Authenticator
	origins  *auth.OriginPolicy
	events   *observability.WSEventEmitter
	log      *slog.Logger
	opts     ClientOptions
	validate *validator.Validate
	upgrader websocket.Upgrader
}

// NewInboxWebSocketHandler constructs an InboxWebSocketHandler. Sockets
// opened with the session cookie must come from an origin the policy allows.
func NewInboxWebSocketHandler(hub *Hub, authenticator Authenticator, origins *auth.OriginPolicy, events *observability.WSEventEmitter, log *slog.Logger, opts ClientOptions) *InboxWebSocketHandler {
	h := &InboxWebSocketHandler{
		hub:      hub,
		auth:     authenticator,
		origins:  origins,
		events:   events,
		log:      log,
		opts:     opts,
		validate: validator.New(),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

// checkOrigin lets token-authenticated clients connect from any page.
func (h *InboxWebSocketHandler) checkOrigin(r *http.Request) bool {
	_, source := auth.TokenFromRequest(r)
	return h.origins.CheckHandshake(r, source) == nil
}

// Handle authenticates, upgrades and registers the connection.
func (h *InboxWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("inbox-service/ws").Start(c.Request.Context(), "ws.handshake", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	token, source := auth.TokenFromRequest(c.Request)
	if err := h.origins.CheckHandshake(c.Request, source); err != nil {
		h.log.Warn("websocket origin rejected", "origin", c.GetHeader("Origin"))
		c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	profile, err := h.auth.Authenticate(ctx, token)
	if err != nil {
		status := apperrors.HTTPStatus(err)
		if status == http.StatusInternalServerError {
			h.log.Error("websocket authentication failed", "error", err)
			c.JSON(status, gin.H{"error": "authentication failed"})
			return
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	span.SetAttributes(attribute.Int64("user.id", profile.ID))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "user_id", profile.ID, "error", err)
		return
	}

	info := newConnInfo(c, profile.ID, span.SpanContext().TraceID().String())
	client := newClient(conn, info, h.opts, h.log)
	h.hub.Registry().Register(profile.ID, client)
	release := observability.TrackConnection()

	// The request context ends when this handler returns.
	lifetime := context.WithoutCancel(ctx)
	h.events.Emit(lifetime, info.event(observability.WSConnect, ""))
	client.log.Info("websocket connected")

	go client.writePump()
	go h.serve(lifetime, client, release)
}

func (h *InboxWebSocketHandler) serve(ctx context.Context, client *Client, release func()) {
	defer release()

	err := client.readPump(func(data []byte) {
		h.handleInbound(ctx, client, data)
	})

	h.hub.Registry().Unregister(client.UserID(), client)
	_ = client.Close()

	reason := err.Error()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		h.events.Emit(ctx, client.info.event(observability.WSError, reason))
	}
	h.events.Emit(ctx, client.info.event(observability.WSDisconnect, reason))
	client.log.Info("websocket disconnected", "reason", reason)
}

// handleInbound accepts typing signals only. The sender is always the
// connection's own user.
func (h *InboxWebSocketHandler) handleInbound(ctx context.Context, client *Client, data []byte) {
	var event models.InboundEvent
	if err := json.Unmarshal(data, &event); err != nil {
		client.log.Warn("malformed inbound frame", "error", err)
		return
	}
	if err := h.validate.Struct(event); err != nil {
		client.log.Debug("inbound frame ignored", "type", event.Type, "error", err)
		return
	}
	h.hub.DeliverTyping(ctx, event.ReceiverID, client.UserID())
}
