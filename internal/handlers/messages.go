package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"inbox-service/internal/apperrors"
	"inbox-service/internal/middleware"
	"inbox-service/internal/models"
	"inbox-service/internal/observability"
	"inbox-service/internal/repositories"
	"inbox-service/internal/services"
	"inbox-service/internal/telemetry"
)

// Broadcaster pushes live events to a user's open connections.
type Broadcaster interface {
	DeliverNewMessage(ctx context.Context, recipient int64, payload models.NewMessagePayload)
}

// MessageHandler serves the direct message and inbox endpoints.
type MessageHandler struct {
	messages repositories.MessageRepository
	profiles repositories.ProfileRepository
	inbox    *services.InboxService
	hub      Broadcaster
	audit    *telemetry.AuditEmitter
	log      *slog.Logger
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messages repositories.MessageRepository, profiles repositories.ProfileRepository, inbox *services.InboxService, hub Broadcaster, audit *telemetry.AuditEmitter, log *slog.Logger) *MessageHandler {
	return &MessageHandler{
		messages: messages,
		profiles: profiles,
		inbox:    inbox,
		hub:      hub,
		audit:    audit,
		log:      log,
	}
}

type sendMessageRequest struct {
	ReceiverID int64  `json:"receiver_id" form:"receiver_id" binding:"required,gt=0"`
	Message    string `json:"message" form:"message"`
}

func sendError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"status": "error", "error": msg})
}

// SendMessage persists a message and pushes it to the receiver's connections.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBind(&req); err != nil {
		sendError(c, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		sendError(c, http.StatusBadRequest, repositories.ErrEmptyMessage.Error())
		return
	}

	ctx := c.Request.Context()
	receiver, err := h.profiles.GetProfile(ctx, req.ReceiverID)
	if errors.Is(err, apperrors.ErrNotFound) {
		sendError(c, http.StatusNotFound, repositories.ErrUserNotFound.Error())
		return
	}
	if err != nil {
		h.log.Error("load receiver", "receiver_id", req.ReceiverID, "error", err)
		sendError(c, http.StatusInternalServerError, "failed to send message")
		return
	}

	sender, ok := middleware.ProfileFromContext(c)
	if !ok {
		sendError(c, http.StatusUnauthorized, "missing authorization")
		return
	}

	msg, err := h.messages.Append(ctx, sender.ID, receiver.ID, req.Message)
	if err != nil {
		status := apperrors.HTTPStatus(err)
		if status == http.StatusInternalServerError {
			h.log.Error("persist message", "sender_id", sender.ID, "receiver_id", receiver.ID, "error", err)
			sendError(c, status, "failed to send message")
			return
		}
		sendError(c, status, err.Error())
		return
	}
	observability.IncMessagesSent()

	payload := models.NewMessagePayload{
		SenderID:  sender.ID,
		Sender:    sender.Username,
		Content:   msg.Content,
		Timestamp: msg.Timestamp(),
	}
	h.hub.DeliverNewMessage(ctx, receiver.ID, payload)
	h.audit.Emit(ctx, auditEntry(c, telemetry.LevelInfo, fmt.Sprintf("message %d sent to user %d", msg.ID, receiver.ID)))

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": models.SentMessage{NewMessagePayload: payload, SenderAvatar: sender.AvatarURL},
	})
}

// UnreadSummary returns the unread count and the recent activity list.
func (h *MessageHandler) UnreadSummary(c *gin.Context) {
	activity, err := h.inbox.RecentActivity(c.Request.Context(), c.GetInt64(middleware.UserIDKey))
	if err != nil {
		h.respondError(c, err, "failed to load unread messages")
		return
	}
	c.JSON(http.StatusOK, activity)
}

// Conversations lists the caller's conversations, newest first.
func (h *MessageHandler) Conversations(c *gin.Context) {
	convs, err := h.inbox.ConversationsList(c.Request.Context(), c.GetInt64(middleware.UserIDKey))
	if err != nil {
		h.respondError(c, err, "failed to load conversations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// Thread returns the conversation with one user and marks it read.
func (h *MessageHandler) Thread(c *gin.Context) {
	correspondent, ok := int64Param(c, "user_id", "invalid user id")
	if !ok {
		return
	}
	thread, err := h.inbox.ThreadView(c.Request.Context(), c.GetInt64(middleware.UserIDKey), correspondent)
	if err != nil {
		h.respondError(c, err, "failed to load thread")
		return
	}
	c.JSON(http.StatusOK, thread)
}

// MarkThreadRead marks every message from one user to the caller as read.
func (h *MessageHandler) MarkThreadRead(c *gin.Context) {
	correspondent, ok := int64Param(c, "user_id", "invalid user id")
	if !ok {
		return
	}
	res, err := h.inbox.MarkThreadRead(c.Request.Context(), c.GetInt64(middleware.UserIDKey), correspondent)
	if err != nil {
		h.respondError(c, err, "failed to mark thread read")
		return
	}
	c.JSON(http.StatusOK, res)
}

// ViewMessage returns one message the caller sent or received.
func (h *MessageHandler) ViewMessage(c *gin.Context) {
	messageID, ok := int64Param(c, "message_id", "invalid message id")
	if !ok {
		return
	}
	view, err := h.inbox.ViewMessage(c.Request.Context(), c.GetInt64(middleware.UserIDKey), messageID)
	if err != nil {
		h.respondError(c, err, "failed to load message")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": view})
}

func (h *MessageHandler) respondError(c *gin.Context, err error, fallback string) {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error(fallback, "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func int64Param(c *gin.Context, name, msg string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return 0, false
	}
	return id, true
}
