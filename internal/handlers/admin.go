package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"inbox-service/internal/models"
	"inbox-service/internal/repositories"
)

// AdminHandler serves the staff message listing.
type AdminHandler struct {
	messages repositories.MessageRepository
	log      *slog.Logger
}

func NewAdminHandler(messages repositories.MessageRepository, log *slog.Logger) *AdminHandler {
	return &AdminHandler{messages: messages, log: log}
}

type adminMessage struct {
	ID             int64  `json:"id"`
	Sender         string `json:"sender"`
	Receiver       string `json:"receiver"`
	ContentPreview string `json:"content_preview"`
	IsRead         bool   `json:"is_read"`
	Timestamp      string `json:"timestamp"`
}

// ListMessages lists messages newest first, optionally filtered by a search
// term and read state.
func (h *AdminHandler) ListMessages(c *gin.Context) {
	filter := repositories.MessageFilter{Query: c.Query("q")}
	if raw := c.Query("is_read"); raw != "" {
		isRead, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid is_read"})
			return
		}
		filter.IsRead = &isRead
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	rows, err := h.messages.Search(c.Request.Context(), filter)
	if err != nil {
		h.log.Error("admin message search", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": lo.Map(rows, func(row models.MessageWithParties, _ int) adminMessage {
		return adminMessage{
			ID:             row.ID,
			Sender:         row.SenderUsername,
			Receiver:       row.ReceiverUsername,
			ContentPreview: row.ContentPreview(),
			IsRead:         row.IsRead,
			Timestamp:      row.Timestamp(),
		}
	})})
}
