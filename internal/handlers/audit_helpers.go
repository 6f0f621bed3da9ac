package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"inbox-service/internal/middleware"
	"inbox-service/internal/telemetry"
)

// auditEntry stamps text with the request id and caller of c.
func auditEntry(c *gin.Context, level, text string) telemetry.AuditEntry {
	entry := telemetry.AuditEntry{Level: level, Text: text, RequestID: requestID(c)}
	if userID := c.GetInt64(middleware.UserIDKey); userID != 0 {
		id := strconv.FormatInt(userID, 10)
		entry.UserID = &id
	}
	return entry
}

// requestID prefers the id set by the RequestID middleware.
func requestID(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}
	id := c.GetHeader(middleware.RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(middleware.RequestIDKey, id)
	return id
}
