package ws

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"inbox-service/internal/middleware"
	"inbox-service/internal/observability"
)

// DeviceIDHeader is set by the mobile and web clients.
const DeviceIDHeader = "X-Device-Id"

// ConnInfo identifies a live connection in logs and lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      int64
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnInfo(c *gin.Context, userID int64, traceID string) ConnInfo {
	requestID := c.GetString(middleware.RequestIDKey)
	if requestID == "" {
		requestID = c.GetHeader(middleware.RequestIDHeader)
	}
	return ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      userID,
		DeviceID:    c.GetHeader(DeviceIDHeader),
		IP:          c.ClientIP(),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
}

func (i ConnInfo) event(name, reason string) observability.WSEvent {
	return observability.WSEvent{
		Name:        name,
		ConnID:      i.ConnID,
		UserID:      i.UserID,
		DeviceID:    i.DeviceID,
		IP:          i.IP,
		RequestID:   i.RequestID,
		TraceID:     i.TraceID,
		ConnectedAt: i.ConnectedAt,
		Reason:      reason,
	}
}
