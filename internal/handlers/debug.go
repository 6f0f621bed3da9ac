package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"inbox-service/internal/telemetry"
)

// Presence reports who holds live inbox connections on this instance.
type Presence interface {
	Users() []int64
	Count(userID int64) int
}

type presenceEntry struct {
	UserID      int64 `json:"user_id"`
	Connections int   `json:"connections"`
}

// RegisterDebugRoutes wires debug-only endpoints when enabled.
func RegisterDebugRoutes(router gin.IRoutes, emitter *telemetry.AuditEmitter, presence Presence, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), auditEntry(c, telemetry.LevelInfo, "audit test"))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/connections", func(c *gin.Context) {
		entries := lo.Map(presence.Users(), func(id int64, _ int) presenceEntry {
			return presenceEntry{UserID: id, Connections: presence.Count(id)}
		})
		c.JSON(http.StatusOK, gin.H{"users": entries})
	})
}
