package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"inbox-service/internal/apperrors"
	"inbox-service/internal/auth"
	"inbox-service/internal/models"
)

// Context keys set by AuthMiddleware.
const (
	UserIDKey  = "userID"
	ProfileKey = "profile"
)

// Authenticator resolves a session token to an active profile.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Profile, error)
}

// AuthMiddleware authenticates the session token carried by the request.
// Unsafe requests authenticated by the session cookie must come from an
// origin the policy allows.
func AuthMiddleware(authenticator Authenticator, origins *auth.OriginPolicy, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, source := auth.TokenFromRequest(c.Request)
		if err := origins.CheckRequest(c.Request, source); err != nil {
			log.Warn("cross-origin request rejected",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"origin", c.GetHeader("Origin"),
			)
			c.AbortWithStatusJSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}

		profile, err := authenticator.Authenticate(c.Request.Context(), token)
		if err != nil {
			status := apperrors.HTTPStatus(err)
			if status == http.StatusInternalServerError {
				log.Error("authentication failed", "error", err)
				c.AbortWithStatusJSON(status, gin.H{"error": "authentication failed"})
				return
			}
			c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
			return
		}

		c.Set(UserIDKey, profile.ID)
		c.Set(ProfileKey, profile)
		c.Next()
	}
}

// RequireAdmin only lets admin profiles through. It must run after AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		profile, ok := ProfileFromContext(c)
		if !ok || !profile.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}
		c.Next()
	}
}

// ProfileFromContext returns the authenticated caller.
func ProfileFromContext(c *gin.Context) (models.Profile, bool) {
	val, ok := c.Get(ProfileKey)
	if !ok {
		return models.Profile{}, false
	}
	profile, ok := val.(models.Profile)
	return profile, ok
}
