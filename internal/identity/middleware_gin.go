package identity

import (
	"net/http"
	"strings"

	"github.com/fixtrack/fixtrack/internal/actorcontext"
	"github.com/fixtrack/fixtrack/internal/config"
	"github.com/gin-gonic/gin"
)

// Middleware authenticates the request and installs the actor on the
// request context. Routes behind it can assume an actor is present.
func Middleware(cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		actor, err := ParseToken(cfg.AuthJWTSecret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid bearer token"})
			return
		}

		ctx := actorcontext.WithActor(c.Request.Context(), actor)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
