package middlewares

import (
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/channels_backend/utils"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates the bearer token and stashes the caller's company
// and user in the request context. Requests without a token pass through;
// handlers that need a tenant reject them when the company id is missing.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := strings.TrimSpace(c.Request.Header.Get("Authorization"))
		if auth == "" {
			c.Next()
			return
		}

		if !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		token := strings.TrimSpace(auth[len("Bearer "):])

		validated, err := utils.JwtValidate(token)
		if err != nil || !validated.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		claim, ok := validated.Claims.(*utils.JwtCustomClaim)
		if !ok || strings.TrimSpace(claim.CompanyId) == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetCompanyIdInContext(ctx, claim.CompanyId)
		ctx = utils.SetUserIdInContext(ctx, claim.ID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
