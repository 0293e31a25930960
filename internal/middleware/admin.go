package middleware

import (
	"context"  // Profile lookup context
	"net/http" // HTTP status codes

	"github.com/gin-gonic/gin" // Gin web framework

	"wallet_sync/internal/domain" // Profile model
)

// ProfileSource looks profiles up, usually through the profile cache
type ProfileSource interface {
	GetProfile(ctx context.Context, accountID string) (domain.Profile, bool)
}

// AdminOnlyMiddleware checks the account's role on each request
func AdminOnlyMiddleware(profiles ProfileSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := AccountID(c) // Get account ID from context
		// Check if the account ID exists in context
		if accountID == "" {
			// If not, abort with unauthorized status
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		profile, ok := profiles.GetProfile(c.Request.Context(), accountID) // Cached profile read
		// Check if the profile exists and belongs to an admin
		if !ok || !profile.IsAdmin() {
			// If not admin, abort with forbidden status
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		// If admin, proceed to the next handler
		c.Next()
	}
}
