package middleware

import (
	"net/http" // HTTP status codes
	"strings"  // String manipulation

	"github.com/gin-gonic/gin" // Gin web framework

	"wallet_sync/internal/utils" // JWT utility functions
)

// AccountIDKey is the context key holding the authenticated account ID
const AccountIDKey = "accountID"

// JWTAuthMiddleware validates JWT tokens and extracts account information
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization") // Get Authorization header
		// Check if the Authorization header is present and properly formatted
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			// If not, abort with unauthorized status
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ") // Extract the token string and parse it
		claims, err := utils.ParseJWT(tokenStr, secret)       // Parse the JWT token
		if err != nil || claims.AccountID == "" {
			// If parsing fails, abort with unauthorized status
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Set(AccountIDKey, claims.AccountID) // Store account ID in context
		c.Next()                              // Proceed to the next handler
	}
}

// AccountID returns the authenticated account ID
func AccountID(c *gin.Context) string {
	return c.GetString(AccountIDKey)
}
