package api

import (
	"time" // Token lifetime

	"github.com/gin-gonic/gin" // Gin web framework

	"wallet_sync/internal/economy"    // Account service
	"wallet_sync/internal/middleware" // Custom middleware
)

// TokenTTL is the lifetime of issued JWT tokens
const TokenTTL = 24 * time.Hour

// RegisterRoutes mounts every route of the service on r
func RegisterRoutes(r gin.IRouter, svc *economy.Service, jwtSecret string) {
	// Auth routes
	r.POST("/user", RegisterHandler(svc))                  // Register
	r.GET("/user", LoginHandler(svc, jwtSecret, TokenTTL)) // Login
	r.GET("/leaderboard", LeaderboardHandler(svc))         // Public leaderboard
	r.GET("/online", OnlineHandler(svc))                   // Accounts active on any process

	// Wallet routes (protected)
	wallet := r.Group("/wallet")
	wallet.Use(middleware.JWTAuthMiddleware(jwtSecret))
	{
		wallet.GET("", GetWalletHandler(svc))                          // Get balance
		wallet.GET("/transactions", GetTransactionHistoryHandler(svc)) // Get transaction history
		wallet.POST("/transfer", TransferHandler(svc))                 // Transfer money
		wallet.GET("/settings", GetSettingsHandler(svc))               // Get settings
		wallet.PUT("/settings", UpdateSettingsHandler(svc))            // Update settings
		wallet.POST("/session", ActivateSessionHandler(svc))           // Activate on this process
		wallet.DELETE("/session", DeactivateSessionHandler(svc))       // Deactivate
	}

	// Admin routes (protected + admin check)
	admin := r.Group("/admin")
	admin.Use(middleware.JWTAuthMiddleware(jwtSecret), middleware.AdminOnlyMiddleware(svc))
	{
		admin.PUT("/balance/:id", SetBalanceHandler(svc))                 // Set balance
		admin.POST("/balance/:id/add", AddBalanceHandler(svc))            // Credit
		admin.POST("/balance/:id/remove", RemoveBalanceHandler(svc))      // Debit
		admin.DELETE("/transactions/:id", DeleteTransactionsHandler(svc)) // Delete history
		admin.POST("/invalidate/:kind", InvalidateHandler(svc))           // Drop a whole kind
		admin.POST("/invalidate/:kind/:id", InvalidateHandler(svc))       // Drop one account's entry
		admin.GET("/cache", CacheStatsHandler(svc))                       // Cache statistics
		admin.POST("/reload", ReloadConfigHandler(svc))                   // Reload configuration
		admin.POST("/notify/:id", NotifyHandler(svc))                     // Send a notification
	}
}
