package api

import (
	"errors"   // Error inspection
	"net/http" // HTTP status codes
	"sort"     // Ordering online names
	"strings"  // String manipulation

	"github.com/gin-gonic/gin"       // Gin web framework
	"github.com/shopspring/decimal" // Fixed-point amounts

	"wallet_sync/internal/domain"     // Importing domain models
	"wallet_sync/internal/economy"    // Account service
	"wallet_sync/internal/middleware" // Authenticated account
	"wallet_sync/internal/store"      // Not-found sentinel
)

// Request struct for transferring money
type TransferRequest struct {
	ToUsername string          `json:"to_username"` // Recipient username
	ToAccount  string          `json:"to_account"`  // Recipient account ID, used when no username is given
	Amount     decimal.Decimal `json:"amount"`      // Amount to transfer
}

// Request struct for updating settings
type SettingsRequest struct {
	AcceptsTransfers *bool `json:"accepts_transfers"` // Whether other accounts may pay this one
	WantsAlerts      *bool `json:"wants_alerts"`      // Whether payment notifications are delivered
}

// Request struct for activating a session
type SessionRequest struct {
	DisplayName string `json:"display_name"` // Name shown while active, defaults to the profile's
}

// GetWalletHandler returns the balance of the authenticated account
func GetWalletHandler(svc *economy.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := middleware.AccountID(c)                      // Get account ID from context
		balance := svc.GetBalance(c.Request.Context(), accountID) // Cached balance read
		// Return the balance
		c.JSON(http.StatusOK, gin.H{"account_id": accountID, "balance": balance})
	}
}

// GetTransactionHistoryHandler returns the newest transactions of the authenticated account
func GetTransactionHistoryHandler(svc *economy.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := middleware.AccountID(c)                                    // Get account ID from context
		limit := queryInt(c, "limit", 20, 100)                                  // Page size
		txs := svc.GetTransactionHistory(c.Request.Context(), accountID, limit) // Cached history read
		c.JSON(http.StatusOK, gin.H{"transactions": txs})                       // Return transactions
	}
}

// TransferHandler moves money from the authenticated account to another one
func TransferHandler(svc *economy.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TransferRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		ctx := c.Request.Context() // Request context
		to := req.ToAccount        // Recipient account ID
		if req.ToUsername != "" {
			// Resolve the recipient by username
			profile, err := svc.ProfileByUsername(ctx, strings.ToLower(req.ToUsername))
			if errors.Is(err, store.ErrNotFound) {
				// If recipient not found, return not found
				c.JSON(http.StatusNotFound, gin.H{"error": "Recipient not found", "reason": economy.ReasonUnknownAccount})
				return
			} else if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Recipient lookup failed"})
				return
			}
			to = profile.AccountID // Resolved account
		}
		if to == "" {
			// Neither recipient field was set
			c.JSON(http.StatusBadRequest, gin.H{"error": "Recipient required"})
			return
		}
		res, err := svc.Transfer(ctx, middleware.AccountID(c), to, req.Amount) // Perform the transfer
		writeResult(c, res, err)                                               // Render the outcome
	}
}

// GetSettingsHandler returns the settings of the authenticated account
func GetSettingsHandler(svc *economy.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		settings := svc.GetSettings(c.Request.Context(), middleware.AccountID(c)) // Cached settings read
		c.JSON(http.StatusOK, settings)                                           // Return settings
	}
}

// UpdateSettingsHandler changes the settings of the authenticated account
func UpdateSettingsHandler(svc *economy.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SettingsRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		ctx := c.Request.Context()                                // Request context
		settings := svc.GetSettings(ctx, middleware.AccountID(c)) // Start from the current settings
		if req.AcceptsTransfers != nil {
			settings.AcceptsTransfers = *req.AcceptsTransfers // Only fields present in the body change
		}
		if req.WantsAlerts != nil {
			settings.WantsAlerts = *req.WantsAlerts
		}
		if err := svc.UpdateSettings(ctx, settings); err != nil {
			// If saving fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update settings"})
			return
		}
		c.JSON(http.StatusOK, settings) // Return the saved settings
	}
}

// ActivateSessionHandler marks the authenticated account active on this process
func ActivateSessionHandler(svc *economy.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SessionRequest // Body is optional
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
		}
		session := svc.ActivateAccount(c.Request.Context(), middleware.AccountID(c), req.DisplayName) // Activate
		c.JSON(http.StatusOK, session)                                                               // Return the session
	}
}

// DeactivateSessionHandler ends the local session of the authenticated account
func DeactivateSessionHandler(svc *economy.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !svc.DeactivateAccount(c.Request.Context(), middleware.AccountID(c)) {
			// No local session to end
			c.JSON(http.StatusNotFound, gin.H{"error": "No active session"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Session ended"})
	}
}

// LeaderboardHandler returns the richest accounts
func LeaderboardHandler(svc *economy.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := queryInt(c, "limit", 0, 100) // Zero means the configured size
		entries := svc.GetLeaderboard(c.Request.Context(), limit)
		if entries == nil {
			entries = []domain.LeaderboardEntry{} // Render an empty list, not null
		}
		c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
	}
}

// OnlineHandler lists the display names of accounts active on any process
func OnlineHandler(svc *economy.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		names := svc.OnlineDisplayNames(c.Request.Context()) // Shared directory plus local sessions
		sort.Strings(names)                                  // Stable output
		c.JSON(http.StatusOK, gin.H{"online": names})
	}
}
