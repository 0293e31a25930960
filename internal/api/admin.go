package api

import (
	"errors"   // Error inspection
	"net/http" // HTTP status codes

	"github.com/gin-gonic/gin"       // Gin web framework
	"github.com/shopspring/decimal" // Fixed-point amounts

	"wallet_sync/internal/cache"   // Cache kinds
	"wallet_sync/internal/economy" // Account service
)

// Request struct for admin notifications
type NotifyRequest struct {
	Message string `json:"message" binding:"required"` // Text delivered to the account
}

// adminBalanceHandler binds the amount and runs op on the account in the path
func adminBalanceHandler(op func(c *gin.Context, accountID string, amount decimal.Decimal) (economy.Result, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AmountRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		res, err := op(c, c.Param("id"), req.Amount) // Run the mutation
		writeResult(c, res, err)                     // Render the outcome
	}
}

// SetBalanceHandler overwrites the balance of an account
func SetBalanceHandler(svc *economy.Service) gin.HandlerFunc {
	return adminBalanceHandler(func(c *gin.Context, id string, amount decimal.Decimal) (economy.Result, error) {
		return svc.SetBalance(c.Request.Context(), id, amount)
	})
}

// AddBalanceHandler credits an account
func AddBalanceHandler(svc *economy.Service) gin.HandlerFunc {
	return adminBalanceHandler(func(c *gin.Context, id string, amount decimal.Decimal) (economy.Result, error) {
		return svc.AddBalance(c.Request.Context(), id, amount)
	})
}

// RemoveBalanceHandler debits an account
func RemoveBalanceHandler(svc *economy.Service) gin.HandlerFunc {
	return adminBalanceHandler(func(c *gin.Context, id string, amount decimal.Decimal) (economy.Result, error) {
		return svc.RemoveBalance(c.Request.Context(), id, amount)
	})
}

// DeleteTransactionsHandler removes the transaction history of an account
func DeleteTransactionsHandler(svc *economy.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.DeleteTransactions(c.Request.Context(), c.Param("id")); err != nil {
			// If deletion fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete transactions"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Transactions deleted"})
	}
}

// InvalidateHandler drops cached entries of one kind, or one account's entry of it
func InvalidateHandler(svc *economy.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		kind := c.Param("kind") // Cache kind from the path
		id := c.Param("id")     // Optional account ID
		switch kind {
		case "leaderboard":
			svc.InvalidateLeaderboard() // Next read rebuilds it
		case "account":
			if id == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Account ID required"})
				return
			}
			svc.InvalidateAccount(id) // Every kind for one account
		default:
			if err := svc.Invalidate(cache.Kind(kind), id); errors.Is(err, cache.ErrUnknownKind) {
				// If the kind has no table, return bad request
				c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown cache kind"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"message": "Invalidated", "kind": kind, "account_id": id})
	}
}

// CacheStatsHandler reports cache and session counters
func CacheStatsHandler(svc *economy.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Stats()) // Return statistics
	}
}

// ReloadConfigHandler re-reads the environment and applies it
func ReloadConfigHandler(svc *economy.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.ReloadConfig(); err != nil {
			// Previous configuration stays in place
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Configuration reloaded"})
	}
}

// NotifyHandler sends a message to an account on whichever process it is active
func NotifyHandler(svc *economy.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req NotifyRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		delivery := svc.Notify(c.Request.Context(), c.Param("id"), req.Message) // Deliver, forward or drop
		if delivery == economy.Offline {
			// No process holds the account
			c.JSON(http.StatusNotFound, gin.H{"error": "Account is not active", "delivery": delivery})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"delivery": delivery})
	}
}
