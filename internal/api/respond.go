package api

import (
	"errors"   // Error inspection
	"net/http" // HTTP status codes
	"strconv"  // Query parsing

	"github.com/gin-gonic/gin"       // Gin web framework
	"github.com/shopspring/decimal" // Fixed-point amounts

	"wallet_sync/internal/economy" // Mutation results
	"wallet_sync/internal/txid"    // Id exhaustion sentinel
)

// AmountRequest carries an amount for balance routes
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"` // Amount, as a JSON string or number
}

// reasonStatus maps refusal reasons to HTTP status codes
var reasonStatus = map[economy.Reason]int{
	economy.ReasonInvalidAmount:     http.StatusBadRequest,
	economy.ReasonInsufficientFunds: http.StatusBadRequest,
	economy.ReasonSelfTransfer:      http.StatusBadRequest,
	economy.ReasonRecipientDisabled: http.StatusForbidden,
	economy.ReasonUnknownAccount:    http.StatusNotFound,
}

// writeResult renders the outcome of a balance mutation
func writeResult(c *gin.Context, res economy.Result, err error) {
	switch {
	case errors.Is(err, txid.ErrIDGenerationExhausted):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No transaction id available, try again"}) // Retryable
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Balance update failed", "reason": res.Reason}) // Nothing cached
	case !res.OK:
		status, ok := reasonStatus[res.Reason] // Expected refusal
		if !ok {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": "Request refused", "reason": res.Reason, "balance": res.Balance})
	default:
		c.JSON(http.StatusOK, gin.H{"balance": res.Balance}) // Balance after the mutation
	}
}

// queryInt reads a positive integer query parameter capped at max
func queryInt(c *gin.Context, name string, def, max int) int {
	if raw := c.Query(name); raw != "" {
		// Convert to integer
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= max {
			return v // Valid value
		}
	}
	return def // Default value
}
