package economy

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrPersistence wraps every database failure that aborted a write
var ErrPersistence = errors.New("economy: persistence failure")

// Reason explains why a request was refused
type Reason string

// Refusal reasons, reported to callers as ordinary results
const (
	ReasonNone              Reason = ""
	ReasonInvalidAmount     Reason = "invalid_amount"
	ReasonInsufficientFunds Reason = "insufficient_funds"
	ReasonSelfTransfer      Reason = "self_transfer"
	ReasonRecipientDisabled Reason = "recipient_disabled"
	ReasonUnknownAccount    Reason = "unknown_account"
	ReasonCreditFailed      Reason = "credit_failed" // Transfer debited, credit failed, sender refunded
)

// Result is the outcome of a balance mutation
type Result struct {
	OK      bool            `json:"ok"`
	Reason  Reason          `json:"reason,omitempty"`
	Balance decimal.Decimal `json:"balance"` // Balance of the mutated account after the call
}

func refused(reason Reason) Result {
	return Result{Reason: reason}
}

// Outcome carries a Result with the error of an asynchronous call
type Outcome struct {
	Result Result
	Err    error
}
