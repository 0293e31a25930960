package domain

import "github.com/shopspring/decimal" // Fixed-point amounts

// EventType names a cross-process event
type EventType string

// Event types
const (
	EventAccountActivated    EventType = "account_activated"    // Account became active on a process
	EventAccountDeactivated  EventType = "account_deactivated"  // Account left its process
	EventBalanceChanged      EventType = "balance_changed"      // Balance written by a process
	EventPaymentNotification EventType = "payment_notification" // Transfer received
	EventGenericNotification EventType = "generic_notification" // Free form message to an account
)

// EventTypes lists every event type in publishing order
var EventTypes = []EventType{
	EventAccountActivated,
	EventAccountDeactivated,
	EventBalanceChanged,
	EventPaymentNotification,
	EventGenericNotification,
}

// Event is the envelope broadcast between processes
type Event struct {
	ID           string          `json:"id"`                     // Unique per logical event
	Type         EventType       `json:"type"`                   // Event type
	Origin       string          `json:"origin"`                 // Process that published the event
	AccountID    string          `json:"account_id"`             // Account the event is about
	DisplayName  string          `json:"display_name,omitempty"` // Name of the account, when known
	Amount       decimal.Decimal `json:"amount"`                 // New balance or transferred amount
	Counterparty string          `json:"counterparty,omitempty"` // Other side of a payment
	Message      string          `json:"message,omitempty"`      // Notification text
	Timestamp    int64           `json:"timestamp"`              // Publish time in milliseconds
}
