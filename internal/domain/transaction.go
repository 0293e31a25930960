package domain

import "github.com/shopspring/decimal" // Fixed-point amounts

// TransactionKind names what a transaction row records
type TransactionKind string

// Transaction kinds
const (
	TransactionSent        TransactionKind = "sent"         // Transfer leaving the account
	TransactionReceived    TransactionKind = "received"     // Transfer arriving at the account
	TransactionAdminDebit  TransactionKind = "admin_debit"  // Balance removed by an operator
	TransactionAdminCredit TransactionKind = "admin_credit" // Balance added by an operator
)

// Transaction Model, append-only
type Transaction struct {
	ID        string          `gorm:"primaryKey;size:32" json:"id"`                 // Unique transaction id
	AccountID string          `gorm:"index;size:64;not null" json:"account_id"`     // Account whose history holds the row
	Kind      TransactionKind `gorm:"size:16;not null" json:"kind"`                 // Transaction kind
	Amount    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`    // Amount moved, always positive
	From      string          `gorm:"size:64" json:"from,omitempty"`                // Counterparty the funds came from
	To        string          `gorm:"size:64" json:"to,omitempty"`                  // Counterparty the funds went to
	CreatedAt int64           `gorm:"autoCreateTime:milli;index" json:"created_at"` // Timestamp of creation in milliseconds
}

// Sequence Model, backs sequential transaction ids
type Sequence struct {
	Name  string `gorm:"primaryKey;size:32"` // Sequence name
	Value int64  `gorm:"not null"`           // Last issued value
}
