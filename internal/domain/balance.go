package domain

import "github.com/shopspring/decimal" // Fixed-point amounts

// AmountScale is the number of fractional digits every amount column holds
const AmountScale = 2 // Keep in step with decimal(20,2) below and in Transaction

// Balance Model
type Balance struct {
	AccountID string          `gorm:"primaryKey;size:64" json:"account_id"`      // Primary key
	Amount    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"` // Current balance, never negative
	UpdatedAt int64           `gorm:"autoUpdateTime:milli" json:"updated_at"`    // Last write in milliseconds
}

// LeaderboardEntry is one row of the balance leaderboard
type LeaderboardEntry struct {
	AccountID   string          `json:"account_id"`   // Account the row belongs to
	Amount      decimal.Decimal `json:"amount"`       // Balance at snapshot time
	DisplayName string          `json:"display_name"` // Name shown on the board
}
