package domain

// Settings Model
type Settings struct {
	AccountID        string `gorm:"primaryKey;size:64" json:"account_id"` // Primary key
	AcceptsTransfers bool   `gorm:"not null" json:"accepts_transfers"`    // Whether other accounts may pay this one
	WantsAlerts      bool   `gorm:"not null" json:"wants_alerts"`         // Whether payment notifications are delivered
}

// DefaultSettings returns the settings an account has before it changes anything
func DefaultSettings(accountID string) Settings {
	return Settings{AccountID: accountID, AcceptsTransfers: true, WantsAlerts: true}
}
