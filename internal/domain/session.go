package domain

// Session marks an account as active on one process
type Session struct {
	AccountID      string `json:"account_id"`       // Active account
	DisplayName    string `json:"display_name"`     // Name at activation
	OwnerProcessID string `json:"owner_process_id"` // Process the account is active on
	ActivatedAt    int64  `json:"activated_at"`     // Activation time in milliseconds
}
