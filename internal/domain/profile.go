package domain

// Roles stored on a profile
const (
	RoleUser  = "user"  // Regular account
	RoleAdmin = "admin" // May use the admin routes
)

// Profile Model
type Profile struct {
	AccountID   string `gorm:"primaryKey;size:64" json:"account_id"`         // Primary key
	Username    string `gorm:"uniqueIndex;size:64;not null" json:"username"` // Unique login name
	DisplayName string `gorm:"size:64" json:"display_name"`                  // Name shown to other accounts
	Password    string `gorm:"not null" json:"-"`                            // Hashed password
	Role        string `gorm:"size:16;default:user" json:"role"`             // Role: user or admin
	LastSeen    int64  `json:"last_seen"`                                    // Last activation or deactivation in milliseconds
}

// IsAdmin reports whether the profile may use admin operations
func (p Profile) IsAdmin() bool {
	return p.Role == RoleAdmin
}
