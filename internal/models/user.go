package models

import "time"

type User struct {
	ID            int        `json:"id" example:"1"`                   // User ID
	Email         string     `json:"email" example:"jane@example.com"` // User email
	DisplayName   string     `json:"display_name" example:"Jane"`      // Name shown in the app
	ProfileIconID string     `json:"profile_icon_id,omitempty"`        // Icon chosen in the app
	Staff         bool       `json:"staff" example:"false"`            // Staff accounts are excluded from the ledger
	LastLogin     *time.Time `json:"last_login,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
