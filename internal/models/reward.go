package models

import "time"

// Reward is a catalog entry managed by admins. Deactivated rewards stay in
// the table because past transactions reference them by name.
type Reward struct {
	ID             int       `json:"id" db:"id"`
	Name           string    `json:"name" db:"name" example:"Free Coffee"`
	Description    string    `json:"description" db:"description"`
	PointsRequired int       `json:"points_required" db:"points_required" example:"10"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
