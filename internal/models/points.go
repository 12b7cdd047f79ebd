package models

import "time"

// LoyaltyPoints is the balance row for one customer. One row per user,
// created lazily on first access and mutated only through the ledger.
type LoyaltyPoints struct {
	ID            int       `json:"id" db:"id"`
	UserID        int       `json:"user_id" db:"user_id"`
	CurrentPoints int       `json:"current_points" db:"current_points"`
	LastUpdated   time.Time `json:"last_updated" db:"last_updated"`
}

// PointTransaction is one append-only ledger entry. PointsAmount is signed:
// positive for credits, negative for redemption debits. Rows are never
// updated or deleted.
type PointTransaction struct {
	ID              int       `json:"id" db:"id"`
	UserID          int       `json:"user_id" db:"user_id"`
	ScannedBy       *int      `json:"scanned_by,omitempty" db:"scanned_by"`
	StaffName       string    `json:"staff_name,omitempty"` // joined at read time
	PointsAmount    int       `json:"points_amount" db:"points_amount"`
	Description     string    `json:"description" db:"description"`
	TransactionDate time.Time `json:"transaction_date" db:"transaction_date"`
}
