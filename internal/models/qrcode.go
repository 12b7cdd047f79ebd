package models

// UserQRCode maps a customer 1:1 to their loyalty token. Created lazily,
// never rotated.
type UserQRCode struct {
	ID         int    `json:"id" db:"id"`
	UserID     int    `json:"user_id" db:"user_id"`
	QRCodeData string `json:"qr_code_data" db:"qr_code_data"`
}
