package services

import "errors"

// Error taxonomy for the loyalty ledger. Services wrap these sentinels so
// handlers can map failures to a status code and return_code without parsing
// message strings.
var (
	ErrValidation   = errors.New("validation failed")
	ErrAccessDenied = errors.New("access denied")
	ErrNotFound     = errors.New("not found")
	ErrInvalidQR    = errors.New("invalid QR code")
	ErrCooldown     = errors.New("scanned too recently")
	ErrConflict     = errors.New("insufficient points")
)

// ReturnCode maps a service error to the semantic result tag carried in every
// response body.
func ReturnCode(err error) string {
	switch {
	case err == nil:
		return "SUCCESS"
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrAccessDenied):
		return "ACCESS_DENIED"
	case errors.Is(err, ErrInvalidQR):
		return "INVALID_QR_CODE"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrCooldown):
		return "COOLDOWN_ACTIVE"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	default:
		return "SERVER_ERROR"
	}
}

// StatusCode maps a service error to an HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return 200
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidQR):
		return 400
	case errors.Is(err, ErrAccessDenied):
		return 403
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrCooldown), errors.Is(err, ErrConflict):
		return 409
	default:
		return 500
	}
}
