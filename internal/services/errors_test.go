package services

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReturnCode(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{nil, "SUCCESS", http.StatusOK},
		{ErrValidation, "VALIDATION_ERROR", http.StatusBadRequest},
		{ErrAccessDenied, "ACCESS_DENIED", http.StatusForbidden},
		{ErrInvalidQR, "INVALID_QR_CODE", http.StatusBadRequest},
		{ErrNotFound, "NOT_FOUND", http.StatusNotFound},
		{ErrCooldown, "COOLDOWN_ACTIVE", http.StatusConflict},
		{ErrConflict, "CONFLICT", http.StatusConflict},
		{errors.New("boom"), "SERVER_ERROR", http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.code, ReturnCode(tc.err))
		assert.Equal(t, tc.status, StatusCode(tc.err))
	}
}

func TestReturnCode_Wrapped(t *testing.T) {
	// Services wrap sentinels with context; the mapping must survive wrapping.
	err := fmt.Errorf("user 7: %w", ErrNotFound)
	assert.Equal(t, "NOT_FOUND", ReturnCode(err))
	assert.Equal(t, http.StatusNotFound, StatusCode(err))

	err = fmt.Errorf("balance 3 cannot cover debit of 10: %w", ErrConflict)
	assert.Equal(t, "CONFLICT", ReturnCode(err))
	assert.Equal(t, http.StatusConflict, StatusCode(err))
}
