package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	mW "github.com/gingerloyalty/backend/internal/middleware"
	"github.com/gingerloyalty/backend/internal/models"
)

// ProfileService lets an authenticated user read and edit their own profile,
// and delete their account together with its ledger history.
type ProfileService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewProfileService(db *sql.DB) *ProfileService {
	return &ProfileService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

const profileColumns = `id, email, COALESCE(display_name, ''), COALESCE(profile_icon_id, ''), staff, last_login, created_at`

func scanProfile(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.ProfileIconID, &u.Staff, &u.LastLogin, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetProfile returns one user's profile.
func (s *ProfileService) GetProfile(ctx context.Context, userID int) (*models.User, error) {
	profile, err := scanProfile(s.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+` FROM users WHERE id = $1
	`, userID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return profile, err
}

// UpdateProfile applies the provided fields. Nil pointers leave a field
// untouched; at least one field must be set.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID int, displayName, profileIconID *string) (*models.User, error) {
	set := []string{}
	args := []any{}
	idx := 1

	if displayName != nil {
		trimmed := strings.TrimSpace(*displayName)
		if trimmed == "" {
			return nil, fmt.Errorf("display_name must not be empty: %w", ErrValidation)
		}
		set = append(set, fmt.Sprintf("display_name = $%d", idx))
		args = append(args, trimmed)
		idx++
	}
	if profileIconID != nil {
		set = append(set, fmt.Sprintf("profile_icon_id = $%d", idx))
		args = append(args, *profileIconID)
		idx++
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("at least one of display_name or profile_icon_id is required: %w", ErrValidation)
	}

	args = append(args, userID)
	profile, err := scanProfile(s.db.QueryRowContext(ctx, `
		UPDATE users SET `+strings.Join(set, ", ")+`
		WHERE id = $`+fmt.Sprint(idx)+`
		RETURNING `+profileColumns+`
	`, args...))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return profile, err
}

// DeleteAccount removes the user and every row that references them, in one
// transaction so a failed deletion leaves the ledger intact.
func (s *ProfileService) DeleteAccount(ctx context.Context, userID int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM point_transactions WHERE user_id = $1`,
		`DELETE FROM loyalty_points WHERE user_id = $1`,
		`DELETE FROM user_qr_codes WHERE user_id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, userID); err != nil {
			return err
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("[PROFILE] Deleted account %d with its ledger history", userID)
	return nil
}

// HTTP handlers

// GetOwnProfile returns the authenticated user's profile
// @Summary Get profile
// @Tags profile
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{return_code=string,user=models.User}
// @Failure 404 {object} ErrorResponse
// @Router /profile [get]
func (s *ProfileService) GetOwnProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := mW.UserID(r.Context())
	if !ok {
		SendErrorResponse(w, "ACCESS_DENIED", "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	profile, err := s.GetProfile(r.Context(), userID)
	if err != nil {
		SendServiceError(w, err, "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"return_code": "SUCCESS",
		"user":        profile,
	})
}

// UpdateProfileRequest carries the editable profile fields.
type UpdateProfileRequest struct {
	DisplayName   *string `json:"display_name" validate:"omitempty,min=1"`
	ProfileIconID *string `json:"profile_icon_id"`
}

// PutOwnProfile updates display name and/or profile icon
// @Summary Update profile
// @Tags profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UpdateProfileRequest true "Profile fields"
// @Success 200 {object} object{return_code=string,user=models.User}
// @Failure 400 {object} ErrorResponse
// @Router /profile [put]
func (s *ProfileService) PutOwnProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := mW.UserID(r.Context())
	if !ok {
		SendErrorResponse(w, "ACCESS_DENIED", "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req UpdateProfileRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "VALIDATION_ERROR", "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "VALIDATION_ERROR", "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "VALIDATION_ERROR", "Validation failed", http.StatusBadRequest, err)
		return
	}

	profile, err := s.UpdateProfile(r.Context(), userID, req.DisplayName, req.ProfileIconID)
	if err != nil {
		SendServiceError(w, err, "")
		return
	}

	log.Printf("[PROFILE] Updated profile for user %d", userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"return_code": "SUCCESS",
		"message":     "Profile updated successfully",
		"user":        profile,
	})
}

// DeleteOwnProfile deletes the authenticated user's account
// @Summary Delete account
// @Description Removes the account with its points, transactions and QR token
// @Tags profile
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{return_code=string}
// @Failure 404 {object} ErrorResponse
// @Router /profile [delete]
func (s *ProfileService) DeleteOwnProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := mW.UserID(r.Context())
	if !ok {
		SendErrorResponse(w, "ACCESS_DENIED", "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	if err := s.DeleteAccount(r.Context(), userID); err != nil {
		log.Printf("[PROFILE] Account deletion failed for user %d: %v", userID, err)
		SendServiceError(w, err, "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"return_code": "SUCCESS",
		"message":     "Account deleted successfully",
	})
}
