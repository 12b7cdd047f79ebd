package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gingerloyalty/backend/internal/audit"
	"github.com/gingerloyalty/backend/internal/config"
	"github.com/gingerloyalty/backend/internal/database"
	mW "github.com/gingerloyalty/backend/internal/middleware"
	"github.com/gingerloyalty/backend/internal/models"
	"github.com/go-chi/chi/v5"
)

// PointsService owns the balance store and the append-only transaction log.
// Every balance change goes through ApplyDelta; nothing else writes
// loyalty_points or point_transactions.
type PointsService struct {
	db        *sql.DB
	config    *config.LoyaltyConfig
	audit     *audit.Logger
	validator *ValidationHelper
}

func NewPointsService(db *sql.DB, cfg *config.LoyaltyConfig) *PointsService {
	return &PointsService{
		db:        db,
		config:    cfg,
		audit:     audit.NewLogger(),
		validator: NewValidationHelper(),
	}
}

// GetOrCreateBalance returns the balance row for a customer, creating it at
// zero points on first access. Staff accounts have no ledger presence.
func (s *PointsService) GetOrCreateBalance(ctx context.Context, userID int) (*models.LoyaltyPoints, error) {
	var staff bool
	err := s.db.QueryRowContext(ctx, `SELECT staff FROM users WHERE id = $1`, userID).Scan(&staff)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		return nil, err
	}
	if staff {
		return nil, fmt.Errorf("staff accounts have no loyalty balance: %w", ErrAccessDenied)
	}

	points := &models.LoyaltyPoints{}
	err = s.db.QueryRowContext(ctx, `
		SELECT id, user_id, current_points, last_updated
		FROM loyalty_points WHERE user_id = $1
	`, userID).Scan(&points.ID, &points.UserID, &points.CurrentPoints, &points.LastUpdated)

	if err == sql.ErrNoRows {
		log.Printf("[POINTS] No balance row for user %d, creating", userID)
		err = s.db.QueryRowContext(ctx, `
			INSERT INTO loyalty_points (user_id, current_points, last_updated)
			VALUES ($1, 0, NOW())
			RETURNING id, user_id, current_points, last_updated
		`, userID).Scan(&points.ID, &points.UserID, &points.CurrentPoints, &points.LastUpdated)
	}
	if err != nil {
		return nil, err
	}

	return points, nil
}

// ApplyDelta is the single signed-delta primitive behind scan credits, manual
// adjustments and reward debits. The balance update and the log append happen
// in one database transaction; the FOR UPDATE lock on the balance row
// serializes concurrent mutations per customer. A debit that would drive the
// balance negative is rejected with ErrConflict so the stored balance always
// equals the sum of logged deltas.
func (s *PointsService) ApplyDelta(ctx context.Context, userID int, staffUserID *int, delta int, description string) (int, error) {
	if delta == 0 {
		return 0, fmt.Errorf("points delta must be non-zero: %w", ErrValidation)
	}

	var newTotal int
	err := database.WithRetry(ctx, s.config.StoreRetryAttempts, s.config.StoreRetryBackoff, func() error {
		total, err := s.applyDeltaOnce(ctx, userID, staffUserID, delta, description)
		if err != nil {
			return err
		}
		newTotal = total
		return nil
	})
	return newTotal, err
}

func (s *PointsService) applyDeltaOnce(ctx context.Context, userID int, staffUserID *int, delta int, description string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var currentPoints int
	err = tx.QueryRowContext(ctx, `
		SELECT current_points FROM loyalty_points
		WHERE user_id = $1
		FOR UPDATE
	`, userID).Scan(&currentPoints)

	switch {
	case err == sql.ErrNoRows:
		var staff bool
		if err := tx.QueryRowContext(ctx, `SELECT staff FROM users WHERE id = $1`, userID).Scan(&staff); err != nil {
			if err == sql.ErrNoRows {
				return 0, fmt.Errorf("user %d: %w", userID, ErrNotFound)
			}
			return 0, err
		}
		if staff {
			return 0, fmt.Errorf("staff accounts have no loyalty balance: %w", ErrAccessDenied)
		}
		if delta < 0 {
			return 0, fmt.Errorf("cannot debit %d points from empty balance: %w", -delta, ErrConflict)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO loyalty_points (user_id, current_points, last_updated)
			VALUES ($1, $2, NOW())
		`, userID, delta); err != nil {
			return 0, err
		}
		currentPoints = delta
	case err != nil:
		return 0, err
	default:
		if currentPoints+delta < 0 {
			return 0, fmt.Errorf("balance %d cannot cover debit of %d: %w", currentPoints, -delta, ErrConflict)
		}
		currentPoints += delta
		if _, err := tx.ExecContext(ctx, `
			UPDATE loyalty_points SET current_points = $1, last_updated = NOW()
			WHERE user_id = $2
		`, currentPoints, userID); err != nil {
			return 0, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO point_transactions (user_id, scanned_by, points_amount, description, transaction_date)
		VALUES ($1, $2, $3, $4, NOW())
	`, userID, staffUserID, delta, description); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return currentPoints, nil
}

// CanScan is the cooldown guard: a pure query over the transaction log. It
// blocks a repeat scan of the same customer by the same staff member within
// the cooldown window; it holds no state of its own.
func (s *PointsService) CanScan(ctx context.Context, userID, staffUserID int) (bool, error) {
	var recent bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM point_transactions
			WHERE user_id = $1 AND scanned_by = $2
			AND transaction_date > NOW() - make_interval(secs => $3)
		)
	`, userID, staffUserID, s.config.ScanCooldown.Seconds()).Scan(&recent)

	if err != nil {
		return false, err
	}
	return !recent, nil
}

// ListTransactions returns the newest-first history for a customer, with the
// acting staff member's display name joined for presentation.
func (s *PointsService) ListTransactions(ctx context.Context, userID, limit int) ([]models.PointTransaction, error) {
	if limit <= 0 {
		limit = s.config.HistoryLimit
	}
	if limit > s.config.MaxHistoryLimit {
		limit = s.config.MaxHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT pt.id, pt.user_id, pt.scanned_by,
		       COALESCE(u.display_name, u.email, '') AS staff_name,
		       pt.points_amount, pt.description, pt.transaction_date
		FROM point_transactions pt
		LEFT JOIN users u ON pt.scanned_by = u.id
		WHERE pt.user_id = $1
		ORDER BY pt.transaction_date DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.PointTransaction{}
	for rows.Next() {
		var t models.PointTransaction
		var scannedBy sql.NullInt64
		if err := rows.Scan(&t.ID, &t.UserID, &scannedBy, &t.StaffName,
			&t.PointsAmount, &t.Description, &t.TransactionDate); err != nil {
			return nil, err
		}
		if scannedBy.Valid {
			staffID := int(scannedBy.Int64)
			t.ScannedBy = &staffID
		}
		transactions = append(transactions, t)
	}

	return transactions, rows.Err()
}

// HTTP handlers

// GetUserPoints returns the current balance for a customer
// @Summary Get loyalty points
// @Description Get the current point balance for a user (self or staff)
// @Tags points
// @Produce json
// @Security BearerAuth
// @Param userId path int true "User ID"
// @Success 200 {object} object{return_code=string,points=models.LoyaltyPoints}
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /points/user/{userId} [get]
func (s *PointsService) GetUserPoints(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userId"))
	if err != nil || userID <= 0 {
		SendErrorResponse(w, "VALIDATION_ERROR", "Invalid user ID", http.StatusBadRequest, nil)
		return
	}

	authedID, ok := mW.UserID(r.Context())
	if !ok {
		SendErrorResponse(w, "ACCESS_DENIED", "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	if authedID != userID && !mW.IsStaff(r.Context()) {
		log.Printf("[POINTS] Access denied - user %d trying to read balance of %d", authedID, userID)
		SendErrorResponse(w, "ACCESS_DENIED", "Access denied", http.StatusForbidden, nil)
		return
	}

	points, err := s.GetOrCreateBalance(r.Context(), userID)
	if err != nil {
		SendServiceError(w, err, "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"return_code": "SUCCESS",
		"points":      points,
	})
}

// GetTransactions returns point transaction history
// @Summary Get point transaction history
// @Description Ordered newest-first history for a user (self or staff)
// @Tags points
// @Produce json
// @Security BearerAuth
// @Param userId path int true "User ID"
// @Param limit query int false "Max rows (default 50, max 100)"
// @Success 200 {object} object{return_code=string,transactions=[]models.PointTransaction}
// @Failure 403 {object} ErrorResponse
// @Router /points/transactions/{userId} [get]
func (s *PointsService) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userId"))
	if err != nil || userID <= 0 {
		SendErrorResponse(w, "VALIDATION_ERROR", "Invalid user ID", http.StatusBadRequest, nil)
		return
	}

	authedID, ok := mW.UserID(r.Context())
	if !ok {
		SendErrorResponse(w, "ACCESS_DENIED", "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	if authedID != userID && !mW.IsStaff(r.Context()) {
		log.Printf("[POINTS] Access denied - user %d trying to read history of %d", authedID, userID)
		SendErrorResponse(w, "ACCESS_DENIED", "Access denied", http.StatusForbidden, nil)
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			limit = l
		}
	}

	transactions, err := s.ListTransactions(r.Context(), userID, limit)
	if err != nil {
		log.Printf("[POINTS] Failed to fetch transactions for user %d: %v", userID, err)
		SendErrorResponse(w, "SERVER_ERROR", "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"return_code":  "SUCCESS",
		"transactions": transactions,
	})
}

// AddPointsRequest is the manual adjustment payload.
type AddPointsRequest struct {
	UserID       int    `json:"user_id" validate:"required,gt=0"`
	StaffUserID  int    `json:"staff_user_id" validate:"required,gt=0"`
	PointsAmount int    `json:"points_amount" validate:"required"`
	Description  string `json:"description"`
}

// AddPoints applies a signed manual adjustment
// @Summary Add or deduct points
// @Description Staff-only manual adjustment through the signed-delta primitive
// @Tags points
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body AddPointsRequest true "Adjustment request"
// @Success 200 {object} object{return_code=string,new_total=int}
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /points/add [post]
func (s *PointsService) AddPoints(w http.ResponseWriter, r *http.Request) {
	staffID, ok := mW.UserID(r.Context())
	if !ok {
		SendErrorResponse(w, "ACCESS_DENIED", "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req AddPointsRequest

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

	if req.StaffUserID != staffID {
		log.Printf("[POINTS] Staff ID mismatch - auth: %d, provided: %d", staffID, req.StaffUserID)
		SendErrorResponse(w, "ACCESS_DENIED", "Staff user ID mismatch", http.StatusForbidden, nil)
		return
	}

	description := req.Description
	if description == "" {
		description = "Points adjusted by staff"
	}

	ref := s.audit.NewReference()
	newTotal, err := s.ApplyDelta(r.Context(), req.UserID, &staffID, req.PointsAmount, description)
	if err != nil {
		if !errors.Is(err, ErrValidation) {
			s.audit.LogError(ref, req.UserID, err)
		}
		SendServiceError(w, err, "")
		return
	}

	if req.PointsAmount > 0 {
		s.audit.LogCredit(ref, req.UserID, staffID, req.PointsAmount, newTotal)
	} else {
		s.audit.LogDebit(ref, req.UserID, staffID, -req.PointsAmount, newTotal, "")
	}

	log.Printf("[POINTS] Applied delta %d to user %d by staff %d, new total: %d",
		req.PointsAmount, req.UserID, staffID, newTotal)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"return_code": "SUCCESS",
		"message":     "Points adjusted successfully",
		"new_total":   newTotal,
	})
}
