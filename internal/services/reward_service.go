package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gingerloyalty/backend/internal/models"
	"github.com/go-chi/chi/v5"
)

// RewardService is the reward matcher plus the admin-facing catalog CRUD.
// Deletion is always a soft deactivate so historical redemptions keep a valid
// reference.
type RewardService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewRewardService(db *sql.DB) *RewardService {
	return &RewardService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

const rewardColumns = `id, name, description, points_required, is_active, created_at, updated_at`

func scanReward(row interface{ Scan(...any) error }) (*models.Reward, error) {
	var r models.Reward
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.PointsRequired, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// AvailableRewards returns the active rewards a balance can cover, cheapest
// first so the most attainable reward is always suggested before expensive
// ones.
func (s *RewardService) AvailableRewards(ctx context.Context, balance int) ([]models.Reward, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+rewardColumns+` FROM rewards
		WHERE is_active = true AND points_required <= $1
		ORDER BY points_required ASC
	`, balance)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rewards := []models.Reward{}
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		rewards = append(rewards, *r)
	}

	return rewards, rows.Err()
}

// SingleBestReward returns the cheapest affordable active reward, or nil.
func (s *RewardService) SingleBestReward(ctx context.Context, balance int) (*models.Reward, error) {
	reward, err := scanReward(s.db.QueryRowContext(ctx, `
		SELECT `+rewardColumns+` FROM rewards
		WHERE is_active = true AND points_required <= $1
		ORDER BY points_required ASC
		LIMIT 1
	`, balance))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return reward, err
}

// GetActiveReward returns an active reward by id; inactive rewards are
// treated as not found for redemption purposes.
func (s *RewardService) GetActiveReward(ctx context.Context, rewardID int) (*models.Reward, error) {
	reward, err := scanReward(s.db.QueryRowContext(ctx, `
		SELECT `+rewardColumns+` FROM rewards
		WHERE id = $1 AND is_active = true
	`, rewardID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("reward %d: %w", rewardID, ErrNotFound)
	}
	return reward, err
}

// ListActiveRewards returns the customer-visible catalog.
func (s *RewardService) ListActiveRewards(ctx context.Context) ([]models.Reward, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+rewardColumns+` FROM rewards
		WHERE is_active = true
		ORDER BY points_required ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rewards := []models.Reward{}
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		rewards = append(rewards, *r)
	}

	return rewards, rows.Err()
}

// ListAllRewards includes deactivated entries, for the admin dashboard.
func (s *RewardService) ListAllRewards(ctx context.Context) ([]models.Reward, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+rewardColumns+` FROM rewards
		ORDER BY points_required ASC, created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rewards := []models.Reward{}
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		rewards = append(rewards, *r)
	}

	return rewards, rows.Err()
}

func (s *RewardService) CreateReward(ctx context.Context, name, description string, pointsRequired int) (*models.Reward, error) {
	if pointsRequired < 1 {
		return nil, fmt.Errorf("points_required must be at least 1: %w", ErrValidation)
	}
	return scanReward(s.db.QueryRowContext(ctx, `
		INSERT INTO rewards (name, description, points_required, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, true, NOW(), NOW())
		RETURNING `+rewardColumns+`
	`, name, description, pointsRequired))
}

func (s *RewardService) UpdateReward(ctx context.Context, rewardID int, name, description string, pointsRequired int, isActive bool) (*models.Reward, error) {
	if pointsRequired < 1 {
		return nil, fmt.Errorf("points_required must be at least 1: %w", ErrValidation)
	}
	reward, err := scanReward(s.db.QueryRowContext(ctx, `
		UPDATE rewards
		SET name = $1, description = $2, points_required = $3, is_active = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING `+rewardColumns+`
	`, name, description, pointsRequired, isActive, rewardID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("reward %d: %w", rewardID, ErrNotFound)
	}
	return reward, err
}

// DeactivateReward soft-deletes a reward.
func (s *RewardService) DeactivateReward(ctx context.Context, rewardID int) (*models.Reward, error) {
	reward, err := scanReward(s.db.QueryRowContext(ctx, `
		UPDATE rewards SET is_active = false, updated_at = NOW()
		WHERE id = $1
		RETURNING `+rewardColumns+`
	`, rewardID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("reward %d: %w", rewardID, ErrNotFound)
	}
	return reward, err
}

// HTTP handlers

// GetRewards lists active rewards
// @Summary List active rewards
// @Tags rewards
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{return_code=string,rewards=[]models.Reward}
// @Router /rewards [get]
func (s *RewardService) GetRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := s.ListActiveRewards(r.Context())
	if err != nil {
		log.Printf("[REWARD] Failed to list active rewards: %v", err)
		SendErrorResponse(w, "SERVER_ERROR", "Failed to fetch rewards", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"return_code": "SUCCESS",
		"rewards":     rewards,
	})
}

// GetAvailableReward returns the best reward for a point total
// @Summary Best available reward
// @Tags rewards
// @Produce json
// @Security BearerAuth
// @Param userPoints path int true "Point total"
// @Success 200 {object} object{return_code=string,reward=models.Reward}
// @Failure 400 {object} ErrorResponse
// @Router /rewards/available/{userPoints} [get]
func (s *RewardService) GetAvailableReward(w http.ResponseWriter, r *http.Request) {
	points, err := strconv.Atoi(chi.URLParam(r, "userPoints"))
	if err != nil || points < 0 {
		SendErrorResponse(w, "VALIDATION_ERROR", "Invalid points value", http.StatusBadRequest, nil)
		return
	}

	reward, err := s.SingleBestReward(r.Context(), points)
	if err != nil {
		log.Printf("[REWARD] Failed to find available reward for %d points: %v", points, err)
		SendErrorResponse(w, "SERVER_ERROR", "Failed to fetch reward", http.StatusInternalServerError, nil)
		return
	}

	message := "No available rewards"
	if reward != nil {
		message = "Available reward found"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"return_code": "SUCCESS",
		"message":     message,
		"reward":      reward,
	})
}

// GetAllRewards lists every reward including deactivated ones
// @Summary List all rewards (admin)
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{return_code=string,rewards=[]models.Reward}
// @Router /rewards/all [get]
func (s *RewardService) GetAllRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := s.ListAllRewards(r.Context())
	if err != nil {
		log.Printf("[REWARD] Failed to list all rewards: %v", err)
		SendErrorResponse(w, "SERVER_ERROR", "Failed to fetch rewards", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"return_code": "SUCCESS",
		"rewards":     rewards,
	})
}

// RewardRequest is the admin create/update payload.
type RewardRequest struct {
	Name           string `json:"name" validate:"required,min=2"`
	Description    string `json:"description"`
	PointsRequired int    `json:"points_required" validate:"required,gte=1"`
	IsActive       *bool  `json:"is_active"`
}

// PostReward creates a reward
// @Summary Create reward (admin)
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RewardRequest true "Reward"
// @Success 201 {object} object{return_code=string,reward=models.Reward}
// @Failure 400 {object} ErrorResponse
// @Router /rewards [post]
func (s *RewardService) PostReward(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRewardRequest(w, r)
	if !ok {
		return
	}

	reward, err := s.CreateReward(r.Context(), req.Name, req.Description, req.PointsRequired)
	if err != nil {
		log.Printf("[REWARD] Create failed: %v", err)
		SendServiceError(w, err, "Failed to create reward")
		return
	}

	log.Printf("[REWARD] Created reward %d (%s, %d points)", reward.ID, reward.Name, reward.PointsRequired)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"return_code": "SUCCESS",
		"reward":      reward,
	})
}

// PutReward updates a reward
// @Summary Update reward (admin)
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param rewardId path int true "Reward ID"
// @Param request body RewardRequest true "Reward"
// @Success 200 {object} object{return_code=string,reward=models.Reward}
// @Failure 404 {object} ErrorResponse
// @Router /rewards/{rewardId} [put]
func (s *RewardService) PutReward(w http.ResponseWriter, r *http.Request) {
	rewardID, err := strconv.Atoi(chi.URLParam(r, "rewardId"))
	if err != nil || rewardID <= 0 {
		SendErrorResponse(w, "VALIDATION_ERROR", "Invalid reward ID", http.StatusBadRequest, nil)
		return
	}

	req, ok := s.decodeRewardRequest(w, r)
	if !ok {
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	reward, err := s.UpdateReward(r.Context(), rewardID, req.Name, req.Description, req.PointsRequired, isActive)
	if err != nil {
		SendServiceError(w, err, "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"return_code": "SUCCESS",
		"reward":      reward,
	})
}

// DeleteReward deactivates a reward
// @Summary Deactivate reward (admin)
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param rewardId path int true "Reward ID"
// @Success 200 {object} object{return_code=string,reward=models.Reward}
// @Failure 404 {object} ErrorResponse
// @Router /rewards/{rewardId} [delete]
func (s *RewardService) DeleteReward(w http.ResponseWriter, r *http.Request) {
	rewardID, err := strconv.Atoi(chi.URLParam(r, "rewardId"))
	if err != nil || rewardID <= 0 {
		SendErrorResponse(w, "VALIDATION_ERROR", "Invalid reward ID", http.StatusBadRequest, nil)
		return
	}

	reward, err := s.DeactivateReward(r.Context(), rewardID)
	if err != nil {
		SendServiceError(w, err, "")
		return
	}

	log.Printf("[REWARD] Deactivated reward %d (%s)", reward.ID, reward.Name)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"return_code": "SUCCESS",
		"reward":      reward,
	})
}

func (s *RewardService) decodeRewardRequest(w http.ResponseWriter, r *http.Request) (*RewardRequest, bool) {
	var req RewardRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "VALIDATION_ERROR", "Invalid request body", http.StatusBadRequest, nil)
		return nil, false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "VALIDATION_ERROR", "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return nil, false
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "VALIDATION_ERROR", "Validation failed", http.StatusBadRequest, err)
		return nil, false
	}

	return &req, true
}
