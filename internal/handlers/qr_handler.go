package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gingerloyalty/backend/internal/middleware"
	"github.com/gingerloyalty/backend/internal/services"
	"github.com/go-chi/chi/v5"
)

type QRHandler struct {
	qr        *services.QRService
	scan      *services.ScanService
	validator *services.ValidationHelper
}

func NewQRHandler(qr *services.QRService, scan *services.ScanService) *QRHandler {
	return &QRHandler{
		qr:        qr,
		scan:      scan,
		validator: services.NewValidationHelper(),
	}
}

// GetUserQR returns a customer's loyalty token and rendered image
// @Summary Get QR code
// @Description Token for a user (self or staff), with base64 PNG
// @Tags qr
// @Produce json
// @Security BearerAuth
// @Param userId path int true "User ID"
// @Success 200 {object} object{return_code=string,qr_code=models.UserQRCode,qr_image=string}
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /qr/user/{userId} [get]
func (h *QRHandler) GetUserQR(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userId"))
	if err != nil || userID <= 0 {
		services.SendErrorResponse(w, "VALIDATION_ERROR", "Invalid user ID", http.StatusBadRequest, nil)
		return
	}

	authedID, ok := middleware.UserID(r.Context())
	if !ok {
		services.SendErrorResponse(w, "ACCESS_DENIED", "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	if authedID != userID && !middleware.IsStaff(r.Context()) {
		services.SendErrorResponse(w, "ACCESS_DENIED", "You can only access your own QR code", http.StatusForbidden, nil)
		return
	}

	code, err := h.qr.GetOrCreateToken(r.Context(), userID)
	if err != nil {
		services.SendServiceError(w, err, "")
		return
	}

	image, err := h.qr.RenderPNG(r.Context(), code.QRCodeData)
	if err != nil {
		log.Printf("[QR] Failed to render image for user %d: %v", userID, err)
		services.SendErrorResponse(w, "SERVER_ERROR", "Failed to render QR code", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"return_code": "SUCCESS",
		"qr_code":     code,
		"qr_image":    image,
	})
}

type qrDataRequest struct {
	QRCodeData string `json:"qr_code_data" validate:"required"`
}

// ValidateQR resolves a scanned token to a customer
// @Summary Validate QR code
// @Description Staff-only: resolve token data to customer identity
// @Tags qr
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{qr_code_data=string} true "Token data"
// @Success 200 {object} object{return_code=string,user=services.ScannedCustomer}
// @Failure 400 {object} services.ErrorResponse
// @Router /qr/validate [post]
func (h *QRHandler) ValidateQR(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeQRDataRequest(w, r)
	if !ok {
		return
	}

	customer, err := h.qr.ResolveToken(r.Context(), req.QRCodeData)
	if err != nil {
		services.SendServiceError(w, err, "Invalid QR code or user not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"return_code": "SUCCESS",
		"message":     "QR code is valid",
		"user":        customer,
	})
}

// ScanQR runs the scan flow: cooldown check, then credit or reward offer
// @Summary Scan QR code
// @Description Staff-only: credit a point or offer eligible rewards
// @Tags qr
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{qr_code_data=string} true "Token data"
// @Success 200 {object} services.ScanResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /qr/scan [post]
func (h *QRHandler) ScanQR(w http.ResponseWriter, r *http.Request) {
	staffID, ok := middleware.UserID(r.Context())
	if !ok {
		services.SendErrorResponse(w, "ACCESS_DENIED", "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	req, ok := h.decodeQRDataRequest(w, r)
	if !ok {
		return
	}

	result, err := h.scan.Scan(r.Context(), req.QRCodeData, staffID)
	if err != nil {
		services.SendServiceError(w, err, "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"return_code":       "SUCCESS",
		"message":           result.Message,
		"user_id":           result.UserID,
		"user_name":         result.UserName,
		"current_points":    result.CurrentPoints,
		"reward_eligible":   result.RewardEligible,
		"multiple_rewards":  result.MultipleRewards,
		"reward":            result.Reward,
		"available_rewards": result.AvailableReward,
		"new_total":         result.NewTotal,
	})
}

// CanScan is the cooldown pre-check
// @Summary Check scan cooldown
// @Description Staff-only: whether the cooldown window allows a scan
// @Tags points
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{qr_code_data=string,staff_user_id=int} true "Pre-check request"
// @Success 200 {object} object{return_code=string,can_scan=bool}
// @Failure 400 {object} services.ErrorResponse
// @Router /points/can-scan [post]
func (h *QRHandler) CanScan(w http.ResponseWriter, r *http.Request) {
	staffID, ok := middleware.UserID(r.Context())
	if !ok {
		services.SendErrorResponse(w, "ACCESS_DENIED", "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		QRCodeData  string `json:"qr_code_data" validate:"required"`
		StaffUserID int    `json:"staff_user_id" validate:"required,gt=0"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "VALIDATION_ERROR", "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "VALIDATION_ERROR", "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "VALIDATION_ERROR", "Validation failed", http.StatusBadRequest, err)
		return
	}

	if req.StaffUserID != staffID {
		log.Printf("[QR] Staff ID mismatch in can-scan - auth: %d, provided: %d", staffID, req.StaffUserID)
		services.SendErrorResponse(w, "ACCESS_DENIED", "Staff user ID mismatch", http.StatusForbidden, nil)
		return
	}

	canScan, err := h.scan.CanScan(r.Context(), req.QRCodeData, staffID)
	if err != nil {
		services.SendServiceError(w, err, "")
		return
	}

	message := "Scan allowed"
	if !canScan {
		message = "QR code scanned too recently"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"return_code": "SUCCESS",
		"can_scan":    canScan,
		"message":     message,
	})
}

// RedeemReward confirms a redemption
// @Summary Redeem reward
// @Description Staff-only: debit points for a reward after an offer. Omitting
// reward_id redeems the cheapest affordable reward.
// @Tags qr
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{user_id=int,reward_id=int} true "Redemption request"
// @Success 200 {object} services.RedeemResult
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /qr/redeem-reward [post]
func (h *QRHandler) RedeemReward(w http.ResponseWriter, r *http.Request) {
	staffID, ok := middleware.UserID(r.Context())
	if !ok {
		services.SendErrorResponse(w, "ACCESS_DENIED", "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		UserID   int `json:"user_id" validate:"required,gt=0"`
		RewardID int `json:"reward_id" validate:"omitempty,gt=0"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "VALIDATION_ERROR", "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "VALIDATION_ERROR", "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "VALIDATION_ERROR", "Validation failed", http.StatusBadRequest, err)
		return
	}

	var (
		result *services.RedeemResult
		err    error
	)
	if req.RewardID > 0 {
		result, err = h.scan.RedeemSpecific(r.Context(), req.UserID, staffID, req.RewardID)
	} else {
		result, err = h.scan.RedeemBest(r.Context(), req.UserID, staffID)
	}
	if err != nil {
		services.SendServiceError(w, err, "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"return_code": "SUCCESS",
		"message":     result.Message,
		"reward":      result.Reward,
		"new_total":   result.NewTotal,
	})
}

func (h *QRHandler) decodeQRDataRequest(w http.ResponseWriter, r *http.Request) (*qrDataRequest, bool) {
	var req qrDataRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "VALIDATION_ERROR", "Invalid request body", http.StatusBadRequest, nil)
		return nil, false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "VALIDATION_ERROR", "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return nil, false
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "VALIDATION_ERROR", "Validation failed", http.StatusBadRequest, err)
		return nil, false
	}

	return &req, true
}
