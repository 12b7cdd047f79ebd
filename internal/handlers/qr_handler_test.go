package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gingerloyalty/backend/internal/config"
	"github.com/gingerloyalty/backend/internal/middleware"
	"github.com/gingerloyalty/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func newHandlerFixture(t *testing.T) (*QRHandler, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	cfg := &config.LoyaltyConfig{
		ScanCooldown:       15 * time.Second,
		ScanCreditPoints:   1,
		HistoryLimit:       50,
		MaxHistoryLimit:    100,
		QRImageSize:        64,
		QRImageCacheTTL:    time.Hour,
		StoreRetryAttempts: 1,
		StoreRetryBackoff:  time.Millisecond,
	}
	points := services.NewPointsService(db, cfg)
	rewards := services.NewRewardService(db)
	qr := services.NewQRService(db, nil, cfg)
	scan := services.NewScanService(points, rewards, qr, cfg)
	return NewQRHandler(qr, scan), mock, func() { db.Close() }
}

func authedRequest(r *http.Request, userID int, staff bool) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.UserIDKey, userID)
	ctx = context.WithValue(ctx, middleware.IsStaffKey, staff)
	return r.WithContext(ctx)
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestQRHandler_GetUserQR(t *testing.T) {
	t.Run("customers cannot read another user's code", func(t *testing.T) {
		handler, mock, cleanup := newHandlerFixture(t)
		defer cleanup()

		req := httptest.NewRequest("GET", "/api/v1/qr/user/7", nil)
		req = authedRequest(req, 9, false)
		req = withURLParam(req, "userId", "7")
		w := httptest.NewRecorder()

		handler.GetUserQR(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("staff can read any code", func(t *testing.T) {
		handler, mock, cleanup := newHandlerFixture(t)
		defer cleanup()

		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM users WHERE id = \\$1\\)").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery("SELECT id, user_id, qr_code_data FROM user_qr_codes").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "qr_code_data"}).
				AddRow(3, 7, "7_12345"))

		req := httptest.NewRequest("GET", "/api/v1/qr/user/7", nil)
		req = authedRequest(req, 5, true)
		req = withURLParam(req, "userId", "7")
		w := httptest.NewRecorder()

		handler.GetUserQR(w, req)
		assert.Equal(t, http.StatusOK, w.Code)

		var resp map[string]any
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "SUCCESS", resp["return_code"])
		assert.NotEmpty(t, resp["qr_image"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid user id", func(t *testing.T) {
		handler, _, cleanup := newHandlerFixture(t)
		defer cleanup()

		req := httptest.NewRequest("GET", "/api/v1/qr/user/abc", nil)
		req = authedRequest(req, 5, true)
		req = withURLParam(req, "userId", "abc")
		w := httptest.NewRecorder()

		handler.GetUserQR(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestQRHandler_ValidateQR(t *testing.T) {
	t.Run("resolves a valid token", func(t *testing.T) {
		handler, mock, cleanup := newHandlerFixture(t)
		defer cleanup()

		mock.ExpectQuery("FROM user_qr_codes uqr").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"qr_code_data", "id", "display_name", "email", "staff"}).
				AddRow("7_12345", 7, "Jane", "jane@example.com", false))

		body := strings.NewReader(`{"qr_code_data":"7_12345"}`)
		req := authedRequest(httptest.NewRequest("POST", "/api/v1/qr/validate", body), 5, true)
		w := httptest.NewRecorder()

		handler.ValidateQR(w, req)
		assert.Equal(t, http.StatusOK, w.Code)

		var resp map[string]any
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "SUCCESS", resp["return_code"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("malformed token data", func(t *testing.T) {
		handler, mock, cleanup := newHandlerFixture(t)
		defer cleanup()

		body := strings.NewReader(`{"qr_code_data":"garbage"}`)
		req := authedRequest(httptest.NewRequest("POST", "/api/v1/qr/validate", body), 5, true)
		w := httptest.NewRecorder()

		handler.ValidateQR(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp services.ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "INVALID_QR_CODE", resp.ReturnCode)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		handler, _, cleanup := newHandlerFixture(t)
		defer cleanup()

		body := strings.NewReader(`{"qr_code_data":"7_12345","extra":true}`)
		req := authedRequest(httptest.NewRequest("POST", "/api/v1/qr/validate", body), 5, true)
		w := httptest.NewRecorder()

		handler.ValidateQR(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestQRHandler_CanScan(t *testing.T) {
	t.Run("staff id must match the authenticated user", func(t *testing.T) {
		handler, mock, cleanup := newHandlerFixture(t)
		defer cleanup()

		body := strings.NewReader(`{"qr_code_data":"7_12345","staff_user_id":99}`)
		req := authedRequest(httptest.NewRequest("POST", "/api/v1/points/can-scan", body), 5, true)
		w := httptest.NewRecorder()

		handler.CanScan(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports cooldown state", func(t *testing.T) {
		handler, mock, cleanup := newHandlerFixture(t)
		defer cleanup()

		mock.ExpectQuery("FROM user_qr_codes uqr").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"qr_code_data", "id", "display_name", "email", "staff"}).
				AddRow("7_12345", 7, "Jane", "jane@example.com", false))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(7, 5, float64(15)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		body := strings.NewReader(`{"qr_code_data":"7_12345","staff_user_id":5}`)
		req := authedRequest(httptest.NewRequest("POST", "/api/v1/points/can-scan", body), 5, true)
		w := httptest.NewRecorder()

		handler.CanScan(w, req)
		assert.Equal(t, http.StatusOK, w.Code)

		var resp map[string]any
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, false, resp["can_scan"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestQRHandler_RedeemReward(t *testing.T) {
	t.Run("missing user id", func(t *testing.T) {
		handler, _, cleanup := newHandlerFixture(t)
		defer cleanup()

		body := strings.NewReader(`{"reward_id":2}`)
		req := authedRequest(httptest.NewRequest("POST", "/api/v1/qr/redeem-reward", body), 5, true)
		w := httptest.NewRecorder()

		handler.RedeemReward(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("insufficient points surfaces as conflict", func(t *testing.T) {
		handler, mock, cleanup := newHandlerFixture(t)
		defer cleanup()

		now := time.Now()
		mock.ExpectQuery("WHERE id = \\$1 AND is_active = true").
			WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "points_required", "is_active", "created_at", "updated_at"}).
				AddRow(2, "Latte", "Any size", 10, true, now, now))
		mock.ExpectQuery("SELECT staff FROM users WHERE id = \\$1").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"staff"}).AddRow(false))
		mock.ExpectQuery("SELECT id, user_id, current_points, last_updated").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "current_points", "last_updated"}).
				AddRow(1, 7, 3, now))

		body := strings.NewReader(`{"user_id":7,"reward_id":2}`)
		req := authedRequest(httptest.NewRequest("POST", "/api/v1/qr/redeem-reward", body), 5, true)
		w := httptest.NewRecorder()

		handler.RedeemReward(w, req)
		assert.Equal(t, http.StatusConflict, w.Code)

		var resp services.ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "CONFLICT", resp.ReturnCode)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
