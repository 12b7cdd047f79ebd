package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"image/png"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
)

func TestTokenRoundTrip(t *testing.T) {
	for _, userID := range []int{1, 42, 90210} {
		token := EncodeToken(userID)
		assert.Regexp(t, `^\d+_\d{5}$`, token)

		decoded, err := DecodeToken(token)
		assert.NoError(t, err)
		assert.Equal(t, userID, decoded)
	}
}

func TestDecodeToken_Malformed(t *testing.T) {
	cases := []string{
		"",
		"42",
		"42_123",
		"42_123456",
		"abc_12345",
		"42_12a45",
		"0_12345",
		" 42_12345",
	}

	for _, data := range cases {
		t.Run(fmt.Sprintf("%q", data), func(t *testing.T) {
			_, err := DecodeToken(data)
			assert.ErrorIs(t, err, ErrInvalidQR)
		})
	}
}

func TestQRService_GetOrCreateToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewQRService(db, nil, testLoyaltyConfig())

	t.Run("existing token", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM users WHERE id = \\$1\\)").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		mock.ExpectQuery("SELECT id, user_id, qr_code_data FROM user_qr_codes").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "qr_code_data"}).
				AddRow(3, 7, "7_12345"))

		code, err := service.GetOrCreateToken(context.Background(), 7)
		assert.NoError(t, err)
		assert.Equal(t, "7_12345", code.QRCodeData)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mints a token on first access", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM users WHERE id = \\$1\\)").
			WithArgs(8).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		mock.ExpectQuery("SELECT id, user_id, qr_code_data FROM user_qr_codes").
			WithArgs(8).
			WillReturnError(sql.ErrNoRows)

		mock.ExpectQuery("INSERT INTO user_qr_codes").
			WithArgs(8, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "qr_code_data"}).
				AddRow(4, 8, "8_54321"))

		code, err := service.GetOrCreateToken(context.Background(), 8)
		assert.NoError(t, err)
		assert.Equal(t, 8, code.UserID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown user", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM users WHERE id = \\$1\\)").
			WithArgs(99).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := service.GetOrCreateToken(context.Background(), 99)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestQRService_ResolveToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewQRService(db, nil, testLoyaltyConfig())
	columns := []string{"qr_code_data", "id", "display_name", "email", "staff"}

	t.Run("resolves a customer", func(t *testing.T) {
		mock.ExpectQuery("FROM user_qr_codes uqr").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("7_12345", 7, "Jane", "jane@example.com", false))

		customer, err := service.ResolveToken(context.Background(), "7_12345")
		assert.NoError(t, err)
		assert.Equal(t, 7, customer.UserID)
		assert.Equal(t, "Jane", customer.UserName)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("falls back to email when name is empty", func(t *testing.T) {
		mock.ExpectQuery("FROM user_qr_codes uqr").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("7_12345", 7, "", "jane@example.com", false))

		customer, err := service.ResolveToken(context.Background(), "7_12345")
		assert.NoError(t, err)
		assert.Equal(t, "jane@example.com", customer.UserName)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stored token mismatch", func(t *testing.T) {
		mock.ExpectQuery("FROM user_qr_codes uqr").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("7_99999", 7, "Jane", "jane@example.com", false))

		_, err := service.ResolveToken(context.Background(), "7_12345")
		assert.ErrorIs(t, err, ErrInvalidQR)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("staff tokens are not scannable", func(t *testing.T) {
		mock.ExpectQuery("FROM user_qr_codes uqr").
			WithArgs(5).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("5_12345", 5, "Alex", "alex@example.com", true))

		_, err := service.ResolveToken(context.Background(), "5_12345")
		assert.ErrorIs(t, err, ErrInvalidQR)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no registered token", func(t *testing.T) {
		mock.ExpectQuery("FROM user_qr_codes uqr").
			WithArgs(7).
			WillReturnError(sql.ErrNoRows)

		_, err := service.ResolveToken(context.Background(), "7_12345")
		assert.ErrorIs(t, err, ErrInvalidQR)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("malformed data never reaches the store", func(t *testing.T) {
		_, err := service.ResolveToken(context.Background(), "not-a-token")
		assert.ErrorIs(t, err, ErrInvalidQR)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func renderExpectedPNG(t *testing.T, tokenData string, size int) string {
	t.Helper()
	qr, err := qrcode.New(tokenData, qrcode.Medium)
	assert.NoError(t, err)
	var buf bytes.Buffer
	assert.NoError(t, png.Encode(&buf, qr.Image(size)))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestQRService_RenderPNG(t *testing.T) {
	cfg := testLoyaltyConfig()

	t.Run("renders without redis", func(t *testing.T) {
		service := NewQRService(nil, nil, cfg)

		encoded, err := service.RenderPNG(context.Background(), "7_12345")
		assert.NoError(t, err)
		assert.Equal(t, renderExpectedPNG(t, "7_12345", cfg.QRImageSize), encoded)
	})

	t.Run("caches renders in redis", func(t *testing.T) {
		redisClient, redisMock := redismock.NewClientMock()
		service := NewQRService(nil, redisClient, cfg)

		expected := renderExpectedPNG(t, "7_12345", cfg.QRImageSize)
		redisMock.ExpectGet("qr:img:7_12345").RedisNil()
		redisMock.ExpectSet("qr:img:7_12345", expected, cfg.QRImageCacheTTL).SetVal("OK")

		encoded, err := service.RenderPNG(context.Background(), "7_12345")
		assert.NoError(t, err)
		assert.Equal(t, expected, encoded)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("serves from cache", func(t *testing.T) {
		redisClient, redisMock := redismock.NewClientMock()
		service := NewQRService(nil, redisClient, cfg)

		redisMock.ExpectGet("qr:img:7_12345").SetVal("cached-image")

		encoded, err := service.RenderPNG(context.Background(), "7_12345")
		assert.NoError(t, err)
		assert.Equal(t, "cached-image", encoded)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}
