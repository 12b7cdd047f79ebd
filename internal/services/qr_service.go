package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"image/png"
	"log"
	"math/big"
	"regexp"
	"strconv"

	"github.com/gingerloyalty/backend/internal/config"
	"github.com/gingerloyalty/backend/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
)

// Canonical token scheme: "{userID}_{5-digit-suffix}". The suffix makes a
// token non-guessable from a bare user id while keeping decode a pure string
// operation. Tokens are created lazily, one per customer, never rotated.
var qrTokenPattern = regexp.MustCompile(`^(\d+)_(\d{5})$`)

// ScannedCustomer is the identity resolved from a scanned token.
type ScannedCustomer struct {
	UserID   int    `json:"user_id"`
	UserName string `json:"user_name"`
	Email    string `json:"email"`
}

type QRService struct {
	db     *sql.DB
	redis  *redis.Client
	config *config.LoyaltyConfig
}

func NewQRService(db *sql.DB, redisClient *redis.Client, cfg *config.LoyaltyConfig) *QRService {
	return &QRService{
		db:     db,
		redis:  redisClient,
		config: cfg,
	}
}

// EncodeToken builds a fresh token for a customer.
func EncodeToken(userID int) string {
	n, err := rand.Int(rand.Reader, big.NewInt(100000))
	if err != nil {
		// crypto/rand only fails when the platform source is broken
		panic(fmt.Sprintf("qr token suffix: %v", err))
	}
	return fmt.Sprintf("%d_%05d", userID, n.Int64())
}

// DecodeToken extracts the customer id from token data. Malformed input
// returns ErrInvalidQR, never a panic.
func DecodeToken(data string) (int, error) {
	match := qrTokenPattern.FindStringSubmatch(data)
	if match == nil {
		return 0, fmt.Errorf("malformed token %q: %w", data, ErrInvalidQR)
	}
	userID, err := strconv.Atoi(match[1])
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("bad user id in token %q: %w", data, ErrInvalidQR)
	}
	return userID, nil
}

// GetOrCreateToken returns the customer's token row, minting one on first
// access.
func (s *QRService) GetOrCreateToken(ctx context.Context, userID int) (*models.UserQRCode, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}

	code := &models.UserQRCode{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, qr_code_data FROM user_qr_codes WHERE user_id = $1
	`, userID).Scan(&code.ID, &code.UserID, &code.QRCodeData)

	if err == sql.ErrNoRows {
		tokenData := EncodeToken(userID)
		err = s.db.QueryRowContext(ctx, `
			INSERT INTO user_qr_codes (user_id, qr_code_data)
			VALUES ($1, $2)
			RETURNING id, user_id, qr_code_data
		`, userID, tokenData).Scan(&code.ID, &code.UserID, &code.QRCodeData)
		if err == nil {
			log.Printf("[QR] Created token for user %d", userID)
		}
	}
	if err != nil {
		return nil, err
	}

	return code, nil
}

// ResolveToken validates token format, verifies it against the stored row and
// returns the customer identity. Staff tokens are never scannable.
func (s *QRService) ResolveToken(ctx context.Context, qrData string) (*ScannedCustomer, error) {
	userID, err := DecodeToken(qrData)
	if err != nil {
		return nil, err
	}

	var (
		stored   string
		customer ScannedCustomer
		staff    bool
		name     sql.NullString
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT uqr.qr_code_data, u.id, COALESCE(u.display_name, ''), u.email, u.staff
		FROM user_qr_codes uqr
		JOIN users u ON uqr.user_id = u.id
		WHERE uqr.user_id = $1
	`, userID).Scan(&stored, &customer.UserID, &name, &customer.Email, &staff)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no token registered for user %d: %w", userID, ErrInvalidQR)
	}
	if err != nil {
		return nil, err
	}

	if stored != qrData {
		log.Printf("[QR] Token mismatch for user %d", userID)
		return nil, fmt.Errorf("token does not match registered token: %w", ErrInvalidQR)
	}
	if staff {
		log.Printf("[QR] Refusing to scan staff account %d", userID)
		return nil, fmt.Errorf("staff accounts cannot be scanned: %w", ErrInvalidQR)
	}

	customer.UserName = name.String
	if customer.UserName == "" {
		customer.UserName = customer.Email
	}

	return &customer, nil
}

// RenderPNG renders token data as a base64 PNG, cached in Redis when
// available.
func (s *QRService) RenderPNG(ctx context.Context, tokenData string) (string, error) {
	key := fmt.Sprintf("qr:img:%s", tokenData)

	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, key).Result(); err == nil {
			return cached, nil
		}
	}

	qr, err := qrcode.New(tokenData, qrcode.Medium)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(s.config.QRImageSize)); err != nil {
		return "", err
	}

	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())

	if s.redis != nil {
		if err := s.redis.Set(ctx, key, encoded, s.config.QRImageCacheTTL).Err(); err != nil {
			log.Printf("[QR] Failed to cache image: %v", err)
		}
	}

	return encoded, nil
}
