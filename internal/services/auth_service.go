package services

import (
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	mW "github.com/gingerloyalty/backend/internal/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"
)

type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *validator.Validate
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"jane@example.com"` // User email
	Password string `json:"password" validate:"required,min=6" example:"password123"`   // User password
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email" example:"jane@example.com"` // User email address
	Password    string `json:"password" validate:"required,min=6" example:"password123"`   // User password
	DisplayName string `json:"display_name" validate:"required,min=2" example:"Jane"`      // Name shown in the app
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	ReturnCode string      `json:"return_code" example:"SUCCESS"`
	Token      string      `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."` // JWT token
	User       AccountInfo `json:"user"`                                                    // User information
}

// AccountInfo is the authenticated user's public profile.
type AccountInfo struct {
	ID          int    `json:"id" example:"1"`
	Email       string `json:"email" example:"jane@example.com"`
	DisplayName string `json:"display_name" example:"Jane"`
	Staff       bool   `json:"staff" example:"false"`
}

func NewAuthService(db *sql.DB, redisClient *redis.Client) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		validator: validator.New(),
	}
}

// Register handles user registration
// @Summary Register a new user
// @Description Register a new customer account. New accounts are never staff.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 200 {object} AuthResponse "Registration successful"
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req RegisterRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "VALIDATION_ERROR", "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "VALIDATION_ERROR", "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[AUTH] Registration validation failed: %v", err)
		SendErrorResponse(w, "VALIDATION_ERROR", "Validation failed", http.StatusBadRequest, err)
		return
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "SERVER_ERROR", "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	var userID int
	err = s.db.QueryRow(`
		INSERT INTO users (email, password, display_name, staff, created_at)
		VALUES ($1, $2, $3, false, NOW())
		RETURNING id
	`, strings.ToLower(req.Email), hashedPassword, req.DisplayName).Scan(&userID)
	if err != nil {
		log.Printf("[AUTH] User creation failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "CONFLICT", "Email Already Exists", http.StatusConflict, nil)
		return
	}

	log.Printf("[AUTH] User created successfully - ID: %d, Email: %s", userID, req.Email)

	token, err := generateJWT(userID, false)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %d: %v", userID, err)
		SendErrorResponse(w, "SERVER_ERROR", "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	response := AuthResponse{
		ReturnCode: "SUCCESS",
		Token:      token,
		User: AccountInfo{
			ID:          userID,
			Email:       strings.ToLower(req.Email),
			DisplayName: req.DisplayName,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Login handles user authentication
// @Summary Login user
// @Description Authenticate with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "VALIDATION_ERROR", "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "VALIDATION_ERROR", "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "VALIDATION_ERROR", "Validation failed", http.StatusBadRequest, err)
		return
	}

	var (
		user           AccountInfo
		hashedPassword string
		displayName    sql.NullString
	)
	err := s.db.QueryRow(`
		SELECT id, email, display_name, staff, password FROM users WHERE email = $1
	`, strings.ToLower(req.Email)).Scan(&user.ID, &user.Email, &displayName, &user.Staff, &hashedPassword)
	if err != nil {
		log.Printf("[AUTH] User not found for email: %s", req.Email)
		SendErrorResponse(w, "ACCESS_DENIED", "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}
	user.DisplayName = displayName.String

	if !verifyPassword(req.Password, hashedPassword) {
		log.Printf("[AUTH] Invalid password for user: %s", req.Email)
		SendErrorResponse(w, "ACCESS_DENIED", "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if _, err := s.db.Exec(`UPDATE users SET last_login = NOW() WHERE id = $1`, user.ID); err != nil {
		log.Printf("[AUTH] Failed to record last login for user %d: %v", user.ID, err)
	}

	token, err := generateJWT(user.ID, user.Staff)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %d: %v", user.ID, err)
		SendErrorResponse(w, "SERVER_ERROR", "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for user %d (staff=%v)", user.ID, user.Staff)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{ReturnCode: "SUCCESS", Token: token, User: user})
}

// Logout revokes the presented token
// @Summary Logout user
// @Description Blacklist the bearer token until it expires
// @Tags auth
// @Produce json
// @Success 200 {object} object{return_code=string}
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	token = strings.TrimPrefix(token, "Bearer ")

	if token != "" && s.redis != nil {
		expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
		if err := s.redis.Set(r.Context(), "blacklist:"+token, "1", expiry).Err(); err != nil {
			log.Printf("[AUTH] Failed to blacklist token: %v", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"return_code": "SUCCESS", "message": "Logged out"})
}

// GetUserAccount returns the authenticated user's profile
// @Summary Get account
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{return_code=string,user=AccountInfo}
// @Failure 401 {object} ErrorResponse
// @Router /auth/account [get]
func (s *AuthService) GetUserAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := mW.UserID(r.Context())
	if !ok {
		SendErrorResponse(w, "ACCESS_DENIED", "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var (
		user        AccountInfo
		displayName sql.NullString
	)
	err := s.db.QueryRow(`
		SELECT id, email, display_name, staff FROM users WHERE id = $1
	`, userID).Scan(&user.ID, &user.Email, &displayName, &user.Staff)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "NOT_FOUND", "User not found", http.StatusNotFound, nil)
			return
		}
		SendErrorResponse(w, "SERVER_ERROR", "Failed to fetch account", http.StatusInternalServerError, nil)
		return
	}
	user.DisplayName = displayName.String

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"return_code": "SUCCESS",
		"user":        user,
	})
}

func generateJWT(userID int, staff bool) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"staff":   staff,
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return base64.StdEncoding.EncodeToString(salt) + "$" + base64.StdEncoding.EncodeToString(hash), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return string(hash) == string(computedHash)
}
