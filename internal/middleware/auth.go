package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
)

type contextKey string

const (
	UserIDKey  contextKey = "userID"
	IsStaffKey contextKey = "isStaff"
)

var redisClient *redis.Client

// InitAuthMiddleware wires the optional Redis client used for the logout
// token blacklist.
func InitAuthMiddleware(client *redis.Client) {
	redisClient = client
}

// UserID extracts the authenticated user's id from the request context.
func UserID(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(UserIDKey).(int)
	return id, ok
}

// IsStaff reports whether the authenticated user carries the staff flag.
func IsStaff(ctx context.Context) bool {
	staff, _ := ctx.Value(IsStaffKey).(bool)
	return staff
}

func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		token := parts[1]

		if redisClient != nil {
			blacklisted, err := redisClient.Get(r.Context(), "blacklist:"+token).Result()
			if err == nil && blacklisted == "1" {
				http.Error(w, "Token revoked", http.StatusUnauthorized)
				return
			}
		}

		userID, isStaff, err := validateToken(token)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		ctx = context.WithValue(ctx, IsStaffKey, isStaff)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireStaff rejects requests from non-staff users. Must run after
// AuthMiddleware.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsStaff(r.Context()) {
			http.Error(w, "Staff access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func validateToken(tokenString string) (int, bool, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(viper.GetString("jwt.secret_key")), nil
	})

	if err != nil || !token.Valid {
		return 0, false, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, false, fmt.Errorf("invalid claims")
	}

	userIDFloat, ok := claims["user_id"].(float64)
	if !ok {
		return 0, false, fmt.Errorf("missing user_id claim")
	}

	isStaff, _ := claims["staff"].(bool)
	return int(userIDFloat), isStaff, nil
}
