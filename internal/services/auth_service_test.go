package services

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func setAuthTestConfig() {
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
	viper.Set("argon2.salt_length", 16)
}

func TestPasswordHashing(t *testing.T) {
	setAuthTestConfig()

	t.Run("round trip", func(t *testing.T) {
		hashed, err := hashPassword("password123")
		assert.NoError(t, err)
		assert.NotEqual(t, "password123", hashed)
		assert.True(t, verifyPassword("password123", hashed))
	})

	t.Run("wrong password", func(t *testing.T) {
		hashed, err := hashPassword("password123")
		assert.NoError(t, err)
		assert.False(t, verifyPassword("different", hashed))
	})

	t.Run("unique salts", func(t *testing.T) {
		first, err := hashPassword("password123")
		assert.NoError(t, err)
		second, err := hashPassword("password123")
		assert.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("malformed stored hash", func(t *testing.T) {
		assert.False(t, verifyPassword("password123", "not-a-hash"))
		assert.False(t, verifyPassword("password123", "a$b$c"))
	})
}

func TestGenerateJWT(t *testing.T) {
	setAuthTestConfig()

	t.Run("carries the user id and staff flag", func(t *testing.T) {
		tokenString, err := generateJWT(42, true)
		assert.NoError(t, err)

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			return []byte("test-secret"), nil
		})
		assert.NoError(t, err)
		assert.True(t, token.Valid)

		claims, ok := token.Claims.(jwt.MapClaims)
		assert.True(t, ok)
		assert.Equal(t, float64(42), claims["user_id"])
		assert.Equal(t, true, claims["staff"])
		assert.NotNil(t, claims["exp"])
	})

	t.Run("customers are not staff", func(t *testing.T) {
		tokenString, err := generateJWT(7, false)
		assert.NoError(t, err)

		token, _ := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			return []byte("test-secret"), nil
		})
		claims := token.Claims.(jwt.MapClaims)
		assert.Equal(t, false, claims["staff"])
	})
}
