package config

import (
	"os"
	"strconv"
	"time"
)

type LoyaltyConfig struct {
	// Minimum time between scans of the same customer by the same staff
	// member. Both the legacy 30s and the 15s windows existed at one point;
	// 15s is canonical now.
	ScanCooldown       time.Duration
	ScanCreditPoints   int
	HistoryLimit       int
	MaxHistoryLimit    int
	QRImageSize        int
	QRImageCacheTTL    time.Duration
	StoreRetryAttempts int
	StoreRetryBackoff  time.Duration
}

func LoadLoyaltyConfig() *LoyaltyConfig {
	return &LoyaltyConfig{
		ScanCooldown:       getEnvAsDuration("LOYALTY_SCAN_COOLDOWN", 15*time.Second),
		ScanCreditPoints:   getEnvAsInt("LOYALTY_SCAN_CREDIT_POINTS", 1),
		HistoryLimit:       getEnvAsInt("LOYALTY_HISTORY_LIMIT", 50),
		MaxHistoryLimit:    getEnvAsInt("LOYALTY_MAX_HISTORY_LIMIT", 100),
		QRImageSize:        getEnvAsInt("LOYALTY_QR_IMAGE_SIZE", 256),
		QRImageCacheTTL:    getEnvAsDuration("LOYALTY_QR_IMAGE_CACHE_TTL", 24*time.Hour),
		StoreRetryAttempts: getEnvAsInt("LOYALTY_STORE_RETRY_ATTEMPTS", 3),
		StoreRetryBackoff:  getEnvAsDuration("LOYALTY_STORE_RETRY_BACKOFF", 100*time.Millisecond),
	}
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
