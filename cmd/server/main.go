package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gingerloyalty/backend/docs"
	"github.com/gingerloyalty/backend/internal/config"
	"github.com/gingerloyalty/backend/internal/database"
	"github.com/gingerloyalty/backend/internal/handlers"
	mW "github.com/gingerloyalty/backend/internal/middleware"
	"github.com/gingerloyalty/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Ginger Loyalty Backend API
// @version 1.0
// @description API for the coffee shop loyalty points program
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.SetDefault("jwt.expiry_hours", 24)
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Ginger Loyalty Backend API"
	docs.SwaggerInfo.Description = "API for the coffee shop loyalty points program"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	loyaltyConfig := config.LoadLoyaltyConfig()

	pointsService := services.NewPointsService(db, loyaltyConfig)
	rewardService := services.NewRewardService(db)
	qrService := services.NewQRService(db, redisClient, loyaltyConfig)
	scanService := services.NewScanService(pointsService, rewardService, qrService, loyaltyConfig)
	authService := services.NewAuthService(db, redisClient)
	profileService := services.NewProfileService(db)
	adminService := services.NewAdminService(db)
	qrHandler := handlers.NewQRHandler(qrService, scanService)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Static file server for reward images
	r.Handle("/static/reward-images/*", http.StripPrefix("/static/reward-images/",
		mW.StaticFileServer("./static/reward-images")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/account", authService.GetUserAccount)

			// Profile self-service
			r.Get("/profile", profileService.GetOwnProfile)
			r.Put("/profile", profileService.PutOwnProfile)
			r.Delete("/profile", profileService.DeleteOwnProfile)

			// Points endpoints (self or staff, enforced in handlers)
			r.Get("/points/user/{userId}", pointsService.GetUserPoints)
			r.Get("/points/transactions/{userId}", pointsService.GetTransactions)

			// Reward catalog
			r.Get("/rewards", rewardService.GetRewards)
			r.Get("/rewards/available/{userPoints}", rewardService.GetAvailableReward)

			// QR endpoints
			r.Get("/qr/user/{userId}", qrHandler.GetUserQR)

			// Staff-only endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.RequireStaff)

				r.Post("/points/add", pointsService.AddPoints)
				r.Post("/points/can-scan", qrHandler.CanScan)

				r.Post("/qr/validate", qrHandler.ValidateQR)
				r.Post("/qr/scan", qrHandler.ScanQR)
				r.Post("/qr/redeem-reward", qrHandler.RedeemReward)

				r.Get("/rewards/all", rewardService.GetAllRewards)
				r.Post("/rewards", rewardService.PostReward)
				r.Put("/rewards/{rewardId}", rewardService.PutReward)
				r.Delete("/rewards/{rewardId}", rewardService.DeleteReward)

				r.Get("/admin/staff", adminService.GetStaff)
				r.Get("/admin/analytics", adminService.GetAnalytics)
				r.Get("/admin/transactions", adminService.GetRecentActivity)
				r.Get("/admin/dashboard", adminService.GetDashboard)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
