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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/barangaylink/backend/docs"
	"github.com/barangaylink/backend/internal/database"
	"github.com/barangaylink/backend/internal/handlers"
	"github.com/barangaylink/backend/internal/identity"
	"github.com/barangaylink/backend/internal/mail"
	mW "github.com/barangaylink/backend/internal/middleware"
	"github.com/barangaylink/backend/internal/models"
	"github.com/barangaylink/backend/internal/services"
	"github.com/barangaylink/backend/internal/vault"
)

// @title Barangay Link Backend API
// @version 1.0
// @description Account provisioning and authentication API for barangay civic services
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
	viper.BindEnv("jwt.refresh_expiry_days", "JWT_REFRESH_EXPIRY_DAYS")

	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.BindEnv("identity.base_url", "IDENTITY_BASE_URL")
	viper.BindEnv("identity.service_key", "IDENTITY_SERVICE_KEY")

	viper.BindEnv("smtp.host", "SMTP_HOST")
	viper.BindEnv("smtp.port", "SMTP_PORT")
	viper.BindEnv("smtp.username", "SMTP_USERNAME")
	viper.BindEnv("smtp.password", "SMTP_PASSWORD")
	viper.BindEnv("smtp.from", "SMTP_FROM")

	viper.BindEnv("app.base_url", "APP_BASE_URL")
	viper.SetDefault("app.base_url", "https://app.barangaylink.ph")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Barangay Link Backend API"
	docs.SwaggerInfo.Description = "Account provisioning and authentication API for barangay civic services"
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

	provider := identity.NewClient()

	var mailer mail.Mailer = mail.LogMailer{}
	if smtpMailer := mail.NewSMTPMailer(); smtpMailer != nil {
		mailer = smtpMailer
	}

	var vaultStore vault.Store = vault.NewMemoryStore()
	if redisClient != nil {
		vaultStore = vault.NewRedisStore(redisClient, "vault")
	}

	sessionService := services.NewSessionService(redisClient)
	roleResolver := services.NewRoleResolver(db, func(userID, role string) {
		log.Printf("[ROLE] Auth context refreshed for user %s (role %s)", userID, role)
	})
	authService := services.NewAuthService(db, provider, sessionService, roleResolver, vaultStore)
	mpinService := services.NewMPINService(db, sessionService)
	otpService := services.NewOTPService(db, redisClient, nil)
	registrationService := services.NewRegistrationService(db, provider, mailer, viper.GetString("app.base_url"))
	badgeService := services.NewBadgeService(db)

	otpHandler := handlers.NewOTPHandler(otpService)
	officialHandler := handlers.NewOfficialHandler(registrationService, badgeService)
	notificationHandler := handlers.NewNotificationHandler(mailer)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

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

	// Static file server for barangay seals
	r.Handle("/static/barangay-seals/*", http.StripPrefix("/static/barangay-seals/",
		mW.StaticFileServer("./static/barangay-seals")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)
		r.Post("/auth/otp/send", otpHandler.Send)
		r.Post("/auth/otp/verify", otpHandler.Verify)
		r.Post("/auth/mpin/verify", mpinService.HandleVerify)
		r.Post("/officials/register", officialHandler.Register)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Post("/auth/mpin/set", mpinService.HandleSet)
			r.Get("/officials/{officialId}/qr", officialHandler.Badge)

			// Admin endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.RequireRole(models.RoleAdmin, models.RoleSuperAdmin))

				r.Post("/officials/approve", officialHandler.Approve)
				r.Post("/notifications/welcome", notificationHandler.Welcome)
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
