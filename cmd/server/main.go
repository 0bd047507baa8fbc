package main

import (
	"support-api/internal/handler"
	"support-api/internal/middleware"
	"support-api/internal/model"
	"support-api/internal/otp"
	"support-api/internal/search"
	"support-api/pkg/config"
	"support-api/pkg/database"
	"support-api/pkg/jwtutil"
	"support-api/pkg/logger"
	"support-api/pkg/mailer"
	"support-api/pkg/twilio"
	"support-api/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting customer support directory service...", cfg.LogConfig()...)

	// Initialize database
	if _, err := database.InitDB(&cfg.DB); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	if err := database.MigrateModels(&model.User{}, &model.Branch{}, &model.UserHitLog{}); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Initialize JWT utility
	jwtutil.Initialize(&cfg.JWT)
	log.Info("JWT utility initialized")

	// Build the OTP and search collaborators
	twilioClient := twilio.NewClient(&cfg.Twilio)
	otpService := otp.NewService(&cfg.OTP, twilioClient, twilioClient, otp.NewMemoryStore())
	resolver := search.NewResolver(&cfg.Search)
	mail := mailer.NewMailer(&cfg.Email)
	handler.Initialize(cfg, otpService, resolver, mail)

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover()) // Add recovery middleware
	e.Use(echomiddleware.CORS())    // Add CORS middleware
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/", handler.Index)
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// Authentication routes - rate limited, they are reachable unauthenticated
	auth := e.Group("/auth")
	auth.Use(echomiddleware.RateLimiter(echomiddleware.NewRateLimiterMemoryStore(20)))
	auth.POST("/login", handler.Login)
	auth.POST("/forgot-password", handler.ForgotPassword)
	auth.POST("/reset-password", handler.ResetPassword)
	auth.GET("/me", handler.Me, middleware.RequireAuth)
	auth.POST("/logout", handler.Logout, middleware.RequireAuth)
	auth.POST("/change-email", handler.ChangeEmail, middleware.RequireAuth, middleware.RequireRoot)
	auth.POST("/change-password", handler.ChangePassword, middleware.RequireAuth, middleware.RequireRoot)
	auth.POST("/first-time-change-password", handler.FirstTimeChangePassword, middleware.RequireAuth)

	// Public directory search - OTP gated, rate limited
	searchGroup := e.Group("/search")
	searchGroup.Use(echomiddleware.RateLimiter(echomiddleware.NewRateLimiterMemoryStore(20)))
	searchGroup.POST("/otp/start", handler.StartOTPVerification)
	searchGroup.POST("/otp/verify", handler.VerifyOTPCode)
	searchGroup.GET("", handler.SearchByUserID)
	searchGroup.GET("/:userId", handler.SearchByUserID)
	searchGroup.GET("/:userId/redirect", handler.RedirectByUserID)

	// API routes - all require authentication
	api := e.Group("/api")
	api.Use(middleware.RequireAuth)

	// Sub-admin management (root only)
	admins := api.Group("/admins", middleware.RequireRoot)
	admins.POST("", handler.CreateSubAdmin)
	admins.GET("", handler.ListSubAdmins)
	admins.PATCH("/:id", handler.UpdateSubAdmin)
	admins.POST("/:id/reset-password", handler.ResetSubAdminPassword)
	admins.DELETE("/:id", handler.DeactivateSubAdmin)

	// Branch management (root only)
	branches := api.Group("/branches", middleware.RequireRoot)
	branches.POST("", handler.CreateBranch)
	branches.GET("", handler.ListBranches)
	branches.GET("/:id", handler.GetBranch)
	branches.PATCH("/:id", handler.UpdateBranch)
	branches.DELETE("/:id", handler.DeleteBranch)

	// Client management (sub-admins own their clients, root can list)
	clients := api.Group("/clients")
	clients.POST("", handler.CreateClient, middleware.RequireSubAdmin)
	clients.GET("", handler.ListClients, middleware.RequireSubAdminOrRoot)
	clients.GET("/stats", handler.GetClientStats, middleware.RequireSubAdmin)
	clients.GET("/:clientId", handler.GetClient, middleware.RequireSubAdmin, middleware.VerifyClientOwnership)
	clients.PATCH("/:clientId", handler.UpdateClient, middleware.RequireSubAdmin, middleware.VerifyClientOwnership)
	clients.DELETE("/:clientId", handler.DeleteClient, middleware.RequireSubAdmin, middleware.VerifyClientOwnership)
	clients.POST("/:clientId/reset-password", handler.ResetClientPassword, middleware.RequireSubAdmin, middleware.VerifyClientOwnership)

	// Directory-wide account listing (root) and analytics (sub-admins see
	// their own clients' traffic)
	api.GET("/users", handler.ListUsers, middleware.RequireRoot)
	analytics := api.Group("/analytics", middleware.RequireSubAdminOrRoot)
	analytics.GET("/visit-logs", handler.GetVisitLogs)
	analytics.GET("/realtime-stats", handler.GetRealtimeStats)

	// Get server port from configuration
	port := cfg.Server.Port

	// Start server
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
