package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/servicehub/marketplace-backend/internal/config"
	"github.com/servicehub/marketplace-backend/internal/database"
	"github.com/servicehub/marketplace-backend/internal/handlers"
	"github.com/servicehub/marketplace-backend/internal/middleware"
	"github.com/servicehub/marketplace-backend/internal/services"
	"github.com/servicehub/marketplace-backend/pkg/cache"
	"github.com/servicehub/marketplace-backend/pkg/events"
	"github.com/servicehub/marketplace-backend/pkg/jwt"
	"github.com/servicehub/marketplace-backend/pkg/mailer"
	"github.com/servicehub/marketplace-backend/pkg/otp"
	"github.com/servicehub/marketplace-backend/pkg/razorpay"
	"github.com/servicehub/marketplace-backend/pkg/storage"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting ServiceHub marketplace backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Prices go out as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Initialize repositories
	userRepository := database.NewUserRepository(db.DB)
	serviceRepository := database.NewServiceRepository(db.DB)
	categoryRepository := database.NewCategoryRepository(db.DB)
	cityRepository := database.NewCityRepository(db.DB)
	popularRepository := database.NewPopularRepository(db.DB)
	cartRepository := database.NewCartRepository(db.DB)
	technicianRepository := database.NewTechnicianRepository(db.DB)
	bookingRepository := database.NewBookingRepository(db.DB)
	paymentRepository := database.NewPaymentRepository(db.DB)
	paymentAuditRepository := database.NewPaymentAuditRepository(db.DB, logger)

	// Outbound mail
	var mail mailer.Sender = mailer.LogSender{Logger: logger}
	if cfg.Mail.Enabled() {
		pool := mailer.NewPool(mailer.Config{
			Host:           cfg.Mail.Host,
			Port:           cfg.Mail.Port,
			Username:       cfg.Mail.Username,
			Password:       cfg.Mail.Password,
			From:           cfg.Mail.From,
			MaxConnections: cfg.Mail.MaxConnections,
			MaxRetries:     cfg.Mail.MaxRetries,
		}, logger)
		defer pool.Close()
		mail = pool
		logger.WithField("host", cfg.Mail.Host).Info("SMTP mailer enabled")
	} else {
		logger.Warn("SMTP_HOST not set, OTP mails will only be logged")
	}

	// Catalog cache
	var catalogCache cache.Cache = cache.Noop{}
	if cfg.Cache.RedisURL != "" {
		redisCache, err := cache.NewRedis(context.Background(), cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, catalog cache disabled")
		} else {
			defer redisCache.Close()
			catalogCache = redisCache
			logger.Info("Catalog cache enabled")
		}
	}

	// Image storage
	var images storage.Store = storage.Disabled{}
	if cfg.Storage.CloudinaryURL != "" {
		cloud, err := storage.NewCloudinary(cfg.Storage.CloudinaryURL, cfg.Storage.Folder)
		if err != nil {
			logger.Fatalf("Failed to configure image storage: %v", err)
		}
		images = cloud
	} else {
		logger.Warn("CLOUDINARY_URL not set, image uploads are disabled")
	}

	// Domain events
	var publisher events.Publisher = events.NoopPublisher{Logger: logger}
	if len(cfg.Events.Brokers) > 0 {
		kafka, err := events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic, logger)
		if err != nil {
			logger.WithError(err).Warn("Kafka unavailable, domain events will be dropped")
		} else {
			publisher = kafka
			logger.WithField("topic", cfg.Events.Topic).Info("Event publishing enabled")
		}
	}
	defer publisher.Close()

	// Payment gateway
	var gateway razorpay.Gateway = razorpay.MockGateway{}
	if cfg.Payment.Mode == "live" {
		gateway = razorpay.NewClient(cfg.Payment.KeyID, cfg.Payment.KeySecret, cfg.Payment.BaseURL, logger)
	} else {
		logger.Warn("PAYMENT_MODE=mock, orders are created locally")
	}
	if cfg.Payment.WebhookSecret == "" {
		logger.Warn("PAYMENT_WEBHOOK_SECRET not set, webhook signatures are not checked")
	}

	// Initialize services
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.TokenExpiry)
	otpService := services.NewOTPService(otp.NewEngine(cfg.OTP.HashSalt, cfg.OTP.Length, cfg.OTP.Expiry()), mail, logger)
	auditService := services.NewAuditService(db, logger, cfg.Security.EnableAuditLog)
	rateLimitService := services.NewRateLimitService(db, cfg.RateLimit)

	var google services.IdentityProvider
	if cfg.OAuth.Enabled() {
		google = services.NewGoogleProvider(cfg.OAuth.GoogleClientID, cfg.OAuth.GoogleClientSecret, cfg.OAuth.GoogleCallbackURL)
		logger.Info("Google login enabled")
	}

	authService := services.NewAuthService(userRepository, jwtService, otpService, auditService, google, cfg.Security.BcryptCost, logger)
	catalogService := services.NewCatalogService(serviceRepository, categoryRepository, cityRepository, popularRepository, images, catalogCache, logger)
	cartService := services.NewCartService(cartRepository, serviceRepository, logger)
	technicianService := services.NewTechnicianService(technicianRepository, logger)
	bookingService := services.NewBookingService(bookingRepository, serviceRepository, technicianRepository, cartRepository, otpService, publisher, logger)
	paymentService := services.NewPaymentService(
		paymentRepository,
		bookingRepository,
		serviceRepository,
		gateway,
		paymentAuditRepository,
		publisher,
		services.PaymentSettings{
			KeyID:         cfg.Payment.KeyID,
			KeySecret:     cfg.Payment.KeySecret,
			WebhookSecret: cfg.Payment.WebhookSecret,
			Currency:      cfg.Payment.Currency,
		},
		logger,
	)

	// Maintenance jobs
	cronService := services.NewCronService(services.CronJobs{
		UserOTPs:    userRepository,
		BookingOTPs: bookingRepository,
		Unverified:  userRepository,
		RateLimits:  rateLimitService,
		Audit:       auditService,
	}, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}

	// Initialize handlers
	if err := handlers.RegisterValidators(); err != nil {
		logger.Fatalf("Failed to register validators: %v", err)
	}
	authHandler := handlers.NewAuthHandler(authService, cfg, logger)
	catalogHandler := handlers.NewCatalogHandler(catalogService, logger)
	cartHandler := handlers.NewCartHandler(cartService, logger)
	technicianHandler := handlers.NewTechnicianHandler(technicianService, logger)
	bookingHandler := handlers.NewBookingHandler(bookingService, logger)
	paymentHandler := handlers.NewPaymentHandler(paymentService, logger)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())

	// Configure CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/metrics", middleware.PrometheusHandler())

	authMiddleware := middleware.AuthMiddleware(jwtService, logger)
	adminOnly := middleware.RequireRole("admin")
	loginLimit := middleware.RateLimit(rateLimitService, auditService, services.ScopeLogin, logger)
	otpLimit := middleware.RateLimit(rateLimitService, auditService, services.ScopeOTP, logger)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/verify-email", otpLimit, authHandler.VerifyEmail)
			auth.POST("/resend-otp", otpLimit, authHandler.ResendOTP)
			auth.POST("/forgot-password", otpLimit, authHandler.ForgotPassword)
			auth.POST("/reset-password", otpLimit, authHandler.ResetPassword)
			auth.POST("/login", loginLimit, authHandler.Login)
			auth.GET("/logout", authHandler.Logout)
			auth.GET("/google", authHandler.GoogleLogin)
			auth.GET("/google/callback", authHandler.GoogleCallback)

			auth.GET("/me", authMiddleware, authHandler.Me)
			auth.POST("/phone", authMiddleware, authHandler.UpdatePhone)
		}

		cart := v1.Group("/cart", authMiddleware)
		{
			cart.GET("", cartHandler.Get)
			cart.POST("/add", cartHandler.Add)
			cart.DELETE("/remove/:serviceId", cartHandler.Remove)
			cart.POST("/clear", cartHandler.Clear)
		}

		catalog := v1.Group("/services")
		{
			catalog.GET("", catalogHandler.ListServices)
			catalog.GET("/popular", catalogHandler.ListPopular)
			catalog.GET("/category/:id", catalogHandler.ListServicesByCategory)
			catalog.GET("/:id", catalogHandler.GetService)

			admin := catalog.Group("", authMiddleware, adminOnly)
			{
				admin.POST("", catalogHandler.CreateService)
				admin.PUT("/:id", catalogHandler.UpdateService)
				admin.DELETE("/:id", catalogHandler.DeleteService)
				admin.POST("/popular", catalogHandler.AddPopular)
				admin.PATCH("/popular/reorder", catalogHandler.ReorderPopular)
				admin.DELETE("/popular/:serviceId", catalogHandler.RemovePopular)
			}
		}

		categories := v1.Group("/categories")
		{
			categories.GET("", catalogHandler.ListCategories)
			categories.GET("/:id", catalogHandler.GetCategory)

			admin := categories.Group("", authMiddleware, adminOnly)
			{
				admin.POST("", catalogHandler.CreateCategory)
				admin.PUT("/:id", catalogHandler.UpdateCategory)
				admin.DELETE("/:id", catalogHandler.DeleteCategory)
			}
		}

		cities := v1.Group("/cities")
		{
			cities.GET("", catalogHandler.ListCities)
			cities.POST("", authMiddleware, adminOnly, catalogHandler.AddCity)
			cities.PUT("/availability", authMiddleware, adminOnly, catalogHandler.SetCityAvailability)
		}

		technicians := v1.Group("/technicians", authMiddleware, adminOnly)
		{
			technicians.POST("", technicianHandler.Create)
			technicians.GET("", technicianHandler.List)
			technicians.PUT("/:id/active", technicianHandler.SetActive)
		}

		bookings := v1.Group("/bookings", authMiddleware)
		{
			bookings.POST("", bookingHandler.Create)
			bookings.GET("/mine", bookingHandler.ListMine)
			bookings.GET("/:id", bookingHandler.Get)
			bookings.PUT("/:id/cancel", bookingHandler.Cancel)

			bookings.GET("", adminOnly, bookingHandler.ListAll)
			bookings.PUT("/:id/status", adminOnly, bookingHandler.UpdateStatus)
			bookings.PUT("/:id/assign", adminOnly, bookingHandler.Assign)
			bookings.POST("/:id/completion-otp", adminOnly, bookingHandler.RequestCompletionOTP)
			bookings.POST("/:id/completion-otp/verify", adminOnly, bookingHandler.ConfirmCompletion)
		}

		payments := v1.Group("/payments")
		{
			// Razorpay calls this one directly; the body signature is the credential
			payments.POST("/webhook", paymentHandler.Webhook)

			payments.POST("/mock", authMiddleware, paymentHandler.MockPayment)
			payments.POST("/orders", authMiddleware, paymentHandler.CreateOrder)
			payments.POST("/verify", authMiddleware, paymentHandler.Verify)
			payments.GET("/orders/:orderId/audit", authMiddleware, adminOnly, paymentHandler.AuditTrail)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	logger.Info("Stopping cron service...")
	cronService.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// healthCheckHandler reports database reachability
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
