package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/config"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/database"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/logging"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/objectstore"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/realtime"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/routes"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/services"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/triggers"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/validation"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	// Structured logging (JSON to stdout)
	logOpts := logging.Setup()

	cfg := config.Load()

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" && cfg.DBPassword == "" {
		slog.Error("DATABASE_URL or DB_PASSWORD environment variable is required")
		os.Exit(1)
	}

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(database.DB); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(database.DB)
	slog.SetDefault(slog.New(logging.NewMultiHandler(
		slog.NewJSONHandler(os.Stdout, logOpts),
		pgLogHandler,
	)))

	cleanupDone := make(chan struct{})
	logging.StartCleanup(database.DB, cfg.LogRetentionDays, cleanupDone)

	// Sentry error tracking
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      os.Getenv("APP_ENV"),
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Realtime hub: Redis when configured, in-process otherwise
	var hub realtime.Hub
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisHub, err := realtime.NewRedisHub(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			slog.Error("redis hub unavailable", "error", err)
			os.Exit(1)
		}
		hub = redisHub
		slog.Info("realtime hub: redis")
	} else {
		hub = realtime.NewMemoryHub()
		slog.Info("realtime hub: in-process")
	}

	// Image storage: FTP when configured, uploads disabled otherwise
	var store objectstore.Store
	if cfg.FTPHost != "" {
		store = objectstore.NewFTPStore(cfg.FTPHost, cfg.FTPPort, cfg.FTPUser, cfg.FTPPassword, cfg.FTPBaseURL, cfg.FTPDir)
		slog.Info("image store: ftp", "host", cfg.FTPHost)
	}

	// Report change triggers
	dispatcher := triggers.NewDispatcher(cfg.TriggerQueueSize, cfg.TriggerWorkers, cfg.FanoutTimeout, m)

	// Services
	authService := services.NewAuthService(database.DB, cfg)
	adminService := services.NewAdminService(database.DB)
	scoringService := services.NewScoringService(database.DB)
	reportService := services.NewReportService(database.DB, store, dispatcher, m)
	reviewService := services.NewReviewService(database.DB, dispatcher, hub, m)
	fanoutService := services.NewFanoutService(database.DB, hub, m, services.FanoutOptionsFromConfig(cfg))
	notificationService := services.NewNotificationService(database.DB, hub)
	userService := services.NewUserService(database.DB)

	dispatcher.On("approval_broadcast", fanoutService.Handler())
	dispatcher.Start()

	retryDone := make(chan struct{})
	fanoutService.StartRetryLoop(cfg.FanoutRetryInterval, 1000, retryDone)

	// Handlers
	v := validation.New()
	h := routes.Handlers{
		Auth:          handlers.NewAuthHandler(authService, v),
		Health:        handlers.NewHealthHandler(database.DB),
		Reports:       handlers.NewReportHandler(reportService, adminService, cfg, v),
		Review:        handlers.NewReviewHandler(reportService, reviewService, v),
		Scoring:       handlers.NewScoringHandler(scoringService, v),
		Notifications: handlers.NewNotificationHandler(notificationService),
		Users:         handlers.NewUserHandler(userService),
		Fanout:        handlers.NewFanoutHandler(fanoutService),
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    cfg.MaxImageBytes + 1024*1024,
		ErrorHandler: customErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})

	routes.Setup(app, cfg, adminService, registry, h)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Let in-flight broadcasts finish before the pool goes away
	dispatcher.Stop()
	close(retryDone)
	close(cleanupDone)

	if err := hub.Close(); err != nil {
		slog.Error("realtime hub close error", "error", err)
	}
	if store != nil {
		if err := store.Close(); err != nil {
			slog.Error("image store close error", "error", err)
		}
	}

	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if err := database.Close(); err != nil {
		slog.Error("database close error", "error", err)
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
