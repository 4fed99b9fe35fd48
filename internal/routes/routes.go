package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/config"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups everything Setup mounts.
type Handlers struct {
	Auth          *handlers.AuthHandler
	Health        *handlers.HealthHandler
	Reports       *handlers.ReportHandler
	Review        *handlers.ReviewHandler
	Scoring       *handlers.ScoringHandler
	Notifications *handlers.NotificationHandler
	Users         *handlers.UserHandler
	Fanout        *handlers.FanoutHandler
}

func Setup(app *fiber.App, cfg *config.Config, admins *services.AdminService, gatherer prometheus.Gatherer, h Handlers) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP. Live streams are long
	// lived and skip it.
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
		Next:              func(c *fiber.Ctx) bool { return c.Path() == "/api/notifications/stream" },
	}))

	api.Get("/health", h.Health.Check)
	api.Get("/leaderboard", h.Users.Leaderboard)

	// Auth-specific rate limit: 10 req/min per IP
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/register", h.Auth.Register)
	auth.Post("/login", h.Auth.Login)
	auth.Post("/refresh", h.Auth.Refresh)

	jwt := middleware.JWTProtected(cfg)

	api.Post("/auth/logout", jwt, h.Auth.Logout)

	api.Post("/reports", jwt, h.Reports.Create)
	api.Get("/reports/mine", jwt, h.Reports.Mine)
	api.Get("/reports/:id", jwt, h.Reports.Get)

	api.Get("/notifications", jwt, h.Notifications.List)
	api.Get("/notifications/unread-count", jwt, h.Notifications.UnreadCount)
	api.Get("/notifications/stream", jwt, h.Notifications.Stream)
	api.Post("/notifications/read-all", jwt, h.Notifications.MarkAllRead)
	api.Post("/notifications/:id/read", jwt, h.Notifications.MarkRead)
	api.Delete("/notifications/:id", jwt, h.Notifications.Delete)

	api.Get("/me", jwt, h.Users.Me)
	api.Get("/me/ledger", jwt, h.Users.Ledger)

	admin := api.Group("/admin", jwt, middleware.AdminRequired(admins, cfg))
	admin.Get("/reports", h.Review.List)
	admin.Get("/reports/:id/preview", h.Review.Preview)
	admin.Post("/reports/:id/review", h.Review.Review)
	admin.Put("/reports/:id/notes", h.Review.UpdateNotes)

	admin.Get("/scoring", h.Scoring.GetCurrent)
	admin.Put("/scoring", h.Scoring.PutCurrent)
	admin.Get("/scoring/profiles", h.Scoring.Profiles)
	admin.Put("/scoring/profiles/:name", h.Scoring.PutProfile)
	admin.Post("/scoring/profiles/:name/promote", h.Scoring.Promote)

	admin.Get("/fanout/failures", h.Fanout.Failures)
	admin.Post("/fanout/retry", h.Fanout.Retry)
}
