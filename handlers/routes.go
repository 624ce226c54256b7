package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"landmark-quest/middleware"
	"landmark-quest/services"
)

// Services is everything the HTTP layer calls into.
type Services struct {
	Catalog     *services.CatalogService
	Proximity   *services.ProximityService
	Engine      *services.ClaimEngine
	Profiles    *services.ProfileService
	Settings    *services.SettingsService
	Leaderboard *services.LeaderboardService
	Admin       *services.AdminService
	Inbox       *services.Inbox
}

type AppConfig struct {
	GatewayToken   string
	AllowedOrigins []string
}

// NewApp builds the fiber app with every route mounted.
func NewApp(cfg AppConfig, svc Services) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "landmark-quest",
		Immutable: true,
		BodyLimit: 1 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(requestid.New())

	origins := strings.Join(cfg.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 🔐❗ Everything below: only Gateway requests allowed
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	SetupCatalogRoutes(app, svc)
	SetupPlayerRoutes(app, svc)
	SetupAdminRoutes(app, svc)
	return app
}
