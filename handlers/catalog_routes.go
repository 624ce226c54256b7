package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// SetupCatalogRoutes mounts the public reads: gateway auth, no user context.
func SetupCatalogRoutes(app *fiber.App, svc Services) {
	app.Get("/nodes", func(c *fiber.Ctx) error {
		nodes, err := svc.Catalog.Nodes(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(nodes)
	})

	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		entries, err := svc.Leaderboard.Top(c.UserContext(), c.QueryInt("limit", 0))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load leaderboard",
				"cause": err.Error(),
			})
		}
		return c.JSON(entries)
	})
}
