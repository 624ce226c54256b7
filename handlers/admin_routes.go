package handlers

import (
	"github.com/gofiber/fiber/v2"

	"landmark-quest/middleware"
	"landmark-quest/services"
)

// SetupAdminRoutes mounts /admin/*, restricted to the gateway's admin role.
func SetupAdminRoutes(app *fiber.App, svc Services) {
	admin := app.Group("/admin", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	admin.Post("/nodes", func(c *fiber.Ctx) error {
		var in services.NodeInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		res, err := svc.Admin.CreateNode(c.UserContext(), in)
		if err != nil {
			return respondError(c, err)
		}
		if res.Applied {
			return c.Status(fiber.StatusCreated).JSON(res)
		}
		return c.JSON(res)
	})

	admin.Delete("/nodes/:id", func(c *fiber.Ctx) error {
		res, err := svc.Admin.PurgeNode(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	admin.Put("/players/:player_id/nodes/:node_id/streak", func(c *fiber.Ctx) error {
		var req struct {
			Streak *int `json:"streak"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		if req.Streak == nil {
			return badRequest(c, "streak is required", nil)
		}
		res, err := svc.Admin.ForceSetNodeStreak(c.UserContext(), c.Params("player_id"), c.Params("node_id"), *req.Streak)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	admin.Put("/radii", func(c *fiber.Ctx) error {
		var r services.Radii
		if err := c.BodyParser(&r); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		res, err := svc.Admin.AdjustGlobalRadii(c.UserContext(), r)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	admin.Put("/players/:player_id/radii", func(c *fiber.Ctx) error {
		var req struct {
			DetectionRadius *float64 `json:"detection_radius"`
			ClaimRadius     *float64 `json:"claim_radius"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		res, err := svc.Admin.AdjustPlayerRadii(c.UserContext(), c.Params("player_id"), req.DetectionRadius, req.ClaimRadius)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	admin.Post("/players/:player_id/username-cooldown/reset", func(c *fiber.Ctx) error {
		res, err := svc.Admin.ResetUsernameCooldown(c.UserContext(), c.Params("player_id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})
}
