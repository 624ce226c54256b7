package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"landmark-quest/middleware"
	"landmark-quest/services"
	"landmark-quest/utils"
)

type claimRequest struct {
	NodeID    string   `json:"node_id"`
	Latitude  *float64 `json:"lat"`
	Longitude *float64 `json:"lng"`
}

// selector accepts exactly one of node_id or a full lat/lng pair.
func (r claimRequest) selector() (services.Selector, bool) {
	hasPos := r.Latitude != nil && r.Longitude != nil
	switch {
	case r.NodeID != "" && r.Latitude == nil && r.Longitude == nil:
		return services.ByNode(r.NodeID), true
	case r.NodeID == "" && hasPos:
		return services.ByPosition(utils.Position{Latitude: *r.Latitude, Longitude: *r.Longitude}), true
	}
	return services.Selector{}, false
}

const streamKeepAlive = 15 * time.Second

// SetupPlayerRoutes mounts /user/*; the gateway forwards the caller in X-User-ID.
func SetupPlayerRoutes(app *fiber.App, svc Services) {
	user := app.Group("/user", middleware.UserContextMiddleware())

	user.Post("/position", func(c *fiber.Ctx) error {
		var pos utils.Position
		if err := c.BodyParser(&pos); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		eval, err := svc.Proximity.Track(c.UserContext(), middleware.UserID(c), pos)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(eval)
	})

	user.Get("/proximity", func(c *fiber.Ctx) error {
		eval, err := svc.Proximity.Current(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(eval)
	})

	// SSE: one "proximity" event per evaluation of the positions this player
	// posts to /user/position, plus re-evaluations after claims and radius changes.
	user.Get("/proximity/stream", func(c *fiber.Ctx) error {
		playerID := middleware.UserID(c)

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no") // nginx

		ctx, cancel := context.WithCancel(context.Background())
		evals := svc.Proximity.Stream(ctx, playerID)
		shutdown := c.Context().Done()

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer cancel()

			keepalive := time.NewTicker(streamKeepAlive)
			defer keepalive.Stop()

			w.WriteString(":\n\n")
			if err := w.Flush(); err != nil {
				return
			}

			for {
				select {
				case eval, ok := <-evals:
					if !ok {
						return
					}
					payload, _ := json.Marshal(eval)
					fmt.Fprintf(w, "event: proximity\ndata: %s\n\n", payload)
				case <-keepalive.C:
					w.WriteString(":\n\n")
				case <-shutdown:
					return
				}
				// a failed flush means the client went away
				if err := w.Flush(); err != nil {
					return
				}
			}
		})
		return nil
	})

	user.Post("/claims", func(c *fiber.Ctx) error {
		var req claimRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		sel, ok := req.selector()
		if !ok {
			return badRequest(c, "provide either node_id or lat and lng", nil)
		}
		res, err := svc.Engine.Claim(c.UserContext(), middleware.UserID(c), sel)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	user.Delete("/claims/:node_id", func(c *fiber.Ctx) error {
		res, err := svc.Engine.Forget(c.UserContext(), middleware.UserID(c), c.Params("node_id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	user.Get("/progress", func(c *fiber.Ctx) error {
		summary, err := svc.Profiles.Progress(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(summary)
	})

	user.Get("/progress/history", func(c *fiber.Ctx) error {
		history, err := svc.Profiles.History(c.UserContext(), middleware.UserID(c), c.QueryInt("page", 1), c.QueryInt("size", 20))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to get history",
				"cause": err.Error(),
			})
		}
		return c.JSON(history)
	})

	user.Put("/username", func(c *fiber.Ctx) error {
		var req struct {
			Username string `json:"username"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		res, err := svc.Profiles.SetUsername(c.UserContext(), middleware.UserID(c), req.Username)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	user.Put("/radius", func(c *fiber.Ctx) error {
		var req struct {
			DetectionRadius *float64 `json:"detection_radius"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		if req.DetectionRadius == nil {
			return badRequest(c, "detection_radius is required", nil)
		}
		res, err := svc.Settings.SetDetectionRadius(c.UserContext(), middleware.UserID(c), *req.DetectionRadius)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	user.Get("/notifications", func(c *fiber.Ctx) error {
		return c.JSON(svc.Inbox.Drain(middleware.UserID(c)))
	})
}
