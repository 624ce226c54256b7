package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"landmark-quest/services"
)

// respondError maps service errors onto HTTP statuses. Storage failures are
// flagged retryable so clients can resend the same claim.
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	msg := "internal error"
	retryable := false

	switch {
	case errors.Is(err, services.ErrInvalidPosition):
		status, msg = fiber.StatusBadRequest, "invalid coordinates"
	case errors.Is(err, services.ErrInvalidNode):
		status, msg = fiber.StatusBadRequest, "invalid node"
	case errors.Is(err, services.ErrMissingPlayer):
		status, msg = fiber.StatusUnauthorized, "missing player"
	case errors.Is(err, services.ErrNoPosition):
		status, msg = fiber.StatusNotFound, "no position reported yet"
	case errors.Is(err, services.ErrUnknownNode):
		status, msg = fiber.StatusNotFound, "node not found"
	case errors.Is(err, services.ErrStorageUnavailable):
		status, msg, retryable = fiber.StatusServiceUnavailable, "storage unavailable", true
	}

	return c.Status(status).JSON(fiber.Map{
		"error":     msg,
		"cause":     err.Error(),
		"retryable": retryable,
	})
}

func badRequest(c *fiber.Ctx, msg string, err error) error {
	body := fiber.Map{"error": msg}
	if err != nil {
		body["cause"] = err.Error()
	}
	return c.Status(fiber.StatusBadRequest).JSON(body)
}
