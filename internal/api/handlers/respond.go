package handlers

import (
	"errors"

	"backend/internal/models"
	"backend/internal/service"

	"github.com/gofiber/fiber/v2"
)

// fail maps engine errors onto the HTTP boundary. Validation and lock
// violations are client errors; everything unrecognized is a 500.
func fail(c *fiber.Ctx, err error, message string) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidPayload), errors.Is(err, service.ErrUnknownPeriod):
		status = fiber.StatusBadRequest
	case errors.Is(err, service.ErrAlreadyLocked):
		status = fiber.StatusConflict
	case errors.Is(err, service.ErrGameNotFound):
		status = fiber.StatusNotFound
	}

	return c.Status(status).JSON(models.ErrorResponse{
		Error:   message,
		Message: err.Error(),
	})
}

// userIDFromHeader extracts the opaque, already-verified user id supplied by
// the auth collaborator.
func userIDFromHeader(c *fiber.Ctx) string {
	return c.Get("X-User-ID")
}
