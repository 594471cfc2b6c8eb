package handlers

import (
	"backend/internal/models"
	"backend/internal/service"

	"github.com/gofiber/fiber/v2"
)

// PredictionHandler handles HTTP requests for prediction submission and history
type PredictionHandler struct {
	predictions *service.PredictionService
}

// NewPredictionHandler creates a new prediction handler
func NewPredictionHandler(predictions *service.PredictionService) *PredictionHandler {
	return &PredictionHandler{
		predictions: predictions,
	}
}

// Submit handles POST /api/v1/predictions
// @Summary Submit a prediction
// @Description Creates or overwrites the caller's open prediction for a game
// @Accept json
// @Produce json
// @Param X-User-ID header string true "Authenticated user id"
// @Param request body models.PredictionRequest true "Prediction payload"
// @Success 201 {object} models.Prediction
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/v1/predictions [post]
func (h *PredictionHandler) Submit(c *fiber.Ctx) error {
	userID := userIDFromHeader(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
			Error:   "Missing user identity",
			Message: "X-User-ID header is required",
		})
	}

	var req models.PredictionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
	}

	prediction, err := h.predictions.Submit(c.Context(), userID, req)
	if err != nil {
		return fail(c, err, "Failed to submit prediction")
	}

	return c.Status(fiber.StatusCreated).JSON(prediction)
}

// History handles GET /api/v1/predictions/:userID
// @Summary Prediction history
// @Description Retrieves a user's predictions, newest first
// @Produce json
// @Param userID path string true "User id"
// @Success 200 {array} models.Prediction
// @Router /api/v1/predictions/{userID} [get]
func (h *PredictionHandler) History(c *fiber.Ctx) error {
	userID := c.Params("userID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid user id",
			Message: "User id cannot be empty",
		})
	}

	history, err := h.predictions.History(c.Context(), userID)
	if err != nil {
		return fail(c, err, "Failed to retrieve history")
	}

	return c.Status(fiber.StatusOK).JSON(history)
}
