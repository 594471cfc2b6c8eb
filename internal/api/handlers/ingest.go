package handlers

import (
	"backend/internal/models"
	"backend/internal/service"
	"backend/internal/worker"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// IngestHandler receives facts from the external stats ingestion collaborator.
// GameStarted locks synchronously; GameFinalized is queued for the scoring
// pool and acknowledged with 202, relying on the feed's retry policy when the
// queue is saturated.
type IngestHandler struct {
	predictions *service.PredictionService
	pool        *worker.ScoringPool
	validator   *validator.Validate
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(predictions *service.PredictionService, pool *worker.ScoringPool) *IngestHandler {
	return &IngestHandler{
		predictions: predictions,
		pool:        pool,
		validator:   validator.New(),
	}
}

// GameStarted handles POST /api/v1/ingest/game-started
// @Summary Game started fact
// @Description Locks open predictions for a game; a new start time supersedes the previous one
// @Accept json
// @Produce json
// @Param request body models.GameStartedFact true "Game started fact"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/ingest/game-started [post]
func (h *IngestHandler) GameStarted(c *fiber.Ctx) error {
	var fact models.GameStartedFact
	if err := c.BodyParser(&fact); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
	}
	if err := h.validator.Struct(&fact); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
	}

	if err := h.predictions.HandleGameStarted(c.Context(), fact); err != nil {
		return fail(c, err, "Failed to process game start")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Game start processed",
		"game_id": fact.GameID,
	})
}

// GameFinalized handles POST /api/v1/ingest/game-finalized
// @Summary Game finalized fact
// @Description Queues a finalized result for scoring. Redelivery is safe; scoring is idempotent per correction sequence.
// @Accept json
// @Produce json
// @Param request body models.GameFinalizedFact true "Game finalized fact"
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/v1/ingest/game-finalized [post]
func (h *IngestHandler) GameFinalized(c *fiber.Ctx) error {
	var fact models.GameFinalizedFact
	if err := c.BodyParser(&fact); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
	}
	if err := h.validator.Struct(&fact); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
	}

	if err := h.pool.Submit(fact); err != nil {
		// Backpressure: tell the feed to redeliver later.
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
			Error:   "Scoring queue full",
			Message: err.Error(),
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message":             "Result queued for scoring",
		"game_id":             fact.GameID,
		"correction_sequence": fact.CorrectionSequence,
	})
}
