package handlers

import (
	"context"
	"strconv"
	"time"

	"backend/internal/models"
	"backend/internal/repository"
	"backend/internal/service"

	"github.com/gofiber/fiber/v2"
)

// LeaderboardHandler handles HTTP requests for ranked leaderboards
type LeaderboardHandler struct {
	leaderboard  *service.LeaderboardService
	postgresRepo *repository.PostgresRepository
	redisRepo    *repository.RedisRepository
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(
	leaderboard *service.LeaderboardService,
	postgresRepo *repository.PostgresRepository,
	redisRepo *repository.RedisRepository,
) *LeaderboardHandler {
	return &LeaderboardHandler{
		leaderboard:  leaderboard,
		postgresRepo: postgresRepo,
		redisRepo:    redisRepo,
	}
}

// GetLeaderboard handles GET /api/v1/leaderboard
// @Summary Get leaderboard
// @Description Retrieves one page of a period's ranking. Defaults to the current season.
// @Produce json
// @Param period query string false "Period key (season:2025-26 or month:2026-01)"
// @Param offset query int false "Offset for pagination" default(0)
// @Param limit query int false "Limit for pagination" default(50)
// @Success 200 {object} models.LeaderboardResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/leaderboard [get]
func (h *LeaderboardHandler) GetLeaderboard(c *fiber.Ctx) error {
	period := c.Query("period", service.SeasonKey(time.Now()))

	offset, err := strconv.Atoi(c.Query("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100 // Max limit to prevent abuse
	}

	leaderboard, err := h.leaderboard.GetRanked(c.Context(), period, offset, limit)
	if err != nil {
		return fail(c, err, "Failed to retrieve leaderboard")
	}

	return c.Status(fiber.StatusOK).JSON(leaderboard)
}

// GetUserRank handles GET /api/v1/leaderboard/:period/users/:userID
// @Summary Look up a user's rank
// @Produce json
// @Param period path string true "Period key"
// @Param userID path string true "User id"
// @Success 200 {object} models.RankResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/leaderboard/{period}/users/{userID} [get]
func (h *LeaderboardHandler) GetUserRank(c *fiber.Ctx) error {
	period := c.Params("period")
	userID := c.Params("userID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid user id",
			Message: "User id cannot be empty",
		})
	}

	rank, err := h.leaderboard.Rank(c.Context(), period, userID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error:   "User not ranked",
			Message: err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(rank)
}

// HealthCheck handles GET /api/v1/health
// @Summary Health check
// @Description Checks the health of the service and its dependencies
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} models.ErrorResponse
// @Router /api/v1/health [get]
func (h *LeaderboardHandler) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	if err := h.redisRepo.Ping(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
			Error:   "Redis health check failed",
			Message: err.Error(),
		})
	}
	if err := h.postgresRepo.Ping(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
			Error:   "PostgreSQL health check failed",
			Message: err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":  "healthy",
		"message": "All systems operational",
	})
}
