package handlers

import (
	"backend/internal/models"
	"backend/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// BadgeHandler handles HTTP requests for badge progress and community votes
type BadgeHandler struct {
	badges    *service.BadgeEngine
	validator *validator.Validate
}

// NewBadgeHandler creates a new badge handler
func NewBadgeHandler(badges *service.BadgeEngine) *BadgeHandler {
	return &BadgeHandler{
		badges:    badges,
		validator: validator.New(),
	}
}

// UserBadges handles GET /api/v1/users/:userID/badges
// @Summary Get a user's badges
// @Description Retrieves the badge catalog joined with the user's progress
// @Produce json
// @Param userID path string true "User id"
// @Success 200 {array} models.BadgeStatus
// @Router /api/v1/users/{userID}/badges [get]
func (h *BadgeHandler) UserBadges(c *fiber.Ctx) error {
	userID := c.Params("userID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid user id",
			Message: "User id cannot be empty",
		})
	}

	badges, err := h.badges.UserBadges(c.Context(), userID)
	if err != nil {
		return fail(c, err, "Failed to retrieve badges")
	}

	return c.Status(fiber.StatusOK).JSON(badges)
}

// CastVote handles POST /api/v1/votes
// @Summary Cast a community vote
// @Description Records a golden skate/stick/puck vote or a message like; advances badge progress only
// @Accept json
// @Produce json
// @Param X-User-ID header string true "Authenticated user id"
// @Param request body models.VoteRequest true "Vote payload"
// @Success 201 {object} models.Vote
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/votes [post]
func (h *BadgeHandler) CastVote(c *fiber.Ctx) error {
	userID := userIDFromHeader(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
			Error:   "Missing user identity",
			Message: "X-User-ID header is required",
		})
	}

	var req models.VoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
	}
	if err := h.validator.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
	}

	vote, err := h.badges.CastVote(c.Context(), userID, req)
	if err != nil {
		return fail(c, err, "Failed to record vote")
	}

	return c.Status(fiber.StatusCreated).JSON(vote)
}
