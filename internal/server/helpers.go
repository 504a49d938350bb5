package server

import (
	"strconv"

	"inkwell/internal/models"

	"github.com/gofiber/fiber/v2"
)

// parseID extracts and validates a positive numeric route parameter.
func parseID(c *fiber.Ctx, param string) (uint, error) {
	raw := c.Params(param)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, models.NewValidationError("Invalid " + param)
	}
	return uint(id), nil
}

// parsePagination reads page/limit query parameters. Non-numeric input falls
// back to defaults; out-of-range values are clamped by the service layer.
func parsePagination(c *fiber.Ctx) (page, limit int) {
	page = c.QueryInt("page", 1)
	limit = c.QueryInt("limit", 10)
	if page < 1 {
		page = 1
	}
	return page, limit
}

// actorID returns the authenticated user's ID, or zero for anonymous requests.
func actorID(c *fiber.Ctx) uint {
	if id, ok := c.Locals("userID").(uint); ok {
		return id
	}
	return 0
}

// respondError writes a service error using the shared taxonomy. Unknown
// errors fall through as internal server errors.
func respondError(c *fiber.Ctx, err error) error {
	if appErr, ok := err.(*models.AppError); ok {
		return models.RespondWithError(c, models.StatusFor(appErr.Code), appErr)
	}
	return models.RespondWithError(c, fiber.StatusInternalServerError, err)
}

// chapterIDFromQuery reads the optional chapter_id query parameter. Its
// presence routes the request to the chapter-scoped collection.
func chapterIDFromQuery(c *fiber.Ctx) (*uint, error) {
	raw := c.Query("chapter_id")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return nil, models.NewValidationError("Invalid chapter_id")
	}
	chapterID := uint(id)
	return &chapterID, nil
}
