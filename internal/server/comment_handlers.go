package server

import (
	"log/slog"

	"inkwell/internal/middleware"
	"inkwell/internal/models"
	"inkwell/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ListComments returns one page of top-level comments for a scope, newest
// first. GET /api/novels/:novelId/comments?chapter_id=&page=&limit=
func (s *Server) ListComments(c *fiber.Ctx) error {
	novelID, err := parseID(c, "novelId")
	if err != nil {
		return respondError(c, err)
	}
	chapterID, err := chapterIDFromQuery(c)
	if err != nil {
		return respondError(c, err)
	}
	page, limit := parsePagination(c)

	scope := models.ScopeRef{NovelID: novelID, ChapterID: chapterID}
	result, err := s.scopedService(scope.IsChapter()).ListTopLevel(c.UserContext(), actorID(c), scope, page, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// CreateCommentRequest is the body for posting a comment or reply.
type CreateCommentRequest struct {
	Content   string `json:"content"`
	ChapterID *uint  `json:"chapter_id"`
	ParentID  *uint  `json:"parent_id"`
}

// CreateComment posts a new comment or reply.
// POST /api/novels/:novelId/comments
func (s *Server) CreateComment(c *fiber.Ctx) error {
	novelID, err := parseID(c, "novelId")
	if err != nil {
		return respondError(c, err)
	}

	var req CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, models.NewValidationError("Invalid request body"))
	}

	scope := models.ScopeRef{NovelID: novelID, ChapterID: req.ChapterID}
	view, err := s.scopedService(scope.IsChapter()).Create(c.UserContext(), service.CreateCommentInput{
		ActorID:  actorID(c),
		Scope:    scope,
		Content:  req.Content,
		ParentID: req.ParentID,
	})
	if err != nil {
		return respondError(c, err)
	}

	middleware.Logger.InfoContext(c.UserContext(), "comment created",
		slog.Uint64("comment_id", uint64(view.ID)),
		slog.Uint64("novel_id", uint64(novelID)),
		slog.Bool("chapter_scoped", scope.IsChapter()),
		slog.Bool("is_reply", req.ParentID != nil))

	return c.Status(fiber.StatusCreated).JSON(view)
}

// ListReplies returns every reply of a comment in chronological order.
// GET /api/comments/:commentId/replies (or /api/chapter-comments/...)
func (s *Server) ListReplies(chapterScoped bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		commentID, err := parseID(c, "commentId")
		if err != nil {
			return respondError(c, err)
		}

		replies, err := s.scopedService(chapterScoped).ListReplies(c.UserContext(), actorID(c), commentID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"replies": replies})
	}
}

// EditCommentRequest is the body for rewriting a comment's content.
type EditCommentRequest struct {
	Content string `json:"content"`
}

// EditComment replaces a comment's content. Author-only.
// PATCH /api/comments/:commentId (or /api/chapter-comments/...)
func (s *Server) EditComment(chapterScoped bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		commentID, err := parseID(c, "commentId")
		if err != nil {
			return respondError(c, err)
		}

		var req EditCommentRequest
		if err := c.BodyParser(&req); err != nil {
			return respondError(c, models.NewValidationError("Invalid request body"))
		}

		view, err := s.scopedService(chapterScoped).Edit(c.UserContext(), service.EditCommentInput{
			ActorID:   actorID(c),
			CommentID: commentID,
			Content:   req.Content,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(view)
	}
}

// DeleteComment tombstones a comment, preserving its replies. Permitted for
// the author and for moderators.
// DELETE /api/comments/:commentId (or /api/chapter-comments/...)
func (s *Server) DeleteComment(chapterScoped bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		commentID, err := parseID(c, "commentId")
		if err != nil {
			return respondError(c, err)
		}

		view, err := s.scopedService(chapterScoped).SoftDelete(c.UserContext(), service.DeleteCommentInput{
			ActorID:   actorID(c),
			CommentID: commentID,
		})
		if err != nil {
			return respondError(c, err)
		}

		middleware.Logger.InfoContext(c.UserContext(), "comment deleted",
			slog.Uint64("comment_id", uint64(commentID)),
			slog.Bool("chapter_scoped", chapterScoped))

		return c.JSON(fiber.Map{"success": true, "comment": view})
	}
}

// ToggleLike flips the caller's like on a comment and returns the
// authoritative like state.
// POST /api/comments/:commentId/like (or /api/chapter-comments/...)
func (s *Server) ToggleLike(chapterScoped bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		commentID, err := parseID(c, "commentId")
		if err != nil {
			return respondError(c, err)
		}

		result, err := s.scopedService(chapterScoped).ToggleLike(c.UserContext(), actorID(c), commentID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(result)
	}
}
