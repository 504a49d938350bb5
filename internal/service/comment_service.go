// Package service implements the comment query/mutation layer on top of the
// scoped repositories. All entity invariants (ownership, soft-delete
// tombstoning, like idempotence) are enforced here; handlers only translate
// transport concerns.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"inkwell/internal/cache"
	"inkwell/internal/models"
	"inkwell/internal/observability"
	"inkwell/internal/repository"

	"gorm.io/gorm"
)

const maxCommentLen = 10000

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// ScopeChecker reports whether a novel or chapter exists. Novel/chapter
// lookup is owned by the catalog service; the comment subsystem only
// consumes the decision.
type ScopeChecker func(ctx context.Context, scope models.ScopeRef) error

// ModeratorChecker reports whether a user holds an elevated role that
// permits deleting other readers' comments.
type ModeratorChecker func(ctx context.Context, userID uint) (bool, error)

// AllowAllScopes is the default ScopeChecker used when no catalog service is
// wired (tests, local development).
func AllowAllScopes(ctx context.Context, scope models.ScopeRef) error {
	return nil
}

// CommentView is the canonical comment DTO served to clients. Upstream
// record-shape variants are normalized into this one shape at the service
// boundary; nothing deeper in the pipeline branches on shape.
type CommentView struct {
	ID        uint      `json:"id"`
	Content   string    `json:"content"`
	AuthorID  uint      `json:"author_id"`
	Username  string    `json:"username"`
	Avatar    *string   `json:"avatar,omitempty"`
	NovelID   uint      `json:"novel_id"`
	ChapterID *uint     `json:"chapter_id,omitempty"`
	ParentID  *uint     `json:"parent_id"`
	IsEdited  bool      `json:"is_edited"`
	IsDeleted bool      `json:"is_deleted"`
	LikedBy   []uint    `json:"liked_by"`
	UserLiked bool      `json:"user_liked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CommentPage is one page of top-level comments plus pagination metadata.
// Replies are fetched separately and are never paginated.
type CommentPage struct {
	Comments   []CommentView     `json:"comments"`
	Pagination models.Pagination `json:"pagination"`
}

// LikeResult carries the authoritative like state after a toggle. It is
// always recomputed from the store, never from client-supplied state.
type LikeResult struct {
	LikedBy   []uint `json:"likes"`
	UserLiked bool   `json:"userLiked"`
}

// CreateCommentInput are the parameters for posting a comment or reply.
type CreateCommentInput struct {
	ActorID  uint
	Scope    models.ScopeRef
	Content  string
	ParentID *uint
}

// EditCommentInput are the parameters for editing a comment's content.
type EditCommentInput struct {
	ActorID   uint
	CommentID uint
	Content   string
}

// DeleteCommentInput are the parameters for soft-deleting a comment.
type DeleteCommentInput struct {
	ActorID   uint
	CommentID uint
}

// CommentService serves one comment scope (novel or chapter). Two instances
// exist at runtime, each bound to its scoped repository.
type CommentService struct {
	repo        repository.CommentRepository
	users       repository.UserRepository
	scopeOK     ScopeChecker
	isModerator ModeratorChecker
	pages       *cache.Cache
}

// NewCommentService creates a CommentService over the given scoped repository.
func NewCommentService(
	repo repository.CommentRepository,
	users repository.UserRepository,
	scopeOK ScopeChecker,
	isModerator ModeratorChecker,
	pages *cache.Cache,
) *CommentService {
	if scopeOK == nil {
		scopeOK = AllowAllScopes
	}
	return &CommentService{
		repo:        repo,
		users:       users,
		scopeOK:     scopeOK,
		isModerator: isModerator,
		pages:       pages,
	}
}

// ListTopLevel returns one page of parentless comments for a scope, newest
// first. actorID may be zero for anonymous readers; it only affects the
// user_liked flags. Anonymous pages are served from cache when possible.
func (s *CommentService) ListTopLevel(
	ctx context.Context,
	actorID uint,
	scope models.ScopeRef,
	page, limit int,
) (*CommentPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if err := s.scopeOK(ctx, scope); err != nil {
		return nil, err
	}

	// Liked-by-me flags are actor-specific, so only anonymous pages cache well.
	cacheable := actorID == 0
	if cacheable {
		var cached CommentPage
		if s.pages.GetPage(ctx, scope, page, limit, &cached) {
			return &cached, nil
		}
	}

	offset := (page - 1) * limit
	comments, total, err := s.repo.ListTopLevel(ctx, scope, limit, offset)
	if err != nil {
		return nil, models.NewTransientError(err)
	}

	views, err := s.buildViews(ctx, comments, actorID)
	if err != nil {
		return nil, err
	}

	result := &CommentPage{
		Comments:   views,
		Pagination: models.NewPagination(page, limit, total),
	}

	if cacheable {
		s.pages.SetPage(ctx, scope, page, limit, result)
	}
	return result, nil
}

// ListReplies returns every reply of a parent in chronological order,
// tombstones included so their thread position still renders. The parent is
// looked up first, so replies of a comment outside this scope can never be
// served (and the caller always has the parent available for threading).
func (s *CommentService) ListReplies(ctx context.Context, actorID uint, parentID uint) ([]CommentView, error) {
	if _, err := s.repo.GetByID(ctx, parentID); err != nil {
		return nil, s.storeError(err, "Comment", parentID)
	}

	replies, err := s.repo.ListReplies(ctx, parentID)
	if err != nil {
		return nil, models.NewTransientError(err)
	}

	return s.buildViews(ctx, replies, actorID)
}

// Create posts a new comment or reply.
func (s *CommentService) Create(ctx context.Context, in CreateCommentInput) (*CommentView, error) {
	if in.ActorID == 0 {
		return nil, models.NewAuthRequiredError()
	}
	if err := validateContent(in.Content); err != nil {
		return nil, err
	}
	if err := s.scopeOK(ctx, in.Scope); err != nil {
		return nil, err
	}

	if in.ParentID != nil {
		parent, err := s.repo.GetByID(ctx, *in.ParentID)
		if err != nil {
			return nil, s.storeError(err, "Parent comment", *in.ParentID)
		}
		// The parent lives in the same collection, but it must also belong
		// to the same thread: a reply cannot attach across novels or chapters.
		if !sameScope(parent, in.Scope) {
			return nil, models.NewNotFoundError("Parent comment", *in.ParentID)
		}
	}

	comment := &models.Comment{
		Content:   in.Content,
		AuthorID:  in.ActorID,
		NovelID:   in.Scope.NovelID,
		ChapterID: in.Scope.ChapterID,
		ParentID:  in.ParentID,
	}
	if err := s.repo.Create(ctx, comment); err != nil {
		return nil, models.NewTransientError(err)
	}

	s.pages.InvalidateScope(ctx, in.Scope)
	observability.CommentMutationsTotal.WithLabelValues("create", scopeLabel(in.Scope)).Inc()

	return s.buildView(ctx, comment, in.ActorID)
}

// Edit replaces a comment's content. Only the author may edit; moderators
// may delete but not rewrite other readers' words.
func (s *CommentService) Edit(ctx context.Context, in EditCommentInput) (*CommentView, error) {
	if in.ActorID == 0 {
		return nil, models.NewAuthRequiredError()
	}
	if err := validateContent(in.Content); err != nil {
		return nil, err
	}

	comment, err := s.repo.GetByID(ctx, in.CommentID)
	if err != nil {
		return nil, s.storeError(err, "Comment", in.CommentID)
	}
	if comment.AuthorID != in.ActorID {
		return nil, models.NewForbiddenError("You can only edit your own comments")
	}
	if comment.IsDeleted {
		return nil, models.NewValidationError("Deleted comments cannot be edited")
	}

	if err := s.repo.UpdateContent(ctx, in.CommentID, in.Content); err != nil {
		return nil, s.storeError(err, "Comment", in.CommentID)
	}

	updated, err := s.repo.GetByID(ctx, in.CommentID)
	if err != nil {
		return nil, s.storeError(err, "Comment", in.CommentID)
	}

	s.pages.InvalidateScope(ctx, scopeOf(updated))
	observability.CommentMutationsTotal.WithLabelValues("edit", scopeLabel(scopeOf(updated))).Inc()

	return s.buildView(ctx, updated, in.ActorID)
}

// SoftDelete tombstones a comment. The row is preserved so existing replies
// stay attached; only content and the deleted flag change. Permitted for
// the author and for moderators.
func (s *CommentService) SoftDelete(ctx context.Context, in DeleteCommentInput) (*CommentView, error) {
	if in.ActorID == 0 {
		return nil, models.NewAuthRequiredError()
	}

	comment, err := s.repo.GetByID(ctx, in.CommentID)
	if err != nil {
		return nil, s.storeError(err, "Comment", in.CommentID)
	}

	if comment.AuthorID != in.ActorID {
		if s.isModerator == nil {
			return nil, models.NewForbiddenError("You can only delete your own comments")
		}
		elevated, modErr := s.isModerator(ctx, in.ActorID)
		if modErr != nil {
			return nil, models.NewTransientError(modErr)
		}
		if !elevated {
			return nil, models.NewForbiddenError("You can only delete your own comments")
		}
	}

	if err := s.repo.MarkDeleted(ctx, in.CommentID); err != nil {
		return nil, s.storeError(err, "Comment", in.CommentID)
	}

	deleted, err := s.repo.GetByID(ctx, in.CommentID)
	if err != nil {
		return nil, s.storeError(err, "Comment", in.CommentID)
	}

	s.pages.InvalidateScope(ctx, scopeOf(deleted))
	observability.CommentMutationsTotal.WithLabelValues("delete", scopeLabel(scopeOf(deleted))).Inc()

	return s.buildView(ctx, deleted, in.ActorID)
}

// ToggleLike flips the actor's membership in a comment's like set. The
// direction is decided from durable membership, never from a client-supplied
// delta, so duplicate or reordered requests converge instead of
// double-counting. The returned state is reloaded from the store.
func (s *CommentService) ToggleLike(ctx context.Context, actorID, commentID uint) (*LikeResult, error) {
	if actorID == 0 {
		return nil, models.NewAuthRequiredError()
	}

	comment, err := s.repo.GetByID(ctx, commentID)
	if err != nil {
		return nil, s.storeError(err, "Comment", commentID)
	}

	likedBy, err := s.repo.LikedBy(ctx, commentID)
	if err != nil {
		return nil, models.NewTransientError(err)
	}

	if containsUser(likedBy, actorID) {
		err = s.repo.Unlike(ctx, actorID, commentID)
	} else {
		err = s.repo.Like(ctx, actorID, commentID)
	}
	if err != nil {
		return nil, models.NewTransientError(err)
	}

	// Reload the authoritative membership rather than patching the local
	// slice; this is what corrects drift under racing toggles.
	likedBy, err = s.repo.LikedBy(ctx, commentID)
	if err != nil {
		return nil, models.NewTransientError(err)
	}

	s.pages.InvalidateScope(ctx, scopeOf(comment))
	observability.CommentMutationsTotal.WithLabelValues("toggle_like", scopeLabel(scopeOf(comment))).Inc()

	return &LikeResult{
		LikedBy:   likedBy,
		UserLiked: containsUser(likedBy, actorID),
	}, nil
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return models.NewValidationError("Content is required")
	}
	if len(content) > maxCommentLen {
		return models.NewValidationError("Comment too long (max 10000 characters)")
	}
	return nil
}

func sameScope(comment *models.Comment, scope models.ScopeRef) bool {
	if comment.NovelID != scope.NovelID {
		return false
	}
	if scope.IsChapter() {
		return comment.ChapterID != nil && *comment.ChapterID == *scope.ChapterID
	}
	return comment.ChapterID == nil
}

func scopeOf(comment *models.Comment) models.ScopeRef {
	return models.ScopeRef{NovelID: comment.NovelID, ChapterID: comment.ChapterID}
}

func scopeLabel(scope models.ScopeRef) string {
	if scope.IsChapter() {
		return "chapter"
	}
	return "novel"
}

func containsUser(ids []uint, id uint) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

// storeError maps a repository failure to the service error taxonomy.
func (s *CommentService) storeError(err error, resource string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	return models.NewTransientError(err)
}

// buildView assembles the canonical DTO for a single comment.
func (s *CommentService) buildView(ctx context.Context, comment *models.Comment, actorID uint) (*CommentView, error) {
	views, err := s.buildViews(ctx, []*models.Comment{comment}, actorID)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// buildViews enriches comment rows with author display fields and like
// membership in two batched lookups.
func (s *CommentService) buildViews(ctx context.Context, comments []*models.Comment, actorID uint) ([]CommentView, error) {
	views := make([]CommentView, 0, len(comments))
	if len(comments) == 0 {
		return views, nil
	}

	commentIDs := make([]uint, 0, len(comments))
	authorIDs := make([]uint, 0, len(comments))
	seen := make(map[uint]bool, len(comments))
	for _, c := range comments {
		commentIDs = append(commentIDs, c.ID)
		if !seen[c.AuthorID] {
			seen[c.AuthorID] = true
			authorIDs = append(authorIDs, c.AuthorID)
		}
	}

	likes, err := s.repo.LikedByBatch(ctx, commentIDs)
	if err != nil {
		return nil, models.NewTransientError(err)
	}
	authors, err := s.users.GetByIDs(ctx, authorIDs)
	if err != nil {
		return nil, models.NewTransientError(err)
	}

	for _, c := range comments {
		likedBy := likes[c.ID]
		if likedBy == nil {
			likedBy = []uint{}
		}
		view := CommentView{
			ID:        c.ID,
			Content:   c.Content,
			AuthorID:  c.AuthorID,
			NovelID:   c.NovelID,
			ChapterID: c.ChapterID,
			ParentID:  c.ParentID,
			IsEdited:  c.IsEdited,
			IsDeleted: c.IsDeleted,
			LikedBy:   likedBy,
			UserLiked: actorID != 0 && containsUser(likedBy, actorID),
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
		}
		if author, ok := authors[c.AuthorID]; ok {
			view.Username = author.Username
			view.Avatar = author.Avatar
		}
		views = append(views, view)
	}
	return views, nil
}
