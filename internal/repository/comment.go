// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"time"

	"inkwell/internal/models"

	"gorm.io/gorm"
)

// CommentRepository defines the query/mutation contract over one comment
// collection. Two instances exist at runtime: one bound to the novel-scoped
// tables and one to the chapter-scoped tables. The interfaces are identical;
// only the underlying relations differ.
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	// ListTopLevel returns one page of parentless comments for a scope,
	// newest first (created_at DESC, id DESC tiebreak), plus the total count.
	ListTopLevel(ctx context.Context, scope models.ScopeRef, limit, offset int) ([]*models.Comment, int64, error)
	// ListReplies returns every reply of a parent in chronological order.
	// Replies are never paginated; tombstoned replies are included because
	// their thread position must still render.
	ListReplies(ctx context.Context, parentID uint) ([]*models.Comment, error)
	UpdateContent(ctx context.Context, id uint, content string) error
	// MarkDeleted tombstones a comment in place. The row survives so that
	// replies keep a valid parent.
	MarkDeleted(ctx context.Context, id uint) error
	Like(ctx context.Context, userID, commentID uint) error
	Unlike(ctx context.Context, userID, commentID uint) error
	LikedBy(ctx context.Context, commentID uint) ([]uint, error)
	LikedByBatch(ctx context.Context, commentIDs []uint) (map[uint][]uint, error)
}

type commentRepository struct {
	db        *gorm.DB
	table     string
	likeTable string
}

// NewNovelCommentRepository creates a CommentRepository over the
// novel-scoped comment and like tables.
func NewNovelCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db, table: "novel_comments", likeTable: "novel_comment_likes"}
}

// NewChapterCommentRepository creates a CommentRepository over the
// chapter-scoped comment and like tables.
func NewChapterCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db, table: "chapter_comments", likeTable: "chapter_comment_likes"}
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Table(r.table).Create(comment).Error
}

func (r *commentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).Table(r.table).Where("id = ?", id).First(&comment).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

func (r *commentRepository) scopeQuery(ctx context.Context, scope models.ScopeRef) *gorm.DB {
	q := r.db.WithContext(ctx).Table(r.table).Where("novel_id = ?", scope.NovelID)
	if scope.IsChapter() {
		q = q.Where("chapter_id = ?", *scope.ChapterID)
	}
	return q
}

func (r *commentRepository) ListTopLevel(
	ctx context.Context,
	scope models.ScopeRef,
	limit, offset int,
) ([]*models.Comment, int64, error) {
	query := r.scopeQuery(ctx, scope).Where("parent_id IS NULL")

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var comments []*models.Comment
	err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&comments).Error
	if err != nil {
		return nil, 0, err
	}

	return comments, total, nil
}

func (r *commentRepository) ListReplies(ctx context.Context, parentID uint) ([]*models.Comment, error) {
	var comments []*models.Comment
	err := r.db.WithContext(ctx).Table(r.table).
		Where("parent_id = ?", parentID).
		Order("created_at ASC, id ASC").
		Find(&comments).Error
	return comments, err
}

func (r *commentRepository) UpdateContent(ctx context.Context, id uint, content string) error {
	result := r.db.WithContext(ctx).Table(r.table).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"content":    content,
			"is_edited":  true,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *commentRepository) MarkDeleted(ctx context.Context, id uint) error {
	// updated_at is deliberately untouched: deletion is not an edit, and the
	// timestamp keeps reflecting the last content revision by the author.
	result := r.db.WithContext(ctx).Table(r.table).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"content":    models.DeletedPlaceholder,
			"is_deleted": true,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *commentRepository) Like(ctx context.Context, userID, commentID uint) error {
	// The unique index over (user_id, comment_id) makes duplicate likes
	// no-ops even when two requests race.
	return r.db.WithContext(ctx).Exec(
		"INSERT INTO "+r.likeTable+" (user_id, comment_id, created_at) VALUES (?, ?, ?) "+
			"ON CONFLICT (user_id, comment_id) DO NOTHING",
		userID, commentID, time.Now().UTC(),
	).Error
}

func (r *commentRepository) Unlike(ctx context.Context, userID, commentID uint) error {
	return r.db.WithContext(ctx).Table(r.likeTable).
		Where("user_id = ? AND comment_id = ?", userID, commentID).
		Delete(&models.CommentLike{}).Error
}

func (r *commentRepository) LikedBy(ctx context.Context, commentID uint) ([]uint, error) {
	likedBy := make([]uint, 0)
	err := r.db.WithContext(ctx).Table(r.likeTable).
		Where("comment_id = ?", commentID).
		Order("id ASC").
		Pluck("user_id", &likedBy).Error
	return likedBy, err
}

func (r *commentRepository) LikedByBatch(ctx context.Context, commentIDs []uint) (map[uint][]uint, error) {
	result := make(map[uint][]uint, len(commentIDs))
	if len(commentIDs) == 0 {
		return result, nil
	}

	var likes []models.CommentLike
	err := r.db.WithContext(ctx).Table(r.likeTable).
		Where("comment_id IN ?", commentIDs).
		Order("id ASC").
		Find(&likes).Error
	if err != nil {
		return nil, err
	}

	for _, like := range likes {
		result[like.CommentID] = append(result[like.CommentID], like.UserID)
	}
	return result, nil
}
