// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// DeletedPlaceholder replaces a comment's content when it is soft-deleted.
// The row itself is never removed so replies stay attached to their parent.
const DeletedPlaceholder = "[deleted]"

// Comment represents a reader comment on a novel or on a chapter.
// The same shape is persisted in two separate tables (novel_comments and
// chapter_comments); repositories decide which table a given instance
// belongs to. ChapterID is NULL for novel-scoped comments.
type Comment struct {
	ID        uint      `json:"id"`
	Content   string    `json:"content"`
	AuthorID  uint      `gorm:"column:author_id" json:"author_id"`
	NovelID   uint      `gorm:"column:novel_id" json:"novel_id"`
	ChapterID *uint     `gorm:"column:chapter_id" json:"chapter_id,omitempty"`
	ParentID  *uint     `gorm:"column:parent_id" json:"parent_id"`
	IsEdited  bool      `gorm:"column:is_edited" json:"is_edited"`
	IsDeleted bool      `gorm:"column:is_deleted" json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CommentLike is one row of the like-association relation. A user can like
// a comment at most once; the store enforces this with a unique index over
// (user_id, comment_id) so duplicate likes are no-ops.
type CommentLike struct {
	ID        uint      `json:"id"`
	UserID    uint      `gorm:"column:user_id" json:"user_id"`
	CommentID uint      `gorm:"column:comment_id" json:"comment_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ScopeRef identifies the context a comment thread belongs to: a novel as a
// whole, or a specific chapter within a novel.
type ScopeRef struct {
	NovelID   uint  `json:"novel_id"`
	ChapterID *uint `json:"chapter_id,omitempty"`
}

// IsChapter reports whether the scope refers to a single chapter.
func (s ScopeRef) IsChapter() bool {
	return s.ChapterID != nil
}
