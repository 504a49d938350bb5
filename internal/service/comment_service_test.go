package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"inkwell/internal/models"
	"inkwell/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNovelScope   = models.ScopeRef{NovelID: 1}
	testChapterScope = models.ScopeRef{NovelID: 1, ChapterID: uintPtr(4)}
)

func uintPtr(v uint) *uint {
	return &v
}

// newTestService builds a CommentService over in-memory stores with three
// known users: two readers and one moderator.
func newTestService(t *testing.T) (*CommentService, *repository.InMemoryCommentRepository) {
	t.Helper()

	repo := repository.NewInMemoryCommentRepository()
	users := repository.NewInMemoryUserRepository(
		&models.User{ID: 1, Username: "ada"},
		&models.User{ID: 2, Username: "grace"},
		&models.User{ID: 3, Username: "mod", IsModerator: true},
	)
	svc := NewCommentService(repo, users, AllowAllScopes, users.IsModerator, nil)
	return svc, repo
}

func mustCreate(t *testing.T, svc *CommentService, actorID uint, scope models.ScopeRef, content string, parentID *uint) *CommentView {
	t.Helper()
	view, err := svc.Create(context.Background(), CreateCommentInput{
		ActorID:  actorID,
		Scope:    scope,
		Content:  content,
		ParentID: parentID,
	})
	require.NoError(t, err)
	return view
}

func TestCreateComment(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	view := mustCreate(t, svc, 1, testNovelScope, "first!", nil)

	assert.NotZero(t, view.ID)
	assert.Equal(t, "first!", view.Content)
	assert.Equal(t, uint(1), view.AuthorID)
	assert.Equal(t, "ada", view.Username)
	assert.Nil(t, view.ParentID)
	assert.False(t, view.IsEdited)
	assert.False(t, view.IsDeleted)
	assert.Empty(t, view.LikedBy)

	page, err := svc.ListTopLevel(ctx, 0, testNovelScope, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Comments, 1)
	assert.Equal(t, view.ID, page.Comments[0].ID)
}

func TestCreateCommentValidation(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		actorID  uint
		content  string
		wantCode string
	}{
		{"anonymous rejected", 0, "hello", models.CodeAuthRequired},
		{"empty content", 1, "", models.CodeValidation},
		{"whitespace only", 1, "   \n\t", models.CodeValidation},
		{"too long", 1, strings.Repeat("x", 10001), models.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, CreateCommentInput{
				ActorID: tt.actorID,
				Scope:   testNovelScope,
				Content: tt.content,
			})
			var appErr *models.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantCode, appErr.Code)
		})
	}
}

func TestCreateReplyUnknownParent(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateCommentInput{
		ActorID:  1,
		Scope:    testNovelScope,
		Content:  "reply",
		ParentID: uintPtr(999),
	})

	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeNotFound, appErr.Code)
}

func TestCreateReplyAcrossScopesRejected(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)

	parent := mustCreate(t, svc, 1, testNovelScope, "novel thread", nil)

	// The parent exists in the collection but belongs to a different thread.
	otherNovel := models.ScopeRef{NovelID: 2}
	_, err := svc.Create(context.Background(), CreateCommentInput{
		ActorID:  2,
		Scope:    otherNovel,
		Content:  "cross-novel reply",
		ParentID: uintPtr(parent.ID),
	})

	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeNotFound, appErr.Code)
}

func TestListTopLevelPagination(t *testing.T) {
	t.Parallel()

	svc, repo := newTestService(t)
	ctx := context.Background()

	// Distinct timestamps so ordering is by creation time, newest first.
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	repo.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})

	var ids []uint
	for i := 0; i < 25; i++ {
		view := mustCreate(t, svc, 1, testNovelScope, "comment", nil)
		ids = append(ids, view.ID)
	}

	page1, err := svc.ListTopLevel(ctx, 0, testNovelScope, 1, 10)
	require.NoError(t, err)
	require.Len(t, page1.Comments, 10)
	assert.Equal(t, ids[24], page1.Comments[0].ID, "newest first")
	assert.Equal(t, 1, page1.Pagination.CurrentPage)
	assert.Equal(t, 3, page1.Pagination.TotalPages)
	assert.Equal(t, int64(25), page1.Pagination.TotalItems)
	assert.True(t, page1.Pagination.HasNextPage)
	assert.False(t, page1.Pagination.HasPrevPage)

	page3, err := svc.ListTopLevel(ctx, 0, testNovelScope, 3, 10)
	require.NoError(t, err)
	require.Len(t, page3.Comments, 5)
	assert.Equal(t, ids[0], page3.Comments[4].ID, "oldest last")
	assert.False(t, page3.Pagination.HasNextPage)
	assert.True(t, page3.Pagination.HasPrevPage)

	// A page past the end is empty, not an error.
	page9, err := svc.ListTopLevel(ctx, 0, testNovelScope, 9, 10)
	require.NoError(t, err)
	assert.Empty(t, page9.Comments)
	assert.Equal(t, int64(25), page9.Pagination.TotalItems)
}

func TestListTopLevelClampsWindow(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	mustCreate(t, svc, 1, testNovelScope, "one", nil)

	page, err := svc.ListTopLevel(ctx, 0, testNovelScope, -3, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Pagination.CurrentPage)
	assert.Equal(t, 10, page.Pagination.Limit)

	page, err = svc.ListTopLevel(ctx, 0, testNovelScope, 1, 5000)
	require.NoError(t, err)
	assert.Equal(t, 100, page.Pagination.Limit)
}

func TestListTopLevelExcludesRepliesAndOtherScopes(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	root := mustCreate(t, svc, 1, testNovelScope, "root", nil)
	mustCreate(t, svc, 2, testNovelScope, "reply", uintPtr(root.ID))
	mustCreate(t, svc, 2, models.ScopeRef{NovelID: 9}, "other novel", nil)

	page, err := svc.ListTopLevel(ctx, 0, testNovelScope, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Comments, 1)
	assert.Equal(t, root.ID, page.Comments[0].ID)
}

func TestChapterScopeIsolation(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	mustCreate(t, svc, 1, testChapterScope, "chapter 4 comment", nil)
	otherChapter := models.ScopeRef{NovelID: 1, ChapterID: uintPtr(5)}
	mustCreate(t, svc, 1, otherChapter, "chapter 5 comment", nil)

	page, err := svc.ListTopLevel(ctx, 0, testChapterScope, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Comments, 1)
	assert.Equal(t, "chapter 4 comment", page.Comments[0].Content)
}

func TestListReplies(t *testing.T) {
	t.Parallel()

	svc, repo := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	repo.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})

	root := mustCreate(t, svc, 1, testNovelScope, "root", nil)
	first := mustCreate(t, svc, 2, testNovelScope, "first reply", uintPtr(root.ID))
	second := mustCreate(t, svc, 1, testNovelScope, "second reply", uintPtr(root.ID))

	replies, err := svc.ListReplies(ctx, 0, root.ID)
	require.NoError(t, err)
	require.Len(t, replies, 2)
	// Chronological, oldest first.
	assert.Equal(t, first.ID, replies[0].ID)
	assert.Equal(t, second.ID, replies[1].ID)
}

func TestListRepliesUnknownParent(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)

	_, err := svc.ListReplies(context.Background(), 0, 404)

	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeNotFound, appErr.Code)
}

func TestEditComment(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	view := mustCreate(t, svc, 1, testNovelScope, "tpyo", nil)

	updated, err := svc.Edit(ctx, EditCommentInput{ActorID: 1, CommentID: view.ID, Content: "typo"})
	require.NoError(t, err)
	assert.Equal(t, "typo", updated.Content)
	assert.True(t, updated.IsEdited)
}

func TestEditCommentOwnership(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	view := mustCreate(t, svc, 1, testNovelScope, "mine", nil)

	_, err := svc.Edit(ctx, EditCommentInput{ActorID: 2, CommentID: view.ID, Content: "hijacked"})
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeForbidden, appErr.Code)

	// Moderators may delete but not rewrite other readers' words.
	_, err = svc.Edit(ctx, EditCommentInput{ActorID: 3, CommentID: view.ID, Content: "moderated"})
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeForbidden, appErr.Code)
}

func TestEditDeletedCommentRejected(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	view := mustCreate(t, svc, 1, testNovelScope, "soon gone", nil)
	_, err := svc.SoftDelete(ctx, DeleteCommentInput{ActorID: 1, CommentID: view.ID})
	require.NoError(t, err)

	_, err = svc.Edit(ctx, EditCommentInput{ActorID: 1, CommentID: view.ID, Content: "necromancy"})
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeValidation, appErr.Code)
}

func TestSoftDeletePreservesReplies(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	root := mustCreate(t, svc, 1, testNovelScope, "parent", nil)
	reply := mustCreate(t, svc, 2, testNovelScope, "child", uintPtr(root.ID))

	deleted, err := svc.SoftDelete(ctx, DeleteCommentInput{ActorID: 1, CommentID: root.ID})
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, models.DeletedPlaceholder, deleted.Content)

	// The tombstone still lists and still carries its replies.
	page, err := svc.ListTopLevel(ctx, 0, testNovelScope, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Comments, 1)
	assert.True(t, page.Comments[0].IsDeleted)

	replies, err := svc.ListReplies(ctx, 0, root.ID)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, reply.ID, replies[0].ID)
	assert.False(t, replies[0].IsDeleted)
}

func TestSoftDeletePermissions(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	view := mustCreate(t, svc, 1, testNovelScope, "target", nil)

	// A non-author, non-moderator reader may not delete.
	_, err := svc.SoftDelete(ctx, DeleteCommentInput{ActorID: 2, CommentID: view.ID})
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeForbidden, appErr.Code)

	// A moderator may.
	deleted, err := svc.SoftDelete(ctx, DeleteCommentInput{ActorID: 3, CommentID: view.ID})
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
}

func TestSoftDeleteLeavesTimestampsUntouched(t *testing.T) {
	t.Parallel()

	svc, repo := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	repo.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})

	view := mustCreate(t, svc, 1, testNovelScope, "ephemeral", nil)

	// Deletion tombstones content and flips the flag; it is not an edit, so
	// both timestamps keep their pre-delete values.
	deleted, err := svc.SoftDelete(ctx, DeleteCommentInput{ActorID: 1, CommentID: view.ID})
	require.NoError(t, err)
	assert.Equal(t, view.CreatedAt, deleted.CreatedAt)
	assert.Equal(t, view.UpdatedAt, deleted.UpdatedAt)
}

func TestSoftDeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	view := mustCreate(t, svc, 1, testNovelScope, "target", nil)

	_, err := svc.SoftDelete(ctx, DeleteCommentInput{ActorID: 1, CommentID: view.ID})
	require.NoError(t, err)
	deleted, err := svc.SoftDelete(ctx, DeleteCommentInput{ActorID: 1, CommentID: view.ID})
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, models.DeletedPlaceholder, deleted.Content)
}

func TestToggleLike(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	view := mustCreate(t, svc, 1, testNovelScope, "likeable", nil)

	result, err := svc.ToggleLike(ctx, 2, view.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{2}, result.LikedBy)
	assert.True(t, result.UserLiked)

	// Another reader's like accumulates.
	result, err = svc.ToggleLike(ctx, 1, view.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{1, 2}, result.LikedBy)

	// A second toggle by the same reader removes only their membership.
	result, err = svc.ToggleLike(ctx, 2, view.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{1}, result.LikedBy)
	assert.False(t, result.UserLiked)
}

func TestToggleLikeRequiresAuth(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)

	view := mustCreate(t, svc, 1, testNovelScope, "likeable", nil)

	_, err := svc.ToggleLike(context.Background(), 0, view.ID)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeAuthRequired, appErr.Code)
}

func TestUserLikedFlagPerActor(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	view := mustCreate(t, svc, 1, testNovelScope, "likeable", nil)
	_, err := svc.ToggleLike(ctx, 2, view.ID)
	require.NoError(t, err)

	asLiker, err := svc.ListTopLevel(ctx, 2, testNovelScope, 1, 10)
	require.NoError(t, err)
	assert.True(t, asLiker.Comments[0].UserLiked)

	asOther, err := svc.ListTopLevel(ctx, 1, testNovelScope, 1, 10)
	require.NoError(t, err)
	assert.False(t, asOther.Comments[0].UserLiked)

	asAnonymous, err := svc.ListTopLevel(ctx, 0, testNovelScope, 1, 10)
	require.NoError(t, err)
	assert.False(t, asAnonymous.Comments[0].UserLiked)
	assert.Equal(t, []uint{2}, asAnonymous.Comments[0].LikedBy)
}
