package optimistic

import (
	"context"
	"errors"
	"testing"
	"time"

	"inkwell/internal/models"
	"inkwell/internal/repository"
	"inkwell/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testScope = models.ScopeRef{NovelID: 1}

// scriptedService wraps the real comment service so tests can inject
// failures and observe coordinator state while a call is in flight.
type scriptedService struct {
	Service
	failNext       error
	onListTopLevel func()
	onCreate       func()
}

func (s *scriptedService) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *scriptedService) ListTopLevel(ctx context.Context, actorID uint, scope models.ScopeRef, page, limit int) (*service.CommentPage, error) {
	if s.onListTopLevel != nil {
		s.onListTopLevel()
	}
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	return s.Service.ListTopLevel(ctx, actorID, scope, page, limit)
}

func (s *scriptedService) Create(ctx context.Context, in service.CreateCommentInput) (*service.CommentView, error) {
	if s.onCreate != nil {
		s.onCreate()
	}
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	return s.Service.Create(ctx, in)
}

func (s *scriptedService) Edit(ctx context.Context, in service.EditCommentInput) (*service.CommentView, error) {
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	return s.Service.Edit(ctx, in)
}

func (s *scriptedService) SoftDelete(ctx context.Context, in service.DeleteCommentInput) (*service.CommentView, error) {
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	return s.Service.SoftDelete(ctx, in)
}

func (s *scriptedService) ToggleLike(ctx context.Context, actorID, commentID uint) (*service.LikeResult, error) {
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	return s.Service.ToggleLike(ctx, actorID, commentID)
}

// newTestCoordinator wires a coordinator over the real service and in-memory
// stores, acting as user ada (ID 1).
func newTestCoordinator(t *testing.T) (*Coordinator, *scriptedService, *service.CommentService) {
	t.Helper()

	repo := repository.NewInMemoryCommentRepository()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	repo.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})

	users := repository.NewInMemoryUserRepository(
		&models.User{ID: 1, Username: "ada"},
		&models.User{ID: 2, Username: "grace"},
	)
	svc := service.NewCommentService(repo, users, service.AllowAllScopes, users.IsModerator, nil)
	scripted := &scriptedService{Service: svc}

	coord := NewCoordinator(scripted, Actor{ID: 1, Username: "ada"}, testScope, 10)
	return coord, scripted, svc
}

func seedComment(t *testing.T, svc *service.CommentService, actorID uint, content string, parentID *uint) *service.CommentView {
	t.Helper()
	view, err := svc.Create(context.Background(), service.CreateCommentInput{
		ActorID:  actorID,
		Scope:    testScope,
		Content:  content,
		ParentID: parentID,
	})
	require.NoError(t, err)
	return view
}

func TestLoadPageBuildsForest(t *testing.T) {
	coord, _, svc := newTestCoordinator(t)
	ctx := context.Background()

	first := seedComment(t, svc, 2, "older", nil)
	second := seedComment(t, svc, 2, "newer", nil)

	require.NoError(t, coord.LoadPage(ctx, 1))

	forest := coord.Forest()
	require.Len(t, forest.Roots, 2)
	assert.Equal(t, int64(second.ID), forest.Roots[0].ID, "newest first")
	assert.Equal(t, int64(first.ID), forest.Roots[1].ID)
	assert.Equal(t, int64(2), coord.Pagination().TotalItems)
}

func TestLoadRepliesAttachesSubtree(t *testing.T) {
	coord, _, svc := newTestCoordinator(t)
	ctx := context.Background()

	root := seedComment(t, svc, 2, "root", nil)
	reply := seedComment(t, svc, 1, "reply", &root.ID)

	require.NoError(t, coord.LoadPage(ctx, 1))
	require.NoError(t, coord.LoadReplies(ctx, int64(root.ID)))

	node := coord.Forest().Find(int64(root.ID))
	require.NotNil(t, node)
	require.Len(t, node.Replies, 1)
	assert.Equal(t, int64(reply.ID), node.Replies[0].ID)
}

func TestCreateCommitReplacesSpeculativeNode(t *testing.T) {
	coord, scripted, _ := newTestCoordinator(t)
	ctx := context.Background()
	require.NoError(t, coord.LoadPage(ctx, 1))

	// While the create is in flight the speculative node must already be
	// visible at the head of the root list, with a negative local ID.
	var inFlightID int64
	scripted.onCreate = func() {
		roots := coord.Forest().Roots
		require.Len(t, roots, 1)
		inFlightID = roots[0].ID
		assert.Equal(t, StatePending, coord.LastMutation().State)
	}

	node, err := coord.Create(ctx, "hello", nil)
	require.NoError(t, err)

	assert.Negative(t, inFlightID)
	assert.Positive(t, node.ID, "authoritative ID after commit")
	assert.Equal(t, "ada", node.Username)
	assert.Equal(t, StateCommitted, coord.LastMutation().State)
	assert.Equal(t, KindCreate, coord.LastMutation().Kind)

	roots := coord.Forest().Roots
	require.Len(t, roots, 1)
	assert.Equal(t, node.ID, roots[0].ID)
}

func TestCreateRollbackRemovesSpeculativeNode(t *testing.T) {
	coord, scripted, svc := newTestCoordinator(t)
	ctx := context.Background()

	seedComment(t, svc, 2, "existing", nil)
	require.NoError(t, coord.LoadPage(ctx, 1))

	scripted.failNext = errors.New("connection reset")
	_, err := coord.Create(ctx, "doomed", nil)

	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeTransient, appErr.Code)
	assert.Equal(t, StateRolledBack, coord.LastMutation().State)

	// The forest is back to exactly the pre-mutation state.
	require.Len(t, coord.Forest().Roots, 1)
	assert.Equal(t, "existing", coord.Forest().Roots[0].Content)
}

func TestCreateReplyAppendsToParent(t *testing.T) {
	coord, _, svc := newTestCoordinator(t)
	ctx := context.Background()

	root := seedComment(t, svc, 2, "root", nil)
	earlier := seedComment(t, svc, 2, "earlier reply", &root.ID)
	require.NoError(t, coord.LoadPage(ctx, 1))
	require.NoError(t, coord.LoadReplies(ctx, int64(root.ID)))

	parentID := int64(root.ID)
	node, err := coord.Create(ctx, "my reply", &parentID)
	require.NoError(t, err)

	parent := coord.Forest().Find(parentID)
	require.NotNil(t, parent)
	require.Len(t, parent.Replies, 2)
	assert.Equal(t, int64(earlier.ID), parent.Replies[0].ID)
	assert.Equal(t, node.ID, parent.Replies[1].ID, "new reply at chronological tail")
}

func TestCreateReplyRollbackDetachesFromParent(t *testing.T) {
	coord, scripted, svc := newTestCoordinator(t)
	ctx := context.Background()

	root := seedComment(t, svc, 2, "root", nil)
	require.NoError(t, coord.LoadPage(ctx, 1))

	parentID := int64(root.ID)
	scripted.failNext = errors.New("boom")
	_, err := coord.Create(ctx, "doomed reply", &parentID)
	require.Error(t, err)

	parent := coord.Forest().Find(parentID)
	require.NotNil(t, parent)
	assert.Empty(t, parent.Replies)
}

func TestEditRollbackRestoresContent(t *testing.T) {
	coord, scripted, svc := newTestCoordinator(t)
	ctx := context.Background()

	view := seedComment(t, svc, 1, "original", nil)
	require.NoError(t, coord.LoadPage(ctx, 1))

	scripted.failNext = errors.New("boom")
	err := coord.Edit(ctx, int64(view.ID), "rewritten")
	require.Error(t, err)

	node := coord.Forest().Find(int64(view.ID))
	assert.Equal(t, "original", node.Content)
	assert.False(t, node.IsEdited)
	assert.Equal(t, StateRolledBack, coord.LastMutation().State)
}

func TestEditCommit(t *testing.T) {
	coord, _, svc := newTestCoordinator(t)
	ctx := context.Background()

	view := seedComment(t, svc, 1, "original", nil)
	require.NoError(t, coord.LoadPage(ctx, 1))

	require.NoError(t, coord.Edit(ctx, int64(view.ID), "better"))

	node := coord.Forest().Find(int64(view.ID))
	assert.Equal(t, "better", node.Content)
	assert.True(t, node.IsEdited)
	assert.Equal(t, StateCommitted, coord.LastMutation().State)
}

func TestEditForbiddenRollsBack(t *testing.T) {
	coord, _, svc := newTestCoordinator(t)
	ctx := context.Background()

	// Authored by grace; coordinator acts as ada.
	view := seedComment(t, svc, 2, "not yours", nil)
	require.NoError(t, coord.LoadPage(ctx, 1))

	err := coord.Edit(ctx, int64(view.ID), "hijacked")

	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeForbidden, appErr.Code)
	assert.Equal(t, "not yours", coord.Forest().Find(int64(view.ID)).Content)
}

func TestDeleteTombstonesLocally(t *testing.T) {
	coord, _, svc := newTestCoordinator(t)
	ctx := context.Background()

	root := seedComment(t, svc, 1, "parent", nil)
	reply := seedComment(t, svc, 2, "child", &root.ID)
	require.NoError(t, coord.LoadPage(ctx, 1))
	require.NoError(t, coord.LoadReplies(ctx, int64(root.ID)))

	require.NoError(t, coord.Delete(ctx, int64(root.ID)))

	node := coord.Forest().Find(int64(root.ID))
	assert.True(t, node.IsDeleted)
	assert.Equal(t, models.DeletedPlaceholder, node.Content)
	// Replies stay attached to the tombstone.
	require.Len(t, node.Replies, 1)
	assert.Equal(t, int64(reply.ID), node.Replies[0].ID)
}

func TestDeleteRollbackRestoresNode(t *testing.T) {
	coord, scripted, svc := newTestCoordinator(t)
	ctx := context.Background()

	view := seedComment(t, svc, 1, "still here", nil)
	require.NoError(t, coord.LoadPage(ctx, 1))

	scripted.failNext = errors.New("boom")
	require.Error(t, coord.Delete(ctx, int64(view.ID)))

	node := coord.Forest().Find(int64(view.ID))
	assert.False(t, node.IsDeleted)
	assert.Equal(t, "still here", node.Content)
}

func TestToggleLikeCommitUsesAuthoritativeState(t *testing.T) {
	coord, _, svc := newTestCoordinator(t)
	ctx := context.Background()

	view := seedComment(t, svc, 2, "likeable", nil)
	require.NoError(t, coord.LoadPage(ctx, 1))

	// Another reader liked the comment after our page load; the commit must
	// carry their like too, not just patch ours in.
	_, err := svc.ToggleLike(ctx, 2, view.ID)
	require.NoError(t, err)

	require.NoError(t, coord.ToggleLike(ctx, int64(view.ID)))

	node := coord.Forest().Find(int64(view.ID))
	assert.ElementsMatch(t, []uint{1, 2}, node.LikedBy)
	assert.True(t, node.UserLiked)
}

func TestToggleLikeRollbackRefetchesPage(t *testing.T) {
	coord, scripted, svc := newTestCoordinator(t)
	ctx := context.Background()

	view := seedComment(t, svc, 2, "likeable", nil)
	require.NoError(t, coord.LoadPage(ctx, 1))

	// Server-side drift the local page has not seen.
	_, err := svc.ToggleLike(ctx, 2, view.ID)
	require.NoError(t, err)

	scripted.failNext = errors.New("boom")
	require.Error(t, coord.ToggleLike(ctx, int64(view.ID)))

	assert.Equal(t, StateRolledBack, coord.LastMutation().State)
	// The failed toggle forces a refetch, so the drifted like is now visible.
	node := coord.Forest().Find(int64(view.ID))
	require.NotNil(t, node)
	assert.Equal(t, []uint{2}, node.LikedBy)
	assert.False(t, node.UserLiked)
}

func TestToggleLikeIsInvolutive(t *testing.T) {
	coord, _, svc := newTestCoordinator(t)
	ctx := context.Background()

	view := seedComment(t, svc, 2, "likeable", nil)
	require.NoError(t, coord.LoadPage(ctx, 1))

	require.NoError(t, coord.ToggleLike(ctx, int64(view.ID)))
	require.NoError(t, coord.ToggleLike(ctx, int64(view.ID)))

	node := coord.Forest().Find(int64(view.ID))
	assert.Empty(t, node.LikedBy)
	assert.False(t, node.UserLiked)
}

func TestActionsOnPendingCommentRejected(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	var appErr *models.AppError

	err := coord.Edit(ctx, -3, "too soon")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeValidation, appErr.Code)

	err = coord.Delete(ctx, -3)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeValidation, appErr.Code)

	err = coord.ToggleLike(ctx, -3)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeValidation, appErr.Code)

	pending := int64(-3)
	_, err = coord.Create(ctx, "reply to pending", &pending)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeValidation, appErr.Code)
}

func TestStaleFetchIsDiscarded(t *testing.T) {
	coord, scripted, svc := newTestCoordinator(t)
	ctx := context.Background()

	seedComment(t, svc, 2, "novel 1 comment", nil)

	// The scope changes while the fetch is in flight; its result must not
	// overwrite the fresh scope's (empty) state.
	scripted.onListTopLevel = func() {
		scripted.onListTopLevel = nil
		coord.SetScope(models.ScopeRef{NovelID: 2})
	}

	err := coord.LoadPage(ctx, 1)
	assert.ErrorIs(t, err, ErrStale)
	assert.Empty(t, coord.Forest().Roots)
}

func TestSetScopeResetsState(t *testing.T) {
	coord, _, svc := newTestCoordinator(t)
	ctx := context.Background()

	seedComment(t, svc, 2, "novel 1 comment", nil)
	require.NoError(t, coord.LoadPage(ctx, 1))
	require.Len(t, coord.Forest().Roots, 1)

	coord.SetScope(models.ScopeRef{NovelID: 2})

	assert.Empty(t, coord.Forest().Roots)
	assert.Equal(t, models.Pagination{}, coord.Pagination())

	require.NoError(t, coord.LoadPage(ctx, 1))
	assert.Empty(t, coord.Forest().Roots, "novel 2 has no comments")
}

func TestAnonymousActorCannotMutate(t *testing.T) {
	repo := repository.NewInMemoryCommentRepository()
	users := repository.NewInMemoryUserRepository()
	svc := service.NewCommentService(repo, users, service.AllowAllScopes, users.IsModerator, nil)
	coord := NewCoordinator(svc, Actor{}, testScope, 10)

	_, err := coord.Create(context.Background(), "anonymous", nil)

	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeAuthRequired, appErr.Code)
	assert.Equal(t, StateRolledBack, coord.LastMutation().State)
	assert.Empty(t, coord.Forest().Roots, "no speculative node for rejected action")
}
