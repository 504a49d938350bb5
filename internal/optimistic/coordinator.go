// Package optimistic keeps client-visible thread state consistent with the
// comment service while mutations are in flight. Every UI action is applied
// speculatively to the local forest first, then confirmed or rolled back
// when the authoritative response arrives. The server is always the single
// source of truth; the coordinator only ever converges toward it.
package optimistic

import (
	"context"
	"errors"

	"inkwell/internal/models"
	"inkwell/internal/service"
	"inkwell/internal/thread"
)

// Service is the remote comment API the coordinator drives. It is satisfied
// by *service.CommentService directly (in-process) and by HTTP client
// implementations alike.
type Service interface {
	ListTopLevel(ctx context.Context, actorID uint, scope models.ScopeRef, page, limit int) (*service.CommentPage, error)
	ListReplies(ctx context.Context, actorID uint, parentID uint) ([]service.CommentView, error)
	Create(ctx context.Context, in service.CreateCommentInput) (*service.CommentView, error)
	Edit(ctx context.Context, in service.EditCommentInput) (*service.CommentView, error)
	SoftDelete(ctx context.Context, in service.DeleteCommentInput) (*service.CommentView, error)
	ToggleLike(ctx context.Context, actorID, commentID uint) (*service.LikeResult, error)
}

// State is the lifecycle position of one mutation.
type State int

const (
	StateIdle State = iota
	StatePending
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return "idle"
	}
}

// Kind identifies the mutation type.
type Kind int

const (
	KindCreate Kind = iota
	KindEdit
	KindDelete
	KindLike
)

// Mutation records one optimistic action and its outcome.
type Mutation struct {
	Kind      Kind
	State     State
	CommentID int64
	Err       error
}

// ErrStale marks a fetch result that was superseded by a newer fetch for
// the same coordinator and therefore discarded.
var ErrStale = errors.New("fetch superseded by a newer request")

// errPendingComment rejects actions against a speculative node that the
// server has not confirmed yet.
func errPendingComment() error {
	return models.NewValidationError("Comment is still awaiting confirmation")
}

// Actor is the locally-known identity used to render speculative nodes
// before the server round-trip completes.
type Actor struct {
	ID       uint
	Username string
	Avatar   string
}

// Coordinator owns the local thread state for one scope. It is driven by a
// single UI flow: operations are sequential, and the blocking portion of
// each call is the service round-trip.
type Coordinator struct {
	svc   Service
	actor Actor

	scope      models.ScopeRef
	page       int
	limit      int
	pagination models.Pagination
	forest     thread.Forest

	// fetchGen guards against a stale fetch result overwriting the state
	// installed by a newer one.
	fetchGen uint64

	// nextLocalID counts down; speculative nodes carry negative IDs until
	// the authoritative record replaces them.
	nextLocalID int64

	last Mutation
}

// NewCoordinator creates a coordinator for the given scope. No data is
// loaded until LoadPage is called.
func NewCoordinator(svc Service, actor Actor, scope models.ScopeRef, limit int) *Coordinator {
	return &Coordinator{
		svc:         svc,
		actor:       actor,
		scope:       scope,
		page:        1,
		limit:       limit,
		forest:      thread.Forest{Roots: []*thread.Node{}, Orphans: []*thread.Node{}},
		nextLocalID: -1,
	}
}

// Forest returns the current reconciled thread state. The forest is owned
// by the coordinator; callers must treat it as read-only.
func (c *Coordinator) Forest() thread.Forest {
	return c.forest
}

// Pagination returns the metadata of the last committed page load.
func (c *Coordinator) Pagination() models.Pagination {
	return c.pagination
}

// LastMutation reports the most recent mutation and its outcome.
func (c *Coordinator) LastMutation() Mutation {
	return c.last
}

// SetScope switches to a different novel or chapter thread. Previously
// loaded tree state is discarded, pagination resets to page 1, and any
// in-flight fetch for the old scope is invalidated.
func (c *Coordinator) SetScope(scope models.ScopeRef) {
	c.scope = scope
	c.page = 1
	c.pagination = models.Pagination{}
	c.forest = thread.Forest{Roots: []*thread.Node{}, Orphans: []*thread.Node{}}
	c.fetchGen++
}

// LoadPage fetches one page of top-level comments and rebuilds the forest.
// If a newer fetch or scope change happens while this one is in flight, the
// result is discarded and ErrStale is returned.
func (c *Coordinator) LoadPage(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}
	c.fetchGen++
	gen := c.fetchGen

	result, err := c.svc.ListTopLevel(ctx, c.actor.ID, c.scope, page, c.limit)
	if err != nil {
		return classify(err)
	}

	if gen != c.fetchGen {
		return ErrStale
	}

	c.page = page
	c.pagination = result.Pagination
	c.forest = thread.Build(viewsToComments(result.Comments))
	return nil
}

// LoadReplies fetches the full reply list of a loaded parent and attaches
// it under that node, replacing any replies already present.
func (c *Coordinator) LoadReplies(ctx context.Context, parentID int64) error {
	if parentID < 0 {
		return errPendingComment()
	}
	parent := c.forest.Find(parentID)
	if parent == nil {
		return models.NewNotFoundError("Comment", parentID)
	}
	gen := c.fetchGen

	replies, err := c.svc.ListReplies(ctx, c.actor.ID, uint(parentID))
	if err != nil {
		return classify(err)
	}

	if gen != c.fetchGen {
		return ErrStale
	}

	nodes := make([]*thread.Node, 0, len(replies))
	for _, view := range replies {
		nodes = append(nodes, &thread.Node{Comment: viewToComment(view), Replies: []*thread.Node{}})
	}
	parent.Replies = nodes
	return nil
}

// Create posts a comment or reply. A speculative node rendered from the
// local actor identity appears immediately: at the head of the root list
// for top-level comments (listing is newest-first), or at the tail of the
// parent's replies (chronological). On success the node is replaced by the
// authoritative record; on failure it is removed.
func (c *Coordinator) Create(ctx context.Context, content string, parentID *int64) (*thread.Node, error) {
	if c.actor.ID == 0 {
		return nil, c.fail(Mutation{Kind: KindCreate, State: StateRolledBack}, models.NewAuthRequiredError())
	}
	if parentID != nil && *parentID < 0 {
		return nil, c.fail(Mutation{Kind: KindCreate, State: StateRolledBack}, errPendingComment())
	}

	var parent *thread.Node
	if parentID != nil {
		parent = c.forest.Find(*parentID)
		if parent == nil {
			return nil, c.fail(Mutation{Kind: KindCreate, State: StateRolledBack}, models.NewNotFoundError("Comment", *parentID))
		}
	}

	localID := c.nextLocalID
	c.nextLocalID--

	node := &thread.Node{
		Comment: thread.Comment{
			ID:       localID,
			Content:  content,
			AuthorID: c.actor.ID,
			Username: c.actor.Username,
			Avatar:   c.actor.Avatar,
			ParentID: parentID,
			LikedBy:  []uint{},
		},
		Replies: []*thread.Node{},
	}
	if parent != nil {
		parent.Replies = append(parent.Replies, node)
	} else {
		c.forest.Roots = append([]*thread.Node{node}, c.forest.Roots...)
	}
	c.last = Mutation{Kind: KindCreate, State: StatePending, CommentID: localID}

	in := service.CreateCommentInput{
		ActorID: c.actor.ID,
		Scope:   c.scope,
		Content: content,
	}
	if parentID != nil {
		pid := uint(*parentID)
		in.ParentID = &pid
	}

	created, err := c.svc.Create(ctx, in)
	if err != nil {
		c.removeNode(localID)
		return nil, c.fail(Mutation{Kind: KindCreate, State: StateRolledBack, CommentID: localID}, err)
	}

	node.Comment = viewToComment(*created)
	c.last = Mutation{Kind: KindCreate, State: StateCommitted, CommentID: node.ID}
	return node, nil
}

// Edit replaces a comment's content locally, then confirms with the server.
// On failure the previous content and edited flag are restored.
func (c *Coordinator) Edit(ctx context.Context, id int64, content string) error {
	if c.actor.ID == 0 {
		return c.fail(Mutation{Kind: KindEdit, State: StateRolledBack, CommentID: id}, models.NewAuthRequiredError())
	}
	if id < 0 {
		return c.fail(Mutation{Kind: KindEdit, State: StateRolledBack, CommentID: id}, errPendingComment())
	}
	node := c.forest.Find(id)
	if node == nil {
		return c.fail(Mutation{Kind: KindEdit, State: StateRolledBack, CommentID: id}, models.NewNotFoundError("Comment", id))
	}

	prevContent := node.Content
	prevEdited := node.IsEdited
	node.Content = content
	node.IsEdited = true
	c.last = Mutation{Kind: KindEdit, State: StatePending, CommentID: id}

	updated, err := c.svc.Edit(ctx, service.EditCommentInput{
		ActorID:   c.actor.ID,
		CommentID: uint(id),
		Content:   content,
	})
	if err != nil {
		node.Content = prevContent
		node.IsEdited = prevEdited
		return c.fail(Mutation{Kind: KindEdit, State: StateRolledBack, CommentID: id}, err)
	}

	// Reconcile server-assigned fields (timestamps) from the response.
	node.Content = updated.Content
	node.IsEdited = updated.IsEdited
	node.UpdatedAt = updated.UpdatedAt
	c.last = Mutation{Kind: KindEdit, State: StateCommitted, CommentID: id}
	return nil
}

// Delete tombstones a comment locally, then confirms with the server. On
// failure both the content and the deleted flag are restored. Replies are
// never detached; the tombstoned node keeps its subtree.
func (c *Coordinator) Delete(ctx context.Context, id int64) error {
	if c.actor.ID == 0 {
		return c.fail(Mutation{Kind: KindDelete, State: StateRolledBack, CommentID: id}, models.NewAuthRequiredError())
	}
	if id < 0 {
		return c.fail(Mutation{Kind: KindDelete, State: StateRolledBack, CommentID: id}, errPendingComment())
	}
	node := c.forest.Find(id)
	if node == nil {
		return c.fail(Mutation{Kind: KindDelete, State: StateRolledBack, CommentID: id}, models.NewNotFoundError("Comment", id))
	}

	prevContent := node.Content
	prevDeleted := node.IsDeleted
	node.Content = models.DeletedPlaceholder
	node.IsDeleted = true
	c.last = Mutation{Kind: KindDelete, State: StatePending, CommentID: id}

	_, err := c.svc.SoftDelete(ctx, service.DeleteCommentInput{
		ActorID:   c.actor.ID,
		CommentID: uint(id),
	})
	if err != nil {
		node.Content = prevContent
		node.IsDeleted = prevDeleted
		return c.fail(Mutation{Kind: KindDelete, State: StateRolledBack, CommentID: id}, err)
	}

	c.last = Mutation{Kind: KindDelete, State: StateCommitted, CommentID: id}
	return nil
}

// ToggleLike flips the actor's like on a comment. The optimistic direction
// is decided from current local membership; the server response then
// replaces local state wholesale, correcting any drift. On failure the
// local flip is reverted and the current page is refetched so the view is
// guaranteed to converge with the store.
func (c *Coordinator) ToggleLike(ctx context.Context, id int64) error {
	if c.actor.ID == 0 {
		return c.fail(Mutation{Kind: KindLike, State: StateRolledBack, CommentID: id}, models.NewAuthRequiredError())
	}
	if id < 0 {
		return c.fail(Mutation{Kind: KindLike, State: StateRolledBack, CommentID: id}, errPendingComment())
	}
	node := c.forest.Find(id)
	if node == nil {
		return c.fail(Mutation{Kind: KindLike, State: StateRolledBack, CommentID: id}, models.NewNotFoundError("Comment", id))
	}

	prevLikedBy := node.LikedBy
	prevUserLiked := node.UserLiked
	if prevUserLiked {
		node.LikedBy = removeUser(prevLikedBy, c.actor.ID)
		node.UserLiked = false
	} else {
		node.LikedBy = append(append([]uint{}, prevLikedBy...), c.actor.ID)
		node.UserLiked = true
	}
	c.last = Mutation{Kind: KindLike, State: StatePending, CommentID: id}

	result, err := c.svc.ToggleLike(ctx, c.actor.ID, uint(id))
	if err != nil {
		node.LikedBy = prevLikedBy
		node.UserLiked = prevUserLiked
		failure := c.fail(Mutation{Kind: KindLike, State: StateRolledBack, CommentID: id}, err)
		// The flip direction was chosen from local state that may itself
		// have drifted; refetch the page to guarantee convergence.
		_ = c.LoadPage(ctx, c.page)
		return failure
	}

	node.LikedBy = result.LikedBy
	node.UserLiked = result.UserLiked
	c.last = Mutation{Kind: KindLike, State: StateCommitted, CommentID: id}
	return nil
}

// fail finalizes a mutation record and returns the classified error. No
// mutation is ever left pending: every service round-trip ends in either
// committed or rolled_back.
func (c *Coordinator) fail(m Mutation, err error) error {
	classified := classify(err)
	m.Err = classified
	c.last = m
	return classified
}

// removeNode detaches a node (typically a failed speculative create) from
// wherever it sits in the forest.
func (c *Coordinator) removeNode(id int64) {
	if filtered, removed := removeFrom(c.forest.Roots, id); removed {
		c.forest.Roots = filtered
		return
	}
	if filtered, removed := removeFrom(c.forest.Orphans, id); removed {
		c.forest.Orphans = filtered
		return
	}
	var walk func(node *thread.Node) bool
	walk = func(node *thread.Node) bool {
		if filtered, removed := removeFrom(node.Replies, id); removed {
			node.Replies = filtered
			return true
		}
		for _, reply := range node.Replies {
			if walk(reply) {
				return true
			}
		}
		return false
	}
	for _, root := range c.forest.Roots {
		if walk(root) {
			return
		}
	}
}

func removeFrom(nodes []*thread.Node, id int64) ([]*thread.Node, bool) {
	for i, node := range nodes {
		if node.ID == id {
			return append(nodes[:i:i], nodes[i+1:]...), true
		}
	}
	return nodes, false
}

func removeUser(ids []uint, id uint) []uint {
	out := make([]uint, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

// classify maps arbitrary failures into the error taxonomy. Typed service
// errors pass through; anything else (transport, context cancellation) is a
// transient failure that is safe to retry manually.
func classify(err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return models.NewTransientError(err)
}

func viewToComment(view service.CommentView) thread.Comment {
	likedBy := view.LikedBy
	if likedBy == nil {
		likedBy = []uint{}
	}
	comment := thread.Comment{
		ID:        int64(view.ID),
		Content:   view.Content,
		AuthorID:  view.AuthorID,
		Username:  view.Username,
		IsEdited:  view.IsEdited,
		IsDeleted: view.IsDeleted,
		LikedBy:   likedBy,
		UserLiked: view.UserLiked,
		CreatedAt: view.CreatedAt,
		UpdatedAt: view.UpdatedAt,
	}
	if view.Avatar != nil {
		comment.Avatar = *view.Avatar
	}
	if view.ParentID != nil {
		pid := int64(*view.ParentID)
		comment.ParentID = &pid
	}
	return comment
}

func viewsToComments(views []service.CommentView) []thread.Comment {
	out := make([]thread.Comment, 0, len(views))
	for _, view := range views {
		out = append(out, viewToComment(view))
	}
	return out
}
