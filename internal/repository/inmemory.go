package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"inkwell/internal/models"

	"gorm.io/gorm"
)

// InMemoryCommentRepository is a CommentRepository backed by process memory.
// It mirrors the SQL implementation's ordering and soft-delete semantics and
// backs service, coordinator, and handler tests; it is also handy for local
// development without Postgres. Missing rows surface as
// gorm.ErrRecordNotFound so callers treat both backends identically.
type InMemoryCommentRepository struct {
	mu       sync.RWMutex
	nextID   uint
	comments map[uint]*models.Comment
	likes    map[uint][]uint // commentID -> liker user IDs, insertion order
	now      func() time.Time
}

// NewInMemoryCommentRepository creates an empty in-memory comment store.
func NewInMemoryCommentRepository() *InMemoryCommentRepository {
	return &InMemoryCommentRepository{
		nextID:   1,
		comments: make(map[uint]*models.Comment),
		likes:    make(map[uint][]uint),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source. Tests use it to make pagination
// and ordering deterministic.
func (r *InMemoryCommentRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *InMemoryCommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	comment.ID = r.nextID
	r.nextID++
	ts := r.now()
	comment.CreatedAt = ts
	comment.UpdatedAt = ts

	stored := *comment
	r.comments[comment.ID] = &stored
	return nil
}

func (r *InMemoryCommentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	comment, ok := r.comments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *comment
	return &copied, nil
}

func (r *InMemoryCommentRepository) ListTopLevel(
	ctx context.Context,
	scope models.ScopeRef,
	limit, offset int,
) ([]*models.Comment, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*models.Comment
	for _, c := range r.comments {
		if c.ParentID != nil || c.NovelID != scope.NovelID {
			continue
		}
		if scope.IsChapter() {
			if c.ChapterID == nil || *c.ChapterID != *scope.ChapterID {
				continue
			}
		} else if c.ChapterID != nil {
			continue
		}
		matched = append(matched, c)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		// Equal timestamps break ties by ID descending for a stable page boundary.
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	if offset >= len(matched) {
		return []*models.Comment{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	page := make([]*models.Comment, 0, end-offset)
	for _, c := range matched[offset:end] {
		copied := *c
		page = append(page, &copied)
	}
	return page, total, nil
}

func (r *InMemoryCommentRepository) ListReplies(ctx context.Context, parentID uint) ([]*models.Comment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var replies []*models.Comment
	for _, c := range r.comments {
		if c.ParentID != nil && *c.ParentID == parentID {
			copied := *c
			replies = append(replies, &copied)
		}
	}

	sort.Slice(replies, func(i, j int) bool {
		if !replies[i].CreatedAt.Equal(replies[j].CreatedAt) {
			return replies[i].CreatedAt.Before(replies[j].CreatedAt)
		}
		return replies[i].ID < replies[j].ID
	})

	if replies == nil {
		replies = []*models.Comment{}
	}
	return replies, nil
}

func (r *InMemoryCommentRepository) UpdateContent(ctx context.Context, id uint, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	comment, ok := r.comments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	comment.Content = content
	comment.IsEdited = true
	comment.UpdatedAt = r.now()
	return nil
}

func (r *InMemoryCommentRepository) MarkDeleted(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	comment, ok := r.comments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	comment.Content = models.DeletedPlaceholder
	comment.IsDeleted = true
	return nil
}

func (r *InMemoryCommentRepository) Like(ctx context.Context, userID, commentID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.likes[commentID] {
		if existing == userID {
			// Set semantics: duplicate like is a no-op.
			return nil
		}
	}
	r.likes[commentID] = append(r.likes[commentID], userID)
	return nil
}

func (r *InMemoryCommentRepository) Unlike(ctx context.Context, userID, commentID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.likes[commentID]
	for i, existing := range members {
		if existing == userID {
			r.likes[commentID] = append(members[:i], members[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *InMemoryCommentRepository) LikedBy(ctx context.Context, commentID uint) ([]uint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.likes[commentID]
	copied := make([]uint, len(members))
	copy(copied, members)
	return copied, nil
}

func (r *InMemoryCommentRepository) LikedByBatch(ctx context.Context, commentIDs []uint) (map[uint][]uint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[uint][]uint, len(commentIDs))
	for _, id := range commentIDs {
		if members := r.likes[id]; len(members) > 0 {
			copied := make([]uint, len(members))
			copy(copied, members)
			result[id] = copied
		}
	}
	return result, nil
}

// InMemoryUserRepository is a read-only user directory for tests and local
// development.
type InMemoryUserRepository struct {
	mu    sync.RWMutex
	users map[uint]*models.User
}

// NewInMemoryUserRepository creates a user directory seeded with the given users.
func NewInMemoryUserRepository(users ...*models.User) *InMemoryUserRepository {
	repo := &InMemoryUserRepository{users: make(map[uint]*models.User, len(users))}
	for _, user := range users {
		copied := *user
		repo.users[user.ID] = &copied
	}
	return repo
}

func (r *InMemoryUserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *InMemoryUserRepository) GetByIDs(ctx context.Context, ids []uint) (map[uint]*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[uint]*models.User, len(ids))
	for _, id := range ids {
		if user, ok := r.users[id]; ok {
			copied := *user
			result[id] = &copied
		}
	}
	return result, nil
}

func (r *InMemoryUserRepository) IsModerator(ctx context.Context, id uint) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	return user.IsModerator, nil
}
