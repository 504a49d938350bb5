// Package thread reconstructs hierarchical comment threads from the flat,
// paginated record batches the comment service returns. Building is a pure
// function: the same input always yields the same forest, which is what
// makes re-renders idempotent and trees comparable in tests.
package thread

import (
	"time"
)

// Comment is the canonical client-side comment record. IDs are signed so
// the optimistic coordinator can mint negative IDs for speculative nodes
// that have not been confirmed by the server yet.
type Comment struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	AuthorID  uint      `json:"author_id"`
	Username  string    `json:"username"`
	Avatar    string    `json:"avatar,omitempty"`
	ParentID  *int64    `json:"parent_id"`
	IsEdited  bool      `json:"is_edited"`
	IsDeleted bool      `json:"is_deleted"`
	LikedBy   []uint    `json:"liked_by"`
	UserLiked bool      `json:"user_liked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Node is a comment with its reply subtree attached.
type Node struct {
	Comment
	Replies []*Node `json:"replies"`
}

// Forest is the reconciled thread structure. Roots hold top-level comments
// in server order. Orphans hold replies whose parent is not present in the
// batch (the parent lies outside the loaded page); they are surfaced
// explicitly rather than silently dropped so callers can fetch the missing
// parent or render a placeholder.
type Forest struct {
	Roots   []*Node
	Orphans []*Node
}

// Build reconstructs a forest from a flat batch of comment records.
//
// Order is preserved, never re-sorted: the root list keeps the order the
// top-level listing returned (newest first) and each Replies slice keeps
// the order the reply listing returned (chronological). A record whose
// parent is present in the batch is attached under it regardless of either
// record's position in the input.
func Build(batch []Comment) Forest {
	nodes := make(map[int64]*Node, len(batch))
	ordered := make([]*Node, 0, len(batch))

	for i := range batch {
		c := batch[i]
		if _, exists := nodes[c.ID]; exists {
			// Duplicate IDs can appear when a refetch overlaps a previous
			// batch; the first occurrence wins to keep output stable.
			continue
		}
		node := &Node{Comment: c, Replies: []*Node{}}
		nodes[c.ID] = node
		ordered = append(ordered, node)
	}

	forest := Forest{Roots: []*Node{}, Orphans: []*Node{}}
	for _, node := range ordered {
		switch {
		case node.ParentID == nil:
			forest.Roots = append(forest.Roots, node)
		default:
			if parent, ok := nodes[*node.ParentID]; ok {
				parent.Replies = append(parent.Replies, node)
			} else {
				forest.Orphans = append(forest.Orphans, node)
			}
		}
	}
	return forest
}

// Find returns the node with the given ID anywhere in the forest, or nil.
func (f Forest) Find(id int64) *Node {
	for _, root := range f.Roots {
		if found := findIn(root, id); found != nil {
			return found
		}
	}
	for _, orphan := range f.Orphans {
		if found := findIn(orphan, id); found != nil {
			return found
		}
	}
	return nil
}

func findIn(node *Node, id int64) *Node {
	if node.ID == id {
		return node
	}
	for _, reply := range node.Replies {
		if found := findIn(reply, id); found != nil {
			return found
		}
	}
	return nil
}

// Flatten returns every comment in the forest in depth-first order.
// Build(Flatten(f)) reproduces f, which the reconciliation tests lean on.
func (f Forest) Flatten() []Comment {
	var out []Comment
	var walk func(*Node)
	walk = func(node *Node) {
		out = append(out, node.Comment)
		for _, reply := range node.Replies {
			walk(reply)
		}
	}
	for _, root := range f.Roots {
		walk(root)
	}
	for _, orphan := range f.Orphans {
		walk(orphan)
	}
	return out
}
