package thread

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Upstream comment feeds are not uniform: older endpoints emit `_id` where
// newer ones emit `id`, some flatten the author into `user_id`/`username`
// fields while others nest a `user` object, and identifiers arrive as
// numbers or numeric strings. RawComment accepts every variant; Normalize
// folds them into the canonical Comment shape once, at the boundary.

// flexID decodes an identifier that may be a JSON number or a numeric string.
type flexID int64

func (f *flexID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid identifier %q", s)
	}
	*f = flexID(n)
	return nil
}

// rawUser is the nested author variant.
type rawUser struct {
	ID       *flexID `json:"id"`
	Username string  `json:"username"`
	Avatar   string  `json:"avatar"`
}

// RawComment tolerates the field-name variants seen across upstream sources.
type RawComment struct {
	ID    *flexID `json:"id"`
	AltID *flexID `json:"_id"`

	Content string `json:"content"`

	Parent      *flexID `json:"parent"`
	ParentSnake *flexID `json:"parent_id"`
	ParentCamel *flexID `json:"parentId"`

	User        *rawUser `json:"user"`
	UserIDSnake *flexID  `json:"user_id"`
	UserIDCamel *flexID  `json:"userId"`
	Username    string   `json:"username"`
	AvatarSnake string   `json:"user_avatar"`
	AvatarCamel string   `json:"userAvatar"`

	LikedBySnake []uint `json:"liked_by"`
	LikedByCamel []uint `json:"likedBy"`
	Likes        []uint `json:"likes"`

	IsEditedSnake *bool `json:"is_edited"`
	IsEditedCamel *bool `json:"isEdited"`

	IsDeletedSnake *bool `json:"is_deleted"`
	IsDeletedCamel *bool `json:"isDeleted"`

	CreatedAtSnake *time.Time `json:"created_at"`
	CreatedAtCamel *time.Time `json:"createdAt"`
	UpdatedAtSnake *time.Time `json:"updated_at"`
	UpdatedAtCamel *time.Time `json:"updatedAt"`
}

// Canonical folds the variant fields into one Comment.
func (r RawComment) Canonical() Comment {
	c := Comment{
		Content: r.Content,
		LikedBy: []uint{},
	}

	if id := coalesceID(r.ID, r.AltID); id != nil {
		c.ID = *id
	}
	c.ParentID = coalesceID(r.Parent, r.ParentSnake, r.ParentCamel)

	if r.User != nil {
		if r.User.ID != nil {
			c.AuthorID = uint(*r.User.ID)
		}
		c.Username = r.User.Username
		c.Avatar = r.User.Avatar
	} else {
		if id := coalesceID(r.UserIDSnake, r.UserIDCamel); id != nil {
			c.AuthorID = uint(*id)
		}
		c.Username = r.Username
		c.Avatar = firstNonEmpty(r.AvatarSnake, r.AvatarCamel)
	}

	for _, likes := range [][]uint{r.LikedBySnake, r.LikedByCamel, r.Likes} {
		if likes != nil {
			c.LikedBy = likes
			break
		}
	}

	if b := coalesceBool(r.IsEditedSnake, r.IsEditedCamel); b != nil {
		c.IsEdited = *b
	}
	if b := coalesceBool(r.IsDeletedSnake, r.IsDeletedCamel); b != nil {
		c.IsDeleted = *b
	}

	if t := coalesceTime(r.CreatedAtSnake, r.CreatedAtCamel); t != nil {
		c.CreatedAt = *t
	}
	if t := coalesceTime(r.UpdatedAtSnake, r.UpdatedAtCamel); t != nil {
		c.UpdatedAt = *t
	}

	return c
}

// Normalize converts a raw batch into canonical comments, preserving order.
func Normalize(raw []RawComment) []Comment {
	out := make([]Comment, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.Canonical())
	}
	return out
}

func coalesceID(candidates ...*flexID) *int64 {
	for _, c := range candidates {
		if c != nil {
			v := int64(*c)
			return &v
		}
	}
	return nil
}

func coalesceBool(candidates ...*bool) *bool {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}

func coalesceTime(candidates ...*time.Time) *time.Time {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}

func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}
