package models

import "time"

// User is the minimal identity record the comment subsystem reads. Account
// management lives in a separate auth service; this table is consumed
// read-only to resolve display fields and the moderator entitlement.
type User struct {
	ID          uint      `json:"id"`
	Username    string    `gorm:"uniqueIndex;not null" json:"username"`
	Avatar      *string   `json:"avatar,omitempty"`
	IsModerator bool      `gorm:"column:is_moderator;default:false" json:"is_moderator"`
	CreatedAt   time.Time `json:"created_at"`
}
