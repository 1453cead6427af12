package models

import "time"

// PinnedPost is an entitlement-gated association between a user and a
// promoted content item. Valid only while the owning subscription is
// active; removed on cancel, expiry, or subscription deletion.
type PinnedPost struct {
	ID     string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex" json:"user_id"`
	PostID string `gorm:"column:post_id;type:varchar(64);not null" json:"post_id"`

	CreatedAt time.Time `json:"created_at"`
}

func (PinnedPost) TableName() string { return "pinned_posts" }
