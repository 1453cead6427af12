package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fatflowers/teller/pkg/types"
)

// SubscriptionHistory is the append-only ledger of subscription state
// changes. Every component that changes subscription state writes here;
// rows are never mutated.
type SubscriptionHistory struct {
	ID             string `gorm:"column:id;type:uuid;primary_key;index:idx_history_sub_id,priority:2,sort:desc" json:"id"`
	SubscriptionID string `gorm:"column:subscription_id;type:uuid;not null;index:idx_history_sub_id,priority:1" json:"subscription_id"`

	Action      types.HistoryAction `gorm:"column:action;type:varchar(32);not null" json:"action"`
	Description string              `gorm:"column:description;type:text" json:"description"`
	Metadata    datatypes.JSONMap   `gorm:"column:metadata;type:jsonb;default:'{}'" json:"metadata"`

	CreatedAt time.Time `json:"created_at"`
}

func (SubscriptionHistory) TableName() string { return "subscription_history" }
