package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fatflowers/teller/pkg/types"
)

// WebhookEvent is the durable record of one externally-delivered provider
// notification. The unique index on event_id is the concurrency primitive
// behind ingestion idempotency: exactly one concurrent insert wins.
type WebhookEvent struct {
	ID       string                `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Provider types.PaymentProvider `gorm:"column:provider;type:varchar(20);not null;index:idx_webhook_provider_type,priority:1" json:"provider"`

	EventID   string                   `gorm:"column:event_id;type:varchar(255);not null;uniqueIndex" json:"event_id"`
	EventType string                   `gorm:"column:event_type;type:varchar(100);not null;index:idx_webhook_provider_type,priority:2" json:"event_type"`
	Status    types.WebhookEventStatus `gorm:"column:status;type:varchar(20);not null;default:'pending';index" json:"status"`

	Data         datatypes.JSON `gorm:"column:data;type:jsonb;not null" json:"data"`
	ErrorMessage *string        `gorm:"column:error_message;type:text" json:"error_message"`

	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `gorm:"column:processed_at;default:null" json:"processed_at"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

// Terminal events are eligible for the retention sweep.
func (e *WebhookEvent) Terminal() bool {
	return e.Status == types.WebhookEventStatusProcessed || e.Status == types.WebhookEventStatusIgnored
}
