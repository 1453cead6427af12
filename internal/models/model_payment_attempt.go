package models

import (
	"time"

	"gorm.io/datatypes"
)

// PaymentAttempt is the append-only audit record of one provider-side
// charge attempt. Rows are written once and never mutated; they go away
// only when the parent payment is deleted by the retention sweep.
type PaymentAttempt struct {
	ID        string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	PaymentID string `gorm:"column:payment_id;type:uuid;not null;index" json:"payment_id"`

	ProviderChargeID *string           `gorm:"column:provider_charge_id;type:varchar(255)" json:"provider_charge_id"`
	Status           string            `gorm:"column:status;type:varchar(50);not null" json:"status"`
	ErrorMessage     *string           `gorm:"column:error_message;type:text" json:"error_message"`
	Metadata         datatypes.JSONMap `gorm:"column:metadata;type:jsonb;default:'{}'" json:"metadata"`

	CreatedAt time.Time `json:"created_at"`
}

func (PaymentAttempt) TableName() string { return "payment_attempts" }
