package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fatflowers/teller/pkg/errs"
	"github.com/fatflowers/teller/pkg/types"
)

// Refund is a refund request against a succeeded payment.
type Refund struct {
	ID        string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	PaymentID string `gorm:"column:payment_id;type:uuid;not null;index" json:"payment_id"`

	Amount decimal.Decimal    `gorm:"column:amount;type:decimal(10,2);not null" json:"amount"`
	Reason string             `gorm:"column:reason;type:text" json:"reason"`
	Status types.RefundStatus `gorm:"column:status;type:varchar(20);not null;default:'pending'" json:"status"`

	ProviderRefundID *string `gorm:"column:provider_refund_id;type:varchar(255)" json:"provider_refund_id"`
	CreatedBy        string  `gorm:"column:created_by;type:varchar(64);not null" json:"created_by"`

	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `gorm:"column:processed_at;default:null" json:"processed_at"`
}

func (Refund) TableName() string { return "refunds" }

var refundTransitions = map[types.RefundStatus][]types.RefundStatus{
	types.RefundStatusPending: {types.RefundStatusSucceeded, types.RefundStatusFailed, types.RefundStatusCanceled},
}

func (r *Refund) CanTransitionTo(to types.RefundStatus) bool {
	for _, allowed := range refundTransitions[r.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionTo applies a refund status transition in memory, stamping
// processed_at on success.
func (r *Refund) TransitionTo(to types.RefundStatus, now time.Time) error {
	if !r.CanTransitionTo(to) {
		return errs.Conflictf("refund %s: illegal transition %s -> %s", r.ID, r.Status, to)
	}
	r.Status = to
	if to == types.RefundStatusSucceeded {
		stamp := now
		r.ProcessedAt = &stamp
	}
	return nil
}

// IsPartial reports whether the refund covers less than the full payment.
func (r *Refund) IsPartial(paymentAmount decimal.Decimal) bool {
	return r.Amount.LessThan(paymentAmount)
}
