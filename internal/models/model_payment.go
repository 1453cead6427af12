package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/fatflowers/teller/pkg/errs"
	"github.com/fatflowers/teller/pkg/types"
)

// Payment is one purchase attempt. Status moves only through TransitionTo;
// the orchestrator owns every mutation.
type Payment struct {
	ID             string  `gorm:"column:id;type:uuid;primary_key;index:idx_payment_user_id,priority:2,sort:desc" json:"id"`
	UserID         string  `gorm:"column:user_id;type:varchar(64);not null;index:idx_payment_user_id,priority:1" json:"user_id"`
	SubscriptionID *string `gorm:"column:subscription_id;type:uuid;index" json:"subscription_id"`

	Amount        decimal.Decimal       `gorm:"column:amount;type:decimal(10,2);not null" json:"amount"`
	Currency      string                `gorm:"column:currency;type:varchar(3);not null;default:'USD'" json:"currency"`
	Status        types.PaymentStatus   `gorm:"column:status;type:varchar(20);not null;default:'pending';index" json:"status"`
	PaymentMethod types.PaymentProvider `gorm:"column:payment_method;type:varchar(20);not null;default:'stripe'" json:"payment_method"`

	// Provider correlation handles, set progressively as the gateway call
	// sequence advances.
	ProviderCustomerID *string `gorm:"column:provider_customer_id;type:varchar(255)" json:"provider_customer_id"`
	ProviderSessionID  *string `gorm:"column:provider_session_id;type:varchar(255);index" json:"provider_session_id"`
	ProviderIntentID   *string `gorm:"column:provider_intent_id;type:varchar(255);index" json:"provider_intent_id"`

	Description string            `gorm:"column:description;type:text" json:"description"`
	Metadata    datatypes.JSONMap `gorm:"column:metadata;type:jsonb;default:'{}'" json:"metadata"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ProcessedAt *time.Time `gorm:"column:processed_at;default:null" json:"processed_at"`
}

func (Payment) TableName() string { return "payments" }

// paymentTransitions is the full legal transition table.
var paymentTransitions = map[types.PaymentStatus][]types.PaymentStatus{
	types.PaymentStatusPending:    {types.PaymentStatusProcessing, types.PaymentStatusCanceled},
	types.PaymentStatusProcessing: {types.PaymentStatusSucceeded, types.PaymentStatusFailed, types.PaymentStatusCanceled},
	types.PaymentStatusSucceeded:  {types.PaymentStatusRefunded},
}

// CanTransitionTo reports whether the move is in the transition table.
func (p *Payment) CanTransitionTo(to types.PaymentStatus) bool {
	for _, allowed := range paymentTransitions[p.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionTo applies a status transition in memory. processed_at is
// stamped exactly when entering succeeded/failed/canceled; the stamp set
// at succeeded survives the later move to refunded. Out-of-table moves
// fail with a state conflict and leave the payment untouched.
func (p *Payment) TransitionTo(to types.PaymentStatus, now time.Time) error {
	if !p.CanTransitionTo(to) {
		return errs.Conflictf("payment %s: illegal transition %s -> %s", p.ID, p.Status, to)
	}
	p.Status = to
	switch to {
	case types.PaymentStatusSucceeded, types.PaymentStatusFailed, types.PaymentStatusCanceled:
		stamp := now
		p.ProcessedAt = &stamp
	}
	return nil
}

func (p *Payment) IsSuccessful() bool { return p.Status == types.PaymentStatusSucceeded }

func (p *Payment) IsPending() bool {
	return p.Status == types.PaymentStatusPending || p.Status == types.PaymentStatusProcessing
}

// CanBeRefunded requires settled money and a provider that supports
// refunds through the gateway.
func (p *Payment) CanBeRefunded() bool {
	return p.Status == types.PaymentStatusSucceeded && p.PaymentMethod == types.PaymentProviderStripe
}
