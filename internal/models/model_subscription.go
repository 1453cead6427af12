package models

import (
	"time"

	"github.com/fatflowers/teller/pkg/errs"
	"github.com/fatflowers/teller/pkg/types"
)

// Subscription is a user's entitlement window. The partial unique index
// enforces at most one open (pending/active) subscription per user; the
// orchestrator checks the same rule up front to fail with a clean
// state-conflict instead of a driver error.
type Subscription struct {
	ID     string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string                   `gorm:"column:user_id;type:varchar(64);not null;index;uniqueIndex:uniq_user_open_subscription,where:status IN ('pending','active')" json:"user_id"`
	PlanID string                   `gorm:"column:plan_id;type:varchar(64);not null" json:"plan_id"`
	Status types.SubscriptionStatus `gorm:"column:status;type:varchar(20);not null;default:'pending';index" json:"status"`

	StartDate *time.Time `gorm:"column:start_date;default:null" json:"start_date"`
	EndDate   *time.Time `gorm:"column:end_date;default:null;index" json:"end_date"`
	AutoRenew bool       `gorm:"column:auto_renew;not null;default:false" json:"auto_renew"`

	ProviderSubscriptionID *string `gorm:"column:provider_subscription_id;type:varchar(255)" json:"provider_subscription_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

var subscriptionTransitions = map[types.SubscriptionStatus][]types.SubscriptionStatus{
	types.SubscriptionStatusPending: {types.SubscriptionStatusActive, types.SubscriptionStatusCanceled},
	types.SubscriptionStatusActive:  {types.SubscriptionStatusCanceled, types.SubscriptionStatusExpired},
}

func (s *Subscription) CanTransitionTo(to types.SubscriptionStatus) bool {
	for _, allowed := range subscriptionTransitions[s.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionTo applies a subscription status transition in memory.
func (s *Subscription) TransitionTo(to types.SubscriptionStatus) error {
	if !s.CanTransitionTo(to) {
		return errs.Conflictf("subscription %s: illegal transition %s -> %s", s.ID, s.Status, to)
	}
	s.Status = to
	return nil
}

// IsActive reports whether the entitlement window is currently open.
func (s *Subscription) IsActive(now time.Time) bool {
	return s != nil &&
		s.Status == types.SubscriptionStatusActive &&
		s.EndDate != nil &&
		s.EndDate.After(now)
}

// DaysRemaining returns whole days left in the window, zero when closed.
func (s *Subscription) DaysRemaining(now time.Time) int {
	if !s.IsActive(now) {
		return 0
	}
	return int(s.EndDate.Sub(now).Hours() / 24)
}
