package types

import "time"

type SubscriptionStatus string

const (
	SubscriptionStatusPending  SubscriptionStatus = "pending"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
)

// Open reports whether the subscription still counts against the
// one-open-subscription-per-user rule.
func (s SubscriptionStatus) Open() bool {
	return s == SubscriptionStatusPending || s == SubscriptionStatusActive
}

// HistoryAction tags entries in the subscription history ledger.
type HistoryAction string

const (
	HistoryActionCreated       HistoryAction = "created"
	HistoryActionActivated     HistoryAction = "activated"
	HistoryActionCanceled      HistoryAction = "canceled"
	HistoryActionExpired       HistoryAction = "expired"
	HistoryActionPaymentFailed HistoryAction = "payment_failed"
	HistoryActionRefunded      HistoryAction = "refunded"
	HistoryActionPostPinned    HistoryAction = "post_pinned"
	HistoryActionPostUnpinned  HistoryAction = "post_unpinned"
)

type SubscriptionInfo struct {
	Status    SubscriptionStatus `json:"status"`
	PlanID    string             `json:"plan_id"`
	StartDate *time.Time         `json:"start_date"`
	EndDate   *time.Time         `json:"end_date"`
	AutoRenew bool               `json:"auto_renew"`
}
