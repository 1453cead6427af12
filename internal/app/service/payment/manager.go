package payment

import (
	"context"

	"github.com/fatflowers/teller/internal/app/service/gateway"
	"github.com/fatflowers/teller/internal/models"
	"github.com/fatflowers/teller/pkg/types"
)

// CreatePaymentRequest opens a purchase attempt for a plan.
type CreatePaymentRequest struct {
	UserID string `json:"user_id"`
	PlanID string `json:"plan_id"`
}

// CheckoutRequest drives the gateway call sequence for a pending payment.
type CheckoutRequest struct {
	PaymentID  string `json:"payment_id"`
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

// AttemptRecord captures one provider-side charge attempt for the audit
// trail.
type AttemptRecord struct {
	PaymentID        string
	ProviderChargeID string
	Status           string
	ErrorMessage     string
	Metadata         map[string]any
}

// ScanPaymentsRequest is the admin listing request: a filter list plus
// from/size paging and an optional sort.
type ScanPaymentsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanPaymentsResponse struct {
	Items []*models.Payment `json:"items"`
	Total int64             `json:"total"`
}

// Orchestrator creates purchase intents and applies payment outcomes.
// All multi-entity transitions are atomic: either the payment and its
// linked subscription both move, or neither does.
type Orchestrator interface {
	// CreateSubscriptionPayment atomically creates a pending subscription
	// and a pending payment referencing it.
	CreateSubscriptionPayment(ctx context.Context, req *CreatePaymentRequest) (*models.Payment, *models.Subscription, error)
	// InitiateCheckout ensures a provider customer exists, opens a
	// checkout session, and moves the payment to processing.
	InitiateCheckout(ctx context.Context, req *CheckoutRequest) (*gateway.CheckoutSession, error)
	// ApplySuccessfulPayment settles the payment and activates the linked
	// subscription. Re-applying to an already-succeeded payment is a
	// no-op.
	ApplySuccessfulPayment(ctx context.Context, paymentID string) error
	// ApplyFailedPayment fails the payment and cancels the linked pending
	// subscription, recording the reason in both histories.
	ApplyFailedPayment(ctx context.Context, paymentID, reason string) error
	// CancelPayment withdraws a pending/processing payment.
	CancelPayment(ctx context.Context, paymentID, userID string) error
	// RefreshFromSession polls the provider for the session outcome and
	// applies it while the payment is still pending/processing.
	RefreshFromSession(ctx context.Context, paymentID, userID string) (*models.Payment, error)

	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	GetUserPayment(ctx context.Context, paymentID, userID string) (*models.Payment, error)
	ListUserPayments(ctx context.Context, userID string) ([]*models.Payment, error)
	// ScanPayments implements paginated/admin listing with filters.
	ScanPayments(ctx context.Context, req *ScanPaymentsRequest) (*ScanPaymentsResponse, error)

	// SetProviderHandles persists provider correlation ids as the gateway
	// call sequence (or a webhook) reveals them. Empty values are skipped.
	SetProviderHandles(ctx context.Context, paymentID, customerID, sessionID, intentID string) error
	// RecordAttempt appends one append-only charge-attempt audit row.
	RecordAttempt(ctx context.Context, rec *AttemptRecord) error
}
