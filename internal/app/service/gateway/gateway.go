package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/fatflowers/teller/internal/models"
)

// CustomerInfo is the user projection the provider needs to create a
// customer record.
type CustomerInfo struct {
	UserID string
	Email  string
	Name   string
}

// CheckoutSession is the provider-hosted payment flow handle.
type CheckoutSession struct {
	SessionID   string
	RedirectURL string
}

// Session outcome as reported by the provider when polled.
const (
	SessionStatusComplete = "complete"
	SessionStatusExpired  = "expired"
	SessionStatusOpen     = "open"
)

// SessionStatus is the provider's view of a checkout session.
type SessionStatus struct {
	Status     string
	IntentID   string
	CustomerID string
	Metadata   map[string]string
}

// PaymentGateway is the sole boundary to the external payment processor.
// Every call is side-effecting against an external system and must be
// treated as non-idempotent; implementations attach the payment id to all
// outbound metadata so duplicated provider-side work stays detectable.
// Implementations translate provider errors to *errs.GatewayError and
// bound every call with a timeout.
type PaymentGateway interface {
	CreateCustomer(ctx context.Context, info CustomerInfo) (customerID string, err error)
	// CreateCheckoutSession opens a provider-hosted payment flow. A
	// non-empty priceID sells the provider-side catalog price; otherwise
	// the payment's amount is sent as inline price data.
	CreateCheckoutSession(ctx context.Context, payment *models.Payment, productName, priceID, successURL, cancelURL string) (*CheckoutSession, error)
	CreatePaymentIntent(ctx context.Context, payment *models.Payment) (clientSecret string, intentID string, err error)
	// RefundPayment refunds amount against the payment's intent; a nil
	// amount means a full refund.
	RefundPayment(ctx context.Context, payment *models.Payment, amount *decimal.Decimal, reason string) (providerRefundID string, err error)
	RetrieveSessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error)
}
