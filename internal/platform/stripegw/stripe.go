package stripegw

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/teller/internal/app/service/gateway"
	"github.com/fatflowers/teller/internal/models"
	"github.com/fatflowers/teller/pkg/config"
	"github.com/fatflowers/teller/pkg/errs"
	"github.com/fatflowers/teller/pkg/types"
)

const provider = string(types.PaymentProviderStripe)

// Gateway implements gateway.PaymentGateway against the Stripe API.
// All stripe error types are translated to *errs.GatewayError before
// crossing back into the services, and every call carries a bounded
// timeout from config.
type Gateway struct {
	api *client.API
	cfg *config.Config
	log *zap.SugaredLogger
}

func New(cfg *config.Config, log *zap.SugaredLogger) gateway.PaymentGateway {
	api := &client.API{}
	api.Init(cfg.Stripe.SecretKey, nil)
	return &Gateway{api: api, cfg: cfg, log: log}
}

func (g *Gateway) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.cfg.Stripe.CallTimeout)
}

func (g *Gateway) CreateCustomer(ctx context.Context, info gateway.CustomerInfo) (string, error) {
	ctx, cancel := g.callCtx(ctx)
	defer cancel()

	params := &stripe.CustomerParams{
		Email: lo.ToPtr(info.Email),
		Name:  lo.ToPtr(info.Name),
	}
	params.Context = ctx
	params.AddMetadata(types.MetadataKeyUserID, info.UserID)

	cust, err := g.api.Customers.New(params)
	if err != nil {
		return "", errs.Gateway(provider, "create_customer", err)
	}
	return cust.ID, nil
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, payment *models.Payment, productName, priceID, successURL, cancelURL string) (*gateway.CheckoutSession, error) {
	ctx, cancel := g.callCtx(ctx)
	defer cancel()

	item := &stripe.CheckoutSessionLineItemParams{Quantity: stripe.Int64(1)}
	if priceID != "" {
		item.Price = stripe.String(priceID)
	} else {
		item.PriceData = &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency: stripe.String(currencyCode(payment.Currency)),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name:        stripe.String(productName),
				Description: lo.Ternary(payment.Description != "", stripe.String(payment.Description), nil),
			},
			UnitAmount: stripe.Int64(minorUnits(payment.Amount)),
		}
	}

	params := &stripe.CheckoutSessionParams{
		Customer:           payment.ProviderCustomerID,
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:          []*stripe.CheckoutSessionLineItemParams{item},
		SuccessURL:         stripe.String(successURL),
		CancelURL:          stripe.String(cancelURL),
	}
	params.Context = ctx
	addCorrelation(&params.Params, payment)

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, errs.Gateway(provider, "create_checkout_session", err)
	}
	return &gateway.CheckoutSession{SessionID: sess.ID, RedirectURL: sess.URL}, nil
}

func (g *Gateway) CreatePaymentIntent(ctx context.Context, payment *models.Payment) (string, string, error) {
	ctx, cancel := g.callCtx(ctx)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(minorUnits(payment.Amount)),
		Currency: stripe.String(currencyCode(payment.Currency)),
		Customer: payment.ProviderCustomerID,
	}
	params.Context = ctx
	addCorrelation(&params.Params, payment)

	intent, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return "", "", errs.Gateway(provider, "create_payment_intent", err)
	}
	return intent.ClientSecret, intent.ID, nil
}

func (g *Gateway) RefundPayment(ctx context.Context, payment *models.Payment, amount *decimal.Decimal, reason string) (string, error) {
	if payment.ProviderIntentID == nil || *payment.ProviderIntentID == "" {
		return "", errs.Gateway(provider, "refund", fmt.Errorf("payment %s has no intent handle", payment.ID))
	}

	ctx, cancel := g.callCtx(ctx)
	defer cancel()

	params := &stripe.RefundParams{
		PaymentIntent: payment.ProviderIntentID,
	}
	if amount != nil {
		params.Amount = stripe.Int64(minorUnits(*amount))
	}
	params.Context = ctx
	addCorrelation(&params.Params, payment)
	if reason != "" {
		params.AddMetadata("reason", reason)
	}

	ref, err := g.api.Refunds.New(params)
	if err != nil {
		return "", errs.Gateway(provider, "refund", err)
	}
	if ref.Status != stripe.RefundStatusSucceeded && ref.Status != stripe.RefundStatusPending {
		return "", errs.Gateway(provider, "refund", fmt.Errorf("refund %s reported status %s", ref.ID, ref.Status))
	}
	return ref.ID, nil
}

func (g *Gateway) RetrieveSessionStatus(ctx context.Context, sessionID string) (*gateway.SessionStatus, error) {
	ctx, cancel := g.callCtx(ctx)
	defer cancel()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, errs.Gateway(provider, "retrieve_session", err)
	}

	out := &gateway.SessionStatus{
		Status:   string(sess.Status),
		Metadata: sess.Metadata,
	}
	if sess.PaymentIntent != nil {
		out.IntentID = sess.PaymentIntent.ID
	}
	if sess.Customer != nil {
		out.CustomerID = sess.Customer.ID
	}
	return out, nil
}

// addCorrelation stamps the natural idempotency key onto outbound
// metadata so retries on the provider side stay detectable downstream.
func addCorrelation(p *stripe.Params, payment *models.Payment) {
	p.AddMetadata(types.MetadataKeyPaymentID, payment.ID)
	p.AddMetadata(types.MetadataKeyUserID, payment.UserID)
	if payment.SubscriptionID != nil {
		p.AddMetadata(types.MetadataKeySubscriptionID, *payment.SubscriptionID)
	}
}

func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}

func currencyCode(c string) string {
	if c == "" {
		return "usd"
	}
	return strings.ToLower(c)
}

var Module = fx.Options(
	fx.Provide(New),
)
