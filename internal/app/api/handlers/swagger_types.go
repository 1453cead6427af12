package handlers

import (
	"github.com/fatflowers/teller/internal/app/service/payment"
	"github.com/fatflowers/teller/internal/app/service/sweeper"
	"github.com/fatflowers/teller/internal/models"
	"github.com/fatflowers/teller/pkg/response"
)

// Concrete envelope instantiations for swagger docs only.
type (
	RespOK                  = response.APIResponse[any]
	RespCreatePayment       = response.APIResponse[*createPaymentResponse]
	RespCheckout            = response.APIResponse[*checkoutResponse]
	RespPayment             = response.APIResponse[*models.Payment]
	RespPaymentList         = response.APIResponse[[]*models.Payment]
	RespRefund              = response.APIResponse[*models.Refund]
	RespRefundList          = response.APIResponse[[]*models.Refund]
	RespSubscription        = response.APIResponse[*subscriptionView]
	RespSubscriptionHistory = response.APIResponse[[]*models.SubscriptionHistory]
	RespPinnedPost          = response.APIResponse[*models.PinnedPost]
	RespScanPayments        = response.APIResponse[*payment.ScanPaymentsResponse]
	RespWebhookEvent        = response.APIResponse[*models.WebhookEvent]
	RespSweep               = response.APIResponse[*sweeper.SweepResult]
)
