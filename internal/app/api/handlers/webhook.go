package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"github.com/fatflowers/teller/internal/app/service/webhook"
	"github.com/fatflowers/teller/pkg/config"
	"github.com/fatflowers/teller/pkg/errs"
	"github.com/fatflowers/teller/pkg/logctx"
	"github.com/fatflowers/teller/pkg/response"
	"github.com/fatflowers/teller/pkg/types"
)

const webhookMaxBodyBytes = 64 * 1024

// @Summary      Stripe Webhook
// @Description  Receives signed Stripe events. Redeliveries of an already-recorded event are acknowledged without reprocessing.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /webhooks/stripe [post]
func ApiStripeWebhook(cfg *config.Config, log *zap.SugaredLogger, ingestor webhook.Ingestor) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, webhookMaxBodyBytes))
		if err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, "unreadable body"))
			return
		}

		// Endpoints can be pinned to an API version other than the SDK's;
		// the signature check alone decides authenticity.
		event, err := stripewebhook.ConstructEventWithOptions(body, c.GetHeader("Stripe-Signature"),
			cfg.Stripe.WebhookSecret, stripewebhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
		if err != nil {
			logctx.FromCtx(c, log).Warnw("webhook_signature_rejected", "error", err.Error())
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, "invalid signature"))
			return
		}

		_, err = ingestor.Ingest(c.Request.Context(), types.PaymentProviderStripe,
			event.ID, string(event.Type), event.Data.Raw)
		if err != nil {
			// A redelivery already has a durable outcome; acknowledge it so
			// the provider stops resending.
			if errors.Is(err, errs.ErrDuplicateEvent) {
				c.JSON(http.StatusOK, response.OKT[any](nil))
				return
			}
			// Without a durable row the retry sweep cannot recover this
			// event; a non-2xx makes the provider redeliver it.
			logctx.FromCtx(c, log).Errorw("webhook_ingest_error", "event_id", event.ID, "error", err.Error())
			c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterWebhookRoutes(r gin.IRouter, cfg *config.Config, log *zap.SugaredLogger, ingestor webhook.Ingestor) {
	r.POST("/stripe", ApiStripeWebhook(cfg, log, ingestor))
}
