package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fatflowers/teller/internal/app/service/payment"
	"github.com/fatflowers/teller/internal/app/service/sweeper"
	"github.com/fatflowers/teller/internal/app/service/webhook"
	"github.com/fatflowers/teller/pkg/response"
	"github.com/fatflowers/teller/pkg/types"
)

type scanPaymentsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

// @Summary      Scan Payments (Admin)
// @Description  Retrieves a paginated and filterable list of all payments.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body scanPaymentsRequest true "Scan request with filters, pagination, and sorting"
// @Success      200  {object}  handlers.RespScanPayments
// @Router       /api/v1/admin/scan_payments [post]
func ApiScanPayments(mgr payment.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req scanPaymentsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := mgr.ScanPayments(c.Request.Context(), &payment.ScanPaymentsRequest{
			Filters: req.Filters, From: req.From, Size: req.Size,
			SortBy: req.SortBy, SortOrder: req.SortOrder,
		})
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.CodeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Run Sweep (Admin)
// @Description  Runs one bounded maintenance sweep. The scheduler invokes these on a cadence.
// @Tags         Admin
// @Produce      json
// @Param        name path string true "Sweep name" Enums(cleanup_payments, cleanup_webhook_events, retry_failed_webhooks, expire_subscriptions, expiry_reminders)
// @Success      200  {object}  handlers.RespSweep
// @Router       /api/v1/admin/sweeps/{name} [post]
func ApiRunSweep(swp *sweeper.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var (
			result *sweeper.SweepResult
			err    error
		)
		switch c.Param("name") {
		case "cleanup_payments":
			result, err = swp.CleanupPayments(ctx)
		case "cleanup_webhook_events":
			result, err = swp.CleanupWebhookEvents(ctx)
		case "retry_failed_webhooks":
			result, err = swp.RetryFailedWebhooks(ctx)
		case "expire_subscriptions":
			result, err = swp.ExpireSubscriptions(ctx)
		case "expiry_reminders":
			result, _, err = swp.ExpiryReminders(ctx)
		default:
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "unknown sweep"))
			return
		}
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(result))
	}
}

// @Summary      Get Webhook Event (Admin)
// @Description  Returns the stored record for one provider event id, including its dispatch outcome.
// @Tags         Admin
// @Produce      json
// @Param        event_id path string true "Provider event ID"
// @Success      200  {object}  handlers.RespWebhookEvent
// @Router       /api/v1/admin/webhook_events/{event_id} [get]
func ApiGetWebhookEvent(ingestor webhook.Ingestor) gin.HandlerFunc {
	return func(c *gin.Context) {
		event, err := ingestor.GetEvent(c.Request.Context(), c.Param("event_id"))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.CodeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(event))
	}
}

func RegisterAdminRoutes(r gin.IRouter, mgr payment.Orchestrator, swp *sweeper.Service, ingestor webhook.Ingestor) {
	r.POST("/scan_payments", ApiScanPayments(mgr))
	r.POST("/sweeps/:name", ApiRunSweep(swp))
	r.GET("/webhook_events/:event_id", ApiGetWebhookEvent(ingestor))
}
