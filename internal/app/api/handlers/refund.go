package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	mw "github.com/fatflowers/teller/internal/app/api/middleware"
	"github.com/fatflowers/teller/internal/app/service/refund"
	"github.com/fatflowers/teller/pkg/errs"
	"github.com/fatflowers/teller/pkg/response"
)

type createRefundRequest struct {
	PaymentID string           `json:"payment_id"`
	Amount    *decimal.Decimal `json:"amount"`
	Reason    string           `json:"reason"`
}

// @Summary      Create Refund (Admin)
// @Description  Refunds a settled payment, fully or partially. A full refund cascades to the payment and its subscription.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body createRefundRequest true "Refund request; omit amount for a full refund"
// @Success      200  {object}  handlers.RespRefund
// @Router       /api/v1/admin/refunds [post]
func ApiCreateRefund(mgr refund.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRefundRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		r, err := mgr.CreateRefund(c.Request.Context(), &refund.CreateRefundRequest{
			PaymentID: req.PaymentID,
			Amount:    req.Amount,
			Reason:    req.Reason,
			CreatedBy: mw.UserID(c),
		})
		if err != nil {
			code := response.CodeFor(err)
			if errs.IsGateway(err) {
				code = response.APIResponseCodeError
			}
			c.JSON(http.StatusOK, response.ErrorT[any](code, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(r))
	}
}

// @Summary      Cancel Refund (Admin)
// @Description  Withdraws a pending refund.
// @Tags         Admin
// @Produce      json
// @Param        id path string true "Refund ID"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/refunds/{id}/cancel [post]
func ApiCancelRefund(mgr refund.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := mgr.CancelRefund(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.CodeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// @Summary      List Refunds (Admin)
// @Description  Lists refunds for one payment, newest first.
// @Tags         Admin
// @Produce      json
// @Param        payment_id query string true "Payment ID"
// @Success      200  {object}  handlers.RespRefundList
// @Router       /api/v1/admin/refunds [get]
func ApiListRefunds(mgr refund.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		paymentID := c.Query("payment_id")
		if paymentID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing payment_id"))
			return
		}
		refunds, err := mgr.ListRefunds(c.Request.Context(), paymentID)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(refunds))
	}
}

// @Summary      Get Refund (Admin)
// @Description  Returns one refund.
// @Tags         Admin
// @Produce      json
// @Param        id path string true "Refund ID"
// @Success      200  {object}  handlers.RespRefund
// @Router       /api/v1/admin/refunds/{id} [get]
func ApiGetRefund(mgr refund.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		r, err := mgr.GetRefund(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.CodeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(r))
	}
}

func RegisterRefundRoutes(r gin.IRouter, mgr refund.Orchestrator) {
	r.POST("/refunds", ApiCreateRefund(mgr))
	r.GET("/refunds", ApiListRefunds(mgr))
	r.GET("/refunds/:id", ApiGetRefund(mgr))
	r.POST("/refunds/:id/cancel", ApiCancelRefund(mgr))
}
