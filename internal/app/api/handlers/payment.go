package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	mw "github.com/fatflowers/teller/internal/app/api/middleware"
	"github.com/fatflowers/teller/internal/app/service/payment"
	"github.com/fatflowers/teller/pkg/errs"
	"github.com/fatflowers/teller/pkg/response"
)

type createPaymentRequest struct {
	PlanID string `json:"plan_id"`
}

type createPaymentResponse struct {
	PaymentID      string `json:"payment_id"`
	SubscriptionID string `json:"subscription_id"`
	Status         string `json:"status"`
}

// @Summary      Create Payment
// @Description  Creates a pending subscription and its pending payment for the chosen plan.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body createPaymentRequest true "Plan selection"
// @Success      200  {object}  handlers.RespCreatePayment
// @Router       /api/v1/payments [post]
func ApiCreatePayment(mgr payment.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		p, sub, err := mgr.CreateSubscriptionPayment(c.Request.Context(), &payment.CreatePaymentRequest{
			UserID: mw.UserID(c),
			PlanID: req.PlanID,
		})
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.CodeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&createPaymentResponse{
			PaymentID:      p.ID,
			SubscriptionID: sub.ID,
			Status:         string(p.Status),
		}))
	}
}

type checkoutRequest struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

type checkoutResponse struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

// @Summary      Initiate Checkout
// @Description  Opens a provider checkout session for a pending payment and moves it to processing.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        id path string true "Payment ID"
// @Param        request body checkoutRequest true "Checkout options"
// @Success      200  {object}  handlers.RespCheckout
// @Router       /api/v1/payments/{id}/checkout [post]
func ApiInitiateCheckout(mgr payment.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req checkoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		sess, err := mgr.InitiateCheckout(c.Request.Context(), &payment.CheckoutRequest{
			PaymentID:  c.Param("id"),
			UserID:     mw.UserID(c),
			Email:      req.Email,
			Name:       req.Name,
			SuccessURL: req.SuccessURL,
			CancelURL:  req.CancelURL,
		})
		if err != nil {
			code := response.CodeFor(err)
			if errs.IsGateway(err) {
				code = response.APIResponseCodeError
			}
			c.JSON(http.StatusOK, response.ErrorT[any](code, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&checkoutResponse{
			SessionID:   sess.SessionID,
			RedirectURL: sess.RedirectURL,
		}))
	}
}

// @Summary      Get Payment
// @Description  Returns one of the caller's payments. With refresh=true the provider session is polled first.
// @Tags         Payment
// @Produce      json
// @Param        id path string true "Payment ID"
// @Param        refresh query bool false "Poll the provider session before returning"
// @Success      200  {object}  handlers.RespPayment
// @Router       /api/v1/payments/{id} [get]
func ApiGetPayment(mgr payment.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			p   any
			err error
		)
		if c.Query("refresh") == "true" {
			p, err = mgr.RefreshFromSession(c.Request.Context(), c.Param("id"), mw.UserID(c))
		} else {
			p, err = mgr.GetUserPayment(c.Request.Context(), c.Param("id"), mw.UserID(c))
		}
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.CodeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(p))
	}
}

// @Summary      Cancel Payment
// @Description  Withdraws a payment that has not settled, canceling its pending subscription.
// @Tags         Payment
// @Produce      json
// @Param        id path string true "Payment ID"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/payments/{id}/cancel [post]
func ApiCancelPayment(mgr payment.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := mgr.CancelPayment(c.Request.Context(), c.Param("id"), mw.UserID(c))
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.CodeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// @Summary      List Payments
// @Description  Returns the caller's payments, newest first.
// @Tags         Payment
// @Produce      json
// @Success      200  {object}  handlers.RespPaymentList
// @Router       /api/v1/payments [get]
func ApiListPayments(mgr payment.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		payments, err := mgr.ListUserPayments(c.Request.Context(), mw.UserID(c))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(payments))
	}
}

func RegisterPaymentRoutes(r gin.IRouter, mgr payment.Orchestrator) {
	r.POST("/payments", ApiCreatePayment(mgr))
	r.GET("/payments", ApiListPayments(mgr))
	r.GET("/payments/:id", ApiGetPayment(mgr))
	r.POST("/payments/:id/checkout", ApiInitiateCheckout(mgr))
	r.POST("/payments/:id/cancel", ApiCancelPayment(mgr))
}
