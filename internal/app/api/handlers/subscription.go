package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	mw "github.com/fatflowers/teller/internal/app/api/middleware"
	subsvc "github.com/fatflowers/teller/internal/app/service/subscription"
	"github.com/fatflowers/teller/pkg/response"
	"github.com/fatflowers/teller/pkg/types"
)

type subscriptionView struct {
	ID string `json:"id"`
	types.SubscriptionInfo
	DaysRemaining int `json:"days_remaining"`
}

// @Summary      Get Subscription
// @Description  Returns the caller's most recent subscription.
// @Tags         Subscription
// @Produce      json
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscription [get]
func ApiGetSubscription(sub *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := sub.GetUserSubscription(c.Request.Context(), mw.UserID(c))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.CodeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&subscriptionView{
			ID: s.ID,
			SubscriptionInfo: types.SubscriptionInfo{
				Status:    s.Status,
				PlanID:    s.PlanID,
				StartDate: s.StartDate,
				EndDate:   s.EndDate,
				AutoRenew: s.AutoRenew,
			},
			DaysRemaining: s.DaysRemaining(time.Now()),
		}))
	}
}

// @Summary      Subscription History
// @Description  Returns the audit ledger for one subscription, newest first.
// @Tags         Subscription
// @Produce      json
// @Param        id path string true "Subscription ID"
// @Success      200  {object}  handlers.RespSubscriptionHistory
// @Router       /api/v1/subscription/{id}/history [get]
func ApiSubscriptionHistory(sub *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := sub.ListHistory(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(entries))
	}
}

type pinPostRequest struct {
	PostID string `json:"post_id"`
}

// @Summary      Pin Post
// @Description  Pins a post for the caller. Requires an active subscription; re-pinning replaces the previous pin.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        request body pinPostRequest true "Post to pin"
// @Success      200  {object}  handlers.RespPinnedPost
// @Router       /api/v1/subscription/pin [post]
func ApiPinPost(sub *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req pinPostRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		pinned, err := sub.PinPost(c.Request.Context(), mw.UserID(c), req.PostID)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.CodeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(pinned))
	}
}

// @Summary      Unpin Post
// @Description  Removes the caller's pinned post.
// @Tags         Subscription
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/subscription/pin [delete]
func ApiUnpinPost(sub *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := sub.UnpinPost(c.Request.Context(), mw.UserID(c)); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.CodeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterSubscriptionRoutes(r gin.IRouter, sub *subsvc.Service) {
	r.GET("/subscription", ApiGetSubscription(sub))
	r.GET("/subscription/:id/history", ApiSubscriptionHistory(sub))
	r.POST("/subscription/pin", ApiPinPost(sub))
	r.DELETE("/subscription/pin", ApiUnpinPost(sub))
}
