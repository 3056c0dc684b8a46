package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/finflow/reconciler/internal/app/service/reconciler"
	"github.com/finflow/reconciler/pkg/config"
	"github.com/finflow/reconciler/pkg/logctx"
	"github.com/finflow/reconciler/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// @Summary      Current subscription
// @Description  Returns the caller's effective subscription, or null when the user never subscribed.
// @Tags         Subscription
// @Produce      json
// @Success      200  {object}  handlers.RespSubscriptionInfo
// @Router       /api/v1/subscription [get]
func ApiGetSubscription(rec *reconciler.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		sub, err := rec.GetCurrentSubscription(c.Request.Context(), userID)
		if err != nil {
			logctx.FromGin(c, log).Errorw("get_subscription_failed", "error", err.Error())
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, nil))
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub.Info()))
	}
}

// @Summary      Start trial
// @Description  Opens the configured trial for the caller. Rejected when the caller already has access.
// @Tags         Subscription
// @Produce      json
// @Success      200  {object}  handlers.RespSubscriptionInfo
// @Router       /api/v1/subscription/trial [post]
func ApiStartTrial(rec *reconciler.Service, cfg *config.Config, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")

		current, err := rec.GetCurrentSubscription(c.Request.Context(), userID)
		if err != nil {
			logctx.FromGin(c, log).Errorw("start_trial_lookup_failed", "error", err.Error())
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, nil))
			return
		}
		if current.Live(time.Now()) {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "user already has access"))
			return
		}

		sub, err := rec.StartTrial(c.Request.Context(), userID, cfg.Trial.Plan, cfg.Trial.DurationDays)
		if err != nil {
			logctx.FromGin(c, log).Errorw("start_trial_failed", "error", err.Error())
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, nil))
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub.Info()))
	}
}

type cancelRequest struct {
	Immediately bool `json:"immediately"`
}

// @Summary      Cancel subscription
// @Description  Marks the caller's subscription for cancellation at period end, or cancels right away when immediately is set.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        payload body handlers.cancelRequest false "cancellation options"
// @Success      200  {object}  handlers.RespSubscriptionInfo
// @Router       /api/v1/subscription/cancel [post]
func ApiCancelSubscription(rec *reconciler.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")

		var req cancelRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "invalid payload"))
				return
			}
		}

		sub, err := rec.Cancel(c.Request.Context(), userID, req.Immediately)
		if errors.Is(err, reconciler.ErrNoSubscription) {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "no active subscription found to cancel"))
			return
		}
		if err != nil {
			logctx.FromGin(c, log).Errorw("cancel_subscription_failed", "error", err.Error())
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, nil))
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub.Info()))
	}
}

func RegisterSubscriptionRoutes(r gin.IRouter, rec *reconciler.Service, cfg *config.Config, log *zap.SugaredLogger) {
	r.GET("/subscription", ApiGetSubscription(rec, log))
	r.POST("/subscription/trial", ApiStartTrial(rec, cfg, log))
	r.POST("/subscription/cancel", ApiCancelSubscription(rec, log))
}
