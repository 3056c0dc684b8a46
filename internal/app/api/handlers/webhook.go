package handlers

import (
	"net/http"

	"github.com/finflow/reconciler/internal/app/service/stripehandler"
	"github.com/finflow/reconciler/pkg/logctx"
	"github.com/finflow/reconciler/pkg/response"

	"github.com/gin-gonic/gin"
)

// @Summary      Stripe Webhook
// @Description  Handles Stripe webhook deliveries. The request body must be the raw event payload with a valid Stripe-Signature header.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/webhooks/stripe [post]
// ApiStripeWebhook acks handled events; any failure returns non-2xx so the
// processor retries delivery.
func ApiStripeWebhook(h *stripehandler.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		logctx.FromGin(c, h.Logger).Infow("webhook_stripe_received")

		if err := h.HandleEvent(c); err != nil {
			logctx.FromGin(c, h.Logger).Errorw("webhook_stripe_handle_error", "error", err.Error())
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeError, nil))
			return
		}
		logctx.FromGin(c, h.Logger).Infow("webhook_stripe_handled")
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterWebhookRoutes(r gin.IRouter, h *stripehandler.Handler) {
	r.POST("/stripe", ApiStripeWebhook(h))
}
