package middleware

import (
	"net/http"
	"time"

	"github.com/finflow/reconciler/internal/app/service/reconciler"
	"github.com/finflow/reconciler/pkg/response"

	"github.com/gin-gonic/gin"
)

// RequireLiveSubscription gates paid-only routes: the caller must hold a
// subscription row that grants access right now. Attach after
// AuthMiddleware.
func RequireLiveSubscription(rec *reconciler.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, nil))
			return
		}

		sub, err := rec.GetCurrentSubscription(c.Request.Context(), userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, nil))
			return
		}
		if !sub.Live(time.Now()) {
			c.AbortWithStatusJSON(http.StatusForbidden, response.ErrorT[any](response.APIResponseCodeForbidden, "subscription required"))
			return
		}

		c.Next()
	}
}
