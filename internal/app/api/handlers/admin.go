package handlers

import (
	"net/http"

	"github.com/finflow/reconciler/internal/app/service/reconciler"
	"github.com/finflow/reconciler/pkg/logctx"
	"github.com/finflow/reconciler/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// @Summary      Cleanup duplicate subscriptions
// @Description  Maintenance: for every user holding more than one subscription row, keep the authoritative row and retire the rest.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  handlers.RespCleanup
// @Router       /api/v1/admin/subscriptions/cleanup [post]
func ApiCleanupSubscriptions(rec *reconciler.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		repaired, err := rec.CleanupDuplicateSubscriptions(c.Request.Context())
		if err != nil {
			logctx.FromGin(c, log).Errorw("cleanup_subscriptions_failed", "error", err.Error())
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, nil))
			return
		}
		c.JSON(http.StatusOK, response.OKT(map[string]int{"repaired_users": repaired}))
	}
}

func RegisterAdminRoutes(r gin.IRouter, rec *reconciler.Service, log *zap.SugaredLogger) {
	r.POST("/subscriptions/cleanup", ApiCleanupSubscriptions(rec, log))
}
