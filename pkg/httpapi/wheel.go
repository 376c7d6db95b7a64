package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rewardtask-controlplane/pkg/errutil"
)

type spinRequest struct {
	SpinID string `json:"spin_id" binding:"required"`
}

func (h *handlers) spin(c *gin.Context) {
	var req spinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	res, err := h.wheel.Spin(c.Request.Context(), actorID(c), req.SpinID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, res)
}
