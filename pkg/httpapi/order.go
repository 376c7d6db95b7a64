package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rewardtask-controlplane/pkg/db/pagination"
	"rewardtask-controlplane/pkg/errutil"
	"rewardtask-controlplane/pkg/middleware"
	"rewardtask-controlplane/services/order"
)

type assignRequest struct {
	TaskID    string `json:"task_id" binding:"required"`
	ProductID string `json:"product_id"`
}

type resolveRequest struct {
	Outcome order.Outcome `json:"outcome" binding:"required"`
}

func (h *handlers) listTasks(c *gin.Context) {
	tasks, err := h.catalog.ListTasks(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tasks})
}

func (h *handlers) assignOrder(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	o, err := h.orders.Assign(c.Request.Context(), actorID(c), req.TaskID, req.ProductID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (h *handlers) listOrders(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.BadRequest("invalid pagination", err))
		return
	}

	orders, info, err := h.orders.ListByAccount(c.Request.Context(), actorID(c), page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": orders, "page_info": info})
}

func (h *handlers) getOrder(c *gin.Context) {
	o, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !ownerOrStaff(c, o.AccountID) {
		// indistinguishable from a missing order
		_ = c.Error(order.ErrOrderNotFound)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *handlers) submitOrder(c *gin.Context) {
	res, err := h.orders.Submit(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) listPendingOrders(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.BadRequest("invalid pagination", err))
		return
	}

	orders, info, err := h.orders.ListPending(c.Request.Context(), page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": orders, "page_info": info})
}

func (h *handlers) resolveOrder(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	actor, _ := middleware.GetActor(c)
	o, err := h.orders.Resolve(c.Request.Context(), c.Param("id"), actor.ID, req.Outcome)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, o)
}
