package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"rewardtask-controlplane/pkg/errutil"
	"rewardtask-controlplane/services/catalog"
	"rewardtask-controlplane/services/vip"
)

type settingRequest struct {
	Value string `json:"value"`
}

type activeRequest struct {
	Active *bool `json:"active" binding:"required"`
}

type productRequest struct {
	Name  string          `json:"name" binding:"required"`
	Price decimal.Decimal `json:"price"`
	Stock int64           `json:"stock"`
}

type prizeRequest struct {
	Label       string          `json:"label" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Probability float64         `json:"probability"`
}

func (h *handlers) getSetting(c *gin.Context) {
	key := c.Param("key")
	value, ok, err := h.settings.Get(c.Request.Context(), key)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !ok {
		_ = c.Error(errutil.NotFound("setting not found", nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}

func (h *handlers) putSetting(c *gin.Context) {
	var req settingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	key := c.Param("key")
	if err := h.settings.Set(c.Request.Context(), actorID(c), key, req.Value); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": req.Value})
}

func (h *handlers) listTiers(c *gin.Context) {
	tiers, err := h.tiers.List(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tiers})
}

func (h *handlers) putTiers(c *gin.Context) {
	var tiers []*vip.Tier
	if err := c.ShouldBindJSON(&tiers); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	if err := h.tiers.Upsert(c.Request.Context(), actorID(c), tiers); err != nil {
		_ = c.Error(err)
		return
	}
	h.listTiers(c)
}

func (h *handlers) createProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	p, err := h.catalog.CreateProduct(c.Request.Context(), req.Name, req.Price, req.Stock)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *handlers) createTask(c *gin.Context) {
	var req catalog.TaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	t, err := h.catalog.CreateTask(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *handlers) createPrize(c *gin.Context) {
	var req prizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	p, err := h.wheel.CreatePrize(c.Request.Context(), req.Label, req.Amount, req.Probability)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *handlers) listPrizes(c *gin.Context) {
	prizes, err := h.wheel.ListPrizes(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": prizes})
}

func (h *handlers) setTaskActive(c *gin.Context) {
	h.setActive(c, h.catalog.SetActive)
}

func (h *handlers) setPrizeActive(c *gin.Context) {
	h.setActive(c, h.wheel.SetPrizeActive)
}

func (h *handlers) setActive(c *gin.Context, set func(ctx context.Context, id string, active bool) error) {
	var req activeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	id := c.Param("id")
	if err := set(c.Request.Context(), id, *req.Active); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "active": *req.Active})
}
