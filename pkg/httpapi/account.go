package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"rewardtask-controlplane/pkg/db/pagination"
	"rewardtask-controlplane/pkg/errutil"
	"rewardtask-controlplane/pkg/middleware"
	"rewardtask-controlplane/services/ledger"
)

type movementRequest struct {
	Amount         decimal.Decimal  `json:"amount"`
	Direction      ledger.Direction `json:"direction"`
	Description    string           `json:"description"`
	IdempotencyKey string           `json:"idempotency_key" binding:"required"`
}

func (h *handlers) registerAccount(c *gin.Context) {
	acc, err := h.accounts.Register(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, acc)
}

func (h *handlers) getAccount(c *gin.Context) {
	id := c.Param("id")
	if !ownerOrStaff(c, id) {
		_ = c.Error(middleware.ErrForbidden)
		return
	}

	acc, err := h.accounts.Get(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (h *handlers) listEntries(c *gin.Context) {
	id := c.Param("id")
	if !ownerOrStaff(c, id) {
		_ = c.Error(middleware.ErrForbidden)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.BadRequest("invalid pagination", err))
		return
	}

	entries, info, err := h.ledger.ListEntries(c.Request.Context(), id, page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries, "page_info": info})
}

func (h *handlers) deposit(c *gin.Context) {
	h.move(c, h.ledger.Deposit)
}

func (h *handlers) withdraw(c *gin.Context) {
	h.move(c, h.ledger.Withdraw)
}

func (h *handlers) adjust(c *gin.Context) {
	h.move(c, h.ledger.Adjust)
}

func (h *handlers) move(c *gin.Context, apply func(ctx context.Context, m ledger.Movement) (*ledger.Result, error)) {
	var req movementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	res, err := apply(c.Request.Context(), ledger.Movement{
		AccountID:      c.Param("id"),
		Amount:         req.Amount,
		Direction:      req.Direction,
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
		ActorID:        actorID(c),
	})
	if err != nil && !(errors.Is(err, ledger.ErrDuplicateOperation) && res != nil) {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) verifyChain(c *gin.Context) {
	report, err := h.ledger.VerifyChain(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, report)
}
