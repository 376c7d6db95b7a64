package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rewardtask-controlplane/pkg/db/option"
	"rewardtask-controlplane/pkg/db/pagination"
	"rewardtask-controlplane/pkg/errutil"
	"rewardtask-controlplane/pkg/logger"
	"rewardtask-controlplane/pkg/repository"
	"rewardtask-controlplane/pkg/sequence"
	"rewardtask-controlplane/services/account"
	"rewardtask-controlplane/services/approval"
	"rewardtask-controlplane/services/audit"
	"rewardtask-controlplane/services/catalog"
	"rewardtask-controlplane/services/ledger"
)

var (
	ErrOrderNotFound  = errutil.NotFound("order not found", nil)
	ErrInvalidState   = errutil.UnprocessableEntity("order is not in a state that allows this transition", nil)
	ErrUnauthorized   = errutil.Forbidden("not allowed to act on this order", nil)
	ErrInvalidOutcome = errutil.BadRequest("outcome must be COMPLETE or REJECT", nil)
)

const ActorSystem = "system"

var tracer = otel.Tracer("rewardtask-controlplane/services/order")

type Ledger interface {
	ApplyEntryTx(ctx context.Context, tx *gorm.DB, p ledger.Params) (*ledger.Result, error)
	Record(ctx context.Context, entry *ledger.LedgerEntry)
}

type Accounts interface {
	Get(ctx context.Context, id string) (*account.Account, error)
	GetForUpdate(ctx context.Context, tx *gorm.DB, id string) (*account.Account, error)
	IncrementCompletedOrders(ctx context.Context, tx *gorm.DB, id string) error
}

type Policy interface {
	Load(ctx context.Context) (*approval.Inputs, error)
}

type Quoter interface {
	Quote(ctx context.Context, accountID, taskID, productID string) (*catalog.Quote, error)
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	ledger   Ledger
	accounts Accounts
	policy   Policy
	quoter   Quoter
	codeGen  sequence.Generator
	audit    audit.Sink
	metrics  *metrics

	orders repository.Repository[TaskOrder]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Ledger   Ledger
	Accounts Accounts
	Policy   Policy
	Quoter   Quoter
	Codes    sequence.Generator   `optional:"true"`
	Audit    audit.Sink           `optional:"true"`
	Meter    metric.MeterProvider `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		ledger:   p.Ledger,
		accounts: p.Accounts,
		policy:   p.Policy,
		quoter:   p.Quoter,
		codeGen:  p.Codes,
		audit:    p.Audit,
		metrics:  newMetrics(p.Meter),

		orders: repository.ProvideStore[TaskOrder](p.DB),
	}
}

// Assign creates an ASSIGNED order for accountID with the task's current price
// and commission rate. No funds move until the order is submitted.
func (s *Service) Assign(ctx context.Context, accountID, taskID, productID string) (*TaskOrder, error) {
	if _, err := s.accounts.Get(ctx, accountID); err != nil {
		return nil, err
	}

	quote, err := s.quoter.Quote(ctx, accountID, taskID, productID)
	if err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Warn("failed to quote task",
			zap.String("account_id", accountID),
			zap.String("task_id", taskID),
			zap.Error(err),
		)
		return nil, err
	}

	id := s.node.Generate()
	now := time.Now().UTC()
	o := &TaskOrder{
		ID:             id.String(),
		Code:           s.nextCode(ctx, id),
		AccountID:      accountID,
		TaskID:         quote.TaskID,
		ProductID:      quote.ProductID,
		AssignedPrice:  quote.Price,
		CommissionRate: quote.CommissionRate,
		State:          StateAssigned,
		AssignedAt:     now,
		UpdatedAt:      now,
	}

	if err := s.orders.Create(ctx, o); err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to create order", zap.Error(err))
		return nil, err
	}

	audit.Record(ctx, s.audit, audit.Entry{
		ActorID:   accountID,
		AccountID: accountID,
		Action:    audit.ActionOrderAssign,
		Summary:   fmt.Sprintf("order %s assigned at %s", o.Code, o.AssignedPrice.StringFixed(2)),
		Payload:   map[string]any{"order_id": o.ID, "task_id": o.TaskID},
	})

	return o, nil
}

// Submit debits the assigned price and moves the order to SUBMITTED, then lets
// the approval policy decide whether it completes right away. The debit, the
// transition and an automatic completion commit together or not at all.
func (s *Service) Submit(ctx context.Context, orderID, accountID string) (*SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "order.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	log := zap.L().With(logger.TraceFields(ctx)...).With(
		zap.String("order_id", orderID),
		zap.String("account_id", accountID),
	)

	// Nothing inside the transaction below may touch s.db directly.
	inputs, err := s.policy.Load(ctx)
	if err != nil {
		log.Warn("approval config unavailable, routing to manual review", zap.Error(err))
	}

	var (
		result  *SubmitResult
		entries []*ledger.LedgerEntry
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.AccountID != accountID {
			return ErrUnauthorized
		}
		if o.State != StateAssigned {
			return ErrInvalidState
		}

		debit, err := s.apply(ctx, tx, ledger.Params{
			AccountID:      o.AccountID,
			Type:           ledger.TypeDebit,
			Amount:         o.AssignedPrice,
			Description:    "submit order " + o.Code,
			IdempotencyKey: o.ID + ":submit",
			ReferenceID:    o.ID,
			ActorID:        accountID,
		})
		if err != nil {
			return err
		}
		entries = append(entries, debit)

		version := o.Version
		now := time.Now().UTC()
		o.State = StateSubmitted
		o.SubmittedAt = &now

		decision := s.decide(ctx, tx, inputs, o)
		o.Approval = decision.Reason

		if decision.Outcome == approval.AutoApprove {
			reward, err := s.complete(ctx, tx, o, ActorSystem, now)
			if err != nil {
				return err
			}
			if reward != nil {
				entries = append(entries, reward)
			}
		}

		if err := s.save(ctx, tx, o, version); err != nil {
			return err
		}

		result = &SubmitResult{Order: o, Decision: decision}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrInvalidState) || errors.Is(err, ledger.ErrInsufficientFunds) || errors.Is(err, ErrUnauthorized) {
			log.Warn("order submit rejected", zap.Error(err))
		} else {
			log.Error("failed to submit order", zap.Error(err))
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("order.state", string(result.Order.State)))
	s.recordTransition(ctx, accountID, result.Order, audit.ActionOrderSubmit, entries)
	s.metrics.submit(ctx, result)
	return result, nil
}

// Resolve applies an admin's decision to a SUBMITTED order. COMPLETE credits the
// reward, REJECT refunds the assigned price.
func (s *Service) Resolve(ctx context.Context, orderID, adminID string, outcome Outcome) (*TaskOrder, error) {
	ctx, span := tracer.Start(ctx, "order.Resolve")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.outcome", string(outcome)),
	)

	if adminID == "" {
		return nil, ErrUnauthorized
	}
	if !outcome.Valid() {
		return nil, ErrInvalidOutcome
	}

	log := zap.L().With(logger.TraceFields(ctx)...).With(
		zap.String("order_id", orderID),
		zap.String("admin_id", adminID),
		zap.String("outcome", string(outcome)),
	)

	var (
		resolved *TaskOrder
		entries  []*ledger.LedgerEntry
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.State != StateSubmitted {
			return ErrInvalidState
		}

		version := o.Version
		now := time.Now().UTC()

		switch outcome {
		case OutcomeComplete:
			reward, err := s.complete(ctx, tx, o, adminID, now)
			if err != nil {
				return err
			}
			if reward != nil {
				entries = append(entries, reward)
			}
		case OutcomeReject:
			refund, err := s.apply(ctx, tx, ledger.Params{
				AccountID:      o.AccountID,
				Type:           ledger.TypeCredit,
				Amount:         o.AssignedPrice,
				Description:    "refund rejected order " + o.Code,
				IdempotencyKey: o.ID + ":reject",
				ReferenceID:    o.ID,
				ActorID:        adminID,
			})
			if err != nil {
				return err
			}
			entries = append(entries, refund)
			o.State = StateRejected
			o.RejectedAt = &now
			o.ResolvedBy = adminID
		}

		if err := s.save(ctx, tx, o, version); err != nil {
			return err
		}
		resolved = o
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrInvalidState) || errors.Is(err, ErrOrderNotFound) {
			log.Warn("order resolve rejected", zap.Error(err))
		} else {
			log.Error("failed to resolve order", zap.Error(err))
		}
		return nil, err
	}

	action := audit.ActionOrderComplete
	if resolved.State == StateRejected {
		action = audit.ActionOrderReject
	}
	s.recordTransition(ctx, adminID, resolved, action, entries)
	s.metrics.resolve(ctx, resolved)
	return resolved, nil
}

func (s *Service) Get(ctx context.Context, id string) (*TaskOrder, error) {
	o, err := s.orders.FindOne(ctx, &TaskOrder{ID: id})
	if err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to FindOne order", zap.Error(err))
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// ListByAccount pages through the orders of an account, newest first.
func (s *Service) ListByAccount(ctx context.Context, accountID string, page pagination.Pagination) ([]*TaskOrder, *pagination.PageInfo, error) {
	return s.list(ctx, &TaskOrder{AccountID: accountID}, "desc", page)
}

// ListPending pages through the orders awaiting an admin decision, oldest first.
func (s *Service) ListPending(ctx context.Context, page pagination.Pagination) ([]*TaskOrder, *pagination.PageInfo, error) {
	return s.list(ctx, &TaskOrder{State: StateSubmitted}, "asc", page)
}

func (s *Service) list(ctx context.Context, query *TaskOrder, order string, page pagination.Pagination) ([]*TaskOrder, *pagination.PageInfo, error) {
	page = page.Normalize()

	cursor, err := pagination.DecodeCursor(page.Cursor)
	if err != nil {
		return nil, nil, errutil.BadRequest("invalid cursor", err)
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "id",
			OrderBy: order,
			Allow:   map[string]bool{"id": true},
		}),
		option.WithLimit(page.Limit + 1),
	}
	if cursor.ID != "" {
		op := option.LT
		if order == "asc" {
			op = option.GT
		}
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "id",
			Operator: op,
			Value:    cursor.ID,
		}))
	}

	orders, err := s.orders.Find(ctx, query, opts...)
	if err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to query list orders", zap.Error(err))
		return nil, nil, err
	}

	return pagination.BuildCursorPage(orders, page.Limit, func(o *TaskOrder) pagination.Cursor {
		return pagination.Cursor{ID: o.ID}
	})
}

// decide evaluates the policy against the account as it stands after the debit.
// Anything short of a clear auto approval leaves the order for an admin.
func (s *Service) decide(ctx context.Context, tx *gorm.DB, inputs *approval.Inputs, o *TaskOrder) *approval.Decision {
	manual := &approval.Decision{Outcome: approval.ManualReview, Reason: approval.ReasonManual}
	if inputs == nil {
		return manual
	}

	acc, err := s.accounts.GetForUpdate(ctx, tx, o.AccountID)
	if err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Warn("failed to read account for approval", zap.Error(err))
		return manual
	}

	decision, err := approval.Evaluate(inputs, acc, o.AssignedPrice)
	if err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Warn("approval policy incomplete, routing to manual review",
			zap.String("order_id", o.ID),
			zap.String("balance", acc.Balance.String()),
			zap.Error(err),
		)
		return manual
	}
	return decision
}

// complete credits the reward, bumps the account's completed order count and
// marks o COMPLETED. A zero reward moves no funds.
func (s *Service) complete(ctx context.Context, tx *gorm.DB, o *TaskOrder, actorID string, now time.Time) (*ledger.LedgerEntry, error) {
	var entry *ledger.LedgerEntry

	reward := o.Reward()
	if reward.IsPositive() {
		e, err := s.apply(ctx, tx, ledger.Params{
			AccountID:      o.AccountID,
			Type:           ledger.TypeCommission,
			Amount:         reward,
			Description:    "reward for order " + o.Code,
			IdempotencyKey: o.ID + ":complete",
			ReferenceID:    o.ID,
			ActorID:        actorID,
		})
		if err != nil {
			return nil, err
		}
		entry = e
	}

	if err := s.accounts.IncrementCompletedOrders(ctx, tx, o.AccountID); err != nil {
		return nil, err
	}

	o.RewardAmount = reward
	o.State = StateCompleted
	o.CompletedAt = &now
	o.ResolvedBy = actorID
	return entry, nil
}

// apply writes a ledger entry in tx. A replayed key means the movement already
// happened for this order, which counts as applied.
func (s *Service) apply(ctx context.Context, tx *gorm.DB, p ledger.Params) (*ledger.LedgerEntry, error) {
	res, err := s.ledger.ApplyEntryTx(ctx, tx, p)
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateOperation) && res != nil {
			return nil, nil
		}
		return nil, err
	}
	return res.Entry, nil
}

func (s *Service) lockOrder(ctx context.Context, tx *gorm.DB, id string) (*TaskOrder, error) {
	o, err := s.orders.WithTrx(tx).FindOne(ctx, &TaskOrder{ID: id}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// save writes o only if nobody moved it since it was read at version.
func (s *Service) save(ctx context.Context, tx *gorm.DB, o *TaskOrder, version int64) error {
	o.UpdatedAt = time.Now().UTC()
	res := tx.WithContext(ctx).Model(&TaskOrder{}).
		Where("id = ? AND version = ?", o.ID, version).
		Updates(map[string]any{
			"state":         o.State,
			"approval":      o.Approval,
			"reward_amount": o.RewardAmount,
			"resolved_by":   o.ResolvedBy,
			"submitted_at":  o.SubmittedAt,
			"completed_at":  o.CompletedAt,
			"rejected_at":   o.RejectedAt,
			"version":       gorm.Expr("version + 1"),
			"updated_at":    o.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidState
	}
	o.Version = version + 1
	return nil
}

func (s *Service) nextCode(ctx context.Context, id snowflake.ID) string {
	if s.codeGen != nil {
		code, err := s.codeGen.NextOrderCode(ctx)
		if err == nil {
			return code
		}
		zap.L().With(logger.TraceFields(ctx)...).Warn("order code sequence unavailable, falling back to id", zap.Error(err))
	}
	return sequence.PrefixOrder + "-" + id.Base36()
}

func (s *Service) recordTransition(ctx context.Context, actorID string, o *TaskOrder, action audit.Action, entries []*ledger.LedgerEntry) {
	for _, e := range entries {
		s.ledger.Record(ctx, e)
	}

	payload := map[string]any{
		"order_id": o.ID,
		"state":    string(o.State),
	}
	if o.Approval != "" {
		payload["approval"] = string(o.Approval)
	}

	audit.Record(ctx, s.audit, audit.Entry{
		ActorID:   actorID,
		AccountID: o.AccountID,
		Action:    action,
		Summary:   fmt.Sprintf("order %s is %s", o.Code, o.State),
		Payload:   payload,
	})

	if action == audit.ActionOrderSubmit && o.State == StateCompleted {
		audit.Record(ctx, s.audit, audit.Entry{
			ActorID:   ActorSystem,
			AccountID: o.AccountID,
			Action:    audit.ActionOrderComplete,
			Summary:   fmt.Sprintf("order %s auto approved, reward %s", o.Code, o.RewardAmount.StringFixed(2)),
			Payload:   payload,
		})
	}
}
