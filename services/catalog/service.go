package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rewardtask-controlplane/pkg/celengine"
	"rewardtask-controlplane/pkg/errutil"
	"rewardtask-controlplane/pkg/logger"
	"rewardtask-controlplane/pkg/repository"
	"rewardtask-controlplane/services/account"
	"rewardtask-controlplane/services/approval"
	"rewardtask-controlplane/services/ledger"
	"rewardtask-controlplane/services/vip"
)

var (
	ErrTaskUnavailable = errutil.UnprocessableEntity("task is unavailable", nil)
	ErrInvalidProduct  = errutil.BadRequest("invalid product", nil)
	ErrInvalidTask     = errutil.BadRequest("invalid task", nil)
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	accounts approval.AccountReader
	tiers    approval.TierSource

	products repository.Repository[Product]
	tasks    repository.Repository[Task]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Accounts approval.AccountReader
	Tiers    approval.TierSource
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		accounts: p.Accounts,
		tiers:    p.Tiers,
		products: repository.ProvideStore[Product](p.DB),
		tasks:    repository.ProvideStore[Task](p.DB),
	}
}

func (s *Service) CreateProduct(ctx context.Context, name string, price decimal.Decimal, stock int64) (*Product, error) {
	name = strings.TrimSpace(name)
	if name == "" || !price.IsPositive() || stock < 0 {
		return nil, ErrInvalidProduct
	}
	if !price.Equal(price.Round(ledger.Scale)) {
		return nil, errutil.Wrap(ErrInvalidProduct, errutil.BadRequest("price must have at most 4 decimal places", nil))
	}

	now := time.Now().UTC()
	p := &Product{
		ID:        s.node.Generate().String(),
		Name:      name,
		Slug:      slug.Make(name),
		Price:     price,
		Stock:     stock,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.products.Create(ctx, p); err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to create product", zap.Error(err))
		return nil, err
	}
	return p, nil
}

func (s *Service) CreateTask(ctx context.Context, in TaskInput) (*Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrInvalidTask
	}
	rate := in.CommissionRate
	if rate.Valid && (rate.Decimal.IsNegative() || rate.Decimal.GreaterThan(decimal.NewFromInt(1))) {
		return nil, errutil.Wrap(ErrInvalidTask, errutil.BadRequest("commission_rate must be within [0, 1]", nil))
	}
	eligibility := strings.TrimSpace(in.Eligibility)
	if eligibility != "" {
		if err := celengine.ValidateExpression(eligibility); err != nil {
			return nil, errutil.Wrap(ErrInvalidTask, errutil.BadRequest("invalid eligibility expression", err))
		}
	}

	product, err := s.products.FindOne(ctx, &Product{ID: in.ProductID})
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, errutil.Wrap(ErrInvalidTask, errutil.NotFound("product not found", nil))
	}

	now := time.Now().UTC()
	t := &Task{
		ID:             s.node.Generate().String(),
		ProductID:      product.ID,
		Title:          title,
		Active:         true,
		CommissionRate: rate,
		Eligibility:    eligibility,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.tasks.Create(ctx, t); err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to create task", zap.Error(err))
		return nil, err
	}
	return t, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (*Product, error) {
	p, err := s.products.FindOne(ctx, &Product{ID: id})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errutil.NotFound("product not found", nil)
	}
	return p, nil
}

// ListTasks returns the active tasks, oldest first.
func (s *Service) ListTasks(ctx context.Context) ([]*Task, error) {
	return s.tasks.Find(ctx, &Task{Active: true}, func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	})
}

// SetActive toggles a task. Inactive tasks can no longer be assigned.
func (s *Service) SetActive(ctx context.Context, taskID string, active bool) error {
	err := s.tasks.Update(ctx, taskID, map[string]any{"active": active, "updated_at": time.Now().UTC()})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrTaskUnavailable
	}
	return err
}

// Quote prices taskID for accountID. productID, when given, must be the task's
// product. Tasks with an eligibility expression the account does not satisfy
// are unavailable. The commission rate is the task override or the rate of the
// account's vip tier.
func (s *Service) Quote(ctx context.Context, accountID, taskID, productID string) (*Quote, error) {
	task, err := s.tasks.FindOne(ctx, &Task{ID: taskID})
	if err != nil {
		return nil, err
	}
	if task == nil || !task.Active {
		return nil, ErrTaskUnavailable
	}
	if productID != "" && productID != task.ProductID {
		return nil, errutil.Wrap(ErrTaskUnavailable, errutil.BadRequest("task does not belong to product", nil))
	}

	product, err := s.products.FindOne(ctx, &Product{ID: task.ProductID})
	if err != nil {
		return nil, err
	}
	if product == nil || !product.Active || product.Stock <= 0 {
		return nil, ErrTaskUnavailable
	}

	var (
		acc  *account.Account
		tier *vip.Tier
	)
	if !task.CommissionRate.Valid || task.Eligibility != "" {
		acc, err = s.accounts.Get(ctx, accountID)
		if err != nil {
			return nil, err
		}
		tiers, err := s.tiers.List(ctx)
		if err != nil {
			return nil, err
		}
		tier, _ = vip.Select(tiers, acc.Balance)
	}

	if task.Eligibility != "" {
		ok, err := celengine.Evaluate(task.Eligibility, eligibilityAttrs(acc, tier, product.Price))
		if err != nil {
			zap.L().With(logger.TraceFields(ctx)...).Warn("failed to evaluate task eligibility",
				zap.String("task_id", task.ID),
				zap.Error(err),
			)
			return nil, errutil.Wrap(ErrTaskUnavailable, err)
		}
		if !ok {
			return nil, ErrTaskUnavailable
		}
	}

	rate := task.CommissionRate
	if !rate.Valid {
		if tier == nil {
			return nil, approval.ErrConfigurationMissing
		}
		rate = decimal.NewNullDecimal(tier.CommissionRate)
	}

	return &Quote{
		TaskID:         task.ID,
		ProductID:      product.ID,
		Price:          product.Price,
		CommissionRate: rate.Decimal,
	}, nil
}

func eligibilityAttrs(acc *account.Account, tier *vip.Tier, price decimal.Decimal) map[string]any {
	name := ""
	if tier != nil {
		name = tier.Name
	}
	return map[string]any{
		celengine.VarBalance:         acc.Balance.InexactFloat64(),
		celengine.VarCompletedOrders: acc.CompletedOrders,
		celengine.VarTier:            name,
		celengine.VarPrice:           price.InexactFloat64(),
	}
}
