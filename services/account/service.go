package account

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rewardtask-controlplane/pkg/db/option"
	"rewardtask-controlplane/pkg/errutil"
	"rewardtask-controlplane/pkg/repository"
)

var (
	ErrAccountNotFound  = errutil.NotFound("account not found", nil)
	ErrConcurrentUpdate = errutil.Conflict("account was modified concurrently", nil)
	ErrNegativeBalance  = errutil.UnprocessableEntity("balance must not be negative", nil)
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	accounts repository.Repository[Account]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		accounts: repository.ProvideStore[Account](p.DB),
	}
}

// Register creates an account with a zero balance.
func (s *Service) Register(ctx context.Context) (*Account, error) {
	now := time.Now().UTC()
	acc := &Account{
		ID:        s.node.Generate().String(),
		Balance:   decimal.Zero,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.accounts.Create(ctx, acc); err != nil {
		zap.L().Error("failed to register account", zap.Error(err))
		return nil, err
	}

	return acc, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	return s.find(ctx, s.accounts, id)
}

// GetForUpdate reads the account inside tx holding a row lock until tx ends.
func (s *Service) GetForUpdate(ctx context.Context, tx *gorm.DB, id string) (*Account, error) {
	return s.find(ctx, s.accounts.WithTrx(tx), id, option.WithLockingUpdate())
}

func (s *Service) find(ctx context.Context, repo repository.Repository[Account], id string, opts ...option.QueryOption) (*Account, error) {
	if id == "" {
		return nil, ErrAccountNotFound
	}

	acc, err := repo.FindOne(ctx, &Account{ID: id}, opts...)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, ErrAccountNotFound
	}

	return acc, nil
}

// UpdateBalance persists balance for acc, which must have been read in tx. The
// write only lands when the version still matches what was read.
func (s *Service) UpdateBalance(ctx context.Context, tx *gorm.DB, acc *Account, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return ErrNegativeBalance
	}

	now := time.Now().UTC()
	res := tx.WithContext(ctx).Model(&Account{}).
		Where("id = ? AND version = ?", acc.ID, acc.Version).
		Updates(map[string]any{
			"balance":    balance,
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}

	acc.Balance = balance
	acc.Version++
	acc.UpdatedAt = now
	return nil
}

func (s *Service) IncrementCompletedOrders(ctx context.Context, tx *gorm.DB, id string) error {
	res := tx.WithContext(ctx).Model(&Account{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"completed_orders": gorm.Expr("completed_orders + 1"),
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ListIDs returns up to limit account ids ordered after afterID, for batch sweeps.
func (s *Service) ListIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&Account{}).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		zap.L().Error("failed to list account ids", zap.Error(err))
		return nil, err
	}
	return ids, nil
}
