package approval

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"rewardtask-controlplane/pkg/errutil"
	"rewardtask-controlplane/pkg/logger"
	"rewardtask-controlplane/services/account"
	"rewardtask-controlplane/services/setting"
	"rewardtask-controlplane/services/vip"
)

var ErrConfigurationMissing = errutil.UnprocessableEntity("no vip tier matches the account balance", nil)

type TierSource interface {
	List(ctx context.Context) ([]*vip.Tier, error)
}

type AccountReader interface {
	Get(ctx context.Context, id string) (*account.Account, error)
}

type Service struct {
	config   setting.ApprovalConfigProvider
	tiers    TierSource
	accounts AccountReader
}

type ServiceParams struct {
	fx.In
	Config   setting.ApprovalConfigProvider
	Tiers    TierSource
	Accounts AccountReader
}

func NewService(p ServiceParams) *Service {
	return &Service{
		config:   p.Config,
		tiers:    p.Tiers,
		accounts: p.Accounts,
	}
}

// Decide evaluates the policy for accountID using its stored balance and
// completed order count.
func (s *Service) Decide(ctx context.Context, accountID string, assignedPrice decimal.Decimal) (*Decision, error) {
	in, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}

	acc, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return Evaluate(in, acc, assignedPrice)
}

// Load fetches the approval configuration and the tier table.
func (s *Service) Load(ctx context.Context) (*Inputs, error) {
	cfg, err := s.config.ApprovalConfig(ctx)
	if err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to load approval config", zap.Error(err))
		return nil, err
	}

	tiers, err := s.tiers.List(ctx)
	if err != nil {
		return nil, err
	}

	return &Inputs{Config: cfg, Tiers: tiers}, nil
}

// Evaluate applies, in order: auto-approve-all, the price threshold, then the
// order limit of the highest tier acc's balance qualifies for. It returns
// ErrConfigurationMissing when the tier step is reached and no tier matches.
func Evaluate(in *Inputs, acc *account.Account, assignedPrice decimal.Decimal) (*Decision, error) {
	if in.Config.AutoApproveAll {
		return &Decision{Outcome: AutoApprove, Reason: ReasonAutoApproveAll}, nil
	}

	if in.Config.PriceThreshold.Valid && assignedPrice.LessThanOrEqual(in.Config.PriceThreshold.Decimal) {
		return &Decision{Outcome: AutoApprove, Reason: ReasonPriceThreshold}, nil
	}

	tier, ok := vip.Select(in.Tiers, acc.Balance)
	if !ok {
		return nil, ErrConfigurationMissing
	}

	if acc.CompletedOrders < tier.AutoApproveLimit {
		return &Decision{Outcome: AutoApprove, Reason: ReasonTierLimit, Tier: tier.Name}, nil
	}

	return &Decision{Outcome: ManualReview, Reason: ReasonManual, Tier: tier.Name}, nil
}
