package setting

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"rewardtask-controlplane/pkg/featureflags"
)

// FlagsmithProvider reads the approval configuration from environment flags.
// auto_approve_all is on when enabled, auto_approve_threshold is used when
// enabled and its value parses as a decimal.
type FlagsmithProvider struct {
	flags featureflags.FeatureFlag
}

func NewFlagsmithProvider(flags featureflags.FeatureFlag) *FlagsmithProvider {
	return &FlagsmithProvider{flags: flags}
}

func (p *FlagsmithProvider) ApprovalConfig(ctx context.Context) (ApprovalConfig, error) {
	var cfg ApprovalConfig

	flags, err := p.flags.Environment(ctx)
	if err != nil {
		return cfg, err
	}

	if f, ok := flags[FlagAutoApproveAll]; ok {
		cfg.AutoApproveAll = f.Enabled
	}

	if f, ok := flags[FlagAutoApproveThreshold]; ok && f.Enabled {
		d, err := toDecimal(f.Value)
		if err != nil {
			return cfg, fmt.Errorf("flag %s: %w", FlagAutoApproveThreshold, err)
		}
		cfg.PriceThreshold = decimal.NewNullDecimal(d)
	}

	return cfg, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case string:
		return decimal.NewFromString(x)
	case float64:
		return decimal.NewFromFloat(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported value %v", v)
	}
}
