package setting

import (
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"rewardtask-controlplane/pkg/config"
	"rewardtask-controlplane/pkg/featureflags"
)

var Module = fx.Module("setting.service",
	fx.Provide(
		NewService,
		provideApprovalConfig,
	),
)

type approvalConfigParams struct {
	fx.In
	Config  *config.Config
	Service *Service
	Flags   featureflags.FeatureFlag `optional:"true"`
}

func provideApprovalConfig(p approvalConfigParams) ApprovalConfigProvider {
	if strings.EqualFold(p.Config.Approval.Provider, "flagsmith") {
		if p.Flags != nil {
			return NewFlagsmithProvider(p.Flags)
		}
		zap.L().Warn("flagsmith approval provider requested without feature flags, using database")
	}
	return p.Service
}
