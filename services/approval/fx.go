package approval

import (
	"go.uber.org/fx"

	"rewardtask-controlplane/services/account"
	"rewardtask-controlplane/services/vip"
)

var Module = fx.Module("approval.service",
	fx.Provide(
		NewService,
		func(s *vip.Service) TierSource { return s },
		func(s *account.Service) AccountReader { return s },
	),
)
