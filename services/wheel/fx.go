package wheel

import (
	"go.uber.org/fx"

	"rewardtask-controlplane/services/account"
	"rewardtask-controlplane/services/ledger"
)

var Module = fx.Module("wheel.service",
	fx.Provide(
		NewService,
		func(s *ledger.Service) Ledger { return s },
		func(s *account.Service) AccountReader { return s },
	),
)
