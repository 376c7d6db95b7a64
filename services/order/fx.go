package order

import (
	"go.uber.org/fx"

	"rewardtask-controlplane/services/account"
	"rewardtask-controlplane/services/approval"
	"rewardtask-controlplane/services/catalog"
	"rewardtask-controlplane/services/ledger"
)

var Module = fx.Module("order.service",
	fx.Provide(
		NewService,
		func(s *ledger.Service) Ledger { return s },
		func(s *account.Service) Accounts { return s },
		func(s *approval.Service) Policy { return s },
		func(s *catalog.Service) Quoter { return s },
	),
)
