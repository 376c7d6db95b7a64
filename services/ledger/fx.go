package ledger

import (
	"go.uber.org/fx"

	"rewardtask-controlplane/services/account"
)

var Module = fx.Module("ledger.service",
	fx.Provide(
		NewService,
		provideAccountStore,
	),
)

func provideAccountStore(s *account.Service) AccountStore {
	return s
}
