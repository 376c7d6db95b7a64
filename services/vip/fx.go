package vip

import "go.uber.org/fx"

var Module = fx.Module("vip.service",
	fx.Provide(NewService),
)
