package sweeper

import "go.uber.org/fx"

// Module exposes the sweeper via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
)
