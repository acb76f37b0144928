package sweep

import "go.uber.org/fx"

var Module = fx.Module("sweep",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
)
