package identity

import "go.uber.org/fx"

var Module = fx.Module("providers.identity",
	fx.Provide(NewVerifier),
	fx.Provide(NewCognitoDirectory),
)
