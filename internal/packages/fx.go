package packages

import (
	"github.com/smallbiznis/pricedesk/internal/packages/repository"
	"github.com/smallbiznis/pricedesk/internal/packages/service"
	"go.uber.org/fx"
)

var Module = fx.Module("packages.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(service.NewSyncer),
)
