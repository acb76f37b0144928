package tenant

import (
	"github.com/smallbiznis/pricedesk/internal/tenant/repository"
	"github.com/smallbiznis/pricedesk/internal/tenant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
