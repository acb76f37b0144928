package rbac

import (
	"github.com/smallbiznis/pricedesk/internal/rbac/repository"
	"github.com/smallbiznis/pricedesk/internal/rbac/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rbac.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Invoke(service.EnsureFeatures),
)
