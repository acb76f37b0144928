package pricing

import (
	pricingdomain "github.com/smallbiznis/pricedesk/internal/pricing/domain"
	"github.com/smallbiznis/pricedesk/internal/pricing/service"
	"github.com/smallbiznis/pricedesk/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("pricing.service",
	fx.Provide(repository.ProvideStore[pricingdomain.PricingModel]),
	fx.Provide(repository.ProvideStore[pricingdomain.PricingStructure]),
	fx.Provide(service.New),
)
