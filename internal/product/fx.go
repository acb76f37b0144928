package product

import (
	productdomain "github.com/smallbiznis/pricedesk/internal/product/domain"
	"github.com/smallbiznis/pricedesk/internal/product/service"
	"github.com/smallbiznis/pricedesk/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("product.service",
	fx.Provide(repository.ProvideStore[productdomain.Product]),
	fx.Provide(repository.ProvideStore[productdomain.FeatureGroup]),
	fx.Provide(repository.ProvideStore[productdomain.Feature]),
	fx.Provide(service.New),
)
