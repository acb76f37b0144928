package salesforce

import (
	sfdomain "github.com/smallbiznis/pricedesk/internal/salesforce/domain"
	"github.com/smallbiznis/pricedesk/internal/salesforce/service"
	"github.com/smallbiznis/pricedesk/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("salesforce.service",
	fx.Provide(repository.ProvideStore[sfdomain.FieldMapping]),
	fx.Provide(repository.ProvideStore[sfdomain.SyncLog]),
	fx.Provide(service.New),
)
