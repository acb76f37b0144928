package account

import (
	accountdomain "github.com/smallbiznis/pricedesk/internal/account/domain"
	"github.com/smallbiznis/pricedesk/internal/account/service"
	"github.com/smallbiznis/pricedesk/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.ProvideStore[accountdomain.Account]),
	fx.Provide(repository.ProvideStore[accountdomain.Opportunity]),
	fx.Provide(service.New),
)
