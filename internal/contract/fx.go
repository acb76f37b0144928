package contract

import (
	contractdomain "github.com/smallbiznis/pricedesk/internal/contract/domain"
	"github.com/smallbiznis/pricedesk/internal/contract/repository"
	"github.com/smallbiznis/pricedesk/internal/contract/service"
	storerepository "github.com/smallbiznis/pricedesk/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("contract.service",
	fx.Provide(storerepository.ProvideStore[contractdomain.Contract]),
	fx.Provide(storerepository.ProvideStore[contractdomain.ContractSignature]),
	fx.Provide(storerepository.ProvideStore[contractdomain.ContractSignerDetails]),
	fx.Provide(storerepository.ProvideStore[contractdomain.ContractSignerAudit]),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
