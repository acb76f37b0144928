package pricebook

import (
	pricebookdomain "github.com/smallbiznis/pricedesk/internal/pricebook/domain"
	"github.com/smallbiznis/pricedesk/internal/pricebook/rules"
	"github.com/smallbiznis/pricedesk/internal/pricebook/service"
	"github.com/smallbiznis/pricedesk/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("pricebook.service",
	fx.Provide(repository.ProvideStore[pricebookdomain.PriceBook]),
	fx.Provide(repository.ProvideStore[pricebookdomain.PriceBookEntry]),
	fx.Provide(repository.ProvideStore[pricebookdomain.PriceBookRule]),
	fx.Provide(repository.ProvideStore[pricebookdomain.DiscountPolicy]),
	fx.Provide(rules.NewEngine),
	fx.Provide(service.New),
)
