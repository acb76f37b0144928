package quote

import (
	quotedomain "github.com/smallbiznis/pricedesk/internal/quote/domain"
	"github.com/smallbiznis/pricedesk/internal/quote/service"
	"github.com/smallbiznis/pricedesk/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("quote.service",
	fx.Provide(repository.ProvideStore[quotedomain.Quote]),
	fx.Provide(repository.ProvideStore[quotedomain.QuoteComment]),
	fx.Provide(service.New),
)
