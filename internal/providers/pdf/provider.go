package pdf

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)

// QuoteDocument is the printable view of a quote breakdown.
type QuoteDocument struct {
	TenantName  string
	QuoteNumber string
	QuoteName   string
	AccountName string
	Status      string
	IssuedAt    string
	Currency    string
	Sections    []QuoteSection
	Discount    string
	Total       string
	DealTerms   []Term
}

// QuoteSection groups the rows computed for one product within one tier.
type QuoteSection struct {
	Title string
	Rows  []Row
}

type Row struct {
	Label string
	Value string
	Addon bool
}

type Term struct {
	Name  string
	Value string
}

type Provider interface {
	GenerateQuote(ctx context.Context, doc QuoteDocument) ([]byte, error)
}
