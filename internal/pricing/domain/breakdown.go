package domain

import (
	"github.com/shopspring/decimal"
)

// Selection is what the seller picked for one product line.
type Selection struct {
	ProductID          string                     `json:"product_id" binding:"required"`
	PricingStructureID string                     `json:"pricing_structure_id" binding:"required"`
	TierID             string                     `json:"tier_id" binding:"required"`
	Quantities         map[string]decimal.Decimal `json:"quantities"`
	Addons             []AddonSelection           `json:"addons" binding:"omitempty,dive"`
}

// AddonSelection references an addon entry of the price book.
type AddonSelection struct {
	AddonID string `json:"addon_id" binding:"required"`
	Units   Units  `json:"addon_units" binding:"addon_units"`
}

// RowValue is one computed row of a structure.
type RowValue struct {
	Key         string          `json:"key"`
	DisplayName string          `json:"display_name"`
	Value       decimal.Decimal `json:"value"`
	Tags        []string        `json:"tags,omitempty"`
}

// AddonLine is the priced addon row of a product breakdown.
type AddonLine struct {
	AddonID   string          `json:"addon_id"`
	ProductID string          `json:"product_id"`
	Metric    *string         `json:"metric,omitempty"`
	Units     decimal.Decimal `json:"units"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
}

type ProductBreakdown struct {
	ProductID          string                     `json:"product_id"`
	PricingStructureID string                     `json:"pricing_structure_id"`
	Quantities         map[string]decimal.Decimal `json:"quantities,omitempty"`
	ListPrice          decimal.Decimal            `json:"list_price"`
	Core               []RowValue                 `json:"core"`
	Addons             []AddonLine                `json:"addons"`
	Subtotal           decimal.Decimal            `json:"subtotal"`
	DiscountPercent    decimal.Decimal            `json:"discount_percent"`
	Total              decimal.Decimal            `json:"total"`
}

type TierBreakdown struct {
	TierID   string             `json:"tier_id"`
	Products []ProductBreakdown `json:"products"`
}

// Breakdown is the computed price of a quote, grouped per tier then per
// product.
type Breakdown struct {
	Currency string          `json:"currency"`
	Tiers    []TierBreakdown `json:"tiers"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Total    decimal.Decimal `json:"total"`
}

var hundred = decimal.NewFromInt(100)

// ApplyDiscounts sets each product's discount to its override, or to def
// when none is given, and recomputes the totals.
func (b *Breakdown) ApplyDiscounts(def decimal.Decimal, overrides map[string]decimal.Decimal) {
	b.Subtotal = decimal.Zero
	b.Total = decimal.Zero
	for ti := range b.Tiers {
		for pi := range b.Tiers[ti].Products {
			p := &b.Tiers[ti].Products[pi]
			discount := def
			if override, ok := overrides[p.ProductID]; ok {
				discount = override
			}
			p.DiscountPercent = discount
			p.Total = p.Subtotal.Mul(hundred.Sub(discount)).Div(hundred).Round(2)
			b.Subtotal = b.Subtotal.Add(p.Subtotal)
			b.Total = b.Total.Add(p.Total)
		}
	}
	b.Subtotal = b.Subtotal.Round(2)
	b.Total = b.Total.Round(2)
}

// Products returns every product line of the breakdown in order.
func (b *Breakdown) Products() []ProductBreakdown {
	var out []ProductBreakdown
	for _, tier := range b.Tiers {
		out = append(out, tier.Products...)
	}
	return out
}
