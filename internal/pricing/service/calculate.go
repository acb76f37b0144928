package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	pricebookdomain "github.com/smallbiznis/pricedesk/internal/pricebook/domain"
	pricingdomain "github.com/smallbiznis/pricedesk/internal/pricing/domain"
	"github.com/smallbiznis/pricedesk/internal/pricing/evaluator"
	"github.com/smallbiznis/pricedesk/pkg/db/option"
	"go.uber.org/zap"
)

// Calculate prices every selection against the price book and groups the
// product lines by tier in the order tiers first appear. Discounts start at
// zero.
func (s *Service) Calculate(ctx context.Context, req pricingdomain.CalculateRequest) (*pricingdomain.Breakdown, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	bookID, err := parseID(req.PriceBookID)
	if err != nil {
		return nil, pricingdomain.ErrInvalidPriceBook
	}
	book, err := s.books.FindByID(ctx, tenantID, bookID)
	if err != nil {
		return nil, err
	}
	if book == nil || !book.Active {
		return nil, pricingdomain.ErrInvalidPriceBook
	}

	breakdown := &pricingdomain.Breakdown{Currency: book.Currency}
	tierIndex := map[string]int{}
	for _, sel := range req.Selections {
		line, err := s.priceSelection(ctx, tenantID, bookID, sel)
		if err != nil {
			return nil, err
		}
		idx, ok := tierIndex[sel.TierID]
		if !ok {
			idx = len(breakdown.Tiers)
			tierIndex[sel.TierID] = idx
			breakdown.Tiers = append(breakdown.Tiers, pricingdomain.TierBreakdown{TierID: sel.TierID})
		}
		breakdown.Tiers[idx].Products = append(breakdown.Tiers[idx].Products, *line)
	}
	breakdown.ApplyDiscounts(decimal.Zero, nil)

	s.log.Debug("calculated breakdown",
		zap.String("price_book_id", bookID.String()),
		zap.Int("selections", len(req.Selections)),
		zap.String("subtotal", breakdown.Subtotal.String()),
	)
	return breakdown, nil
}

func (s *Service) priceSelection(ctx context.Context, tenantID, bookID snowflake.ID, sel pricingdomain.Selection) (*pricingdomain.ProductBreakdown, error) {
	productID, err := parseID(sel.ProductID)
	if err != nil {
		return nil, pricingdomain.ErrInvalidProduct
	}
	tierID, err := parseID(sel.TierID)
	if err != nil {
		return nil, pricingdomain.ErrTierNotFound
	}
	structureID, err := parseID(sel.PricingStructureID)
	if err != nil {
		return nil, pricingdomain.ErrInvalidStructure
	}

	structure, err := s.structures.FindByID(ctx, tenantID, structureID)
	if err != nil {
		return nil, err
	}
	if structure == nil {
		return nil, pricingdomain.ErrInvalidStructure
	}
	pm, err := s.models.FindByID(ctx, tenantID, structure.PricingModelID)
	if err != nil {
		return nil, err
	}
	if pm == nil || (pm.ProductID != nil && *pm.ProductID != productID) {
		return nil, pricingdomain.ErrInvalidStructure
	}

	core, err := s.entries.FindOne(ctx, tenantID, nil,
		eq("price_book_id", int64(bookID)),
		eq("product_id", int64(productID)),
		eq("tier_id", int64(tierID)),
		eq("is_addon", false),
	)
	if err != nil {
		return nil, err
	}
	if core == nil {
		return nil, pricingdomain.ErrTierNotFound
	}

	quantities := sel.Quantities
	if quantities == nil {
		quantities = map[string]decimal.Decimal{}
	}

	addons := make([]pricingdomain.AddonLine, 0, len(sel.Addons))
	addonTotal, addonUnits := decimal.Zero, decimal.Zero
	for _, pick := range sel.Addons {
		line, err := s.priceAddon(ctx, tenantID, bookID, tierID, quantities, pick)
		if err != nil {
			return nil, err
		}
		addons = append(addons, *line)
		addonTotal = addonTotal.Add(line.Total)
		addonUnits = addonUnits.Add(line.Units)
	}

	values, err := evaluator.Evaluate(structure.Rows, evaluator.Input{
		Quantities: quantities,
		ListPrice:  core.ListPrice,
		AddonTotal: addonTotal,
		AddonUnits: addonUnits,
	})
	if err != nil {
		return nil, err
	}

	return &pricingdomain.ProductBreakdown{
		ProductID:          productID.String(),
		PricingStructureID: structureID.String(),
		Quantities:         quantities,
		ListPrice:          core.ListPrice,
		Core:               values,
		Addons:             addons,
		Subtotal:           evaluator.Result(values).Round(2),
	}, nil
}

// priceAddon resolves the addon's units against the quantity its entry is
// metered on and prices them at the entry's list price.
func (s *Service) priceAddon(ctx context.Context, tenantID, bookID, tierID snowflake.ID, quantities map[string]decimal.Decimal, pick pricingdomain.AddonSelection) (*pricingdomain.AddonLine, error) {
	if pick.Units.Value == nil {
		return nil, pricingdomain.ErrInvalidAddon
	}
	addonID, err := parseID(pick.AddonID)
	if err != nil {
		return nil, pricingdomain.ErrInvalidAddon
	}
	entry, err := s.entries.FindByID(ctx, tenantID, addonID)
	if err != nil {
		return nil, err
	}
	if !isAddonOf(entry, bookID, tierID) {
		return nil, pricingdomain.ErrInvalidAddon
	}

	reference := decimal.Zero
	if entry.Metric != nil {
		reference = quantities[*entry.Metric]
	}
	units := pick.Units.Value.Resolve(reference)
	return &pricingdomain.AddonLine{
		AddonID:   entry.ID.String(),
		ProductID: entry.ProductID.String(),
		Metric:    entry.Metric,
		Units:     units,
		UnitPrice: entry.ListPrice,
		Total:     units.Mul(entry.ListPrice).Round(2),
	}, nil
}

func isAddonOf(entry *pricebookdomain.PriceBookEntry, bookID, tierID snowflake.ID) bool {
	return entry != nil && entry.IsAddon && entry.PriceBookID == bookID && entry.TierID == tierID
}

func eq(field string, value any) option.QueryOption {
	return option.ApplyOperator(option.Condition{Field: field, Operator: option.EQ, Value: value})
}
