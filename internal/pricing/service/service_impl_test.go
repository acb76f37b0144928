package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/pricedesk/internal/audit/domain"
	auditrepository "github.com/smallbiznis/pricedesk/internal/audit/repository"
	auditservice "github.com/smallbiznis/pricedesk/internal/audit/service"
	"github.com/smallbiznis/pricedesk/internal/clock"
	plandomain "github.com/smallbiznis/pricedesk/internal/plan/domain"
	planrepository "github.com/smallbiznis/pricedesk/internal/plan/repository"
	pricebookdomain "github.com/smallbiznis/pricedesk/internal/pricebook/domain"
	pricingdomain "github.com/smallbiznis/pricedesk/internal/pricing/domain"
	productdomain "github.com/smallbiznis/pricedesk/internal/product/domain"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	"github.com/smallbiznis/pricedesk/pkg/db/dbtest"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"github.com/smallbiznis/pricedesk/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	svc     pricingdomain.Service
	ctx     context.Context
	product *productdomain.Product
	tier    *plandomain.Tier
	book    *pricebookdomain.PriceBook
	core    *pricebookdomain.PriceBookEntry
	addon   *pricebookdomain.PriceBookEntry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t,
		&productdomain.Product{},
		&plandomain.Plan{}, &plandomain.Tier{},
		&pricebookdomain.PriceBook{}, &pricebookdomain.PriceBookEntry{},
		&pricingdomain.PricingModel{}, &pricingdomain.PricingStructure{},
		&auditdomain.AuditLog{},
	)
	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	ctx := tenantcontext.With(context.Background(), 1, 7)
	now := clk.Now()

	products := repository.ProvideStore[productdomain.Product](db)
	product := &productdomain.Product{Base: model.NewBase(ctx, node.Generate(), now), Code: "crm", Name: "CRM", Active: true}
	require.NoError(t, products.Create(ctx, product))

	planRepo := planrepository.Provide()
	plan := &plandomain.Plan{Base: model.NewBase(ctx, node.Generate(), now), ProductID: product.ID, Code: "std", Name: "Standard", Active: true}
	require.NoError(t, planRepo.InsertPlan(ctx, db, plan))
	tier := &plandomain.Tier{Base: model.NewBase(ctx, node.Generate(), now), PlanID: plan.ID, Name: "Pro"}
	require.NoError(t, planRepo.InsertTier(ctx, db, tier))

	books := repository.ProvideStore[pricebookdomain.PriceBook](db)
	book := &pricebookdomain.PriceBook{Base: model.NewBase(ctx, node.Generate(), now), Name: "List", Currency: "USD", Active: true}
	require.NoError(t, books.Create(ctx, book))

	metric := "users"
	entries := repository.ProvideStore[pricebookdomain.PriceBookEntry](db)
	core := &pricebookdomain.PriceBookEntry{
		Base: model.NewBase(ctx, node.Generate(), now), PriceBookID: book.ID, ProductID: product.ID, TierID: tier.ID,
		ListPrice: decimal.NewFromInt(50),
	}
	addon := &pricebookdomain.PriceBookEntry{
		Base: model.NewBase(ctx, node.Generate(), now), PriceBookID: book.ID, ProductID: product.ID, TierID: tier.ID,
		ListPrice: decimal.NewFromInt(3), IsAddon: true, Metric: &metric,
	}
	require.NoError(t, entries.BatchCreate(ctx, []*pricebookdomain.PriceBookEntry{core, addon}))

	svc := New(Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Models:     repository.ProvideStore[pricingdomain.PricingModel](db),
		Structures: repository.ProvideStore[pricingdomain.PricingStructure](db),
		Products:   products,
		Books:      books,
		Entries:    entries,
		AuditSvc: auditservice.NewService(auditservice.Params{
			DB: db, Log: log, GenID: node, Clock: clk, Repo: auditrepository.Provide(),
		}),
	})
	return &fixture{svc: svc, ctx: ctx, product: product, tier: tier, book: book, core: core, addon: addon}
}

func formula(s string) *string { return &s }

func (f *fixture) seatStructure(t *testing.T) *pricingdomain.StructureResponse {
	t.Helper()
	productID := f.product.ID.String()
	pm, err := f.svc.CreateModel(f.ctx, pricingdomain.ModelRequest{ProductID: &productID, Name: "Per seat"})
	require.NoError(t, err)
	metric := "users"
	structure, err := f.svc.CreateStructure(f.ctx, pricingdomain.StructureRequest{
		PricingModelID: pm.ID,
		Name:           "Seats",
		Rows: []pricingdomain.Row{
			{Key: "seats", Metric: &metric, IsInputColumn: true},
			{Key: "list_price"},
			{Key: "addon_total"},
			{Key: "total", Formula: formula("seats * list_price + addon_total"), IsOutputColumn: true},
		},
	})
	require.NoError(t, err)
	return structure
}

func units(t *testing.T, raw string) pricingdomain.Units {
	t.Helper()
	var u pricingdomain.Units
	require.NoError(t, json.Unmarshal([]byte(raw), &u))
	return u
}

func TestStructureValidationAtWrite(t *testing.T) {
	f := newFixture(t)
	pm, err := f.svc.CreateModel(f.ctx, pricingdomain.ModelRequest{Name: "Usage"})
	require.NoError(t, err)

	_, err = f.svc.CreateStructure(f.ctx, pricingdomain.StructureRequest{
		PricingModelID: pm.ID,
		Name:           "Forward",
		Rows: []pricingdomain.Row{
			{Key: "total", Formula: formula("seats * 2")},
			{Key: "seats"},
		},
	})
	assert.ErrorIs(t, err, pricingdomain.ErrFormulaReference)

	_, err = f.svc.CreateStructure(f.ctx, pricingdomain.StructureRequest{PricingModelID: pm.ID, Name: "Empty"})
	assert.ErrorIs(t, err, pricingdomain.ErrEmptyStructure)

	structure, err := f.svc.CreateStructure(f.ctx, pricingdomain.StructureRequest{
		PricingModelID: pm.ID,
		Name:           "Ok",
		Rows:           []pricingdomain.Row{{Key: " seats "}},
	})
	require.NoError(t, err)
	assert.Equal(t, "seats", structure.Rows[0].Key)
	assert.Equal(t, "seats", structure.Rows[0].DisplayName)

	_, err = f.svc.UpdateStructure(f.ctx, structure.ID, pricingdomain.StructureRequest{
		Rows: []pricingdomain.Row{{Key: "a"}, {Key: "a"}},
	})
	assert.ErrorIs(t, err, pricingdomain.ErrDuplicateRowKey)

	err = f.svc.DeleteModel(f.ctx, pm.ID)
	assert.ErrorIs(t, err, pricingdomain.ErrModelInUse)

	require.NoError(t, f.svc.DeleteStructure(f.ctx, structure.ID))
	require.NoError(t, f.svc.DeleteModel(f.ctx, pm.ID))
	_, err = f.svc.GetModel(f.ctx, pm.ID)
	assert.ErrorIs(t, err, pricingdomain.ErrNotFound)
}

func TestCalculateWithAddons(t *testing.T) {
	f := newFixture(t)
	structure := f.seatStructure(t)

	breakdown, err := f.svc.Calculate(f.ctx, pricingdomain.CalculateRequest{
		PriceBookID: f.book.ID.String(),
		Selections: []pricingdomain.Selection{{
			ProductID:          f.product.ID.String(),
			PricingStructureID: structure.ID,
			TierID:             f.tier.ID.String(),
			Quantities:         map[string]decimal.Decimal{"users": decimal.NewFromInt(12)},
			Addons: []pricingdomain.AddonSelection{
				{AddonID: f.addon.ID.String(), Units: units(t, `2`)},
				{AddonID: f.addon.ID.String(), Units: units(t, `{"0-10": 1, "11-50": 5, "51+": 10}`)},
			},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "USD", breakdown.Currency)
	require.Len(t, breakdown.Tiers, 1)
	require.Len(t, breakdown.Tiers[0].Products, 1)
	line := breakdown.Tiers[0].Products[0]
	require.Len(t, line.Addons, 2)
	assert.True(t, decimal.NewFromInt(2).Equal(line.Addons[0].Units))
	assert.True(t, decimal.NewFromInt(5).Equal(line.Addons[1].Units))
	assert.True(t, decimal.NewFromInt(15).Equal(line.Addons[1].Total))

	// 12 seats * 50 + (2 + 5) units * 3
	assert.True(t, decimal.NewFromInt(621).Equal(line.Subtotal), line.Subtotal.String())
	assert.True(t, decimal.NewFromInt(621).Equal(breakdown.Total))
	assert.True(t, line.DiscountPercent.IsZero())
}

func TestCalculateFailures(t *testing.T) {
	f := newFixture(t)
	structure := f.seatStructure(t)
	base := pricingdomain.Selection{
		ProductID:          f.product.ID.String(),
		PricingStructureID: structure.ID,
		TierID:             f.tier.ID.String(),
	}

	unknownTier := base
	unknownTier.TierID = "123456789"
	_, err := f.svc.Calculate(f.ctx, pricingdomain.CalculateRequest{PriceBookID: f.book.ID.String(), Selections: []pricingdomain.Selection{unknownTier}})
	assert.ErrorIs(t, err, pricingdomain.ErrTierNotFound)

	coreAsAddon := base
	coreAsAddon.Addons = []pricingdomain.AddonSelection{{AddonID: f.core.ID.String(), Units: units(t, `1`)}}
	_, err = f.svc.Calculate(f.ctx, pricingdomain.CalculateRequest{PriceBookID: f.book.ID.String(), Selections: []pricingdomain.Selection{coreAsAddon}})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidAddon)

	_, err = f.svc.Calculate(f.ctx, pricingdomain.CalculateRequest{PriceBookID: "987654321", Selections: []pricingdomain.Selection{base}})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidPriceBook)
}
