package service

import (
	"context"
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
	"github.com/smallbiznis/pricedesk/internal/pricebook/rules"
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
	svc     pricebookdomain.Service
	ctx     context.Context
	product *productdomain.Product
	tier    *plandomain.Tier
	other   *plandomain.Tier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t,
		&productdomain.Product{},
		&plandomain.Plan{}, &plandomain.Tier{},
		&pricebookdomain.PriceBook{}, &pricebookdomain.PriceBookEntry{},
		&pricebookdomain.PriceBookRule{}, &pricebookdomain.DiscountPolicy{},
		&auditdomain.AuditLog{},
	)
	node, err := snowflake.NewNode(8)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	engine, err := rules.NewEngine()
	require.NoError(t, err)

	ctx := tenantcontext.With(context.Background(), 1, 7)
	products := repository.ProvideStore[productdomain.Product](db)
	planRepo := planrepository.Provide()

	seedProduct := func(code string) (*productdomain.Product, *plandomain.Tier) {
		product := &productdomain.Product{Base: model.NewBase(ctx, node.Generate(), clk.Now()), Code: code, Name: code, Active: true}
		require.NoError(t, products.Create(ctx, product))
		plan := &plandomain.Plan{Base: model.NewBase(ctx, node.Generate(), clk.Now()), ProductID: product.ID, Code: code + "-std", Name: "Standard", Active: true}
		require.NoError(t, planRepo.InsertPlan(ctx, db, plan))
		tier := &plandomain.Tier{Base: model.NewBase(ctx, node.Generate(), clk.Now()), PlanID: plan.ID, Name: "Pro"}
		require.NoError(t, planRepo.InsertTier(ctx, db, tier))
		return product, tier
	}
	product, tier := seedProduct("crm")
	_, other := seedProduct("cpq")

	svc := New(Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Books:    repository.ProvideStore[pricebookdomain.PriceBook](db),
		Entries:  repository.ProvideStore[pricebookdomain.PriceBookEntry](db),
		Rules:    repository.ProvideStore[pricebookdomain.PriceBookRule](db),
		Policies: repository.ProvideStore[pricebookdomain.DiscountPolicy](db),
		Products: products,
		PlanRepo: planRepo,
		Engine:   engine,
		AuditSvc: auditservice.NewService(auditservice.Params{
			DB: db, Log: log, GenID: node, Clock: clk, Repo: auditrepository.Provide(),
		}),
	})
	return &fixture{svc: svc, ctx: ctx, product: product, tier: tier, other: other}
}

func dec(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func strPtr(v string) *string { return &v }

func TestPriceBookEntries(t *testing.T) {
	f := newFixture(t)

	book, err := f.svc.Create(f.ctx, pricebookdomain.PriceBookRequest{Name: " 2026 List ", Currency: "eur"})
	require.NoError(t, err)
	assert.Equal(t, "2026 List", book.Name)
	assert.Equal(t, "EUR", book.Currency)
	assert.True(t, book.Active)

	core, err := f.svc.CreateEntry(f.ctx, book.ID, pricebookdomain.EntryRequest{
		ProductID: f.product.ID.String(), TierID: f.tier.ID.String(), ListPrice: dec("49.99"),
	})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("49.99").Equal(core.ListPrice))

	_, err = f.svc.CreateEntry(f.ctx, book.ID, pricebookdomain.EntryRequest{
		ProductID: f.product.ID.String(), TierID: f.tier.ID.String(), ListPrice: dec("10"),
	})
	assert.ErrorIs(t, err, pricebookdomain.ErrEntryExists)

	addon, err := f.svc.CreateEntry(f.ctx, book.ID, pricebookdomain.EntryRequest{
		ProductID: f.product.ID.String(), TierID: f.tier.ID.String(), ListPrice: dec("5"), IsAddon: true, Metric: strPtr("users"),
	})
	require.NoError(t, err)
	require.NotNil(t, addon.Metric)
	assert.Equal(t, "users", *addon.Metric)

	_, err = f.svc.CreateEntry(f.ctx, book.ID, pricebookdomain.EntryRequest{
		ProductID: f.product.ID.String(), TierID: f.other.ID.String(), ListPrice: dec("10"),
	})
	assert.ErrorIs(t, err, pricebookdomain.ErrInvalidTier)

	_, err = f.svc.CreateEntry(f.ctx, book.ID, pricebookdomain.EntryRequest{
		ProductID: f.product.ID.String(), TierID: f.tier.ID.String(), ListPrice: dec("-1"),
	})
	assert.ErrorIs(t, err, pricebookdomain.ErrInvalidPrice)

	updated, err := f.svc.UpdateEntry(f.ctx, core.ID, pricebookdomain.EntryRequest{ListPrice: dec("59")})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(59).Equal(updated.ListPrice))

	entries, err := f.svc.ListEntries(f.ctx, book.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, core.ID, entries[0].ID)

	require.NoError(t, f.svc.Delete(f.ctx, book.ID))
	_, err = f.svc.Get(f.ctx, book.ID)
	assert.ErrorIs(t, err, pricebookdomain.ErrNotFound)
}

func TestRuleValidation(t *testing.T) {
	f := newFixture(t)
	book, err := f.svc.Create(f.ctx, pricebookdomain.PriceBookRequest{Name: "List"})
	require.NoError(t, err)

	_, err = f.svc.CreateRule(f.ctx, book.ID, pricebookdomain.RuleRequest{
		Name: "bad", Condition: strPtr("quantity +"), Action: pricebookdomain.ActionMinQuantity, Value: dec("1"),
	})
	assert.ErrorIs(t, err, pricebookdomain.ErrInvalidCondition)

	_, err = f.svc.CreateRule(f.ctx, book.ID, pricebookdomain.RuleRequest{
		Name: "not bool", Condition: strPtr("quantity + 1.0"), Action: pricebookdomain.ActionMinQuantity, Value: dec("1"),
	})
	assert.ErrorIs(t, err, pricebookdomain.ErrInvalidCondition)

	_, err = f.svc.CreateRule(f.ctx, book.ID, pricebookdomain.RuleRequest{Name: "no value", Action: pricebookdomain.ActionMaxQuantity})
	assert.ErrorIs(t, err, pricebookdomain.ErrInvalidValue)

	_, err = f.svc.CreateRule(f.ctx, book.ID, pricebookdomain.RuleRequest{Name: "x", Action: "waive_fee", Value: dec("1")})
	assert.ErrorIs(t, err, pricebookdomain.ErrInvalidAction)

	rule, err := f.svc.CreateRule(f.ctx, book.ID, pricebookdomain.RuleRequest{Name: "always review", Action: pricebookdomain.ActionRequireApproval})
	require.NoError(t, err)
	assert.Empty(t, rule.Condition)

	_, err = f.svc.UpdateRule(f.ctx, rule.ID, pricebookdomain.RuleRequest{Condition: strPtr("nope(")})
	assert.ErrorIs(t, err, pricebookdomain.ErrInvalidCondition)

	require.NoError(t, f.svc.DeleteRule(f.ctx, rule.ID))
	list, err := f.svc.ListRules(f.ctx, book.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDiscountPolicyUpsert(t *testing.T) {
	f := newFixture(t)
	book, err := f.svc.Create(f.ctx, pricebookdomain.PriceBookRequest{Name: "List"})
	require.NoError(t, err)

	_, err = f.svc.GetDiscountPolicy(f.ctx, book.ID)
	assert.ErrorIs(t, err, pricebookdomain.ErrNotFound)

	_, err = f.svc.SetDiscountPolicy(f.ctx, book.ID, pricebookdomain.DiscountPolicyRequest{
		MaxDiscountPercent: decimal.NewFromInt(10), ApprovalThresholdPercent: decimal.NewFromInt(20),
	})
	assert.ErrorIs(t, err, pricebookdomain.ErrInvalidPolicy)

	first, err := f.svc.SetDiscountPolicy(f.ctx, book.ID, pricebookdomain.DiscountPolicyRequest{
		MaxDiscountPercent:       decimal.NewFromInt(30),
		ApprovalThresholdPercent: decimal.NewFromInt(10),
		ApproverRoles:            []string{"sales_manager", " sales_manager ", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"sales_manager"}, first.ApproverRoles)

	second, err := f.svc.SetDiscountPolicy(f.ctx, book.ID, pricebookdomain.DiscountPolicyRequest{
		MaxDiscountPercent:       decimal.NewFromInt(40),
		ApprovalThresholdPercent: decimal.NewFromInt(15),
		ApproverRoles:            []string{"vp_sales"},
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	got, err := f.svc.GetDiscountPolicy(f.ctx, book.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(40).Equal(got.MaxDiscountPercent))
	assert.Equal(t, []string{"vp_sales"}, got.ApproverRoles)
}

func TestCheckAppliesRulesAndPolicy(t *testing.T) {
	f := newFixture(t)
	book, err := f.svc.Create(f.ctx, pricebookdomain.PriceBookRequest{Name: "List"})
	require.NoError(t, err)

	productID := f.product.ID.String()
	_, err = f.svc.CreateRule(f.ctx, book.ID, pricebookdomain.RuleRequest{
		Name: "minimum seats", ProductID: &productID, Condition: strPtr(`"users" in quantities`),
		Action: pricebookdomain.ActionMinQuantity, Value: dec("10"),
	})
	require.NoError(t, err)
	_, err = f.svc.CreateRule(f.ctx, book.ID, pricebookdomain.RuleRequest{
		Name: "large deals", Condition: strPtr("quote_total > 10000.0"),
		Action: pricebookdomain.ActionRequireApproval,
	})
	require.NoError(t, err)
	_, err = f.svc.SetDiscountPolicy(f.ctx, book.ID, pricebookdomain.DiscountPolicyRequest{
		MaxDiscountPercent:       decimal.NewFromInt(30),
		ApprovalThresholdPercent: decimal.NewFromInt(10),
		ApproverRoles:            []string{"sales_manager"},
	})
	require.NoError(t, err)

	line := pricebookdomain.CheckLine{
		ProductID:       productID,
		TierID:          f.tier.ID.String(),
		Quantities:      map[string]decimal.Decimal{"users": decimal.NewFromInt(12)},
		ListPrice:       decimal.NewFromInt(50),
		Subtotal:        decimal.NewFromInt(600),
		DiscountPercent: decimal.NewFromInt(5),
	}

	clean, err := f.svc.Check(f.ctx, pricebookdomain.CheckRequest{PriceBookID: book.ID, QuoteTotal: decimal.NewFromInt(600), Lines: []pricebookdomain.CheckLine{line}})
	require.NoError(t, err)
	assert.Empty(t, clean.Violations)
	assert.False(t, clean.RequiresApproval)
	assert.Empty(t, clean.ApproverRoles)

	line.Quantities = map[string]decimal.Decimal{"users": decimal.NewFromInt(4)}
	line.DiscountPercent = decimal.NewFromInt(15)
	verdict, err := f.svc.Check(f.ctx, pricebookdomain.CheckRequest{PriceBookID: book.ID, QuoteTotal: decimal.NewFromInt(200), Lines: []pricebookdomain.CheckLine{line}})
	require.NoError(t, err)
	require.Len(t, verdict.Violations, 1)
	assert.Equal(t, "minimum seats", verdict.Violations[0].Rule)
	assert.True(t, decimal.NewFromInt(4).Equal(verdict.Violations[0].Actual))
	assert.True(t, verdict.RequiresApproval)
	assert.Equal(t, []string{"sales_manager"}, verdict.ApproverRoles)

	line.Quantities = map[string]decimal.Decimal{"users": decimal.NewFromInt(20)}
	line.DiscountPercent = decimal.NewFromInt(35)
	over, err := f.svc.Check(f.ctx, pricebookdomain.CheckRequest{PriceBookID: book.ID, QuoteTotal: decimal.NewFromInt(20000), Lines: []pricebookdomain.CheckLine{line}})
	require.NoError(t, err)
	require.Len(t, over.Violations, 1)
	assert.Equal(t, "discount_policy", over.Violations[0].Rule)
	assert.True(t, over.RequiresApproval)
}
