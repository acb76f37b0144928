package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/pricedesk/internal/audit/domain"
	auditrepository "github.com/smallbiznis/pricedesk/internal/audit/repository"
	auditservice "github.com/smallbiznis/pricedesk/internal/audit/service"
	"github.com/smallbiznis/pricedesk/internal/clock"
	packagedomain "github.com/smallbiznis/pricedesk/internal/packages/domain"
	packagerepository "github.com/smallbiznis/pricedesk/internal/packages/repository"
	packageservice "github.com/smallbiznis/pricedesk/internal/packages/service"
	plandomain "github.com/smallbiznis/pricedesk/internal/plan/domain"
	"github.com/smallbiznis/pricedesk/internal/plan/repository"
	productdomain "github.com/smallbiznis/pricedesk/internal/product/domain"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	"github.com/smallbiznis/pricedesk/pkg/db/dbtest"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	genericrepository "github.com/smallbiznis/pricedesk/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	plans    plandomain.Service
	packages packagedomain.Service
	product  *productdomain.Product
	ctx      context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t,
		&productdomain.Product{},
		&plandomain.Plan{}, &plandomain.Tier{},
		&packagedomain.Package{}, &packagedomain.PackageDetail{},
		&auditdomain.AuditLog{},
	)

	node, err := snowflake.NewNode(6)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: auditrepository.Provide(),
	})

	planRepo := repository.Provide()
	packageRepo := packagerepository.Provide()
	products := genericrepository.ProvideStore[productdomain.Product](db)

	ctx := tenantcontext.With(context.Background(), 1, 7)
	product := &productdomain.Product{Base: model.NewBase(ctx, node.Generate(), clk.Now()), Code: "crm", Name: "CRM", Active: true}
	require.NoError(t, products.Create(ctx, product))

	return &fixture{
		db: db,
		plans: New(Params{
			DB: db, Log: log, GenID: node, Clock: clk,
			Repo:     planRepo,
			Products: products,
			Syncer:   packageservice.NewSyncer(packageservice.SyncerParams{Log: log, GenID: node, Clock: clk, Repo: packageRepo}),
			AuditSvc: audit,
		}),
		packages: packageservice.New(packageservice.Params{
			DB: db, Log: log, GenID: node, Clock: clk,
			Repo: packageRepo, PlanRepo: planRepo, AuditSvc: audit,
		}),
		product: product,
		ctx:     ctx,
	}
}

func (f *fixture) activeDetails(t *testing.T, packageID string) map[string]map[string]any {
	t.Helper()
	pkg, err := f.packages.Get(f.ctx, packageID)
	require.NoError(t, err)
	out := map[string]map[string]any{}
	for _, d := range pkg.Details {
		out[d.TierID] = d.Details
	}
	return out
}

func TestTierCreateAddsEmptyPackageDetail(t *testing.T) {
	f := newFixture(t)

	plan, err := f.plans.CreatePlan(f.ctx, plandomain.PlanRequest{ProductID: f.product.ID.String(), Code: "std", Name: "Standard"})
	require.NoError(t, err)
	basic, err := f.plans.CreateTier(f.ctx, plandomain.TierRequest{PlanID: plan.ID, Name: "Basic"})
	require.NoError(t, err)

	pkg, err := f.packages.Create(f.ctx, packagedomain.CreateRequest{
		PlanID:  plan.ID,
		Code:    "starter",
		Name:    "Starter",
		Details: map[string]map[string]any{basic.ID: {"seats": float64(5)}},
	})
	require.NoError(t, err)
	require.Len(t, pkg.Details, 1)
	assert.Equal(t, float64(5), pkg.Details[0].Details["seats"])

	pro, err := f.plans.CreateTier(f.ctx, plandomain.TierRequest{PlanID: plan.ID, Name: "Pro"})
	require.NoError(t, err)
	assert.Equal(t, 1, pro.Position)

	details := f.activeDetails(t, pkg.ID)
	require.Len(t, details, 2)
	assert.Empty(t, details[pro.ID])
	assert.Equal(t, float64(5), details[basic.ID]["seats"])
}

func TestTierDeleteSoftDeletesPackageDetail(t *testing.T) {
	f := newFixture(t)

	plan, err := f.plans.CreatePlan(f.ctx, plandomain.PlanRequest{ProductID: f.product.ID.String(), Code: "std", Name: "Standard"})
	require.NoError(t, err)
	basic, err := f.plans.CreateTier(f.ctx, plandomain.TierRequest{PlanID: plan.ID, Name: "Basic"})
	require.NoError(t, err)
	pro, err := f.plans.CreateTier(f.ctx, plandomain.TierRequest{PlanID: plan.ID, Name: "Pro"})
	require.NoError(t, err)
	pkg, err := f.packages.Create(f.ctx, packagedomain.CreateRequest{PlanID: plan.ID, Code: "starter", Name: "Starter"})
	require.NoError(t, err)
	require.Len(t, pkg.Details, 2)

	require.NoError(t, f.plans.DeleteTier(f.ctx, pro.ID))

	details := f.activeDetails(t, pkg.ID)
	require.Len(t, details, 1)
	assert.Contains(t, details, basic.ID)

	var deleted int64
	require.NoError(t, f.db.Model(&packagedomain.PackageDetail{}).
		Where("tier_id = ? AND is_deleted = ?", pro.ID, true).
		Count(&deleted).Error)
	assert.Equal(t, int64(1), deleted)

	tiers, err := f.plans.ListTiers(f.ctx, plan.ID)
	require.NoError(t, err)
	require.Len(t, tiers, 1)
	assert.Equal(t, basic.ID, tiers[0].ID)
}

func TestTierCreateReachesPackagesWithoutDetails(t *testing.T) {
	t.Run("package created on a tierless plan", func(t *testing.T) {
		f := newFixture(t)

		plan, err := f.plans.CreatePlan(f.ctx, plandomain.PlanRequest{ProductID: f.product.ID.String(), Code: "std", Name: "Standard"})
		require.NoError(t, err)
		pkg, err := f.packages.Create(f.ctx, packagedomain.CreateRequest{PlanID: plan.ID, Code: "starter", Name: "Starter"})
		require.NoError(t, err)
		require.Empty(t, pkg.Details)

		basic, err := f.plans.CreateTier(f.ctx, plandomain.TierRequest{PlanID: plan.ID, Name: "Basic"})
		require.NoError(t, err)

		details := f.activeDetails(t, pkg.ID)
		require.Len(t, details, 1)
		assert.Contains(t, details, basic.ID)
		assert.Empty(t, details[basic.ID])
	})

	t.Run("tier recreated after the last one was deleted", func(t *testing.T) {
		f := newFixture(t)

		plan, err := f.plans.CreatePlan(f.ctx, plandomain.PlanRequest{ProductID: f.product.ID.String(), Code: "std", Name: "Standard"})
		require.NoError(t, err)
		basic, err := f.plans.CreateTier(f.ctx, plandomain.TierRequest{PlanID: plan.ID, Name: "Basic"})
		require.NoError(t, err)
		pkg, err := f.packages.Create(f.ctx, packagedomain.CreateRequest{PlanID: plan.ID, Code: "starter", Name: "Starter"})
		require.NoError(t, err)

		require.NoError(t, f.plans.DeleteTier(f.ctx, basic.ID))
		require.Empty(t, f.activeDetails(t, pkg.ID))

		pro, err := f.plans.CreateTier(f.ctx, plandomain.TierRequest{PlanID: plan.ID, Name: "Pro"})
		require.NoError(t, err)

		details := f.activeDetails(t, pkg.ID)
		require.Len(t, details, 1)
		assert.Contains(t, details, pro.ID)
	})
}

func TestDetailsMatchTiersAfterMixedWrites(t *testing.T) {
	f := newFixture(t)

	plan, err := f.plans.CreatePlan(f.ctx, plandomain.PlanRequest{ProductID: f.product.ID.String(), Code: "std", Name: "Standard"})
	require.NoError(t, err)
	_, err = f.plans.CreateTier(f.ctx, plandomain.TierRequest{PlanID: plan.ID, Name: "Basic"})
	require.NoError(t, err)

	a, err := f.packages.Create(f.ctx, packagedomain.CreateRequest{PlanID: plan.ID, Code: "a", Name: "A"})
	require.NoError(t, err)
	b, err := f.packages.Create(f.ctx, packagedomain.CreateRequest{PlanID: plan.ID, Code: "b", Name: "B"})
	require.NoError(t, err)

	pro, err := f.plans.CreateTier(f.ctx, plandomain.TierRequest{PlanID: plan.ID, Name: "Pro"})
	require.NoError(t, err)
	_, err = f.plans.CreateTier(f.ctx, plandomain.TierRequest{PlanID: plan.ID, Name: "Enterprise"})
	require.NoError(t, err)
	require.NoError(t, f.plans.DeleteTier(f.ctx, pro.ID))

	tiers, err := f.plans.ListTiers(f.ctx, plan.ID)
	require.NoError(t, err)
	for _, pkgID := range []string{a.ID, b.ID} {
		details := f.activeDetails(t, pkgID)
		require.Len(t, details, len(tiers))
		for _, tier := range tiers {
			assert.Contains(t, details, tier.ID)
		}
	}
}

func TestDeletePlanCascades(t *testing.T) {
	f := newFixture(t)

	plan, err := f.plans.CreatePlan(f.ctx, plandomain.PlanRequest{ProductID: f.product.ID.String(), Code: "std", Name: "Standard"})
	require.NoError(t, err)
	_, err = f.plans.CreateTier(f.ctx, plandomain.TierRequest{PlanID: plan.ID, Name: "Basic"})
	require.NoError(t, err)
	pkg, err := f.packages.Create(f.ctx, packagedomain.CreateRequest{PlanID: plan.ID, Code: "a", Name: "A"})
	require.NoError(t, err)

	require.NoError(t, f.plans.DeletePlan(f.ctx, plan.ID))

	_, err = f.plans.GetPlan(f.ctx, plan.ID)
	assert.ErrorIs(t, err, plandomain.ErrNotFound)
	_, err = f.packages.Get(f.ctx, pkg.ID)
	assert.ErrorIs(t, err, packagedomain.ErrNotFound)
}

func TestPlanValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.plans.CreatePlan(f.ctx, plandomain.PlanRequest{ProductID: "123", Code: "std", Name: "Standard"})
	assert.ErrorIs(t, err, plandomain.ErrInvalidProduct)

	_, err = f.plans.CreatePlan(f.ctx, plandomain.PlanRequest{ProductID: f.product.ID.String(), Name: "Standard"})
	assert.ErrorIs(t, err, plandomain.ErrInvalidCode)

	_, err = f.plans.CreatePlan(f.ctx, plandomain.PlanRequest{ProductID: f.product.ID.String(), Code: "std", Name: "Standard"})
	require.NoError(t, err)
	_, err = f.plans.CreatePlan(f.ctx, plandomain.PlanRequest{ProductID: f.product.ID.String(), Code: "std", Name: "Again"})
	assert.ErrorIs(t, err, plandomain.ErrCodeTaken)

	_, err = f.plans.CreateTier(f.ctx, plandomain.TierRequest{PlanID: "999", Name: "Basic"})
	assert.ErrorIs(t, err, plandomain.ErrInvalidPlan)
}

func TestPackageRejectsUnknownTierDetails(t *testing.T) {
	f := newFixture(t)

	plan, err := f.plans.CreatePlan(f.ctx, plandomain.PlanRequest{ProductID: f.product.ID.String(), Code: "std", Name: "Standard"})
	require.NoError(t, err)

	_, err = f.packages.Create(f.ctx, packagedomain.CreateRequest{
		PlanID:  plan.ID,
		Code:    "a",
		Name:    "A",
		Details: map[string]map[string]any{"42": {}},
	})
	assert.ErrorIs(t, err, packagedomain.ErrInvalidTier)
}
