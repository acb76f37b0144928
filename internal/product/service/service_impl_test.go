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
	"github.com/smallbiznis/pricedesk/internal/product/domain"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	"github.com/smallbiznis/pricedesk/pkg/db/dbtest"
	"github.com/smallbiznis/pricedesk/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) domain.Service {
	t.Helper()
	db := dbtest.Open(t, &domain.Product{}, &domain.FeatureGroup{}, &domain.Feature{}, &auditdomain.AuditLog{})

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: auditrepository.Provide(),
	})
	return New(Params{
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         clk,
		Products:      repository.ProvideStore[domain.Product](db),
		FeatureGroups: repository.ProvideStore[domain.FeatureGroup](db),
		Features:      repository.ProvideStore[domain.Feature](db),
		AuditSvc:      audit,
	})
}

func strPtr(v string) *string { return &v }

func TestCreateProductRejectsDuplicateCode(t *testing.T) {
	svc := newTestService(t)
	ctx := tenantcontext.With(context.Background(), 1, 9)

	created, err := svc.Create(ctx, domain.CreateRequest{Code: "crm", Name: "CRM Suite"})
	require.NoError(t, err)
	assert.True(t, created.Active)

	_, err = svc.Create(ctx, domain.CreateRequest{Code: "crm", Name: "Other"})
	assert.ErrorIs(t, err, domain.ErrCodeTaken)

	_, err = svc.Create(tenantcontext.With(context.Background(), 2, 9), domain.CreateRequest{Code: "crm", Name: "CRM"})
	assert.NoError(t, err)
}

func TestProductListFiltersActive(t *testing.T) {
	svc := newTestService(t)
	ctx := tenantcontext.With(context.Background(), 1, 9)

	inactive := false
	_, err := svc.Create(ctx, domain.CreateRequest{Code: "a", Name: "A"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, domain.CreateRequest{Code: "b", Name: "B", Active: &inactive})
	require.NoError(t, err)

	active := true
	list, err := svc.List(ctx, domain.ListRequest{Active: &active})
	require.NoError(t, err)
	require.Len(t, list.Products, 1)
	assert.Equal(t, "a", list.Products[0].Code)

	sorted, err := svc.List(ctx, domain.ListRequest{SortBy: "name", OrderBy: "asc"})
	require.NoError(t, err)
	require.Len(t, sorted.Products, 2)
	assert.Equal(t, "A", sorted.Products[0].Name)
}

func TestFeatureRepositoryAndGroups(t *testing.T) {
	svc := newTestService(t)
	ctx := tenantcontext.With(context.Background(), 1, 9)

	product, err := svc.Create(ctx, domain.CreateRequest{Code: "crm", Name: "CRM"})
	require.NoError(t, err)

	two, one := 2, 1
	g2, err := svc.CreateFeatureGroup(ctx, domain.FeatureGroupRequest{ProductID: product.ID, Name: "Limits", Position: &two})
	require.NoError(t, err)
	g1, err := svc.CreateFeatureGroup(ctx, domain.FeatureGroupRequest{ProductID: product.ID, Name: "Core", Position: &one})
	require.NoError(t, err)

	groups, err := svc.ListFeatureGroups(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, g1.ID, groups[0].ID)

	seats, err := svc.CreateFeature(ctx, domain.FeatureRequest{
		ProductID: product.ID, GroupID: &g2.ID, Key: "seats", Name: "Seats", Metric: strPtr("seats"),
	})
	require.NoError(t, err)
	require.NotNil(t, seats.GroupID)

	_, err = svc.CreateFeature(ctx, domain.FeatureRequest{ProductID: product.ID, Key: "seats", Name: "Dup"})
	assert.ErrorIs(t, err, domain.ErrKeyTaken)

	_, err = svc.CreateFeature(ctx, domain.FeatureRequest{ProductID: product.ID, Key: "Bad Key", Name: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidKey)

	_, err = svc.UpdateFeature(ctx, seats.ID, domain.FeatureRequest{Key: "users"})
	assert.ErrorIs(t, err, domain.ErrInvalidKey)

	require.NoError(t, svc.DeleteFeatureGroup(ctx, g2.ID))
	got, err := svc.GetFeature(ctx, seats.ID)
	require.NoError(t, err)
	assert.Nil(t, got.GroupID)

	require.NoError(t, svc.Delete(ctx, product.ID))
	features, err := svc.ListFeatures(ctx, domain.ListFeatureRequest{ProductID: product.ID})
	require.NoError(t, err)
	assert.Empty(t, features)
}

func TestFeatureGroupMustBelongToProduct(t *testing.T) {
	svc := newTestService(t)
	ctx := tenantcontext.With(context.Background(), 1, 9)

	a, err := svc.Create(ctx, domain.CreateRequest{Code: "a", Name: "A"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, domain.CreateRequest{Code: "b", Name: "B"})
	require.NoError(t, err)
	group, err := svc.CreateFeatureGroup(ctx, domain.FeatureGroupRequest{ProductID: a.ID, Name: "Core"})
	require.NoError(t, err)

	_, err = svc.CreateFeature(ctx, domain.FeatureRequest{ProductID: b.ID, GroupID: &group.ID, Key: "seats", Name: "Seats"})
	assert.ErrorIs(t, err, domain.ErrInvalidGroup)
}
