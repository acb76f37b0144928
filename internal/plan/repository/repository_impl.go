package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/pricedesk/internal/plan/domain"
	"github.com/smallbiznis/pricedesk/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() plandomain.Repository {
	return &repo{}
}

func (r *repo) InsertPlan(ctx context.Context, conn *gorm.DB, plan *plandomain.Plan) error {
	return conn.WithContext(ctx).Create(plan).Error
}

func (r *repo) FindPlan(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID) (*plandomain.Plan, error) {
	var plan plandomain.Plan
	err := conn.WithContext(ctx).
		Where("tenant_id = ? AND id = ? AND is_deleted = ?", tenantID, id, false).
		First(&plan).Error
	return found(&plan, err)
}

func (r *repo) LockPlan(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID) (*plandomain.Plan, error) {
	var plan plandomain.Plan
	err := db.ForUpdate(tx.WithContext(ctx)).
		Where("tenant_id = ? AND id = ? AND is_deleted = ?", tenantID, id, false).
		First(&plan).Error
	return found(&plan, err)
}

func (r *repo) ListPlans(ctx context.Context, conn *gorm.DB, tenantID snowflake.ID, filter plandomain.ListPlanFilter) ([]plandomain.Plan, error) {
	query := conn.WithContext(ctx).
		Where("tenant_id = ? AND is_deleted = ?", tenantID, false)
	if filter.ProductID != 0 {
		query = query.Where("product_id = ?", filter.ProductID)
	}
	if filter.BeforeID != 0 {
		query = query.Where("id < ?", filter.BeforeID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit + 1)
	}

	var plans []plandomain.Plan
	err := query.Order("id desc").Find(&plans).Error
	return plans, err
}

func (r *repo) UpdatePlan(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID, values map[string]any) error {
	return conn.WithContext(ctx).
		Model(&plandomain.Plan{}).
		Where("tenant_id = ? AND id = ? AND is_deleted = ?", tenantID, id, false).
		Updates(values).Error
}

func (r *repo) CodeExists(ctx context.Context, conn *gorm.DB, tenantID snowflake.ID, code string) (bool, error) {
	var count int64
	err := conn.WithContext(ctx).
		Model(&plandomain.Plan{}).
		Where("tenant_id = ? AND code = ? AND is_deleted = ?", tenantID, code, false).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) InsertTier(ctx context.Context, conn *gorm.DB, tier *plandomain.Tier) error {
	return conn.WithContext(ctx).Create(tier).Error
}

func (r *repo) FindTier(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID) (*plandomain.Tier, error) {
	var tier plandomain.Tier
	err := conn.WithContext(ctx).
		Where("tenant_id = ? AND id = ? AND is_deleted = ?", tenantID, id, false).
		First(&tier).Error
	return found(&tier, err)
}

func (r *repo) ListTiers(ctx context.Context, conn *gorm.DB, tenantID, planID snowflake.ID) ([]plandomain.Tier, error) {
	var tiers []plandomain.Tier
	err := conn.WithContext(ctx).
		Where("tenant_id = ? AND plan_id = ? AND is_deleted = ?", tenantID, planID, false).
		Order("position asc, id asc").
		Find(&tiers).Error
	return tiers, err
}

func (r *repo) UpdateTier(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID, values map[string]any) error {
	return conn.WithContext(ctx).
		Model(&plandomain.Tier{}).
		Where("tenant_id = ? AND id = ? AND is_deleted = ?", tenantID, id, false).
		Updates(values).Error
}

func found[T any](row *T, err error) (*T, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return row, nil
}
