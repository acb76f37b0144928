package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	packagedomain "github.com/smallbiznis/pricedesk/internal/packages/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() packagedomain.Repository {
	return &repo{}
}

func (r *repo) InsertPackage(ctx context.Context, db *gorm.DB, pkg *packagedomain.Package) error {
	return db.WithContext(ctx).Create(pkg).Error
}

func (r *repo) FindPackage(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*packagedomain.Package, error) {
	var pkg packagedomain.Package
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND id = ? AND is_deleted = ?", tenantID, id, false).
		First(&pkg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pkg, nil
}

func (r *repo) ListPackages(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter packagedomain.ListFilter) ([]packagedomain.Package, error) {
	query := db.WithContext(ctx).
		Where("tenant_id = ? AND is_deleted = ?", tenantID, false)
	if filter.PlanID != 0 {
		query = query.Where("plan_id = ?", filter.PlanID)
	}
	if filter.BeforeID != 0 {
		query = query.Where("id < ?", filter.BeforeID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit + 1)
	}

	var items []packagedomain.Package
	err := query.Order("id desc").Find(&items).Error
	return items, err
}

func (r *repo) UpdatePackage(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, values map[string]any) error {
	return db.WithContext(ctx).
		Model(&packagedomain.Package{}).
		Where("tenant_id = ? AND id = ? AND is_deleted = ?", tenantID, id, false).
		Updates(values).Error
}

func (r *repo) CodeExists(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&packagedomain.Package{}).
		Where("tenant_id = ? AND code = ? AND is_deleted = ?", tenantID, code, false).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) InsertDetails(ctx context.Context, db *gorm.DB, details []packagedomain.PackageDetail) error {
	if len(details) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&details).Error
}

func (r *repo) FindDetail(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*packagedomain.PackageDetail, error) {
	var detail packagedomain.PackageDetail
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND id = ? AND is_deleted = ?", tenantID, id, false).
		First(&detail).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &detail, nil
}

func (r *repo) ListDetails(ctx context.Context, db *gorm.DB, tenantID, packageID snowflake.ID) ([]packagedomain.PackageDetail, error) {
	var details []packagedomain.PackageDetail
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND package_id = ? AND is_deleted = ?", tenantID, packageID, false).
		Order("id asc").
		Find(&details).Error
	return details, err
}

func (r *repo) UpdateDetail(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, values map[string]any) error {
	return db.WithContext(ctx).
		Model(&packagedomain.PackageDetail{}).
		Where("tenant_id = ? AND id = ? AND is_deleted = ?", tenantID, id, false).
		Updates(values).Error
}

func (r *repo) PackageIDsForPlan(ctx context.Context, db *gorm.DB, tenantID, planID snowflake.ID) ([]snowflake.ID, error) {
	var ids []int64
	err := db.WithContext(ctx).
		Model(&packagedomain.Package{}).
		Where("tenant_id = ? AND plan_id = ? AND is_deleted = ?", tenantID, planID, false).
		Order("id asc").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		out = append(out, snowflake.ID(id))
	}
	return out, nil
}

func (r *repo) SoftDeleteDetailsForTier(ctx context.Context, db *gorm.DB, tenantID, tierID snowflake.ID, values map[string]any) error {
	return db.WithContext(ctx).
		Model(&packagedomain.PackageDetail{}).
		Where("tenant_id = ? AND tier_id = ? AND is_deleted = ?", tenantID, tierID, false).
		Updates(values).Error
}

func (r *repo) SoftDeleteDetailsForPackage(ctx context.Context, db *gorm.DB, tenantID, packageID snowflake.ID, values map[string]any) error {
	return db.WithContext(ctx).
		Model(&packagedomain.PackageDetail{}).
		Where("tenant_id = ? AND package_id = ? AND is_deleted = ?", tenantID, packageID, false).
		Updates(values).Error
}

func (r *repo) SoftDeletePackagesForPlan(ctx context.Context, db *gorm.DB, tenantID, planID snowflake.ID, values map[string]any) error {
	return db.WithContext(ctx).
		Model(&packagedomain.Package{}).
		Where("tenant_id = ? AND plan_id = ? AND is_deleted = ?", tenantID, planID, false).
		Updates(values).Error
}
