package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertPackage(ctx context.Context, db *gorm.DB, pkg *Package) error
	FindPackage(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Package, error)
	ListPackages(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter ListFilter) ([]Package, error)
	UpdatePackage(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, values map[string]any) error
	CodeExists(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string) (bool, error)

	InsertDetails(ctx context.Context, db *gorm.DB, details []PackageDetail) error
	FindDetail(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*PackageDetail, error)
	ListDetails(ctx context.Context, db *gorm.DB, tenantID, packageID snowflake.ID) ([]PackageDetail, error)
	UpdateDetail(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, values map[string]any) error
	PackageIDsForPlan(ctx context.Context, db *gorm.DB, tenantID, planID snowflake.ID) ([]snowflake.ID, error)
	SoftDeleteDetailsForTier(ctx context.Context, db *gorm.DB, tenantID, tierID snowflake.ID, values map[string]any) error
	SoftDeleteDetailsForPackage(ctx context.Context, db *gorm.DB, tenantID, packageID snowflake.ID, values map[string]any) error
	SoftDeletePackagesForPlan(ctx context.Context, db *gorm.DB, tenantID, planID snowflake.ID, values map[string]any) error
}

type ListFilter struct {
	PlanID   snowflake.ID
	BeforeID snowflake.ID
	Limit    int
}
