package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricedesk/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a tenant-scoped store for rows embedding model.Base.
// Reads never return soft-deleted rows.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, tenantID snowflake.ID, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, tenantID snowflake.ID, query *T, opts ...option.QueryOption) (*T, error)
	FindByID(ctx context.Context, tenantID, id snowflake.ID) (*T, error)
	Create(ctx context.Context, resource *T) error
	BatchCreate(ctx context.Context, resources []*T) error
	Update(ctx context.Context, tenantID, id snowflake.ID, values map[string]any) error
	SoftDelete(ctx context.Context, tenantID, id snowflake.ID, actor *snowflake.ID) error
	Count(ctx context.Context, tenantID snowflake.ID, query *T, opts ...option.QueryOption) (int64, error)
}
