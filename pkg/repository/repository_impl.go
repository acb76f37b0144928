package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricedesk/pkg/db/option"
	"gorm.io/gorm"
)

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (r *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	return &store[T]{db: tx}
}

func (r *store[T]) Find(ctx context.Context, tenantID snowflake.ID, query *T, opts ...option.QueryOption) ([]*T, error) {
	var result []*T
	err := r.scoped(ctx, tenantID, query, opts...).Find(&result).Error
	return result, err
}

func (r *store[T]) FindOne(ctx context.Context, tenantID snowflake.ID, query *T, opts ...option.QueryOption) (*T, error) {
	var result T
	err := r.scoped(ctx, tenantID, query, opts...).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *store[T]) FindByID(ctx context.Context, tenantID, id snowflake.ID) (*T, error) {
	return r.FindOne(ctx, tenantID, nil, option.ApplyOperator(option.Condition{
		Field:    "id",
		Operator: option.EQ,
		Value:    int64(id),
	}))
}

func (r *store[T]) Create(ctx context.Context, resource *T) error {
	return r.db.WithContext(ctx).Create(resource).Error
}

func (r *store[T]) BatchCreate(ctx context.Context, resources []*T) error {
	if len(resources) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(resources).Error
}

func (r *store[T]) Update(ctx context.Context, tenantID, id snowflake.ID, values map[string]any) error {
	return r.db.WithContext(ctx).
		Model(new(T)).
		Where("tenant_id = ? AND id = ? AND is_deleted = ?", tenantID, id, false).
		Updates(values).Error
}

func (r *store[T]) SoftDelete(ctx context.Context, tenantID, id snowflake.ID, actor *snowflake.ID) error {
	return r.Update(ctx, tenantID, id, map[string]any{
		"is_deleted": true,
		"updated_at": time.Now().UTC(),
		"updated_by": actor,
	})
}

func (r *store[T]) Count(ctx context.Context, tenantID snowflake.ID, query *T, opts ...option.QueryOption) (int64, error) {
	var count int64
	err := r.scoped(ctx, tenantID, query, opts...).Model(new(T)).Count(&count).Error
	return count, err
}

func (r *store[T]) scoped(ctx context.Context, tenantID snowflake.ID, filter *T, opts ...option.QueryOption) *gorm.DB {
	db := r.db.WithContext(ctx).Model(new(T))
	if filter != nil {
		db = db.Where(filter)
	}
	db = option.WithTenant(int64(tenantID)).Apply(db)
	db = option.ActiveOnly().Apply(db)
	for _, opt := range opts {
		db = opt.Apply(db)
	}
	return db
}
