package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	userdomain "github.com/smallbiznis/pricedesk/internal/user/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() userdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, user *userdomain.User) error {
	return db.WithContext(ctx).Create(user).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*userdomain.User, error) {
	return first(db.WithContext(ctx).
		Where("tenant_id = ? AND id = ? AND is_deleted = ?", tenantID, id, false))
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, email string) (*userdomain.User, error) {
	return first(db.WithContext(ctx).
		Where("tenant_id = ? AND email = ? AND is_deleted = ?", tenantID, strings.ToLower(email), false))
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*userdomain.User, error) {
	return first(db.WithContext(ctx).
		Where("external_id = ? AND is_deleted = ?", externalID, false))
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ids []snowflake.ID) ([]userdomain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []userdomain.User
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ? AND is_deleted = ?", tenantID, ids, false).
		Order("id asc").
		Find(&users).Error
	return users, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter userdomain.ListFilter) ([]userdomain.User, error) {
	query := db.WithContext(ctx).
		Where("tenant_id = ? AND is_deleted = ?", tenantID, false)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Email != "" {
		query = query.Where("email = ?", strings.ToLower(filter.Email))
	}
	if filter.BeforeID != 0 {
		query = query.Where("id < ?", filter.BeforeID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit + 1)
	}

	var users []userdomain.User
	err := query.Order("id desc").Find(&users).Error
	return users, err
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, values map[string]any) error {
	return db.WithContext(ctx).
		Model(&userdomain.User{}).
		Where("tenant_id = ? AND id = ? AND is_deleted = ?", tenantID, id, false).
		Updates(values).Error
}

func first(query *gorm.DB) (*userdomain.User, error) {
	var user userdomain.User
	if err := query.First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}
