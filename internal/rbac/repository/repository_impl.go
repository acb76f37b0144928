package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	rbacdomain "github.com/smallbiznis/pricedesk/internal/rbac/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() rbacdomain.Repository {
	return &repo{}
}

func (r *repo) InsertRole(ctx context.Context, db *gorm.DB, role *rbacdomain.Role) error {
	return db.WithContext(ctx).Create(role).Error
}

func (r *repo) FindRoleByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*rbacdomain.Role, error) {
	var role rbacdomain.Role
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND id = ? AND is_deleted = ?", tenantID, id, false).
		First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

func (r *repo) FindRoleByName(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, name string) (*rbacdomain.Role, error) {
	var role rbacdomain.Role
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND name = ? AND is_deleted = ?", tenantID, name, false).
		First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

func (r *repo) ListRoles(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]rbacdomain.Role, error) {
	var roles []rbacdomain.Role
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND is_deleted = ?", tenantID, false).
		Order("name asc").
		Find(&roles).Error
	return roles, err
}

func (r *repo) UpdateRole(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, values map[string]any) error {
	return db.WithContext(ctx).
		Model(&rbacdomain.Role{}).
		Where("tenant_id = ? AND id = ? AND is_deleted = ?", tenantID, id, false).
		Updates(values).Error
}

func (r *repo) UserExists(ctx context.Context, db *gorm.DB, tenantID, userID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Table("users").
		Where("tenant_id = ? AND id = ? AND is_deleted = ?", tenantID, userID, false).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) EnsureFeatures(ctx context.Context, db *gorm.DB, features []rbacdomain.Feature) error {
	if len(features) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"description"}),
		}).
		Create(&features).Error
}

func (r *repo) ListFeatures(ctx context.Context, db *gorm.DB) ([]rbacdomain.Feature, error) {
	var features []rbacdomain.Feature
	err := db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).
		Find(&features).Error
	return features, err
}

func (r *repo) ListRules(ctx context.Context, db *gorm.DB, domain string) ([]rbacdomain.Rule, error) {
	var rules []rbacdomain.Rule
	err := db.WithContext(ctx).
		Table(rbacdomain.RuleTable).
		Where("(ptype = ? AND v1 = ?) OR (ptype = ? AND v2 = ?)",
			rbacdomain.PtypePolicy, domain,
			rbacdomain.PtypeGrouping, domain,
		).
		Order("id asc").
		Find(&rules).Error
	return rules, err
}

func (r *repo) InsertRules(ctx context.Context, db *gorm.DB, rules []rbacdomain.Rule) error {
	if len(rules) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Table(rbacdomain.RuleTable).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rules).Error
}

func (r *repo) DeletePolicies(ctx context.Context, db *gorm.DB, subject, domain string) error {
	return db.WithContext(ctx).
		Table(rbacdomain.RuleTable).
		Where("ptype = ? AND v0 = ? AND v1 = ?", rbacdomain.PtypePolicy, subject, domain).
		Delete(&rbacdomain.Rule{}).Error
}

func (r *repo) DeleteGrouping(ctx context.Context, db *gorm.DB, subject, role, domain string) error {
	return db.WithContext(ctx).
		Table(rbacdomain.RuleTable).
		Where("ptype = ? AND v0 = ? AND v1 = ? AND v2 = ?", rbacdomain.PtypeGrouping, subject, role, domain).
		Delete(&rbacdomain.Rule{}).Error
}

func (r *repo) DeleteGroupingForRole(ctx context.Context, db *gorm.DB, role, domain string) error {
	return db.WithContext(ctx).
		Table(rbacdomain.RuleTable).
		Where("ptype = ? AND v1 = ? AND v2 = ?", rbacdomain.PtypeGrouping, role, domain).
		Delete(&rbacdomain.Rule{}).Error
}
