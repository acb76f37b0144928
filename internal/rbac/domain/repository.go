package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertRole(ctx context.Context, db *gorm.DB, role *Role) error
	FindRoleByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Role, error)
	FindRoleByName(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, name string) (*Role, error)
	ListRoles(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]Role, error)
	UpdateRole(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, values map[string]any) error

	UserExists(ctx context.Context, db *gorm.DB, tenantID, userID snowflake.ID) (bool, error)

	EnsureFeatures(ctx context.Context, db *gorm.DB, features []Feature) error
	ListFeatures(ctx context.Context, db *gorm.DB) ([]Feature, error)

	// ListRules returns the tenant's policy and grouping rows in insertion
	// order.
	ListRules(ctx context.Context, db *gorm.DB, domain string) ([]Rule, error)
	InsertRules(ctx context.Context, db *gorm.DB, rules []Rule) error
	DeletePolicies(ctx context.Context, db *gorm.DB, subject, domain string) error
	DeleteGrouping(ctx context.Context, db *gorm.DB, subject, role, domain string) error
	DeleteGroupingForRole(ctx context.Context, db *gorm.DB, role, domain string) error
}
