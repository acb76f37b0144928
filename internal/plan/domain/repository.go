package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertPlan(ctx context.Context, db *gorm.DB, plan *Plan) error
	FindPlan(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Plan, error)
	// LockPlan reads the plan row with a row lock held until tx ends.
	LockPlan(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID) (*Plan, error)
	ListPlans(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter ListPlanFilter) ([]Plan, error)
	UpdatePlan(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, values map[string]any) error
	CodeExists(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string) (bool, error)

	InsertTier(ctx context.Context, db *gorm.DB, tier *Tier) error
	FindTier(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Tier, error)
	ListTiers(ctx context.Context, db *gorm.DB, tenantID, planID snowflake.ID) ([]Tier, error)
	UpdateTier(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, values map[string]any) error
}

type ListPlanFilter struct {
	ProductID snowflake.ID
	BeforeID  snowflake.ID
	Limit     int
}
