package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"gorm.io/datatypes"
)

// Package is a sellable bundle built on a plan.
type Package struct {
	model.Base
	PlanID      snowflake.ID `json:"plan_id" gorm:"column:plan_id;not null;index"`
	Code        string       `json:"code" gorm:"type:text;not null"`
	Name        string       `json:"name" gorm:"type:text;not null"`
	Description *string      `json:"description,omitempty" gorm:"type:text"`
}

func (Package) TableName() string { return "packages" }

// PackageDetail is the per-tier configuration payload of a package. Every
// non-deleted tier of the package's plan has exactly one.
type PackageDetail struct {
	model.Base
	PackageID snowflake.ID      `json:"package_id" gorm:"column:package_id;not null;index"`
	TierID    snowflake.ID      `json:"tier_id" gorm:"column:tier_id;not null;index"`
	Details   datatypes.JSONMap `json:"details" gorm:"type:jsonb;not null"`
}

func (PackageDetail) TableName() string { return "package_details" }
