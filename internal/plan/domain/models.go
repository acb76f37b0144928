package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
)

// Plan groups the tiers a product is sold in.
type Plan struct {
	model.Base
	ProductID   snowflake.ID `json:"product_id" gorm:"column:product_id;not null;index"`
	Code        string       `json:"code" gorm:"type:text;not null"`
	Name        string       `json:"name" gorm:"type:text;not null"`
	Description *string      `json:"description,omitempty" gorm:"type:text"`
	Active      bool         `json:"active" gorm:"not null;default:true"`
}

func (Plan) TableName() string { return "plans" }

// Tier is a pricing level within a plan, e.g. Basic, Pro or Enterprise.
type Tier struct {
	model.Base
	PlanID      snowflake.ID `json:"plan_id" gorm:"column:plan_id;not null;index"`
	Name        string       `json:"name" gorm:"type:text;not null"`
	Description *string      `json:"description,omitempty" gorm:"type:text"`
	Position    int          `json:"position" gorm:"not null;default:0"`
}

func (Tier) TableName() string { return "tiers" }
