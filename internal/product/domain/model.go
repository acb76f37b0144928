package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"gorm.io/datatypes"
)

type Product struct {
	model.Base
	Code        string            `json:"code" gorm:"type:text;not null;index"`
	Name        string            `json:"name" gorm:"type:text;not null"`
	Description *string           `json:"description,omitempty" gorm:"type:text"`
	Active      bool              `json:"active" gorm:"not null;default:true"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
}

func (Product) TableName() string { return "products" }

// FeatureGroup clusters repository features of a product for display.
type FeatureGroup struct {
	model.Base
	ProductID   snowflake.ID `json:"product_id" gorm:"column:product_id;not null;index"`
	Name        string       `json:"name" gorm:"type:text;not null"`
	Description *string      `json:"description,omitempty" gorm:"type:text"`
	Position    int          `json:"position" gorm:"not null;default:0"`
}

func (FeatureGroup) TableName() string { return "feature_groups" }

// Feature is one entry of the feature repository. A feature with a Metric
// is quantifiable and its key can be referenced by pricing structure rows
// and price book entries.
type Feature struct {
	model.Base
	ProductID   snowflake.ID  `json:"product_id" gorm:"column:product_id;not null;index"`
	GroupID     *snowflake.ID `json:"group_id,omitempty" gorm:"column:group_id;index"`
	Key         string        `json:"key" gorm:"type:text;not null"`
	Name        string        `json:"name" gorm:"type:text;not null"`
	Description *string       `json:"description,omitempty" gorm:"type:text"`
	Metric      *string       `json:"metric,omitempty" gorm:"type:text"`
	Unit        string        `json:"unit" gorm:"type:text"`
}

func (Feature) TableName() string { return "feature_repository" }
