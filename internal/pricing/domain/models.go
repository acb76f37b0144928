package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"gorm.io/datatypes"
)

// PricingModel names a way of pricing a product. Its structures hold the
// actual rows.
type PricingModel struct {
	model.Base
	ProductID   *snowflake.ID `json:"product_id,omitempty" gorm:"column:product_id;index"`
	Name        string        `json:"name" gorm:"type:text;not null"`
	Description *string       `json:"description,omitempty" gorm:"type:text"`
}

func (PricingModel) TableName() string { return "pricing_models" }

// Row is one line of a pricing structure. A row either resolves from the
// selection and the price context or carries a formula over earlier rows.
type Row struct {
	Key            string  `json:"key"`
	DisplayName    string  `json:"display_name"`
	IsInputColumn  bool    `json:"is_input_column"`
	IsOutputColumn bool    `json:"is_output_column"`
	IsMetricColumn bool    `json:"is_metric_column"`
	Metric         *string `json:"metric,omitempty"`
	Formula        *string `json:"formula,omitempty"`
}

func (r Row) HasFormula() bool {
	return r.Formula != nil && *r.Formula != ""
}

type PricingStructure struct {
	model.Base
	PricingModelID snowflake.ID             `json:"pricing_model_id" gorm:"column:pricing_model_id;not null;index"`
	Name           string                   `json:"name" gorm:"type:text;not null"`
	Rows           datatypes.JSONSlice[Row] `json:"rows" gorm:"type:jsonb;not null"`
}

func (PricingStructure) TableName() string { return "pricing_structures" }

// Price context keys a row can resolve from when no quantity matches.
const (
	ContextListPrice  = "list_price"
	ContextAddonTotal = "addon_total"
	ContextAddonUnits = "addon_units"
)

// Row tags used by clients to render a breakdown.
const (
	TagInput  = "input"
	TagOutput = "output"
	TagMetric = "metric"
)
