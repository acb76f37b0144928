package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
)

type PriceBook struct {
	model.Base
	Name        string  `json:"name" gorm:"type:text;not null"`
	Description *string `json:"description,omitempty" gorm:"type:text"`
	Currency    string  `json:"currency" gorm:"type:text;not null"`
	Active      bool    `json:"active" gorm:"not null;default:true"`
}

func (PriceBook) TableName() string { return "price_books" }

// PriceBookEntry prices a product at a tier. Addon entries are priced per
// unit; the metric names the quantity graduated addon units are banded on.
type PriceBookEntry struct {
	model.Base
	PriceBookID snowflake.ID    `json:"price_book_id" gorm:"column:price_book_id;not null;index"`
	ProductID   snowflake.ID    `json:"product_id" gorm:"column:product_id;not null;index"`
	TierID      snowflake.ID    `json:"tier_id" gorm:"column:tier_id;not null;index"`
	ListPrice   decimal.Decimal `json:"list_price" gorm:"type:numeric(20,4);not null"`
	IsAddon     bool            `json:"is_addon" gorm:"not null;default:false"`
	Metric      *string         `json:"metric,omitempty" gorm:"type:text"`
}

func (PriceBookEntry) TableName() string { return "price_book_entries" }

type RuleAction string

const (
	ActionMinQuantity     RuleAction = "min_quantity"
	ActionMaxQuantity     RuleAction = "max_quantity"
	ActionMaxDiscount     RuleAction = "max_discount"
	ActionRequireApproval RuleAction = "require_approval"
)

// PriceBookRule applies Action to every quote line whose facts satisfy the
// CEL Condition. A rule with a ProductID only sees that product's lines.
type PriceBookRule struct {
	model.Base
	PriceBookID snowflake.ID    `json:"price_book_id" gorm:"column:price_book_id;not null;index"`
	ProductID   *snowflake.ID   `json:"product_id,omitempty" gorm:"column:product_id"`
	Name        string          `json:"name" gorm:"type:text;not null"`
	Condition   string          `json:"condition" gorm:"type:text;not null"`
	Action      RuleAction      `json:"action" gorm:"type:text;not null"`
	Value       decimal.Decimal `json:"value" gorm:"type:numeric(20,4);not null;default:0"`
	Active      bool            `json:"active" gorm:"not null;default:true"`
}

func (PriceBookRule) TableName() string { return "price_book_rules" }

// DiscountPolicy bounds the discount a quote on the price book may carry.
// Discounts above the approval threshold need one of ApproverRoles.
type DiscountPolicy struct {
	model.Base
	PriceBookID              snowflake.ID    `json:"price_book_id" gorm:"column:price_book_id;not null;index"`
	MaxDiscountPercent       decimal.Decimal `json:"max_discount_percent" gorm:"type:numeric(7,4);not null"`
	ApprovalThresholdPercent decimal.Decimal `json:"approval_threshold_percent" gorm:"type:numeric(7,4);not null"`
	ApproverRoles            pq.StringArray  `json:"approver_roles" gorm:"type:text[]"`
}

func (DiscountPolicy) TableName() string { return "price_book_discount_policies" }
