package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	pricingdomain "github.com/smallbiznis/pricedesk/internal/pricing/domain"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"gorm.io/datatypes"
)

type Quote struct {
	model.Base
	Number           string                                       `json:"number" gorm:"type:text;not null;uniqueIndex"`
	OpportunityID    snowflake.ID                                 `json:"opportunity_id" gorm:"column:opportunity_id;not null;index"`
	PriceBookID      snowflake.ID                                 `json:"price_book_id" gorm:"column:price_book_id;not null;index"`
	Name             string                                       `json:"name" gorm:"type:text;not null"`
	Status           Status                                       `json:"status" gorm:"type:text;not null;index"`
	Currency         string                                       `json:"currency" gorm:"type:text;not null"`
	Subtotal         decimal.Decimal                              `json:"subtotal" gorm:"type:numeric(20,2);not null;default:0"`
	DiscountPercent  decimal.Decimal                              `json:"discount_percent" gorm:"type:numeric(7,4);not null;default:0"`
	Total            decimal.Decimal                              `json:"total" gorm:"type:numeric(20,2);not null;default:0"`
	DealTerms        datatypes.JSONMap                            `json:"deal_terms" gorm:"type:jsonb"`
	Selections       datatypes.JSONSlice[pricingdomain.Selection] `json:"selections" gorm:"type:jsonb;not null"`
	Breakdown        datatypes.JSONType[pricingdomain.Breakdown]  `json:"breakdown" gorm:"type:jsonb;not null"`
	RequiresApproval bool                                         `json:"requires_approval" gorm:"not null;default:false"`
	ApproverRoles    pq.StringArray                               `json:"approver_roles" gorm:"type:text[]"`
	ValidUntil       *time.Time                                   `json:"valid_until,omitempty"`
}

func (Quote) TableName() string { return "quotes" }

type CommentKind string

const (
	CommentNote     CommentKind = "comment"
	CommentForward  CommentKind = "forward"
	CommentEscalate CommentKind = "escalate"
	CommentApprove  CommentKind = "approve"
	CommentReject   CommentKind = "reject"
	CommentCancel   CommentKind = "cancel"
	CommentReopen   CommentKind = "reopen"
)

type QuoteComment struct {
	model.Base
	QuoteID snowflake.ID `json:"quote_id" gorm:"column:quote_id;not null;index"`
	Kind    CommentKind  `json:"kind" gorm:"type:text;not null"`
	Body    string       `json:"body" gorm:"type:text;not null"`
}

func (QuoteComment) TableName() string { return "quote_comments" }
