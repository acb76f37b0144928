package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"gorm.io/datatypes"
)

type Account struct {
	model.Base
	Name           string            `json:"name" gorm:"type:text;not null"`
	Industry       string            `json:"industry" gorm:"type:text"`
	Website        string            `json:"website" gorm:"type:text"`
	BillingCountry string            `json:"billing_country" gorm:"type:text"`
	OwnerEmail     string            `json:"owner_email" gorm:"type:text"`
	SalesforceID   *string           `json:"salesforce_id,omitempty" gorm:"column:salesforce_id;type:text;index"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
}

func (Account) TableName() string { return "accounts" }

type Stage string

const (
	StageProspecting Stage = "Prospecting"
	StageQualified   Stage = "Qualified"
	StageProposal    Stage = "Proposal"
	StageNegotiation Stage = "Negotiation"
	StageClosedWon   Stage = "Closed Won"
	StageClosedLost  Stage = "Closed Lost"
)

type Opportunity struct {
	model.Base
	AccountID    snowflake.ID    `json:"account_id" gorm:"column:account_id;not null;index"`
	Name         string          `json:"name" gorm:"type:text;not null"`
	Stage        Stage           `json:"stage" gorm:"type:text;not null"`
	Amount       decimal.Decimal `json:"amount" gorm:"type:numeric(20,4);not null;default:0"`
	Currency     string          `json:"currency" gorm:"type:text;not null"`
	CloseDate    *time.Time      `json:"close_date,omitempty" gorm:"type:date"`
	SalesforceID *string         `json:"salesforce_id,omitempty" gorm:"column:salesforce_id;type:text;index"`
}

func (Opportunity) TableName() string { return "opportunities" }
