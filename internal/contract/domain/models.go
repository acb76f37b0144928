package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"gorm.io/datatypes"
)

type Contract struct {
	model.Base
	QuoteID       snowflake.ID    `json:"quote_id" gorm:"column:quote_id;not null;index"`
	OpportunityID snowflake.ID    `json:"opportunity_id" gorm:"column:opportunity_id;not null;index"`
	Name          string          `json:"name" gorm:"type:text;not null"`
	Status        SignatureStatus `json:"status" gorm:"type:text;not null"`
	StartDate     *time.Time      `json:"start_date,omitempty" gorm:"type:date"`
	EndDate       *time.Time      `json:"end_date,omitempty" gorm:"type:date"`
}

func (Contract) TableName() string { return "contracts" }

// ContractSignature tracks the provider signature request of a contract. At
// most one non-deleted signature exists per contract.
type ContractSignature struct {
	model.Base
	ContractID         snowflake.ID    `json:"contract_id" gorm:"column:contract_id;not null;index"`
	SignatureRequestID *string         `json:"signature_request_id,omitempty" gorm:"column:signature_request_id;type:text;index"`
	Status             SignatureStatus `json:"status" gorm:"type:text;not null"`
	Title              string          `json:"title" gorm:"type:text;not null"`
	Subject            string          `json:"subject" gorm:"type:text"`
	Message            string          `json:"message" gorm:"type:text"`
	ExpiresAt          time.Time       `json:"expires_at" gorm:"not null"`
	SigningURL         string          `json:"signing_url" gorm:"column:signing_url;type:text"`
	DetailsURL         string          `json:"details_url" gorm:"column:details_url;type:text"`
	FilesURL           string          `json:"files_url" gorm:"column:files_url;type:text"`
	DocumentKey        string          `json:"document_key" gorm:"column:document_key;type:text"`
}

func (ContractSignature) TableName() string { return "contract_signatures" }

type SignerType string

const (
	SignerAccount  SignerType = "account"
	SignerCustomer SignerType = "customer"
)

type ContractSignerDetails struct {
	model.Base
	ContractSignatureID snowflake.ID `json:"contract_signature_id" gorm:"column:contract_signature_id;not null;uniqueIndex:ux_signer_order,priority:1"`
	Name                string       `json:"name" gorm:"type:text;not null"`
	Email               string       `json:"email" gorm:"type:text;not null"`
	Type                SignerType   `json:"type" gorm:"type:text;not null"`
	SignerOrder         int          `json:"signer_order" gorm:"column:signer_order;not null;uniqueIndex:ux_signer_order,priority:2"`
	ProviderSignatureID *string      `json:"provider_signature_id,omitempty" gorm:"column:provider_signature_id;type:text;index"`
}

func (ContractSignerDetails) TableName() string { return "contract_signer_details" }

// EventDetail is an append-only record of a provider webhook delivery.
type EventDetail struct {
	model.Base
	ContractSignatureID *snowflake.ID     `json:"contract_signature_id,omitempty" gorm:"column:contract_signature_id;index"`
	SignatureRequestID  string            `json:"signature_request_id" gorm:"column:signature_request_id;type:text;not null;index"`
	RelatedSignatureID  string            `json:"related_signature_id" gorm:"column:related_signature_id;type:text;not null;default:'';uniqueIndex:ux_event_hash,priority:2"`
	EventType           string            `json:"event_type" gorm:"column:event_type;type:text;not null"`
	EventTime           string            `json:"event_time" gorm:"column:event_time;type:text;not null"`
	EventHash           string            `json:"event_hash" gorm:"column:event_hash;type:text;not null;uniqueIndex:ux_event_hash,priority:1"`
	OccurredAt          time.Time         `json:"occurred_at" gorm:"column:occurred_at;not null;index"`
	StatusCode          string            `json:"status_code" gorm:"column:status_code;type:text"`
	Error               string            `json:"error" gorm:"column:error;type:text"`
	Metadata            datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	ProcessedAt         *time.Time        `json:"processed_at,omitempty" gorm:"column:processed_at"`
}

func (EventDetail) TableName() string { return "event_details" }

// ContractSignerAudit is the state of one signer derived from its events.
type ContractSignerAudit struct {
	model.Base
	ContractSignatureID snowflake.ID `json:"contract_signature_id" gorm:"column:contract_signature_id;not null;index"`
	SignerID            snowflake.ID `json:"signer_id" gorm:"column:signer_id;not null;uniqueIndex"`
	LastViewedAt        *time.Time   `json:"last_viewed_at,omitempty" gorm:"column:last_viewed_at"`
	LastRemindedAt      *time.Time   `json:"last_reminded_at,omitempty" gorm:"column:last_reminded_at"`
	SignedAt            *time.Time   `json:"signed_at,omitempty" gorm:"column:signed_at"`
	DeclinedAt          *time.Time   `json:"declined_at,omitempty" gorm:"column:declined_at"`
	ErroredAt           *time.Time   `json:"errored_at,omitempty" gorm:"column:errored_at"`
	LastStatusCode      string       `json:"last_status_code" gorm:"column:last_status_code;type:text"`
	LastError           string       `json:"last_error" gorm:"column:last_error;type:text"`
	LastEventAt         *time.Time   `json:"last_event_at,omitempty" gorm:"column:last_event_at"`
}

func (ContractSignerAudit) TableName() string { return "contract_signer_audits" }
