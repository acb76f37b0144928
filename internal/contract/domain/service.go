package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/pricedesk/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*ContractResponse, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	Get(ctx context.Context, id string) (*ContractResponse, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*ContractResponse, error)
	Delete(ctx context.Context, id string) error

	CreateSignature(ctx context.Context, contractID string, req SignatureRequest) (*SignatureResponse, error)
	GetSignature(ctx context.Context, contractID string) (*SignatureResponse, error)
	CancelSignature(ctx context.Context, contractID string) (*SignatureResponse, error)
	RemindSigner(ctx context.Context, contractID string, req RemindRequest) error
	// ReplaySignature rebuilds the signer audits from the stored events.
	ReplaySignature(ctx context.Context, contractID string) (*SignatureResponse, error)
	ListEvents(ctx context.Context, contractID string) ([]EventResponse, error)
	// ExpireSignatures persists Expired on the tenant's open signatures
	// past their expiry.
	ExpireSignatures(ctx context.Context) (*ExpireResponse, error)

	// HandleWebhook ingests one provider callback. It carries no tenant;
	// the tenant is resolved from the signature request.
	HandleWebhook(ctx context.Context, payload []byte) error
}

type CreateRequest struct {
	QuoteID   string     `json:"quote_id" binding:"required"`
	Name      string     `json:"name" binding:"required"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

type UpdateRequest struct {
	Name      *string    `json:"name"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

type ListRequest struct {
	pagination.Pagination
	QuoteID       string `form:"quote_id"`
	OpportunityID string `form:"opportunity_id"`
	Status        string `form:"status"`
}

type ContractResponse struct {
	ID            string          `json:"id"`
	QuoteID       string          `json:"quote_id"`
	OpportunityID string          `json:"opportunity_id"`
	Name          string          `json:"name"`
	Status        SignatureStatus `json:"status"`
	StartDate     *time.Time      `json:"start_date,omitempty"`
	EndDate       *time.Time      `json:"end_date,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type ListResponse struct {
	pagination.PageInfo
	Contracts []ContractResponse `json:"contracts"`
}

type SignerInput struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

type SignatureRequest struct {
	Title           string        `json:"title" binding:"required"`
	Subject         string        `json:"subject"`
	Message         string        `json:"message"`
	AccountSigners  []SignerInput `json:"account_signers" binding:"omitempty,dive"`
	CustomerSigners []SignerInput `json:"customer_signers" binding:"omitempty,dive"`
	ExpiryDays      *int          `json:"expiry_days"`
}

type RemindRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type SignerResponse struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Email               string     `json:"email"`
	Type                SignerType `json:"type"`
	SignerOrder         int        `json:"signer_order"`
	ProviderSignatureID *string    `json:"provider_signature_id,omitempty"`
	LastViewedAt        *time.Time `json:"last_viewed_at,omitempty"`
	LastRemindedAt      *time.Time `json:"last_reminded_at,omitempty"`
	SignedAt            *time.Time `json:"signed_at,omitempty"`
	DeclinedAt          *time.Time `json:"declined_at,omitempty"`
	LastStatusCode      string     `json:"last_status_code,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
}

type SignatureResponse struct {
	ID                 string           `json:"id"`
	ContractID         string           `json:"contract_id"`
	SignatureRequestID *string          `json:"signature_request_id,omitempty"`
	Status             SignatureStatus  `json:"status"`
	Title              string           `json:"title"`
	Subject            string           `json:"subject,omitempty"`
	Message            string           `json:"message,omitempty"`
	ExpiresAt          time.Time        `json:"expires_at"`
	SigningURL         string           `json:"signing_url,omitempty"`
	DetailsURL         string           `json:"details_url,omitempty"`
	FilesURL           string           `json:"files_url,omitempty"`
	Signers            []SignerResponse `json:"signers"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

type EventResponse struct {
	ID                 string         `json:"id"`
	EventType          string         `json:"event_type"`
	EventTime          string         `json:"event_time"`
	OccurredAt         time.Time      `json:"occurred_at"`
	RelatedSignatureID string         `json:"related_signature_id,omitempty"`
	StatusCode         string         `json:"status_code,omitempty"`
	Error              string         `json:"error,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

type ExpireResponse struct {
	Expired int `json:"expired"`
}

var (
	ErrInvalidTenant     = errors.New("invalid_tenant")
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidQuote      = errors.New("invalid_quote")
	ErrQuoteNotApproved  = errors.New("quote_not_approved")
	ErrInvalidDates      = errors.New("invalid_contract_dates")
	ErrInvalidTitle      = errors.New("invalid_title")
	ErrInvalidSigner     = errors.New("invalid_signer")
	ErrNoSigners         = errors.New("signers_required")
	ErrInvalidExpiry     = errors.New("invalid_expiry_days")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
	ErrSignatureExists   = errors.New("signature_exists")
	ErrSignatureClosed   = errors.New("signature_closed")
	ErrSignatureNotFound = errors.New("signature_not_found")
	ErrSignerNotFound    = errors.New("signer_not_found")
	ErrSignerCompleted   = errors.New("signer_completed")
	ErrNotFound          = errors.New("not_found")
)
