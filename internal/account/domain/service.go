package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pricedesk/pkg/db/pagination"
)

type Service interface {
	CreateAccount(ctx context.Context, req AccountRequest) (*AccountResponse, error)
	ListAccounts(ctx context.Context, req ListAccountRequest) (*ListAccountResponse, error)
	GetAccount(ctx context.Context, id string) (*AccountResponse, error)
	UpdateAccount(ctx context.Context, id string, req AccountRequest) (*AccountResponse, error)
	DeleteAccount(ctx context.Context, id string) error

	CreateOpportunity(ctx context.Context, req OpportunityRequest) (*OpportunityResponse, error)
	ListOpportunities(ctx context.Context, req ListOpportunityRequest) (*ListOpportunityResponse, error)
	GetOpportunity(ctx context.Context, id string) (*OpportunityResponse, error)
	UpdateOpportunity(ctx context.Context, id string, req OpportunityRequest) (*OpportunityResponse, error)
	DeleteOpportunity(ctx context.Context, id string) error
}

type AccountRequest struct {
	Name           string         `json:"name"`
	Industry       string         `json:"industry"`
	Website        string         `json:"website"`
	BillingCountry string         `json:"billing_country"`
	OwnerEmail     string         `json:"owner_email"`
	Metadata       map[string]any `json:"metadata"`
}

type ListAccountRequest struct {
	pagination.Pagination
	Name string `form:"name"`
}

type AccountResponse struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Industry       string         `json:"industry,omitempty"`
	Website        string         `json:"website,omitempty"`
	BillingCountry string         `json:"billing_country,omitempty"`
	OwnerEmail     string         `json:"owner_email,omitempty"`
	SalesforceID   *string        `json:"salesforce_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

type ListAccountResponse struct {
	pagination.PageInfo
	Accounts []AccountResponse `json:"accounts"`
}

type OpportunityRequest struct {
	AccountID string           `json:"account_id"`
	Name      string           `json:"name"`
	Stage     Stage            `json:"stage"`
	Amount    *decimal.Decimal `json:"amount"`
	Currency  string           `json:"currency"`
	CloseDate *time.Time       `json:"close_date"`
}

type ListOpportunityRequest struct {
	pagination.Pagination
	AccountID string `form:"account_id"`
	Stage     string `form:"stage"`
}

type OpportunityResponse struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"account_id"`
	Name         string          `json:"name"`
	Stage        Stage           `json:"stage"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	CloseDate    *time.Time      `json:"close_date,omitempty"`
	SalesforceID *string         `json:"salesforce_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type ListOpportunityResponse struct {
	pagination.PageInfo
	Opportunities []OpportunityResponse `json:"opportunities"`
}

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidAccount   = errors.New("invalid_account")
	ErrInvalidStage     = errors.New("invalid_stage")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrAccountInUse     = errors.New("account_in_use")
	ErrNotFound         = errors.New("not_found")
)
