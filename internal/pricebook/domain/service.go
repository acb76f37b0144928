package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pricedesk/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req PriceBookRequest) (*PriceBookResponse, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	Get(ctx context.Context, id string) (*PriceBookResponse, error)
	Update(ctx context.Context, id string, req PriceBookRequest) (*PriceBookResponse, error)
	Delete(ctx context.Context, id string) error

	CreateEntry(ctx context.Context, priceBookID string, req EntryRequest) (*EntryResponse, error)
	ListEntries(ctx context.Context, priceBookID string) ([]EntryResponse, error)
	UpdateEntry(ctx context.Context, id string, req EntryRequest) (*EntryResponse, error)
	DeleteEntry(ctx context.Context, id string) error

	CreateRule(ctx context.Context, priceBookID string, req RuleRequest) (*RuleResponse, error)
	ListRules(ctx context.Context, priceBookID string) ([]RuleResponse, error)
	UpdateRule(ctx context.Context, id string, req RuleRequest) (*RuleResponse, error)
	DeleteRule(ctx context.Context, id string) error

	GetDiscountPolicy(ctx context.Context, priceBookID string) (*DiscountPolicyResponse, error)
	SetDiscountPolicy(ctx context.Context, priceBookID string, req DiscountPolicyRequest) (*DiscountPolicyResponse, error)

	// Check runs the price book's rules and discount policy over priced
	// quote lines.
	Check(ctx context.Context, req CheckRequest) (*Verdict, error)
}

type PriceBookRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Currency    string  `json:"currency"`
	Active      *bool   `json:"active"`
}

type ListRequest struct {
	pagination.Pagination
	Active *bool `form:"active"`
}

type PriceBookResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Currency    string    `json:"currency"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ListResponse struct {
	pagination.PageInfo
	PriceBooks []PriceBookResponse `json:"price_books"`
}

type EntryRequest struct {
	ProductID string           `json:"product_id"`
	TierID    string           `json:"tier_id"`
	ListPrice *decimal.Decimal `json:"list_price"`
	IsAddon   bool             `json:"is_addon"`
	Metric    *string          `json:"metric"`
}

type EntryResponse struct {
	ID          string          `json:"id"`
	PriceBookID string          `json:"price_book_id"`
	ProductID   string          `json:"product_id"`
	TierID      string          `json:"tier_id"`
	ListPrice   decimal.Decimal `json:"list_price"`
	IsAddon     bool            `json:"is_addon"`
	Metric      *string         `json:"metric,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type RuleRequest struct {
	ProductID *string          `json:"product_id"`
	Name      string           `json:"name"`
	Condition *string          `json:"condition"`
	Action    RuleAction       `json:"action"`
	Value     *decimal.Decimal `json:"value"`
	Active    *bool            `json:"active"`
}

type RuleResponse struct {
	ID          string          `json:"id"`
	PriceBookID string          `json:"price_book_id"`
	ProductID   *string         `json:"product_id,omitempty"`
	Name        string          `json:"name"`
	Condition   string          `json:"condition"`
	Action      RuleAction      `json:"action"`
	Value       decimal.Decimal `json:"value"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type DiscountPolicyRequest struct {
	MaxDiscountPercent       decimal.Decimal `json:"max_discount_percent"`
	ApprovalThresholdPercent decimal.Decimal `json:"approval_threshold_percent"`
	ApproverRoles            []string        `json:"approver_roles"`
}

type DiscountPolicyResponse struct {
	ID                       string          `json:"id"`
	PriceBookID              string          `json:"price_book_id"`
	MaxDiscountPercent       decimal.Decimal `json:"max_discount_percent"`
	ApprovalThresholdPercent decimal.Decimal `json:"approval_threshold_percent"`
	ApproverRoles            []string        `json:"approver_roles"`
	UpdatedAt                time.Time       `json:"updated_at"`
}

// CheckLine is one priced quote line.
type CheckLine struct {
	ProductID       string
	TierID          string
	Quantities      map[string]decimal.Decimal
	ListPrice       decimal.Decimal
	Subtotal        decimal.Decimal
	DiscountPercent decimal.Decimal
}

type CheckRequest struct {
	PriceBookID string
	QuoteTotal  decimal.Decimal
	Lines       []CheckLine
}

type Violation struct {
	RuleID    string          `json:"rule_id,omitempty"`
	Rule      string          `json:"rule"`
	ProductID string          `json:"product_id"`
	Action    RuleAction      `json:"action"`
	Limit     decimal.Decimal `json:"limit"`
	Actual    decimal.Decimal `json:"actual"`
}

// Verdict is the outcome of Check. Violations block the quote; approval
// requirements route it to the approver roles.
type Verdict struct {
	Violations       []Violation `json:"violations,omitempty"`
	RequiresApproval bool        `json:"requires_approval"`
	ApproverRoles    []string    `json:"approver_roles,omitempty"`
}

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrInvalidPriceBook = errors.New("invalid_price_book")
	ErrInvalidProduct   = errors.New("invalid_product")
	ErrInvalidTier      = errors.New("invalid_tier")
	ErrInvalidPrice     = errors.New("invalid_list_price")
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidValue     = errors.New("invalid_value")
	ErrInvalidCondition = errors.New("invalid_condition")
	ErrInvalidPolicy    = errors.New("invalid_discount_policy")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrEntryExists      = errors.New("entry_exists")
	ErrNotFound         = errors.New("not_found")
)
