package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	pricebookdomain "github.com/smallbiznis/pricedesk/internal/pricebook/domain"
	pricingdomain "github.com/smallbiznis/pricedesk/internal/pricing/domain"
	"github.com/smallbiznis/pricedesk/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*QuoteResponse, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	Get(ctx context.Context, id string) (*QuoteResponse, error)
	// Update is allowed in Draft only and recomputes the breakdown.
	Update(ctx context.Context, id string, req UpdateRequest) (*QuoteResponse, error)
	Delete(ctx context.Context, id string) error

	AddComment(ctx context.Context, id string, req CommentRequest) (*CommentResponse, error)
	ListComments(ctx context.Context, id string) ([]CommentResponse, error)

	Forward(ctx context.Context, id string, req TransitionRequest) (*QuoteResponse, error)
	Escalate(ctx context.Context, id string, req TransitionRequest) (*QuoteResponse, error)
	Approval(ctx context.Context, id string, req ApprovalRequest) (*QuoteResponse, error)
	Cancel(ctx context.Context, id string, req TransitionRequest) (*QuoteResponse, error)
	Reopen(ctx context.Context, id string, req TransitionRequest) (*QuoteResponse, error)
	// Resend repeats the notification of the current state.
	Resend(ctx context.Context, id string) error
	Status(ctx context.Context, id string) (*StatusResponse, error)
}

type CreateRequest struct {
	OpportunityID   string                    `json:"opportunity_id" binding:"required"`
	PriceBookID     string                    `json:"price_book_id" binding:"required"`
	Name            string                    `json:"name" binding:"required"`
	DiscountPercent *decimal.Decimal          `json:"discount_percent"`
	DealTerms       map[string]any            `json:"deal_terms"`
	ValidUntil      *time.Time                `json:"valid_until"`
	Selections      []pricingdomain.Selection `json:"selections" binding:"required,min=1,dive"`
}

type UpdateRequest struct {
	Name            string                    `json:"name"`
	DiscountPercent *decimal.Decimal          `json:"discount_percent"`
	DealTerms       map[string]any            `json:"deal_terms"`
	ValidUntil      *time.Time                `json:"valid_until"`
	Selections      []pricingdomain.Selection `json:"selections" binding:"omitempty,dive"`
}

type ListRequest struct {
	pagination.Pagination
	OpportunityID string `form:"opportunity_id"`
	Status        string `form:"status"`
}

type TransitionRequest struct {
	Comment string `json:"comment"`
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

type ProductDiscount struct {
	ProductID       string          `json:"product_id" binding:"required"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

type ApprovalRequest struct {
	Decision  Decision          `json:"decision" binding:"required,oneof=approve reject"`
	Discounts []ProductDiscount `json:"discounts" binding:"omitempty,dive"`
	Comment   string            `json:"comment"`
}

type CommentRequest struct {
	Body string `json:"body" binding:"required"`
}

type QuoteResponse struct {
	ID               string                  `json:"id"`
	Number           string                  `json:"number"`
	OpportunityID    string                  `json:"opportunity_id"`
	PriceBookID      string                  `json:"price_book_id"`
	Name             string                  `json:"name"`
	Status           Status                  `json:"status"`
	Currency         string                  `json:"currency"`
	Subtotal         decimal.Decimal         `json:"subtotal"`
	DiscountPercent  decimal.Decimal         `json:"discount_percent"`
	Total            decimal.Decimal         `json:"total"`
	DealTerms        map[string]any          `json:"deal_terms,omitempty"`
	Breakdown        pricingdomain.Breakdown `json:"breakdown"`
	RequiresApproval bool                    `json:"requires_approval"`
	ApproverRoles    []string                `json:"approver_roles,omitempty"`
	ValidUntil       *time.Time              `json:"valid_until,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

type ListResponse struct {
	pagination.PageInfo
	Quotes []QuoteResponse `json:"quotes"`
}

type CommentResponse struct {
	ID        string      `json:"id"`
	QuoteID   string      `json:"quote_id"`
	Kind      CommentKind `json:"kind"`
	Body      string      `json:"body"`
	AuthorID  *string     `json:"author_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

type StatusResponse struct {
	ID               string    `json:"id"`
	Number           string    `json:"number"`
	Status           Status    `json:"status"`
	RequiresApproval bool      `json:"requires_approval"`
	UpdatedAt        time.Time `json:"updated_at"`
}

var (
	ErrInvalidTenant      = errors.New("invalid_tenant")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidOpportunity = errors.New("invalid_opportunity")
	ErrInvalidDiscount    = errors.New("invalid_discount")
	ErrInvalidDecision    = errors.New("invalid_decision")
	ErrInvalidProduct     = errors.New("invalid_product")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrInvalidComment     = errors.New("invalid_comment")
	ErrInvalidPageToken   = errors.New("invalid_page_token")
	ErrNotEditable        = errors.New("quote_not_editable")
	ErrStaleQuote         = errors.New("quote_changed_concurrently")
	ErrNotApprover        = errors.New("not_approver")
	ErrRuleViolation      = errors.New("rule_violation")
	ErrNotFound           = errors.New("not_found")
)

// RuleViolationError carries the violations that rejected a quote.
type RuleViolationError struct {
	Violations []pricebookdomain.Violation
}

func (e *RuleViolationError) Error() string {
	return fmt.Sprintf("%s: %d violation(s)", ErrRuleViolation, len(e.Violations))
}

func (e *RuleViolationError) Unwrap() error { return ErrRuleViolation }
