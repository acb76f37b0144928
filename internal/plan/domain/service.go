package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/pricedesk/pkg/db/pagination"
	"gorm.io/gorm"
)

type Service interface {
	CreatePlan(ctx context.Context, req PlanRequest) (*PlanResponse, error)
	ListPlans(ctx context.Context, req ListPlanRequest) (*ListPlanResponse, error)
	GetPlan(ctx context.Context, id string) (*PlanResponse, error)
	UpdatePlan(ctx context.Context, id string, req PlanRequest) (*PlanResponse, error)
	DeletePlan(ctx context.Context, id string) error

	CreateTier(ctx context.Context, req TierRequest) (*TierResponse, error)
	ListTiers(ctx context.Context, planID string) ([]TierResponse, error)
	GetTier(ctx context.Context, id string) (*TierResponse, error)
	UpdateTier(ctx context.Context, id string, req TierRequest) (*TierResponse, error)
	DeleteTier(ctx context.Context, id string) error
}

// PackageDetailSyncer keeps package details in step with a plan's tiers.
// The hooks run inside the plan write transaction while the plan row is
// locked.
type PackageDetailSyncer interface {
	OnTierCreated(ctx context.Context, tx *gorm.DB, plan *Plan, tier *Tier) error
	OnTierDeleted(ctx context.Context, tx *gorm.DB, plan *Plan, tier *Tier) error
	OnPlanDeleted(ctx context.Context, tx *gorm.DB, plan *Plan) error
}

type PlanRequest struct {
	ProductID   string  `json:"product_id"`
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
}

type ListPlanRequest struct {
	pagination.Pagination
	ProductID string `form:"product_id"`
}

type PlanResponse struct {
	ID          string         `json:"id"`
	ProductID   string         `json:"product_id"`
	Code        string         `json:"code"`
	Name        string         `json:"name"`
	Description *string        `json:"description,omitempty"`
	Active      bool           `json:"active"`
	Tiers       []TierResponse `json:"tiers"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type ListPlanResponse struct {
	pagination.PageInfo
	Plans []PlanResponse `json:"plans"`
}

type TierRequest struct {
	PlanID      string  `json:"plan_id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Position    *int    `json:"position"`
}

type TierResponse struct {
	ID          string    `json:"id"`
	PlanID      string    `json:"plan_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidProduct   = errors.New("invalid_product")
	ErrInvalidPlan      = errors.New("invalid_plan")
	ErrInvalidCode      = errors.New("invalid_code")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrCodeTaken        = errors.New("code_taken")
	ErrNotFound         = errors.New("not_found")
)
