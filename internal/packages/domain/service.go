package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/pricedesk/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	Get(ctx context.Context, id string) (*Response, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Response, error)
	Delete(ctx context.Context, id string) error

	UpdateDetail(ctx context.Context, id string, req DetailRequest) (*DetailResponse, error)
}

type CreateRequest struct {
	PlanID      string  `json:"plan_id"`
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	// Details seeds the payload per tier id. Tiers not listed start empty.
	Details map[string]map[string]any `json:"details"`
}

type UpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type ListRequest struct {
	pagination.Pagination
	PlanID string `form:"plan_id"`
}

type DetailRequest struct {
	Details map[string]any `json:"details"`
}

type Response struct {
	ID          string           `json:"id"`
	PlanID      string           `json:"plan_id"`
	Code        string           `json:"code"`
	Name        string           `json:"name"`
	Description *string          `json:"description,omitempty"`
	Details     []DetailResponse `json:"details"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type DetailResponse struct {
	ID        string         `json:"id"`
	PackageID string         `json:"package_id"`
	TierID    string         `json:"tier_id"`
	Details   map[string]any `json:"details"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type ListResponse struct {
	pagination.PageInfo
	Packages []Response `json:"packages"`
}

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidPlan      = errors.New("invalid_plan")
	ErrInvalidTier      = errors.New("invalid_tier")
	ErrInvalidCode      = errors.New("invalid_code")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrCodeTaken        = errors.New("code_taken")
	ErrNotFound         = errors.New("not_found")
)
