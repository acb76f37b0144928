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

	CreateFeatureGroup(ctx context.Context, req FeatureGroupRequest) (*FeatureGroupResponse, error)
	ListFeatureGroups(ctx context.Context, productID string) ([]FeatureGroupResponse, error)
	UpdateFeatureGroup(ctx context.Context, id string, req FeatureGroupRequest) (*FeatureGroupResponse, error)
	DeleteFeatureGroup(ctx context.Context, id string) error

	CreateFeature(ctx context.Context, req FeatureRequest) (*FeatureResponse, error)
	ListFeatures(ctx context.Context, req ListFeatureRequest) ([]FeatureResponse, error)
	GetFeature(ctx context.Context, id string) (*FeatureResponse, error)
	UpdateFeature(ctx context.Context, id string, req FeatureRequest) (*FeatureResponse, error)
	DeleteFeature(ctx context.Context, id string) error
}

type ListRequest struct {
	pagination.Pagination
	Name    string `form:"name"`
	Active  *bool  `form:"active"`
	SortBy  string `form:"sort_by"`
	OrderBy string `form:"order_by"`
}

type CreateRequest struct {
	Code        string         `json:"code"`
	Name        string         `json:"name"`
	Description *string        `json:"description"`
	Active      *bool          `json:"active"`
	Metadata    map[string]any `json:"metadata"`
}

type UpdateRequest struct {
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	Active      *bool          `json:"active"`
	Metadata    map[string]any `json:"metadata"`
}

type Response struct {
	ID          string         `json:"id"`
	Code        string         `json:"code"`
	Name        string         `json:"name"`
	Description *string        `json:"description,omitempty"`
	Active      bool           `json:"active"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type ListResponse struct {
	pagination.PageInfo
	Products []Response `json:"products"`
}

type FeatureGroupRequest struct {
	ProductID   string  `json:"product_id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Position    *int    `json:"position"`
}

type FeatureGroupResponse struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type FeatureRequest struct {
	ProductID   string  `json:"product_id"`
	GroupID     *string `json:"group_id"`
	Key         string  `json:"key"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Metric      *string `json:"metric"`
	Unit        string  `json:"unit"`
}

type ListFeatureRequest struct {
	ProductID string `form:"product_id"`
	GroupID   string `form:"group_id"`
}

type FeatureResponse struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	GroupID     *string   `json:"group_id,omitempty"`
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Metric      *string   `json:"metric,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidCode      = errors.New("invalid_code")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidKey       = errors.New("invalid_key")
	ErrInvalidProduct   = errors.New("invalid_product")
	ErrInvalidGroup     = errors.New("invalid_group")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrCodeTaken        = errors.New("code_taken")
	ErrKeyTaken         = errors.New("key_taken")
	ErrNotFound         = errors.New("not_found")
	ErrInvalidID        = errors.New("invalid_id")
)
