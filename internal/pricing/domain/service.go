package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/pricedesk/pkg/db/pagination"
)

type Service interface {
	CreateModel(ctx context.Context, req ModelRequest) (*ModelResponse, error)
	ListModels(ctx context.Context, req ListModelRequest) (*ListModelResponse, error)
	GetModel(ctx context.Context, id string) (*ModelResponse, error)
	UpdateModel(ctx context.Context, id string, req ModelRequest) (*ModelResponse, error)
	DeleteModel(ctx context.Context, id string) error

	CreateStructure(ctx context.Context, req StructureRequest) (*StructureResponse, error)
	ListStructures(ctx context.Context, pricingModelID string) ([]StructureResponse, error)
	GetStructure(ctx context.Context, id string) (*StructureResponse, error)
	UpdateStructure(ctx context.Context, id string, req StructureRequest) (*StructureResponse, error)
	DeleteStructure(ctx context.Context, id string) error

	// Calculate prices the selections against a price book without
	// persisting anything.
	Calculate(ctx context.Context, req CalculateRequest) (*Breakdown, error)
}

type ModelRequest struct {
	ProductID   *string `json:"product_id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

type ListModelRequest struct {
	pagination.Pagination
	ProductID string `form:"product_id"`
}

type ModelResponse struct {
	ID          string              `json:"id"`
	ProductID   *string             `json:"product_id,omitempty"`
	Name        string              `json:"name"`
	Description *string             `json:"description,omitempty"`
	Structures  []StructureResponse `json:"structures,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

type ListModelResponse struct {
	pagination.PageInfo
	Models []ModelResponse `json:"pricing_models"`
}

type StructureRequest struct {
	PricingModelID string `json:"pricing_model_id"`
	Name           string `json:"name"`
	Rows           []Row  `json:"rows"`
}

type StructureResponse struct {
	ID             string    `json:"id"`
	PricingModelID string    `json:"pricing_model_id"`
	Name           string    `json:"name"`
	Rows           []Row     `json:"rows"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type CalculateRequest struct {
	PriceBookID string      `json:"price_book_id" binding:"required"`
	Selections  []Selection `json:"selections" binding:"required,min=1,dive"`
}

var (
	ErrInvalidTenant     = errors.New("invalid_tenant")
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidModel      = errors.New("invalid_pricing_model")
	ErrInvalidStructure  = errors.New("invalid_pricing_structure")
	ErrInvalidProduct    = errors.New("invalid_product")
	ErrInvalidPriceBook  = errors.New("invalid_price_book")
	ErrInvalidAddon      = errors.New("invalid_addon")
	ErrInvalidRowKey     = errors.New("invalid_row_key")
	ErrDuplicateRowKey   = errors.New("duplicate_row_key")
	ErrEmptyStructure    = errors.New("empty_pricing_structure")
	ErrFormulaSyntax     = errors.New("formula_syntax")
	ErrFormulaReference  = errors.New("formula_reference")
	ErrFormulaEvaluation = errors.New("formula_evaluation")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
	ErrModelInUse        = errors.New("pricing_model_in_use")
	ErrTierNotFound      = errors.New("tier_not_found")
	ErrNotFound          = errors.New("not_found")
)
