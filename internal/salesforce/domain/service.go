package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/pricedesk/pkg/db/pagination"
)

type Service interface {
	GetCredentials(ctx context.Context) (*CredentialsResponse, error)
	PutCredentials(ctx context.Context, req CredentialsRequest) (*CredentialsResponse, error)

	ListMappings(ctx context.Context, req ListMappingsRequest) ([]MappingResponse, error)
	CreateMapping(ctx context.Context, req MappingRequest) (*MappingResponse, error)
	UpdateMapping(ctx context.Context, id string, req UpdateMappingRequest) (*MappingResponse, error)
	DeleteMapping(ctx context.Context, id string) error

	// Sync runs one pull, push or two-way pass for the tenant. Only one run
	// per tenant may be in flight.
	Sync(ctx context.Context, req SyncRequest) (*SyncLogResponse, error)
	ListSyncLogs(ctx context.Context, req ListSyncLogsRequest) (*ListSyncLogsResponse, error)
	GetSyncLog(ctx context.Context, id string) (*SyncLogResponse, error)
}

// LocalFields lists the fields each entity exposes to mappings.
var LocalFields = map[Entity][]string{
	EntityAccount:     {"name", "industry", "website", "billing_country", "owner_email"},
	EntityOpportunity: {"name", "stage", "amount", "currency", "close_date"},
}

func IsLocalField(entity Entity, field string) bool {
	for _, f := range LocalFields[entity] {
		if f == field {
			return true
		}
	}
	return false
}

type CredentialsRequest struct {
	ClientID     string `json:"client_id" binding:"required"`
	ClientSecret string `json:"client_secret" binding:"required"`
	RefreshToken string `json:"refresh_token" binding:"required"`
	InstanceURL  string `json:"instance_url" binding:"omitempty,url"`
}

// CredentialsResponse never carries a secret in clear.
type CredentialsResponse struct {
	Configured   bool   `json:"configured"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	InstanceURL  string `json:"instance_url,omitempty"`
}

type ListMappingsRequest struct {
	Entity string `form:"entity"`
}

type MappingRequest struct {
	Entity      string `json:"entity" binding:"required"`
	LocalField  string `json:"local_field" binding:"required"`
	RemoteField string `json:"remote_field" binding:"required"`
	Direction   string `json:"direction" binding:"required"`
}

type UpdateMappingRequest struct {
	RemoteField *string `json:"remote_field"`
	Direction   *string `json:"direction"`
}

type MappingResponse struct {
	ID          string    `json:"id"`
	Entity      Entity    `json:"entity"`
	Object      string    `json:"object"`
	LocalField  string    `json:"local_field"`
	RemoteField string    `json:"remote_field"`
	Direction   Direction `json:"direction"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type SyncRequest struct {
	Direction string `json:"direction"`
}

type ListSyncLogsRequest struct {
	pagination.Pagination
	Status string `form:"status"`
}

type SyncLogResponse struct {
	ID         string     `json:"id"`
	Direction  Direction  `json:"direction"`
	Status     SyncStatus `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Pulled     int        `json:"pulled"`
	Pushed     int        `json:"pushed"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
	Error      string     `json:"error,omitempty"`
}

type ListSyncLogsResponse struct {
	pagination.PageInfo
	Logs []SyncLogResponse `json:"logs"`
}

var (
	ErrInvalidTenant      = errors.New("invalid_tenant")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidEntity      = errors.New("invalid_entity")
	ErrInvalidLocalField  = errors.New("invalid_local_field")
	ErrInvalidRemoteField = errors.New("invalid_remote_field")
	ErrInvalidDirection   = errors.New("invalid_direction")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidPageToken   = errors.New("invalid_page_token")
	ErrNotConfigured      = errors.New("salesforce_not_configured")
	ErrMappingExists      = errors.New("mapping_exists")
	ErrNoMappings         = errors.New("no_mappings")
	ErrSyncInProgress     = errors.New("sync_in_progress")
	ErrNotFound           = errors.New("not_found")
)
