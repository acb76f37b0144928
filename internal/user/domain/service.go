package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricedesk/pkg/db/pagination"
)

type Service interface {
	// ResolveSubject maps an identity provider subject to its user and
	// tenant. Invited users become active on first sign-in.
	ResolveSubject(ctx context.Context, subject string) (*Principal, error)
	Me(ctx context.Context) (*Response, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	Get(ctx context.Context, id string) (*Response, error)
	Invite(ctx context.Context, req InviteRequest) (*Response, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Response, error)
	Sync(ctx context.Context, id string) (*Response, error)
	Delete(ctx context.Context, id string) error
	// Emails returns the addresses of active users among ids.
	Emails(ctx context.Context, ids []snowflake.ID) ([]string, error)
}

type Principal struct {
	UserID   snowflake.ID
	TenantID snowflake.ID
	Email    string
}

type ListRequest struct {
	pagination.Pagination
	Status string `form:"status"`
	Email  string `form:"email"`
}

type ListResponse struct {
	pagination.PageInfo
	Users []Response `json:"users"`
}

type InviteRequest struct {
	Email string   `json:"email" binding:"required,email"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

type UpdateRequest struct {
	Name   *string `json:"name"`
	Status *Status `json:"status"`
}

type Response struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	ExternalID string    `json:"external_id"`
	Email      string    `json:"email"`
	Username   string    `json:"username,omitempty"`
	Name       string    `json:"name,omitempty"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidEmail     = errors.New("invalid_email")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrInvalidRole      = errors.New("invalid_role")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrUserExists       = errors.New("user_exists")
	ErrUserDisabled     = errors.New("user_disabled")
	ErrUnknownSubject   = errors.New("unknown_subject")
	ErrNotFound         = errors.New("not_found")
)
