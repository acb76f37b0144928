package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	// Create provisions a tenant with its first user, who is granted the
	// admin role.
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Current(ctx context.Context) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
}

// Founder is the authenticated identity creating the tenant.
type Founder struct {
	Subject  string
	Email    string
	Username string
}

type CreateRequest struct {
	Name    string  `json:"name"`
	Slug    string  `json:"slug"`
	Founder Founder `json:"-"`
}

type UpdateRequest struct {
	Name string `json:"name"`
}

type Response struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	AdminID   string    `json:"admin_user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrInvalidTenant  = errors.New("invalid_tenant")
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidSlug    = errors.New("invalid_slug")
	ErrInvalidFounder = errors.New("invalid_founder")
	ErrSlugTaken      = errors.New("slug_taken")
	ErrAlreadyMember  = errors.New("already_member")
	ErrNotFound       = errors.New("not_found")
)
