package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// Resolve returns the effective permissions of a user in the current
	// tenant. Role grants come first, then direct grants.
	Resolve(ctx context.Context, userID snowflake.ID) (*Resolution, error)
	Authorize(ctx context.Context, userID snowflake.ID, feature, method string) error

	ListFeatures(ctx context.Context) ([]Feature, error)

	CreateRole(ctx context.Context, req RoleRequest) (*RoleResponse, error)
	ListRoles(ctx context.Context) ([]RoleResponse, error)
	GetRole(ctx context.Context, id string) (*RoleResponse, error)
	UpdateRole(ctx context.Context, id string, req RoleRequest) (*RoleResponse, error)
	DeleteRole(ctx context.Context, id string) error
	SetRolePermissions(ctx context.Context, id string, perms Permissions) (*RoleResponse, error)

	AssignRole(ctx context.Context, userID string, role string) error
	RevokeRole(ctx context.Context, userID string, role string) error
	SetUserPermissions(ctx context.Context, userID string, perms Permissions) error
	GetUserPermissions(ctx context.Context, userID string) (*Resolution, error)

	// SeedTenant creates the admin role holding every feature and method
	// and, when adminUserID is set, assigns it. It writes through tx.
	SeedTenant(ctx context.Context, tx *gorm.DB, tenantID, adminUserID snowflake.ID) error
	// UsersWithRoles returns the ids of users holding any of roles.
	UsersWithRoles(ctx context.Context, roles []string) ([]snowflake.ID, error)
}

type Resolution struct {
	Permissions Permissions `json:"permissions"`
	Roles       []string    `json:"roles"`
}

type RoleRequest struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Permissions Permissions `json:"permissions"`
}

type RoleResponse struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Permissions Permissions `json:"permissions"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

var (
	ErrInvalidTenant  = errors.New("invalid_tenant")
	ErrInvalidID      = errors.New("invalid_id")
	ErrInvalidUser    = errors.New("invalid_user")
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidFeature = errors.New("invalid_feature")
	ErrInvalidMethod  = errors.New("invalid_method")
	ErrRoleExists     = errors.New("role_exists")
	ErrRoleProtected  = errors.New("role_protected")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not_found")
)
