package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*User, error)
	FindByEmail(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, email string) (*User, error)
	// FindByExternalID is not tenant scoped; it is how a token subject is
	// mapped to its tenant.
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*User, error)
	FindByIDs(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ids []snowflake.ID) ([]User, error)
	List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter ListFilter) ([]User, error)
	Update(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, values map[string]any) error
}

type ListFilter struct {
	Status   string
	Email    string
	BeforeID snowflake.ID
	Limit    int
}
