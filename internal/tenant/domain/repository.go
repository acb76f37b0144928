package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tenant *Tenant) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tenant, error)
	SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error)
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, values map[string]any) error
}
