// Package model holds the columns shared by every tenant-owned table.
package model

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
)

// Base is embedded by tenant-owned rows. Rows are soft-deleted through
// IsDeleted and never removed.
type Base struct {
	ID        snowflake.ID  `json:"id" gorm:"primaryKey;autoIncrement:false"`
	TenantID  snowflake.ID  `json:"tenant_id" gorm:"column:tenant_id;not null;index"`
	IsDeleted bool          `json:"-" gorm:"column:is_deleted;not null;default:false;index"`
	CreatedAt time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time     `json:"updated_at" gorm:"not null"`
	CreatedBy *snowflake.ID `json:"created_by,omitempty" gorm:"column:created_by"`
	UpdatedBy *snowflake.ID `json:"updated_by,omitempty" gorm:"column:updated_by"`
}

// NewBase stamps a fresh row with the tenant and actor carried by ctx.
func NewBase(ctx context.Context, id snowflake.ID, now time.Time) Base {
	tenantID, _ := tenantcontext.TenantIDFromContext(ctx)
	actor := tenantcontext.ActorRef(ctx)
	return Base{
		ID:        id,
		TenantID:  tenantID,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: actor,
		UpdatedBy: actor,
	}
}

// Touch records a modification by the actor carried by ctx.
func (b *Base) Touch(ctx context.Context, now time.Time) {
	b.UpdatedAt = now
	b.UpdatedBy = tenantcontext.ActorRef(ctx)
}

// Updates returns the audit column values for a partial update.
func Updates(ctx context.Context, now time.Time, values map[string]any) map[string]any {
	if values == nil {
		values = map[string]any{}
	}
	values["updated_at"] = now
	values["updated_by"] = tenantcontext.ActorRef(ctx)
	return values
}
