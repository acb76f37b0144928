package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Tenant struct {
	ID        snowflake.ID  `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Name      string        `json:"name" gorm:"type:text;not null"`
	Slug      string        `json:"slug" gorm:"type:text;not null;uniqueIndex"`
	IsDeleted bool          `json:"-" gorm:"column:is_deleted;not null;default:false"`
	CreatedAt time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time     `json:"updated_at" gorm:"not null"`
	CreatedBy *snowflake.ID `json:"created_by,omitempty" gorm:"column:created_by"`
	UpdatedBy *snowflake.ID `json:"updated_by,omitempty" gorm:"column:updated_by"`
}

func (Tenant) TableName() string { return "tenants" }
