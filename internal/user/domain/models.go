package domain

import "github.com/smallbiznis/pricedesk/pkg/db/model"

type Status string

const (
	StatusInvited  Status = "invited"
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

// User is a member of one tenant. ExternalID is the identity provider
// subject and is unique across tenants.
type User struct {
	model.Base
	ExternalID string `json:"external_id" gorm:"column:external_id;type:text;not null;uniqueIndex"`
	Email      string `json:"email" gorm:"type:text;not null;index"`
	Username   string `json:"username" gorm:"type:text"`
	Name       string `json:"name" gorm:"type:text"`
	Status     Status `json:"status" gorm:"type:text;not null"`
}

func (User) TableName() string { return "users" }
