package domain

import (
	"time"

	"github.com/smallbiznis/pricedesk/pkg/db/model"
)

type Entity string

const (
	EntityAccount     Entity = "account"
	EntityOpportunity Entity = "opportunity"
)

// Object is the Salesforce sObject an entity syncs with.
func (e Entity) Object() string {
	switch e {
	case EntityAccount:
		return "Account"
	case EntityOpportunity:
		return "Opportunity"
	}
	return ""
}

type Direction string

const (
	DirectionPull Direction = "pull"
	DirectionPush Direction = "push"
	DirectionBoth Direction = "both"
)

func (d Direction) Valid() bool {
	return d == DirectionPull || d == DirectionPush || d == DirectionBoth
}

// Includes reports whether a mapping in direction d takes part in a run
// going run.
func (d Direction) Includes(run Direction) bool {
	return d == DirectionBoth || d == run
}

// FieldMapping binds one local field to one Salesforce field.
type FieldMapping struct {
	model.Base
	Entity      Entity    `json:"entity" gorm:"type:text;not null;index"`
	LocalField  string    `json:"local_field" gorm:"type:text;not null"`
	RemoteField string    `json:"remote_field" gorm:"type:text;not null"`
	Direction   Direction `json:"direction" gorm:"type:text;not null"`
}

func (FieldMapping) TableName() string { return "salesforce_field_mappings" }

type SyncStatus string

const (
	SyncRunning   SyncStatus = "running"
	SyncSucceeded SyncStatus = "succeeded"
	SyncPartial   SyncStatus = "partial"
	SyncFailed    SyncStatus = "failed"
)

type SyncLog struct {
	model.Base
	Direction  Direction  `json:"direction" gorm:"type:text;not null"`
	Status     SyncStatus `json:"status" gorm:"type:text;not null;index"`
	StartedAt  time.Time  `json:"started_at" gorm:"not null"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Pulled     int        `json:"pulled" gorm:"not null;default:0"`
	Pushed     int        `json:"pushed" gorm:"not null;default:0"`
	Skipped    int        `json:"skipped" gorm:"not null;default:0"`
	Failed     int        `json:"failed" gorm:"not null;default:0"`
	Error      string     `json:"error,omitempty" gorm:"type:text"`
}

func (SyncLog) TableName() string { return "salesforce_sync_logs" }
