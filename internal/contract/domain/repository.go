package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository holds the queries webhook ingestion needs before a tenant is
// known, plus the event log queries.
type Repository interface {
	// FindSignatureByRequestID looks the signature up across tenants.
	FindSignatureByRequestID(ctx context.Context, db *gorm.DB, requestID string) (*ContractSignature, error)
	// InsertEvent writes ev unless the same delivery is stored already and
	// reports whether a row was written.
	InsertEvent(ctx context.Context, db *gorm.DB, ev *EventDetail) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, eventHash, relatedSignatureID string) (*EventDetail, error)
	MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
	// LinkEvents attaches stored events of requestID that arrived before
	// the signature was committed.
	LinkEvents(ctx context.Context, db *gorm.DB, tenantID, signatureID snowflake.ID, requestID string) error
	// ListSignatureEvents returns the events of a signature oldest first.
	ListSignatureEvents(ctx context.Context, db *gorm.DB, tenantID, signatureID snowflake.ID) ([]EventDetail, error)
}
