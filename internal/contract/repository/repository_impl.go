package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	contractdomain "github.com/smallbiznis/pricedesk/internal/contract/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() contractdomain.Repository {
	return &repo{}
}

func (r *repo) FindSignatureByRequestID(ctx context.Context, db *gorm.DB, requestID string) (*contractdomain.ContractSignature, error) {
	var sig contractdomain.ContractSignature
	err := db.WithContext(ctx).
		Where("signature_request_id = ? AND is_deleted = ?", requestID, false).
		First(&sig).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sig, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, ev *contractdomain.EventDetail) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO event_details (
			id, tenant_id, is_deleted, created_at, updated_at,
			contract_signature_id, signature_request_id, related_signature_id,
			event_type, event_time, event_hash, occurred_at,
			status_code, error, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_hash, related_signature_id) DO NOTHING`,
		ev.ID,
		ev.TenantID,
		false,
		ev.CreatedAt,
		ev.UpdatedAt,
		ev.ContractSignatureID,
		ev.SignatureRequestID,
		ev.RelatedSignatureID,
		ev.EventType,
		ev.EventTime,
		ev.EventHash,
		ev.OccurredAt,
		ev.StatusCode,
		ev.Error,
		ev.Metadata,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, eventHash, relatedSignatureID string) (*contractdomain.EventDetail, error) {
	var ev contractdomain.EventDetail
	err := db.WithContext(ctx).
		Where("event_hash = ? AND related_signature_id = ?", eventHash, relatedSignatureID).
		First(&ev).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}

func (r *repo) MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE event_details SET processed_at = ?, updated_at = ? WHERE id = ?`,
		processedAt, processedAt, id,
	).Error
}

func (r *repo) LinkEvents(ctx context.Context, db *gorm.DB, tenantID, signatureID snowflake.ID, requestID string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE event_details SET contract_signature_id = ?
		WHERE tenant_id = ? AND signature_request_id = ? AND contract_signature_id IS NULL`,
		signatureID, tenantID, requestID,
	).Error
}

func (r *repo) ListSignatureEvents(ctx context.Context, db *gorm.DB, tenantID, signatureID snowflake.ID) ([]contractdomain.EventDetail, error) {
	var events []contractdomain.EventDetail
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND contract_signature_id = ? AND is_deleted = ?", tenantID, signatureID, false).
		Order("occurred_at ASC").
		Order("id ASC").
		Find(&events).Error
	return events, err
}
