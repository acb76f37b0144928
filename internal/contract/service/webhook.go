package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/pricedesk/internal/audit/domain"
	contractdomain "github.com/smallbiznis/pricedesk/internal/contract/domain"
	"github.com/smallbiznis/pricedesk/internal/providers/esign"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func (s *Service) HandleWebhook(ctx context.Context, payload []byte) error {
	cb, err := esign.ParseCallback(payload)
	if err != nil {
		return err
	}
	if err := s.verifier.Verify(cb); err != nil {
		s.log.Warn("webhook signature rejected", zap.String("event_type", cb.EventType))
		return err
	}
	if cb.SignatureRequestID == "" {
		s.log.Info("webhook without signature request", zap.String("event_type", cb.EventType))
		return nil
	}

	sig, err := s.repo.FindSignatureByRequestID(ctx, s.db, cb.SignatureRequestID)
	if err != nil {
		return err
	}
	tenantID, ok := webhookTenant(sig, cb)
	if !ok {
		s.log.Warn("webhook for unknown signature request",
			zap.String("signature_request_id", cb.SignatureRequestID),
			zap.String("event_type", cb.EventType),
		)
		return nil
	}
	ctx = tenantcontext.WithTenantID(ctx, tenantID)

	now := s.clock.Now()
	occurredAt := cb.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}
	ev := &contractdomain.EventDetail{
		Base:               model.NewBase(ctx, s.genID.Generate(), now),
		SignatureRequestID: cb.SignatureRequestID,
		RelatedSignatureID: cb.RelatedSignatureID,
		EventType:          cb.EventType,
		EventTime:          cb.EventTime,
		EventHash:          cb.EventHash,
		OccurredAt:         occurredAt,
		StatusCode:         cb.StatusCode,
		Error:              cb.Error,
		Metadata:           datatypes.JSONMap(cb.Raw),
	}
	if sig != nil {
		ev.ContractSignatureID = &sig.ID
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, ev)
	if err != nil {
		return err
	}
	if !inserted {
		stored, err := s.repo.FindEvent(ctx, s.db, cb.EventHash, cb.RelatedSignatureID)
		if err != nil {
			return err
		}
		if stored == nil || stored.ProcessedAt != nil {
			s.log.Debug("duplicate webhook ignored", zap.String("event_hash", cb.EventHash))
			return nil
		}
		ev = stored
	}
	s.metrics.RecordSignatureEvent(ctx, tenantID.String(), cb.EventType)

	if sig == nil {
		// Folded when the signature commits or on replay.
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.lockSignature(ctx, tx, tenantID, sig.ID)
		if err != nil {
			return err
		}
		if ev.ContractSignatureID == nil {
			if err := s.repo.LinkEvents(ctx, tx, tenantID, locked.ID, cb.SignatureRequestID); err != nil {
				return err
			}
		}
		state, err := s.loadState(ctx, tx, tenantID, locked.ID)
		if err != nil {
			return err
		}

		// Past expires_at the envelope is Expired even before the sweep
		// stores it, so a late callback cannot reopen or complete it.
		status := state.next(locked.Status.Effective(now, locked.ExpiresAt), state.apply(ev))
		if err := s.saveState(ctx, tx, tenantID, state, now); err != nil {
			return err
		}
		if err := s.repo.MarkEventProcessed(ctx, tx, ev.ID, now); err != nil {
			return err
		}
		if status == locked.Status {
			return nil
		}
		if err := s.setStatus(ctx, tx, locked, status, now); err != nil {
			return err
		}

		s.log.Info("signature status changed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("signature_id", locked.ID.String()),
			zap.String("from", string(locked.Status)),
			zap.String("to", string(status)),
			zap.String("event_type", ev.EventType),
		)
		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			Action:     "contract.signature.status",
			TargetType: "contract",
			TargetID:   locked.ContractID.String(),
			ActorType:  auditdomain.ActorTypeProvider,
			Metadata: map[string]any{
				"signature_id": locked.ID.String(),
				"from":         string(locked.Status),
				"to":           string(status),
				"event_type":   ev.EventType,
			},
		})
	})
}

// webhookTenant resolves the tenant from the stored signature, or from the
// metadata attached at creation when the callback beat the commit.
func webhookTenant(sig *contractdomain.ContractSignature, cb *esign.Callback) (snowflake.ID, bool) {
	if sig != nil {
		return sig.TenantID, true
	}
	raw := strings.TrimSpace(cb.Metadata["tenant_id"])
	if raw == "" {
		return 0, false
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
